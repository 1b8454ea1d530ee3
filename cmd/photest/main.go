// Command photest inspects photesthesis corpus files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/photesthesis/photesthesis"
)

func main() {
	root := &cobra.Command{
		Use:           "photest",
		Short:         "Inspect photesthesis corpus files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(showCmd(), exportCmd(), hashCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "photest:", err)
		os.Exit(1)
	}
}

// openReadOnly loads a corpus without scheduling a rewrite.
func openReadOnly(path string) (*photesthesis.Corpus, error) {
	corp, err := photesthesis.OpenCorpus(path)
	if err != nil {
		return nil, err
	}
	corp.SetSaveOnClose(false)
	return corp, nil
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <corpus>",
		Short: "Pretty-print the transcripts of a corpus file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corp, err := openReadOnly(args[0])
			if err != nil {
				return err
			}
			for _, name := range corp.TestNames() {
				tss := corp.Transcripts(photesthesis.MustIntern(name))
				fmt.Printf("test %s: %d transcripts\n", name, len(tss))
				for _, ts := range tss {
					if ts.Plan().IsManual() {
						fmt.Printf("  plan (manual)\n")
					} else {
						fmt.Printf("  plan 0x%x\n", ts.Plan().Hash())
					}
					ts.Plan().Params().Each(func(p photesthesis.ParamName, v photesthesis.Value) {
						fmt.Printf("    param %s = %s\n", p, v)
					})
					ts.Vars(func(n photesthesis.VarName, v photesthesis.Value, tracked bool) {
						kw := "check"
						if tracked {
							kw = "track"
						}
						fmt.Printf("    %s %s = %s\n", kw, n, v)
					})
				}
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <corpus>",
		Short: "Emit a corpus as JSON on stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corp, err := openReadOnly(args[0])
			if err != nil {
				return err
			}
			return corp.ExportJSON(os.Stdout)
		},
	}
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <corpus>",
		Short: "List every plan hash stored in a corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			corp, err := openReadOnly(args[0])
			if err != nil {
				return err
			}
			for _, name := range corp.TestNames() {
				for _, ts := range corp.Transcripts(photesthesis.MustIntern(name)) {
					if ts.Plan().IsManual() {
						fmt.Printf("%s (manual)\n", name)
					} else {
						fmt.Printf("%s 0x%x\n", name, ts.Plan().Hash())
					}
				}
			}
			return nil
		},
	}
}
