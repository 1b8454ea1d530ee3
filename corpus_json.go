package photesthesis

import (
	"io"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// JSON projection of a corpus for tooling. The on-disk corpus format
// stays the line-oriented text form; this view exists for scripting
// against corpora (jq and friends) and is not read back.

type jsonParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type jsonVar struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Tracked bool   `json:"tracked"`
}

type jsonTranscript struct {
	Test     string      `json:"test"`
	Hash     string      `json:"hash,omitempty"`
	Manual   bool        `json:"manual,omitempty"`
	Comments []string    `json:"comments,omitempty"`
	Params   []jsonParam `json:"params"`
	Vars     []jsonVar   `json:"vars"`
}

func transcriptToJSON(ts *Transcript) jsonTranscript {
	jt := jsonTranscript{
		Test:     ts.TestName().String(),
		Manual:   ts.Plan().IsManual(),
		Comments: ts.Plan().Comments(),
		Params:   []jsonParam{},
		Vars:     []jsonVar{},
	}
	if !ts.Plan().IsManual() {
		jt.Hash = "0x" + strconv.FormatUint(ts.Plan().Hash(), 16)
	}
	ts.Plan().Params().Each(func(name ParamName, val Value) {
		jt.Params = append(jt.Params, jsonParam{Name: name.String(), Value: val.String()})
	})
	ts.Vars(func(name VarName, val Value, tracked bool) {
		jt.Vars = append(jt.Vars, jsonVar{Name: name.String(), Value: val.String(), Tracked: tracked})
	})
	return jt
}

// ExportJSON writes every transcript as a JSON array, tests in name
// order and transcripts in transcript order.
func (c *Corpus) ExportJSON(w io.Writer) error {
	names := make([]string, 0, len(c.transcripts))
	for name := range c.transcripts {
		names = append(names, name)
	}
	sort.Strings(names)
	out := []jsonTranscript{}
	for _, name := range names {
		for _, ts := range c.transcripts[name].Items() {
			out = append(out, transcriptToJSON(ts))
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
