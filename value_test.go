package photesthesis_test

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	ph "github.com/photesthesis/photesthesis"
)

func roundTrip(t *testing.T, v ph.Value) {
	t.Helper()
	text := v.String()
	back, err := ph.ParseValue(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	if !v.Equal(back) {
		t.Fatalf("round-trip changed %q into %q", text, back.String())
	}
}

func TestValue_RoundTrip(t *testing.T) {
	vals := []ph.Value{
		ph.Nil(),
		ph.Bool(true),
		ph.Bool(false),
		ph.Int64(0),
		ph.Int64(-42),
		ph.Int64(9223372036854775807),
		ph.Int64(-9223372036854775808),
		ph.Blob(nil),
		ph.Blob([]byte{0x00, 0x01, 0xfe, 0xff}),
		ph.Str(""),
		ph.Str("hello world"),
		ph.Str(`with "quotes" and \backslashes\`),
		ph.Sym(ph.MustIntern("a_symbol_42")),
		ph.List(),
		ph.List(ph.Int64(1), ph.Int64(2), ph.Int64(3)),
		ph.List(ph.Sym(ph.MustIntern("expr")),
			ph.List(ph.Sym(ph.MustIntern("add")),
				ph.List(ph.Sym(ph.MustIntern("expr")), ph.Int64(1)),
				ph.List(ph.Sym(ph.MustIntern("expr")), ph.Int64(2)))),
		ph.List(ph.Nil(), ph.Bool(false), ph.Blob([]byte{7}), ph.Str("x")),
	}
	for _, v := range vals {
		roundTrip(t, v)
	}
}

func TestValue_RandomRoundTrip(t *testing.T) {
	g := exprGrammar()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		v, err := g.RandomValue(exprRule, rng, 5, calcSeedSpecs()[0])
		if err != nil {
			t.Fatalf("random value: %v", err)
		}
		roundTrip(t, v)
	}
}

func TestValue_TextForms(t *testing.T) {
	cases := []struct {
		v    ph.Value
		text string
	}{
		{ph.Nil(), "#nil"},
		{ph.Bool(true), "#t"},
		{ph.Bool(false), "#f"},
		{ph.Int64(-7), "-7"},
		{ph.Blob([]byte{0x5, 0xab}), "[0x05 0xab]"},
		{ph.Str(`a"b\c`), `"a\"b\\c"`},
		{ph.Sym(ph.MustIntern("foo_1")), "foo_1"},
		{ph.List(ph.Int64(1), ph.Str("x")), `(1 "x")`},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.text {
			t.Fatalf("rendering mismatch: want %q got %q", tc.text, got)
		}
	}
}

func TestValue_ParseErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"(1 2",
		"[0x00",
		`"abc`,
		`"abc\`,
		"#q",
		"[0xzz]",
		"1 2",
		")",
	} {
		if _, err := ph.ParseValue(src); err == nil {
			t.Fatalf("expected parse error for %q", src)
		} else if !ph.IsCode(err, ph.CodeParseError) {
			t.Fatalf("expected parse_error for %q, got %v", src, err)
		}
	}
}

func TestValue_ParseIgnoresWhitespace(t *testing.T) {
	v, err := ph.ParseValue("  ( 1\n\t2  ( 3 ) ) ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := ph.List(ph.Int64(1), ph.Int64(2), ph.List(ph.Int64(3)))
	if !v.Equal(want) {
		t.Fatalf("got %s want %s", v, want)
	}
}

// orderFixture returns values spanning all seven variants, several per
// variant, in no particular order.
func orderFixture() []ph.Value {
	return []ph.Value{
		ph.Str("b"),
		ph.Nil(),
		ph.Int64(-1),
		ph.List(ph.Int64(9)),
		ph.Bool(true),
		ph.Blob([]byte{0xff}),
		ph.Sym(ph.MustIntern("zzz")),
		ph.List(ph.Int64(1), ph.Int64(2)),
		ph.Str("a"),
		ph.Bool(false),
		ph.Int64(5),
		ph.Blob([]byte{0x00, 0x01}),
		ph.Sym(ph.MustIntern("aaa")),
		ph.List(ph.Int64(2)),
	}
}

func TestValue_TotalOrderTrichotomy(t *testing.T) {
	vals := orderFixture()
	for _, a := range vals {
		for _, b := range vals {
			lt, gt, eq := a.Less(b), b.Less(a), a.Equal(b)
			n := 0
			if lt {
				n++
			}
			if gt {
				n++
			}
			if eq {
				n++
			}
			if n != 1 {
				t.Fatalf("trichotomy violated for %s vs %s: lt=%v gt=%v eq=%v",
					a, b, lt, gt, eq)
			}
		}
	}
}

func TestValue_TotalOrderTransitivity(t *testing.T) {
	vals := orderFixture()
	sort.Slice(vals, func(i, j int) bool { return vals[i].Less(vals[j]) })
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			if vals[j].Less(vals[i]) {
				t.Fatalf("sorted order inconsistent at %d/%d: %s vs %s",
					i, j, vals[i], vals[j])
			}
		}
	}
	// Cross-variant tag order: Nil < Pair < Sym < Bool < Int64 < Blob < String.
	kinds := make([]ph.Kind, 0, len(vals))
	for _, v := range vals {
		kinds = append(kinds, v.Kind())
	}
	for i := 1; i < len(kinds); i++ {
		if kinds[i] < kinds[i-1] {
			t.Fatalf("variant tags out of order: %v", kinds)
		}
	}
}

func TestValue_PairOrderComparesLengthFirst(t *testing.T) {
	shortButBig := ph.List(ph.Str("zzz"))
	longButSmall := ph.List(ph.Int64(0), ph.Int64(0))
	if !shortButBig.Less(longButSmall) {
		t.Fatalf("shorter list should order first regardless of elements")
	}
}

func TestValue_ConsAndCollections(t *testing.T) {
	v := ph.Cons(ph.Int64(1), ph.List(ph.Int64(2)))
	if !v.Equal(ph.List(ph.Int64(1), ph.Int64(2))) {
		t.Fatalf("cons onto list broken: %s", v)
	}
	single := ph.Cons(ph.Str("x"), ph.Nil())
	if !single.Equal(ph.List(ph.Str("x"))) {
		t.Fatalf("cons onto nil broken: %s", single)
	}

	set := ph.SetValue([]ph.Value{ph.Int64(3), ph.Int64(1), ph.Int64(3), ph.Int64(2)})
	if !set.Equal(ph.List(ph.Int64(1), ph.Int64(2), ph.Int64(3))) {
		t.Fatalf("set constructor broken: %s", set)
	}

	m := ph.MapValue([][2]ph.Value{
		{ph.Str("b"), ph.Int64(2)},
		{ph.Str("a"), ph.Int64(1)},
	})
	want := ph.List(
		ph.List(ph.Str("a"), ph.Int64(1)),
		ph.List(ph.Str("b"), ph.Int64(2)))
	if !m.Equal(want) {
		t.Fatalf("map constructor broken: %s", m)
	}
}

func TestValue_BlobTwoHexDigitsPerByte(t *testing.T) {
	text := ph.Blob([]byte{0x1}).String()
	if !strings.Contains(text, "0x01") {
		t.Fatalf("blob byte must render as two hex digits, got %q", text)
	}
}
