package photesthesis

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/photesthesis/photesthesis/internal/ordset"
)

// Naming conventions shared by the corpus and grammar layers. All are
// interned Symbols; the aliases exist to keep signatures readable.
type (
	TestName  = Symbol
	ParamName = Symbol
	RuleName  = Symbol
	VarName   = Symbol
)

// PlanHash identifies a Plan across processes.
type PlanHash = uint64

// Trajectory summarizes one execution's observable behavior.
type Trajectory = uint64

// ParamSpec names the grammar rule used to generate one parameter.
type ParamSpec struct {
	Name ParamName
	Rule RuleName
}

// ParamSpecs is an ordered list of parameter specifications; the order
// is the declaration order used when combining per-parameter coverings.
type ParamSpecs []ParamSpec

// Has reports whether name is one of the declared parameters.
func (ps ParamSpecs) Has(name ParamName) bool {
	for _, s := range ps {
		if s.Name.Equal(name) {
			return true
		}
	}
	return false
}

// Rule returns the rule declared for name.
func (ps ParamSpecs) Rule(name ParamName) (RuleName, bool) {
	for _, s := range ps {
		if s.Name.Equal(name) {
			return s.Rule, true
		}
	}
	return Symbol{}, false
}

type paramEntry struct {
	name ParamName
	val  Value
}

// Params is a name→Value mapping with unique keys, kept ordered by
// name for serialization and hashing.
type Params struct {
	entries []paramEntry
}

// Add inserts a binding, failing when name is already bound.
func (p *Params) Add(name ParamName, val Value) error {
	i := sort.Search(len(p.entries), func(i int) bool {
		return !p.entries[i].name.Less(name)
	})
	if i < len(p.entries) && p.entries[i].name.Equal(name) {
		return newIssue(CodeDuplicateParam, name.String())
	}
	p.entries = append(p.entries, paramEntry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = paramEntry{name: name, val: val}
	return nil
}

// Get returns the binding for name.
func (p Params) Get(name ParamName) (Value, bool) {
	for _, e := range p.entries {
		if e.name.Equal(name) {
			return e.val, true
		}
	}
	return Value{}, false
}

// Len returns the number of bindings.
func (p Params) Len() int { return len(p.entries) }

// Each visits bindings in name order.
func (p Params) Each(fn func(name ParamName, val Value)) {
	for _, e := range p.entries {
		fn(e.name, e.val)
	}
}

func (p Params) clone() Params {
	cp := make([]paramEntry, len(p.entries))
	copy(cp, p.entries)
	return Params{entries: cp}
}

// Equal reports equality of the two mappings.
func (p Params) Equal(other Params) bool {
	if len(p.entries) != len(other.entries) {
		return false
	}
	for i := range p.entries {
		if !p.entries[i].name.Equal(other.entries[i].name) ||
			!p.entries[i].val.Equal(other.entries[i].val) {
			return false
		}
	}
	return true
}

// Less orders mappings lexicographically by (name, value) pairs.
func (p Params) Less(other Params) bool {
	n := len(p.entries)
	if len(other.entries) < n {
		n = len(other.entries)
	}
	for i := 0; i < n; i++ {
		a, b := p.entries[i], other.entries[i]
		if a.name.Less(b.name) {
			return true
		}
		if b.name.Less(a.name) {
			return false
		}
		if a.val.Less(b.val) {
			return true
		}
		if b.val.Less(a.val) {
			return false
		}
	}
	return len(p.entries) < len(other.entries)
}

// A Plan is a parameterized, named test scenario: the generation-side
// half of a corpus entry. Manual plans are hand-written rather than
// generated; they serialize without a hash and are never pruned by
// hash checks. Comments are free-text lines carried through the corpus
// file for the benefit of human readers.
type Plan struct {
	testName TestName
	manual   bool
	comments []string
	params   Params
}

// NewPlan returns an empty generated plan for the named test.
func NewPlan(tname TestName) *Plan {
	return &Plan{testName: tname}
}

// NewManualPlan returns an empty hand-written plan for the named test.
func NewManualPlan(tname TestName) *Plan {
	return &Plan{testName: tname, manual: true}
}

// NewPlanWithParams returns a generated plan carrying params.
func NewPlanWithParams(tname TestName, params Params) *Plan {
	return &Plan{testName: tname, params: params.clone()}
}

// TestName returns the plan's test name.
func (p *Plan) TestName() TestName { return p.testName }

// IsManual reports whether the plan is hand-written.
func (p *Plan) IsManual() bool { return p.manual }

// AddComment appends a free-text comment line.
func (p *Plan) AddComment(comment string) {
	p.comments = append(p.comments, comment)
}

// Comments returns the comment lines.
func (p *Plan) Comments() []string { return p.comments }

// AddParam binds a parameter, failing when the name is already bound.
func (p *Plan) AddParam(name ParamName, val Value) error {
	return p.params.Add(name, val)
}

// Param returns the bound value for name, failing with unknown_param
// when absent.
func (p *Plan) Param(name ParamName) (Value, error) {
	v, ok := p.params.Get(name)
	if !ok {
		return Value{}, newIssue(CodeUnknownParam, name.String())
	}
	return v, nil
}

// HasParam reports whether name is bound.
func (p *Plan) HasParam(name ParamName) bool {
	_, ok := p.params.Get(name)
	return ok
}

// Params returns the parameter mapping.
func (p *Plan) Params() Params { return p.params }

// ParamSpecs reconstructs the parameter specs that generated this
// plan, reading each parameter's rule from its value's head symbol.
func (p *Plan) ParamSpecs() ParamSpecs {
	specs := make(ParamSpecs, 0, p.params.Len())
	p.params.Each(func(name ParamName, val Value) {
		if rule, ok := HeadSymbol(val); ok {
			specs = append(specs, ParamSpec{Name: name, Rule: rule})
		}
	})
	return specs
}

// Hash returns the plan's stable 64-bit identity: the hash of
// `test_name ":" (name "=" value)*` in name order. The manual flag and
// comments do not participate.
func (p *Plan) Hash() PlanHash {
	h := newHasher()
	addSymbolToHash(h, p.testName)
	addStringToHash(h, ":")
	p.params.Each(func(name ParamName, val Value) {
		addKeyValueToHash(h, name, val)
	})
	return h.Sum64()
}

// Equal reports full equality: test name, manual flag, params and
// comments.
func (p *Plan) Equal(other *Plan) bool {
	if !p.testName.Equal(other.testName) || p.manual != other.manual {
		return false
	}
	if !p.params.Equal(other.params) {
		return false
	}
	if len(p.comments) != len(other.comments) {
		return false
	}
	for i := range p.comments {
		if p.comments[i] != other.comments[i] {
			return false
		}
	}
	return true
}

// Less is the plan total order. It is fairly involved because it
// dictates both the reading order of the corpus file and the
// preference for smaller equal-trajectory transcripts: test name,
// manual flag, parameter count, per-parameter (name, value size),
// then the full lexicographic tie-break over params and comments.
func (p *Plan) Less(other *Plan) bool {
	if p.testName.Less(other.testName) {
		return true
	}
	if other.testName.Less(p.testName) {
		return false
	}
	if !p.manual && other.manual {
		return true
	}
	if p.manual && !other.manual {
		return false
	}
	if p.params.Len() != other.params.Len() {
		return p.params.Len() < other.params.Len()
	}
	for i := range p.params.entries {
		a, b := p.params.entries[i], other.params.entries[i]
		if a.name.Less(b.name) {
			return true
		}
		if b.name.Less(a.name) {
			return false
		}
		if a.val.Size() != b.val.Size() {
			return a.val.Size() < b.val.Size()
		}
	}
	if p.params.Less(other.params) {
		return true
	}
	if other.params.Less(p.params) {
		return false
	}
	for i := 0; i < len(p.comments) && i < len(other.comments); i++ {
		if p.comments[i] != other.comments[i] {
			return p.comments[i] < other.comments[i]
		}
	}
	return len(p.comments) < len(other.comments)
}

type varRecord struct {
	name    VarName
	val     Value
	tracked bool
}

// A Transcript is a Plan plus the ordered list of checked/tracked
// (name, value) records appended while the test body ran.
type Transcript struct {
	plan *Plan
	vars []varRecord
}

// NewTranscript returns an empty transcript for plan.
func NewTranscript(plan *Plan) *Transcript {
	return &Transcript{plan: plan}
}

// TestName returns the underlying plan's test name.
func (t *Transcript) TestName() TestName { return t.plan.TestName() }

// Plan returns the underlying plan.
func (t *Transcript) Plan() *Plan { return t.plan }

// AddTracked appends a tracked record: the value participated in the
// trajectory hash as well as the transcript.
func (t *Transcript) AddTracked(name VarName, val Value) {
	t.vars = append(t.vars, varRecord{name: name, val: val, tracked: true})
}

// AddChecked appends a checked record.
func (t *Transcript) AddChecked(name VarName, val Value) {
	t.vars = append(t.vars, varRecord{name: name, val: val, tracked: false})
}

// ClearVars drops all records, keeping the plan.
func (t *Transcript) ClearVars() { t.vars = nil }

// Vars visits the records in execution order.
func (t *Transcript) Vars(fn func(name VarName, val Value, tracked bool)) {
	for _, r := range t.vars {
		fn(r.name, r.val, r.tracked)
	}
}

// NumVars returns the record count.
func (t *Transcript) NumVars() int { return len(t.vars) }

// Equal reports equality of plan and record sequence.
func (t *Transcript) Equal(other *Transcript) bool {
	if !t.plan.Equal(other.plan) || len(t.vars) != len(other.vars) {
		return false
	}
	for i := range t.vars {
		a, b := t.vars[i], other.vars[i]
		if !a.name.Equal(b.name) || !a.val.Equal(b.val) || a.tracked != b.tracked {
			return false
		}
	}
	return true
}

// Less orders transcripts by plan, then records lexicographically.
func (t *Transcript) Less(other *Transcript) bool {
	if t.plan.Less(other.plan) {
		return true
	}
	if other.plan.Less(t.plan) {
		return false
	}
	n := len(t.vars)
	if len(other.vars) < n {
		n = len(other.vars)
	}
	for i := 0; i < n; i++ {
		a, b := t.vars[i], other.vars[i]
		if a.name.Less(b.name) {
			return true
		}
		if b.name.Less(a.name) {
			return false
		}
		if a.val.Less(b.val) {
			return true
		}
		if b.val.Less(a.val) {
			return false
		}
		if a.tracked != b.tracked {
			return !a.tracked
		}
	}
	return len(t.vars) < len(other.vars)
}

// A Corpus is a persistent collection of transcripts, keyed by test
// name and kept in transcript order. At most one transcript per plan
// is admitted. A dirty bit tracks whether the file on disk needs
// rewriting; Close flushes when save-on-close is enabled (the
// default for corpora opened from a path).
type Corpus struct {
	path        string
	saveOnClose bool
	dirty       bool
	transcripts map[string]*ordset.Set[*Transcript]
}

func transcriptLess(a, b *Transcript) bool { return a.Less(b) }

// NewCorpus returns an empty in-memory corpus with no backing file.
func NewCorpus() *Corpus {
	return &Corpus{transcripts: map[string]*ordset.Set[*Transcript]{}}
}

// OpenCorpus loads the corpus file at path, or returns an empty corpus
// bound to path when the file does not exist. Save-on-close is
// enabled.
func OpenCorpus(path string) (*Corpus, error) {
	c := NewCorpus()
	c.path = path
	c.saveOnClose = true
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := c.parse(string(data)); err != nil {
		return nil, Issue{
			Code:    CodeParseError,
			Message: fmt.Sprintf("error parsing corpus file %q", path),
			Offset:  -1,
			Cause:   err,
		}
	}
	c.dirty = false
	return c, nil
}

// SetSaveOnClose overrides whether Close writes a dirty corpus back to
// its path.
func (c *Corpus) SetSaveOnClose(save bool) { c.saveOnClose = save }

// markDirty notes that the on-disk file is stale.
func (c *Corpus) markDirty() { c.dirty = true }

func (c *Corpus) set(tname TestName) *ordset.Set[*Transcript] {
	key := tname.String()
	s, ok := c.transcripts[key]
	if !ok {
		s = ordset.New(transcriptLess)
		c.transcripts[key] = s
	}
	return s
}

// TestNames returns the names of tests with stored transcripts, in
// name order.
func (c *Corpus) TestNames() []string {
	names := make([]string, 0, len(c.transcripts))
	for name, set := range c.transcripts {
		if set.Len() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Transcripts returns the stored transcripts for tname in transcript
// order. The slice is shared; callers must not mutate it.
func (c *Corpus) Transcripts(tname TestName) []*Transcript {
	return c.set(tname).Items()
}

// Contains reports whether an identical transcript is stored.
func (c *Corpus) Contains(ts *Transcript) bool {
	return c.set(ts.TestName()).Has(ts)
}

// findByPlan returns the stored transcript with an equal plan.
func (c *Corpus) findByPlan(tname TestName, plan *Plan) (*Transcript, bool) {
	for _, ts := range c.set(tname).Items() {
		if ts.plan.Equal(plan) {
			return ts, true
		}
	}
	return nil, false
}

// Add inserts a transcript whose plan must not already be present for
// its test name, failing with duplicate_plan otherwise.
func (c *Corpus) Add(ts *Transcript) error {
	if _, ok := c.findByPlan(ts.TestName(), ts.plan); ok {
		return newIssue(CodeDuplicatePlan,
			fmt.Sprintf("%s 0x%x", ts.TestName(), ts.plan.Hash()))
	}
	c.set(ts.TestName()).Insert(ts)
	c.markDirty()
	return nil
}

// Update replaces the stored transcript with the same plan, failing
// with no_such_plan when none exists.
func (c *Corpus) Update(ts *Transcript) error {
	old, ok := c.findByPlan(ts.TestName(), ts.plan)
	if !ok {
		return newIssue(CodeNoSuchPlan,
			fmt.Sprintf("%s 0x%x", ts.TestName(), ts.plan.Hash()))
	}
	set := c.set(ts.TestName())
	set.Delete(old)
	set.Insert(ts)
	c.markDirty()
	return nil
}

// Save rewrites the corpus file when dirty. It is a no-op for
// in-memory corpora.
func (c *Corpus) Save() error {
	if !c.dirty || c.path == "" {
		return nil
	}
	if err := os.WriteFile(c.path, []byte(c.serialize()), 0o644); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Close flushes the corpus to disk if dirty and save-on-close is
// enabled.
func (c *Corpus) Close() error {
	if c.saveOnClose {
		return c.Save()
	}
	return nil
}

// serialize renders every transcript block, tests in name order.
func (c *Corpus) serialize() string {
	names := make([]string, 0, len(c.transcripts))
	for name := range c.transcripts {
		names = append(names, name)
	}
	sort.Strings(names)
	b := &strings.Builder{}
	for _, name := range names {
		for _, ts := range c.transcripts[name].Items() {
			writeTranscript(b, ts)
		}
	}
	return b.String()
}

func writeTranscript(b *strings.Builder, ts *Transcript) {
	fmt.Fprintf(b, "#### transcript: %s", ts.TestName())
	if ts.plan.IsManual() {
		b.WriteString(" (manual)\n")
	} else {
		fmt.Fprintf(b, " 0x%x\n", ts.plan.Hash())
	}
	for _, comment := range ts.plan.comments {
		fmt.Fprintf(b, "# %s\n", comment)
	}
	ts.plan.params.Each(func(name ParamName, val Value) {
		fmt.Fprintf(b, "param: %s = %s\n", name, val)
	})
	for _, r := range ts.vars {
		kw := "check"
		if r.tracked {
			kw = "track"
		}
		fmt.Fprintf(b, "%s: %s = %s\n", kw, r.name, r.val)
	}
	b.WriteByte('\n')
}

// parse loads transcript blocks from a whole corpus file.
func (c *Corpus) parse(src string) error {
	sc := &scanner{src: src}
	sc.skipSpace()
	for !sc.eof() {
		ts, err := parseTranscript(sc)
		if err != nil {
			return err
		}
		if err := c.Add(ts); err != nil {
			return err
		}
		sc.skipSpace()
	}
	return nil
}

// expectWord reads a word and fails unless it equals want.
func (sc *scanner) expectWord(want string) error {
	got := sc.word()
	if got != want {
		return sc.errf("expected %q but got %q", want, got)
	}
	return nil
}

// symbolWord reads a word and interns it as a nonempty Symbol.
func (sc *scanner) symbolWord() (Symbol, error) {
	w := sc.word()
	if w == "" {
		return Symbol{}, sc.errf("unexpected empty identifier")
	}
	sym, err := Intern(w)
	if err != nil {
		return Symbol{}, sc.errf("bad identifier %q", w)
	}
	return sym, nil
}

func parseTranscript(sc *scanner) (*Transcript, error) {
	if err := sc.expectWord("####"); err != nil {
		return nil, err
	}
	if err := sc.expectWord("transcript:"); err != nil {
		return nil, err
	}
	tname, err := sc.symbolWord()
	if err != nil {
		return nil, err
	}
	hashOrManual := sc.word()
	manual := hashOrManual == "(manual)"
	var storedHash uint64
	if !manual {
		storedHash, err = strconv.ParseUint(strings.TrimPrefix(hashOrManual, "0x"), 16, 64)
		if err != nil || storedHash == 0 {
			return nil, sc.errf("unexpected hash value: %s", hashOrManual)
		}
	}

	plan := &Plan{testName: tname, manual: manual}

	// Comment lines precede params. A '#' introduces one unless it
	// opens the next block's '####' header.
	sc.skipSpace()
	for !sc.eof() && sc.peek() == '#' && !strings.HasPrefix(sc.src[sc.off:], "####") {
		sc.next()
		sc.skipSpace()
		line := strings.TrimRight(sc.restOfLine(), " \t\r")
		if line != "" {
			plan.AddComment(line)
		}
		sc.skipSpace()
	}

	for !sc.eof() && sc.peek() == 'p' {
		if err := sc.expectWord("param:"); err != nil {
			return nil, err
		}
		pname, err := sc.symbolWord()
		if err != nil {
			return nil, err
		}
		if err := sc.expectWord("="); err != nil {
			return nil, err
		}
		val, err := sc.value()
		if err != nil {
			return nil, err
		}
		if err := plan.AddParam(pname, val); err != nil {
			return nil, err
		}
		sc.skipSpace()
	}

	if !manual && plan.Hash() != storedHash {
		return nil, sc.errf("plan hash mismatch: stored 0x%x, computed 0x%x",
			storedHash, plan.Hash())
	}

	ts := NewTranscript(plan)
	sc.skipSpace()
	for !sc.eof() && (sc.peek() == 'c' || sc.peek() == 't') {
		kw := sc.word()
		if kw != "check:" && kw != "track:" {
			return nil, sc.errf("expecting either 'check:' or 'track:', got %q", kw)
		}
		vname, err := sc.symbolWord()
		if err != nil {
			return nil, err
		}
		if err := sc.expectWord("="); err != nil {
			return nil, err
		}
		val, err := sc.value()
		if err != nil {
			return nil, err
		}
		if kw == "track:" {
			ts.AddTracked(vname, val)
		} else {
			ts.AddChecked(vname, val)
		}
		sc.skipSpace()
	}
	return ts, nil
}
