package photesthesis

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

// An Atom is a component of a Production: either a Lit (terminal) or a
// Ref (nonterminal). Every atom occurrence carries a process-unique
// tag; for Refs the tag is the occurrence identity that k-path
// reasoning is defined over.
type Atom interface {
	atomTag() uint64
}

var atomTagCounter atomic.Uint64

func nextAtomTag() uint64 { return atomTagCounter.Add(1) }

// A Lit wraps a single literal Value.
type Lit struct {
	tag uint64
	val Value
}

func (l *Lit) atomTag() uint64 { return l.tag }

// Value returns the wrapped literal.
func (l *Lit) Value() Value { return l.val }

// A Ref is a tagged reference to a named Rule, optionally extending
// the local context with flags while its subtree expands.
type Ref struct {
	tag    uint64
	rule   RuleName
	ctxExt []ParamName
}

func (r *Ref) atomTag() uint64 { return r.tag }

// RuleName returns the referenced rule.
func (r *Ref) RuleName() RuleName { return r.rule }

// Tag returns the occurrence identity of this Ref in its Grammar.
func (r *Ref) Tag() uint64 { return r.tag }

// CtxExt returns the context flags this occurrence introduces.
func (r *Ref) CtxExt() []ParamName { return r.ctxExt }

// A Production is one alternative of a Rule: a sequence of Atoms plus
// the set of context flags that must be active for the production to
// apply.
type Production struct {
	atoms   []Atom
	ctxReq  []ParamName
	hasRefs bool
}

// Prod builds a Production from atoms.
func Prod(atoms ...Atom) Production {
	p := Production{atoms: atoms}
	for _, a := range atoms {
		if _, ok := a.(*Ref); ok {
			p.hasRefs = true
			break
		}
	}
	return p
}

// InContext returns a copy of p guarded on the given context flags.
func (p Production) InContext(names ...ParamName) Production {
	p.ctxReq = append(append([]ParamName{}, p.ctxReq...), names...)
	return p
}

// Atoms returns the production's atom sequence.
func (p Production) Atoms() []Atom { return p.atoms }

// A Context guards context-sensitive productions. Its semantic content
// is a set of named flags: the key set of the active ParamSpecs plus a
// local stack pushed and popped as Refs with context extensions are
// expanded.
type Context struct {
	specs ParamSpecs
	local []ParamName
}

// NewContext returns a Context whose global flags are the key set of
// specs.
func NewContext(specs ParamSpecs) *Context {
	return &Context{specs: specs}
}

func (c *Context) push(names []ParamName) {
	c.local = append(c.local, names...)
}

func (c *Context) pop(n int) {
	c.local = c.local[:len(c.local)-n]
}

func (c *Context) localDepth() int { return len(c.local) }

// Has reports whether the flag is active, globally or locally.
func (c *Context) Has(name ParamName) bool {
	if c.specs.Has(name) {
		return true
	}
	for i := len(c.local) - 1; i >= 0; i-- {
		if c.local[i].Equal(name) {
			return true
		}
	}
	return false
}

// HasAll reports whether every flag is active.
func (c *Context) HasAll(names []ParamName) bool {
	for _, n := range names {
		if !c.Has(n) {
			return false
		}
	}
	return true
}

type rule struct {
	prods []Production
}

// A Grammar is a set of named Rules and a factory for the Atoms that
// populate their Productions. It can populate Plans two ways: randomly
// and by k-path coverage (in the sense of
// https://doi.org/10.1109/ASE.2019.00027).
type Grammar struct {
	rules    map[string]*rule
	rootRefs map[string]*Ref
}

// NewGrammar returns an empty grammar.
func NewGrammar() *Grammar {
	return &Grammar{
		rules:    map[string]*rule{},
		rootRefs: map[string]*Ref{},
	}
}

// Sym returns a Lit wrapping a symbol terminal.
func (g *Grammar) Sym(s Symbol) *Lit { return &Lit{tag: nextAtomTag(), val: Sym(s)} }

// Bool returns a Lit wrapping a boolean terminal.
func (g *Grammar) Bool(b bool) *Lit { return &Lit{tag: nextAtomTag(), val: Bool(b)} }

// Int64 returns a Lit wrapping an integer terminal.
func (g *Grammar) Int64(i int64) *Lit { return &Lit{tag: nextAtomTag(), val: Int64(i)} }

// Blob returns a Lit wrapping a byte-sequence terminal.
func (g *Grammar) Blob(b []byte) *Lit { return &Lit{tag: nextAtomTag(), val: Blob(b)} }

// Str returns a Lit wrapping a string terminal.
func (g *Grammar) Str(s string) *Lit { return &Lit{tag: nextAtomTag(), val: Str(s)} }

// Ref returns a fresh Ref occurrence for the named rule, introducing
// ctxExt flags while its subtree expands.
func (g *Grammar) Ref(name RuleName, ctxExt ...ParamName) *Ref {
	return &Ref{tag: nextAtomTag(), rule: name, ctxExt: ctxExt}
}

// AddRule registers a named rule, failing with duplicate_rule when the
// name is taken. A canonical root Ref is recorded for use when the
// rule acts as a start symbol.
func (g *Grammar) AddRule(name RuleName, prods ...Production) error {
	key := name.String()
	if _, ok := g.rules[key]; ok {
		return ruleIssue(CodeDuplicateRule, name, "")
	}
	g.rules[key] = &rule{prods: prods}
	g.rootRefs[key] = g.Ref(name)
	return nil
}

// MustAddRule is AddRule that panics on error, for grammar literals.
func (g *Grammar) MustAddRule(name RuleName, prods ...Production) {
	if err := g.AddRule(name, prods...); err != nil {
		panic(err)
	}
}

func (g *Grammar) rootRef(name RuleName) (*Ref, error) {
	r, ok := g.rootRefs[name.String()]
	if !ok {
		return nil, ruleIssue(CodeUnknownRule, name, "")
	}
	return r, nil
}

func (g *Grammar) productions(name RuleName) ([]Production, error) {
	r, ok := g.rules[name.String()]
	if !ok {
		return nil, ruleIssue(CodeUnknownRule, name, "")
	}
	if len(r.prods) == 0 {
		return nil, ruleIssue(CodeNoActiveProduction, name, "rule has no productions")
	}
	return r.prods, nil
}

// activeProductions filters a rule's productions to those whose
// context requirements hold, dropping ref-carrying productions at
// depth limit 1. An empty result is a no_active_production failure; if
// productions were skipped solely because of the depth rule, the error
// says so.
func (g *Grammar) activeProductions(name RuleName, depthLimit int, ctx *Context) ([]*Production, error) {
	prods, err := g.productions(name)
	if err != nil {
		return nil, err
	}
	var active []*Production
	skippedDueToRefs := false
	for i := range prods {
		p := &prods[i]
		if !ctx.HasAll(p.ctxReq) {
			continue
		}
		if depthLimit == 1 && p.hasRefs {
			skippedDueToRefs = true
			continue
		}
		active = append(active, p)
	}
	if len(active) == 0 {
		if skippedDueToRefs {
			return nil, ruleIssue(CodeNoActiveProduction, name,
				"needs at least one terminal-only production at depth limit 1")
		}
		return nil, ruleIssue(CodeNoActiveProduction, name, "")
	}
	return active, nil
}

// randomValue returns a fully-expanded production of rule as a list
// value headed by the rule's symbol.
func (g *Grammar) randomValue(name RuleName, rng *rand.Rand, depthLimit int, ctx *Context) (Value, error) {
	if depthLimit == 0 {
		return Value{}, ruleIssue(CodeDepthExhausted, name, "")
	}
	prods, err := g.activeProductions(name, depthLimit, ctx)
	if err != nil {
		return Value{}, err
	}
	vals := []Value{Sym(name)}
	prod := prods[rng.Intn(len(prods))]
	for _, atom := range prod.atoms {
		switch a := atom.(type) {
		case *Lit:
			vals = append(vals, a.val)
		case *Ref:
			ctx.push(a.ctxExt)
			val, err := g.randomValue(a.rule, rng, depthLimit-1, ctx)
			ctx.pop(len(a.ctxExt))
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, val)
		default:
			return Value{}, ruleIssue(CodeNoActiveProduction, name,
				fmt.Sprintf("unknown atom %T", atom))
		}
	}
	return List(vals...), nil
}

// RandomValue generates a uniformly random expansion of rule under the
// given parameter specs, at most depthLimit rule applications deep.
// The result is always a Pair headed by the rule's symbol.
func (g *Grammar) RandomValue(name RuleName, rng *rand.Rand, depthLimit int, specs ParamSpecs) (Value, error) {
	ctx := NewContext(specs)
	return g.randomValue(name, rng, depthLimit, ctx)
}

// RandomPlan populates a plan for tname, generating each declared
// parameter from its rule.
func (g *Grammar) RandomPlan(tname TestName, specs ParamSpecs, rng *rand.Rand, depthLimit int) (*Plan, error) {
	plan := NewPlan(tname)
	for _, spec := range specs {
		ctx := NewContext(specs)
		v, err := g.randomValue(spec.Rule, rng, depthLimit, ctx)
		if err != nil {
			return nil, err
		}
		if err := plan.AddParam(spec.Name, v); err != nil {
			return nil, err
		}
	}
	return plan, nil
}
