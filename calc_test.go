package photesthesis_test

// A miniature calculator with a stack of local symbolic variables:
// the system under test for the end-to-end driver tests, mirroring
// the engine's intended use.

import (
	ph "github.com/photesthesis/photesthesis"
)

var (
	exprRule = ph.MustIntern("expr")
	addRule  = ph.MustIntern("add")
	subRule  = ph.MustIntern("sub")
	mulRule  = ph.MustIntern("mul")
	letRule  = ph.MustIntern("let")
	varRule  = ph.MustIntern("var")
	xParam   = ph.MustIntern("x")
	nParam   = ph.MustIntern("n")
	resVar   = ph.MustIntern("res")
)

type calculator struct {
	varStack []struct {
		name string
		val  int64
	}
}

func (c *calculator) getVar(name string) int64 {
	for i := len(c.varStack) - 1; i >= 0; i-- {
		if c.varStack[i].name == name {
			return c.varStack[i].val
		}
	}
	return 0
}

func (c *calculator) pushVar(name string, val int64) {
	c.varStack = append(c.varStack, struct {
		name string
		val  int64
	}{name, val})
}

func (c *calculator) popVar() {
	c.varStack = c.varStack[:len(c.varStack)-1]
}

// exprGrammar describes abstract test scenarios in terms of arithmetic
// expressions. LET introduces x as a context symbol; references to VAR
// need x in context.
func exprGrammar() *ph.Grammar {
	g := ph.NewGrammar()
	g.MustAddRule(addRule,
		ph.Prod(g.Int64(0)),
		ph.Prod(g.Ref(exprRule), g.Ref(exprRule)))
	g.MustAddRule(subRule,
		ph.Prod(g.Int64(0)),
		ph.Prod(g.Ref(exprRule), g.Ref(exprRule)))
	g.MustAddRule(mulRule,
		ph.Prod(g.Int64(0)),
		ph.Prod(g.Ref(exprRule), g.Ref(exprRule)))
	g.MustAddRule(letRule,
		ph.Prod(g.Int64(0)),
		ph.Prod(g.Sym(xParam), g.Ref(exprRule), g.Ref(exprRule, xParam)))
	g.MustAddRule(varRule,
		ph.Prod(g.Sym(xParam)))
	g.MustAddRule(exprRule,
		ph.Prod(g.Int64(1)),
		ph.Prod(g.Int64(2)),
		ph.Prod(g.Int64(3)),
		ph.Prod(g.Ref(addRule)),
		ph.Prod(g.Ref(subRule)),
		ph.Prod(g.Ref(mulRule)),
		ph.Prod(g.Ref(letRule)),
		ph.Prod(g.Ref(varRule)).InContext(xParam))
	return g
}

func (c *calculator) eval(val ph.Value) int64 {
	var a, b, body ph.Value
	var i int64
	if val.Match(exprRule, &a) {
		if a.Match(addRule, &b, &body) {
			return c.eval(b) + c.eval(body)
		}
		if a.Match(subRule, &b, &body) {
			return c.eval(b) - c.eval(body)
		}
		if a.Match(mulRule, &b, &body) {
			return c.eval(b) * c.eval(body)
		}
		if a.Match(letRule, xParam, &b, &body) {
			c.pushVar(xParam.String(), c.eval(b))
			i = c.eval(body)
			c.popVar()
			return i
		}
		if a.Match(varRule, xParam) {
			return c.getVar(xParam.String())
		}
		if a.Match(&i) {
			return i
		}
	}
	return 0
}

// calcBody is the test body bound to calculator-driven Tests.
func calcBody(t *ph.Test) {
	calc := &calculator{}
	val := t.Param(nParam)
	t.Check(resVar, ph.Int64(calc.eval(val)))
}

// calcTrackBody also traces the result, so distinct results land in
// distinct trajectories and expansion can grow the corpus.
func calcTrackBody(t *ph.Test) {
	calc := &calculator{}
	val := t.Param(nParam)
	t.Track(resVar, ph.Int64(calc.eval(val)))
}

func calcSeedSpecs() []ph.ParamSpecs {
	return []ph.ParamSpecs{{{Name: nParam, Rule: exprRule}}}
}
