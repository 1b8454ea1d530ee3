package photesthesis

import (
	"github.com/photesthesis/photesthesis/internal/ordset"
)

// A KPath is a directed path of exactly k atoms through the grammar
// graph. Atoms compare by occurrence identity (their tags), so two
// Refs to the same rule from different productions are distinct path
// nodes.
type KPath []Atom

func kpathLess(a, b KPath) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].atomTag() != b[i].atomTag() {
			return a[i].atomTag() < b[i].atomTag()
		}
	}
	return len(a) < len(b)
}

func valueLess(a, b Value) bool { return a.Less(b) }

func valueSliceLess(a, b []Value) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].Less(b[i]) {
			return true
		}
		if b[i].Less(a[i]) {
			return false
		}
	}
	return len(a) < len(b)
}

func paramsLess(a, b Params) bool { return a.Less(b) }

func singletonValueSet(v Value) *ordset.Set[Value] {
	s := ordset.New(valueLess)
	s.Insert(v)
	return s
}

// expandKPathPrefix accumulates into out every k-path extending
// prefix. At each step the last Ref's active productions contribute
// one extension per atom; a Lit may only occupy the terminal position
// of a path. A Ref never yet seen as a path root additionally starts a
// fresh path of its own. Context flags are pushed and popped around
// each Ref so context-gated productions participate exactly where
// their flags are in scope.
func (g *Grammar) expandKPathPrefix(k int, prefix KPath, ctx *Context, pathRoots map[*Ref]bool, out *ordset.Set[KPath]) error {
	if len(prefix) == k {
		out.Insert(append(KPath{}, prefix...))
		return nil
	}
	anchor, ok := prefix[len(prefix)-1].(*Ref)
	if !ok {
		return ruleIssue(CodeNoActiveProduction, Symbol{}, "k-path prefix must end in a rule reference")
	}
	prods, err := g.activeProductions(anchor.rule, k, ctx)
	if err != nil {
		return err
	}
	for _, prod := range prods {
		for _, ext := range prod.atoms {
			ref, isRef := ext.(*Ref)
			if isRef {
				ctx.push(ref.ctxExt)
			}
			// Only literal extensions at the last step of a k-path;
			// earlier positions require refs.
			if isRef || len(prefix) == k-1 {
				extended := append(append(KPath{}, prefix...), ext)
				if err := g.expandKPathPrefix(k, extended, ctx, pathRoots, out); err != nil {
					if isRef {
						ctx.pop(len(ref.ctxExt))
					}
					return err
				}
			}
			// A ref we've not yet started-from begins a new k-path.
			if isRef && !pathRoots[ref] {
				pathRoots[ref] = true
				if err := g.expandKPathPrefix(k, KPath{ext}, ctx, pathRoots, out); err != nil {
					ctx.pop(len(ref.ctxExt))
					return err
				}
			}
			if isRef {
				ctx.pop(len(ref.ctxExt))
			}
		}
	}
	return nil
}

func (g *Grammar) generateKPathSet(k int, root RuleName, specs ParamSpecs) (*ordset.Set[KPath], error) {
	rootRef, err := g.rootRef(root)
	if err != nil {
		return nil, err
	}
	pathRoots := map[*Ref]bool{rootRef: true}
	ctx := NewContext(specs)
	out := ordset.New(kpathLess)
	if err := g.expandKPathPrefix(k, KPath{rootRef}, ctx, pathRoots, out); err != nil {
		return nil, err
	}
	return out, nil
}

// KPathSet returns the finite set of all length-k paths through the
// grammar graph reachable from root, under the given parameter specs.
func (g *Grammar) KPathSet(k int, root RuleName, specs ParamSpecs) ([]KPath, error) {
	set, err := g.generateKPathSet(k, root, specs)
	if err != nil {
		return nil, err
	}
	return set.Items(), nil
}

// extendByCycling combines a set of value-sequence prefixes with an
// extension set by iterating both in parallel, advancing each index
// modulo its set size until both have cycled at least once. The result
// has max(|vecs|, |ext|) elements and every element of each input
// appears in at least one output, without forming the full Cartesian
// product.
func extendByCycling(vecs *ordset.Set[[]Value], ext *ordset.Set[Value]) *ordset.Set[[]Value] {
	res := ordset.New(valueSliceLess)
	i, j := 0, 0
	cycledI, cycledJ := false, false
	for !(cycledI && cycledJ) {
		tmp := append(append([]Value{}, vecs.At(i)...), ext.At(j))
		res.Insert(tmp)
		i++
		j++
		if i == vecs.Len() {
			cycledI = true
			i = 0
		}
		if j == ext.Len() {
			cycledJ = true
			j = 0
		}
	}
	return res
}

// extendParamsByCycling is the same cyclic combination over parameter
// mappings, binding name to each value of ext.
func extendParamsByCycling(params *ordset.Set[Params], name ParamName, ext []Value) *ordset.Set[Params] {
	res := ordset.New(paramsLess)
	i, j := 0, 0
	cycledI, cycledJ := false, false
	for !(cycledI && cycledJ) {
		tmp := params.At(i).clone()
		// name is fresh for every mapping in params: each parameter is
		// covered exactly once, in declaration order.
		_ = tmp.Add(name, ext[j])
		res.Insert(tmp)
		i++
		j++
		if i == params.Len() {
			cycledI = true
			i = 0
		}
		if j == len(ext) {
			cycledJ = true
			j = 0
		}
	}
	return res
}

// coveringOrMinimal returns a pair of expansion sets for the rule
// named by the last element of path, at least one of which is
// non-empty: the first contains expansions that cover some k-path
// still in paths, the second (zero or one element) the smallest
// possible non-covering expansion.
//
// For each active production:
//
//   - atoms are checked in order against the path suffix to see whether
//     [..., a, b, c, atom] completes a path in paths; the first such
//     path is consumed and the production marked covering (paths other
//     atoms would complete are left for later passes);
//   - each Ref atom expands recursively; a non-empty covering
//     sub-expansion is used (marking the production covering),
//     otherwise the singleton fallback;
//   - per-atom expansion sets combine by cyclic zipping, so each
//     element of each set appears in at least one whole-production
//     expansion without a Cartesian blow-up.
//
// Covering productions' expansions land in the first set, the rest in
// the second; finally the second set is dropped when the first is
// non-empty, or reduced to its smallest element otherwise.
func (g *Grammar) coveringOrMinimal(path []*Ref, depthLimit int, ctx *Context, k int, paths *ordset.Set[KPath]) (*ordset.Set[Value], *ordset.Set[Value], error) {
	last := path[len(path)-1]
	if depthLimit == 0 {
		return nil, nil, ruleIssue(CodeDepthExhausted, last.rule, "")
	}

	var window KPath
	if len(path) >= k-1 {
		for _, r := range path[len(path)-(k-1):] {
			window = append(window, r)
		}
	}

	prods, err := g.activeProductions(last.rule, depthLimit, ctx)
	if err != nil {
		return nil, nil, err
	}

	covering := ordset.New(valueLess)
	nonCovering := ordset.New(valueLess)

	for _, prod := range prods {
		prefixes := ordset.New(valueSliceLess)
		prefixes.Insert([]Value{Sym(last.rule)})
		covers := false

		for _, atom := range prod.atoms {
			candidate := append(append(KPath{}, window...), atom)
			if paths.Has(candidate) {
				// This production covers a k-path; keep at least one
				// expansion of it.
				paths.Delete(candidate)
				covers = true
				break
			}
		}

		for _, atom := range prod.atoms {
			var atomExpansion *ordset.Set[Value]
			switch a := atom.(type) {
			case *Lit:
				atomExpansion = singletonValueSet(a.val)
			case *Ref:
				ctx.push(a.ctxExt)
				subPath := append(append([]*Ref{}, path...), a)
				subCov, subFallback, err := g.coveringOrMinimal(subPath, depthLimit-1, ctx, k, paths)
				ctx.pop(len(a.ctxExt))
				if err != nil {
					return nil, nil, err
				}
				if subCov.Len() > 0 {
					atomExpansion = subCov
					covers = true
				} else {
					atomExpansion = subFallback
				}
			}
			prefixes = extendByCycling(prefixes, atomExpansion)
		}

		target := nonCovering
		if covers {
			target = covering
		}
		for _, prefix := range prefixes.Items() {
			target.Insert(List(prefix...))
		}
	}

	if covering.Len() > 0 {
		nonCovering = ordset.New(valueLess)
	} else if nonCovering.Len() > 1 {
		smallest, _ := nonCovering.Min()
		nonCovering = singletonValueSet(smallest)
	}
	return covering, nonCovering, nil
}

// KPathCovering generates the value set that covers every k-path
// reachable from rule. The depth limit starts at k and grows only when
// a whole pass produces no covering expansion, which is what lets the
// recursion terminate on arbitrarily cyclic grammars.
func (g *Grammar) KPathCovering(rule RuleName, k int, specs ParamSpecs) ([]Value, error) {
	ctx := NewContext(specs)
	paths, err := g.generateKPathSet(k, rule, specs)
	if err != nil {
		return nil, err
	}
	root, err := g.rootRef(rule)
	if err != nil {
		return nil, err
	}
	res := ordset.New(valueLess)
	depthLimit := k
	for paths.Len() > 0 {
		cov, _, err := g.coveringOrMinimal([]*Ref{root}, depthLimit, ctx, k, paths)
		if err != nil {
			return nil, err
		}
		if cov.Len() == 0 {
			depthLimit++
			continue
		}
		for _, v := range cov.Items() {
			res.Insert(v)
		}
	}
	return res.Items(), nil
}

// kPathCoverings runs the covering driver for each declared parameter
// and combines the per-parameter value sets into parameter mappings by
// cyclic zipping in declaration order.
func (g *Grammar) kPathCoverings(k int, specs ParamSpecs) (*ordset.Set[Params], error) {
	res := ordset.New(paramsLess)
	for _, spec := range specs {
		vals, err := g.KPathCovering(spec.Rule, k, specs)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			// Degenerate rule with no k-paths at all; nothing to bind.
			continue
		}
		if res.Len() == 0 {
			for _, v := range vals {
				var p Params
				if err := p.Add(spec.Name, v); err != nil {
					return nil, err
				}
				res.Insert(p)
			}
			continue
		}
		res = extendParamsByCycling(res, spec.Name, vals)
	}
	return res, nil
}

// PlansFromKPathCoverings wraps each parameter mapping of the k-path
// covering into a Plan for tname, in plan order.
func (g *Grammar) PlansFromKPathCoverings(tname TestName, specs ParamSpecs, k int) ([]*Plan, error) {
	pset, err := g.kPathCoverings(k, specs)
	if err != nil {
		return nil, err
	}
	plans := ordset.New(func(a, b *Plan) bool { return a.Less(b) })
	for _, p := range pset.Items() {
		plans.Insert(NewPlanWithParams(tname, p))
	}
	return plans.Items(), nil
}
