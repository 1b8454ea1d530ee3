package photesthesis

import "bytes"

// Matcher lets client code interpose custom matching logic in
// Value.Match target lists. MatchValue reports whether the matcher
// accepts val, binding any captured state internally.
type Matcher interface {
	MatchValue(val Value) bool
}

// Match unifies v against a sequence of targets, the ergonomic surface
// test bodies use to destructure s-expressions:
//
//   - zero targets always succeed;
//   - one target matches a single variant: a pointer target
//     (*Value, *Symbol, *bool, *int64, *[]byte, *string) binds the
//     scalar on success, a literal target (Value, Symbol, bool, int,
//     int64, []byte, string) additionally requires equality;
//   - two or more targets require v to be a Pair whose head matches
//     the first target and whose tail elements match the rest.
//
// For example, with a, b as *Value and ADD a Symbol,
// v.Match(ADD, a, b) destructures the list (add <x> <y>).
func (v Value) Match(targets ...any) bool {
	if len(targets) == 0 {
		return true
	}
	if len(targets) == 1 {
		return v.matchOne(targets[0])
	}
	p, ok := v.impl.(*pair)
	if !ok {
		return false
	}
	return p.match(targets)
}

// match walks the list and target pack together. It is deliberately
// lenient at both ends: targets left over when the list ends stay
// unbound and the match still succeeds, and list elements beyond the
// last target are ignored. The former lets a short grammar expansion
// such as (add 0) still match a longer pack like (add, &x, &y).
func (p *pair) match(targets []any) bool {
	if !p.head.matchOne(targets[0]) {
		return false
	}
	if len(targets) == 1 || p.tail == nil {
		return true
	}
	return p.tail.match(targets[1:])
}

func (v Value) matchOne(target any) bool {
	switch t := target.(type) {
	case Matcher:
		return t.MatchValue(v)
	case *Value:
		*t = v
		return true
	case Value:
		return v.Equal(t)
	case *Symbol:
		s, ok := v.SymVal()
		if ok {
			*t = s
		}
		return ok
	case Symbol:
		s, ok := v.SymVal()
		return ok && s.Equal(t)
	case *bool:
		b, ok := v.BoolVal()
		if ok {
			*t = b
		}
		return ok
	case bool:
		b, ok := v.BoolVal()
		return ok && b == t
	case *int64:
		i, ok := v.Int64Val()
		if ok {
			*t = i
		}
		return ok
	case int64:
		i, ok := v.Int64Val()
		return ok && i == t
	case int:
		i, ok := v.Int64Val()
		return ok && i == int64(t)
	case *[]byte:
		b, ok := v.BlobVal()
		if ok {
			*t = b
		}
		return ok
	case []byte:
		b, ok := v.BlobVal()
		return ok && bytes.Equal(b, t)
	case *string:
		s, ok := v.StrVal()
		if ok {
			*t = s
		}
		return ok
	case string:
		s, ok := v.StrVal()
		return ok && s == t
	}
	return false
}
