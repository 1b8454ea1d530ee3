package photesthesis

import (
	"sync"
)

// A Symbol is a globally-unique alphanumeric-or-underscore identifier
// for use in a Grammar, either as a terminal or a nonterminal, and for
// the names of tests, parameters and transcript variables. Symbols are
// interned: two Symbols with the same content share one handle, so
// equality is pointer equality. The empty Symbol is permitted as a
// sentinel.
type Symbol struct {
	interned *string
}

var (
	internMu    sync.Mutex
	internTable = map[string]*string{}
)

func symbolCharOK(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// Intern returns the canonical Symbol for s, interning it on first
// use. Strings containing characters outside [A-Za-z0-9_] are rejected
// with an invalid_symbol issue.
func Intern(s string) (Symbol, error) {
	for i := 0; i < len(s); i++ {
		if !symbolCharOK(s[i]) {
			return Symbol{}, newIssue(CodeInvalidSymbol, s)
		}
	}
	internMu.Lock()
	defer internMu.Unlock()
	if p, ok := internTable[s]; ok {
		return Symbol{interned: p}, nil
	}
	p := new(string)
	*p = s
	internTable[s] = p
	return Symbol{interned: p}, nil
}

// MustIntern is Intern that panics on invalid input. Intended for
// package-level symbol declarations in test code.
func MustIntern(s string) Symbol {
	sym, err := Intern(s)
	if err != nil {
		panic(err)
	}
	return sym
}

// String returns the symbol's content. The zero Symbol renders as "".
func (s Symbol) String() string {
	if s.interned == nil {
		return ""
	}
	return *s.interned
}

// IsEmpty reports whether s is the empty sentinel.
func (s Symbol) IsEmpty() bool { return s.String() == "" }

// Equal reports content equality; interning makes this handle
// identity except for the zero Symbol, which equals Intern("").
func (s Symbol) Equal(other Symbol) bool {
	if s.interned == other.interned {
		return true
	}
	return s.String() == other.String()
}

// Less orders symbols by content.
func (s Symbol) Less(other Symbol) bool {
	return s.String() < other.String()
}
