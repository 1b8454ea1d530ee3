package photesthesis

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders v in the textual value format:
//
//	#nil  #t  #f  -12  [0x00 0xff]  "str\"ing"  sym  (a b c)
//
// The format round-trips through ParseValue, with two exceptions among
// Symbols: one whose text starts with a digit reads back as an integer
// (followed by any remaining characters), and the empty sentinel
// Symbol renders as nothing and does not read back.
func (v Value) String() string {
	b := &strings.Builder{}
	v.write(b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch impl := v.impl.(type) {
	case nil:
		b.WriteString("#nil")
	case *pair:
		b.WriteByte('(')
		first := true
		for p := impl; p != nil; p = p.tail {
			if !first {
				b.WriteByte(' ')
			}
			p.head.write(b)
			first = false
		}
		b.WriteByte(')')
	case symImpl:
		b.WriteString(impl.sym.String())
	case boolImpl:
		if impl.b {
			b.WriteString("#t")
		} else {
			b.WriteString("#f")
		}
	case int64Impl:
		b.WriteString(strconv.FormatInt(impl.i, 10))
	case blobImpl:
		b.WriteByte('[')
		for i, byt := range impl.b {
			if i > 0 {
				b.WriteByte(' ')
			}
			// Always two hex digits per byte.
			fmt.Fprintf(b, "0x%02x", byt)
		}
		b.WriteByte(']')
	case stringImpl:
		b.WriteByte('"')
		for i := 0; i < len(impl.s); i++ {
			c := impl.s[i]
			if c == '"' || c == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		}
		b.WriteByte('"')
	}
}

// scanner is a minimal cursor over an input string that tracks the
// byte offset for parse diagnostics.
type scanner struct {
	src string
	off int
}

func (sc *scanner) eof() bool { return sc.off >= len(sc.src) }

func (sc *scanner) peek() byte {
	if sc.eof() {
		return 0
	}
	return sc.src[sc.off]
}

func (sc *scanner) next() byte {
	c := sc.src[sc.off]
	sc.off++
	return c
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func (sc *scanner) skipSpace() {
	for !sc.eof() && isSpace(sc.peek()) {
		sc.off++
	}
}

// word reads a maximal run of non-space characters.
func (sc *scanner) word() string {
	sc.skipSpace()
	start := sc.off
	for !sc.eof() && !isSpace(sc.peek()) {
		sc.off++
	}
	return sc.src[start:sc.off]
}

// restOfLine reads up to (not including) the next newline.
func (sc *scanner) restOfLine() string {
	start := sc.off
	for !sc.eof() && sc.peek() != '\n' {
		sc.off++
	}
	return sc.src[start:sc.off]
}

func (sc *scanner) errf(format string, args ...any) error {
	return parseIssue(int64(sc.off), fmt.Sprintf(format, args...))
}

// ParseValue parses a single Value from the textual format, ignoring
// leading whitespace. Trailing input is an error.
func ParseValue(src string) (Value, error) {
	sc := &scanner{src: src}
	v, err := sc.value()
	if err != nil {
		return Value{}, err
	}
	sc.skipSpace()
	if !sc.eof() {
		return Value{}, sc.errf("trailing input after value")
	}
	return v, nil
}

func (sc *scanner) value() (Value, error) {
	sc.skipSpace()
	if sc.eof() {
		return Value{}, sc.errf("expected value, got end of input")
	}
	switch c := sc.peek(); {
	case c == '(':
		sc.next()
		var vals []Value
		for {
			sc.skipSpace()
			if sc.eof() {
				return Value{}, sc.errf("incomplete pair-list")
			}
			if sc.peek() == ')' {
				sc.next()
				return List(vals...), nil
			}
			v, err := sc.value()
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, v)
		}
	case c == '[':
		sc.next()
		var bytes []byte
		for {
			sc.skipSpace()
			if sc.eof() {
				return Value{}, sc.errf("incomplete blob")
			}
			if sc.peek() == ']' {
				sc.next()
				return Blob(bytes), nil
			}
			start := sc.off
			for !sc.eof() && sc.peek() != ']' && !isSpace(sc.peek()) {
				sc.next()
			}
			tok := sc.src[start:sc.off]
			n, err := strconv.ParseUint(strings.TrimPrefix(tok, "0x"), 16, 8)
			if err != nil {
				return Value{}, sc.errf("bad blob byte %q", tok)
			}
			bytes = append(bytes, byte(n))
		}
	case c == '"':
		sc.next()
		b := &strings.Builder{}
		for {
			if sc.eof() {
				return Value{}, sc.errf("incomplete string")
			}
			c := sc.next()
			if c == '"' {
				return Str(b.String()), nil
			}
			if c == '\\' {
				if sc.eof() {
					return Value{}, sc.errf("incomplete string escape")
				}
				c = sc.next()
			}
			b.WriteByte(c)
		}
	case c == '#':
		start := sc.off
		sc.next()
		for !sc.eof() && symbolCharOK(sc.peek()) {
			sc.next()
		}
		switch tok := sc.src[start:sc.off]; tok {
		case "#t":
			return Bool(true), nil
		case "#f":
			return Bool(false), nil
		case "#nil":
			return Nil(), nil
		default:
			return Value{}, sc.errf("unknown special symbol: %s", tok)
		}
	case c == '-' || (c >= '0' && c <= '9'):
		start := sc.off
		sc.next()
		for !sc.eof() && sc.peek() >= '0' && sc.peek() <= '9' {
			sc.next()
		}
		i, err := strconv.ParseInt(sc.src[start:sc.off], 10, 64)
		if err != nil {
			return Value{}, sc.errf("bad integer %q", sc.src[start:sc.off])
		}
		return Int64(i), nil
	case symbolCharOK(c):
		start := sc.off
		for !sc.eof() && symbolCharOK(sc.peek()) {
			sc.next()
		}
		sym, err := Intern(sc.src[start:sc.off])
		if err != nil {
			return Value{}, err
		}
		return Sym(sym), nil
	default:
		return Value{}, sc.errf("unexpected character %q", string(c))
	}
}
