package pickle

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Repr returns Python-like text for a decoded value.
//
// Containers met again while being printed are shown as [...], {...} or
// module.name(...), so cyclic graphs terminate. Dict, set and record
// entries are sorted to make the output deterministic.
func Repr(x any) string {
	p := printer{active: make(map[any]struct{})}
	p.repr(x)
	return p.b.String()
}

type printer struct {
	b      strings.Builder
	active map[any]struct{} // containers on the current path
}

func (p *printer) enter(key any) bool {
	if _, ok := p.active[key]; ok {
		return false
	}
	p.active[key] = struct{}{}
	return true
}

func (p *printer) leave(key any) {
	delete(p.active, key)
}

// sub renders x on its own, sharing the cycle state.
func (p *printer) sub(x any) string {
	q := printer{active: p.active}
	q.repr(x)
	return q.b.String()
}

func (p *printer) items(open, close string, items []any) {
	p.b.WriteString(open)
	for i, x := range items {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.repr(x)
	}
	p.b.WriteString(close)
}

// sorted renders each item and sorts the results.
func (p *printer) sorted(items []any) []string {
	v := make([]string, len(items))
	for i, x := range items {
		v[i] = p.sub(x)
	}
	sort.Strings(v)
	return v
}

func (p *printer) repr(x any) {
	b := &p.b
	switch x := x.(type) {
	case nil:
		b.WriteString("<nil>")
	case None:
		b.WriteString("None")
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case *big.Int:
		b.WriteString(x.String())
	case float64:
		b.WriteString(pyfloat(x))
	case complex128:
		fmt.Fprintf(b, "(%s%+gj)", pyfloat(real(x)), imag(x))
	case string:
		b.WriteString(pyquote(x))
	case Bytes:
		b.WriteString("b" + pyquote(string(x)))
	case []byte:
		b.WriteString("bytearray(b" + pyquote(string(x)) + ")")

	case Tuple:
		if len(x) == 1 {
			b.WriteString("(")
			p.repr(x[0])
			b.WriteString(",)")
			return
		}
		p.items("(", ")", x)

	case *List:
		if !p.enter(x) {
			b.WriteString("[...]")
			return
		}
		defer p.leave(x)
		p.items("[", "]", *x)

	case Dict:
		if !p.enter(x) {
			b.WriteString("{...}")
			return
		}
		defer p.leave(x)
		entries := make([]string, 0, x.Len())
		for k, v := range x.Iter() {
			entries = append(entries, p.sub(k)+": "+p.sub(v))
		}
		sort.Strings(entries)
		b.WriteString("{" + strings.Join(entries, ", ") + "}")

	case *Set:
		if x.Len() == 0 {
			b.WriteString("set()")
			return
		}
		b.WriteString("{" + strings.Join(p.sorted(x.Items()), ", ") + "}")
	case *FrozenSet:
		b.WriteString("frozenset({" + strings.Join(p.sorted(x.Items()), ", ") + "})")

	case Class:
		b.WriteString(x.String())
	case Ref:
		b.WriteString("persistent(" + p.sub(x.Pid) + ")")

	case *Record:
		if !p.enter(x) {
			b.WriteString(x.ClassName() + "(...)")
			return
		}
		defer p.leave(x)
		b.WriteString(x.ClassName() + "(")
		i := 0
		for _, name := range x.attrNames() {
			if name == AttrClass {
				continue
			}
			if i > 0 {
				b.WriteString(", ")
			}
			i++
			b.WriteString(name + "=")
			p.repr(x.attrs[name])
		}
		b.WriteString(")")

	case *PyException:
		b.WriteString(x.Class.String())
		p.items("(", ")", x.Args)

	default:
		fmt.Fprintf(b, "%v", x)
	}
}

// pyfloat formats f the way Python's float repr does.
func pyfloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
