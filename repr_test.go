package pickle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepr(t *testing.T) {
	node := NewRecord(Class{Module: "graph", Name: "Node"})
	node.SetAttr("next", node)

	self := NewDict()
	self.Set("self", self)

	testv := []struct {
		in   any
		want string
	}{
		{None{}, "None"},
		{true, "True"},
		{int64(-7), "-7"},
		{bigInt("123456789012345678901234567890"), "123456789012345678901234567890"},
		{1.0, "1.0"},
		{1e16, "1e+16"},
		{0.0001, "0.0001"},
		{math.Inf(-1), "-inf"},
		{complex(1, 2), "(1.0+2j)"},
		{"a\"b", `"a\"b"`},
		{Bytes("ab"), `b"ab"`},
		{[]byte("ab"), `bytearray(b"ab")`},
		{Tuple{}, "()"},
		{Tuple{int64(1)}, "(1,)"},
		{Tuple{int64(1), "x"}, `(1, "x")`},
		{NewList(int64(1), NewList()), "[1, []]"},
		{NewDictWithData("b", int64(2), "a", int64(1)), `{"a": 1, "b": 2}`},
		{NewSet(), "set()"},
		{NewSet(int64(2), int64(1)), "{1, 2}"},
		{NewFrozenSet(int64(1)), "frozenset({1})"},
		{Class{Module: "foo", Name: "bar"}, "foo.bar"},
		{Ref{Pid: "oid"}, `persistent("oid")`},
		{record(Class{Module: "foo", Name: "bar"}, Tuple{"bing"}, "x", int64(1)), `foo.bar(__args__=("bing",), x=1)`},
		{node, "graph.Node(next=graph.Node(...))"},
		{self, `{"self": {...}}`},
		{&PyException{Class: Class{Module: "builtins", Name: "KeyError"}, Args: Tuple{"k"}}, `builtins.KeyError("k")`},
	}

	for _, tt := range testv {
		assert.Equal(t, tt.want, Repr(tt.in), "%#v", tt.in)
	}

	l := NewList(int64(1))
	l.Append(l)
	assert.Equal(t, "[1, [...]]", Repr(l))
	assert.Equal(t, "[1, [...]]", l.String())

	// the same list twice is not a cycle
	shared := NewList()
	assert.Equal(t, "([], [])", Repr(Tuple{shared, shared}))
}
