package pickle

import (
	"fmt"

	"github.com/aristanetworks/gomap"
)

// None is a representation of Python's None.
type None struct{}

// Tuple is a representation of Python's tuple.
type Tuple []any

// Bytes represents Python's bytes.
type Bytes string

// GoString renders Bytes distinctly from string in %#v output.
func (b Bytes) GoString() string {
	return fmt.Sprintf("%T(%q)", b, string(b))
}

// List represents Python's list.
//
// Decoded lists are always *List so that every memo reference to a list
// shares it, including references from the list to itself.
type List []any

// NewList returns a list holding items.
func NewList(items ...any) *List {
	l := List(items)
	return &l
}

// Append adds items to the end of the list.
func (l *List) Append(items ...any) {
	*l = append(*l, items...)
}

// Len returns the number of items in the list.
func (l *List) Len() int {
	return len(*l)
}

func (l *List) String() string {
	return Repr(l)
}

// Class represents a Python class.
//
// GLOBAL and STACK_GLOBAL push a Class; REDUCE and friends look it up in
// the Registry to find out how to build an instance.
type Class struct {
	Module, Name string
}

func (c Class) String() string {
	return c.Module + "." + c.Name
}

// Ref is the default representation for a Python persistent reference.
//
// Such references are used when one pickle somehow references another pickle
// in e.g. a database.
//
// See https://docs.python.org/3/library/pickle.html#pickle-persistent for details.
type Ref struct {
	// persistent ID of referenced object.
	//
	// used to be string for protocol 0, but "upgraded" to be arbitrary
	// object for later protocols.
	Pid any
}

// Set represents Python's set.
//
// Membership follows the same Python-like equality as Dict keys.
type Set struct {
	m *gomap.Map[any, struct{}]
}

// NewSet returns a set holding items.
func NewSet(items ...any) *Set {
	s := &Set{m: gomap.NewHint[any, struct{}](len(items), equal, hash)}
	for _, x := range items {
		s.Add(x)
	}
	return s
}

// Add inserts x. It panics if x is not hashable.
func (s *Set) Add(x any) {
	s.m.Set(x, struct{}{})
}

// Has reports whether an item equal to x is in the set.
func (s *Set) Has(x any) bool {
	_, ok := s.m.Get(x)
	return ok
}

// Len returns the number of items in the set.
func (s *Set) Len() int {
	return s.m.Len()
}

// Items returns set members in arbitrary order.
func (s *Set) Items() []any {
	items := make([]any, 0, s.m.Len())
	for it := s.m.Iter(); it.Next(); {
		items = append(items, it.Key())
	}
	return items
}

// FrozenSet represents Python's frozenset. Unlike Set it is hashable and
// can be a Dict key.
type FrozenSet struct {
	Set
}

// NewFrozenSet returns a frozenset holding items.
func NewFrozenSet(items ...any) *FrozenSet {
	return &FrozenSet{Set: *NewSet(items...)}
}
