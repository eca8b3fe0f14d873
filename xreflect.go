package pickle

// Utilities that complement std reflect package.

import (
	"math/big"
	"reflect"
)

// deepEqual is like reflect.DeepEqual but also supports Dict, Set and the
// other containers the decoder produces, at any depth.
//
// It is needed because reflect.DeepEqual considers two Dicts not-equal because
// each Dict is made with its own seed. Cyclic graphs are compared by
// assuming equality of a pair of containers that is already being compared.
func deepEqual(a, b any) bool {
	return deepEq(a, b, make(map[[2]any]struct{}))
}

// seen reports whether the pair is already being compared, and marks it.
func seen(visiting map[[2]any]struct{}, a, b any) bool {
	k := [2]any{a, b}
	if _, ok := visiting[k]; ok {
		return true
	}
	visiting[k] = struct{}{}
	return false
}

func deepEqSlice(a, b []any, visiting map[[2]any]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !deepEq(a[i], b[i], visiting) {
			return false
		}
	}
	return true
}

func deepEqAttrs(a, b map[string]any, visiting map[[2]any]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !deepEq(va, vb, visiting) {
			return false
		}
	}
	return true
}

func deepEq(a, b any, visiting map[[2]any]struct{}) bool {
	switch a := a.(type) {
	case Dict:
		b, ok := b.(Dict)
		if !ok {
			return false // Dict != non-dict
		}
		if seen(visiting, a, b) {
			return true
		}
		if a.Len() != b.Len() {
			return false
		}

		// XXX O(n^2) because we want to compare keys exactly and so cannot use
		//     b.Get(ka) because Dict.Get uses general equality that would match e.g. int == int64
		for ka, va := range a.Iter() {
			keq := false
			for kb, vb := range b.Iter() {
				// NOTE don't use reflect.Equal(ka,kb) because it does not handle e.g. big.Int
				if reflect.TypeOf(ka) == reflect.TypeOf(kb) && equal(ka, kb) {
					keq = deepEq(va, vb, visiting)
					break
				}
			}
			if !keq {
				return false
			}
		}
		return true

	case *List:
		b, ok := b.(*List)
		if !ok {
			return false
		}
		if a == nil || b == nil {
			return a == b
		}
		if seen(visiting, a, b) {
			return true
		}
		return deepEqSlice(*a, *b, visiting)

	case Tuple:
		b, ok := b.(Tuple)
		return ok && deepEqSlice(a, b, visiting)

	case []any:
		b, ok := b.([]any)
		return ok && deepEqSlice(a, b, visiting)

	case *Set:
		b, ok := b.(*Set)
		return ok && eq_Set_Set(a, b)

	case *FrozenSet:
		b, ok := b.(*FrozenSet)
		return ok && eq_Set_Set(&a.Set, &b.Set)

	case *Record:
		b, ok := b.(*Record)
		if !ok {
			return false
		}
		if seen(visiting, a, b) {
			return true
		}
		return a.Class == b.Class && deepEqAttrs(a.attrs, b.attrs, visiting)

	case *PyException:
		b, ok := b.(*PyException)
		if !ok {
			return false
		}
		return a.Class == b.Class &&
			deepEqSlice(a.Args, b.Args, visiting) &&
			deepEqAttrs(a.Attrs, b.Attrs, visiting)

	case *big.Int:
		b, ok := b.(*big.Int)
		return ok && a.Cmp(b) == 0
	}

	return reflect.DeepEqual(a, b)
}
