// Package render writes decoded pickles as text, JSON or CBOR.
//
// JSON and CBOR cannot express shared or cyclic references, so the graph is
// first converted to a tree by ToTree. A container reachable more than once
// is written in full at its first occurrence as {"$id": n, "$value": ...}
// and as {"$ref": n} afterwards.
package render

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/kisielk/pickle"
)

// ToTree converts a decoded value into maps, slices and scalars.
func ToTree(v any) any {
	t := &treeBuilder{
		seen: make(map[any]int),
		ids:  make(map[any]int),
	}
	t.count(v)
	return t.build(v)
}

type treeBuilder struct {
	seen map[any]int // occurrences of each container
	ids  map[any]int // ids of shared containers already written
	next int
}

// identity returns the key identifying x as a container, if it is one.
func identity(x any) (any, bool) {
	switch x := x.(type) {
	case *pickle.List, *pickle.Set, *pickle.FrozenSet, *pickle.Record, *pickle.PyException, pickle.Dict:
		return x, true
	}
	return nil, false
}

// children returns the values x refers to.
func children(x any) []any {
	switch x := x.(type) {
	case pickle.Tuple:
		return x
	case *pickle.List:
		return *x
	case pickle.Dict:
		var v []any
		for k, e := range x.Iter() {
			v = append(v, k, e)
		}
		return v
	case *pickle.Set:
		return x.Items()
	case *pickle.FrozenSet:
		return x.Items()
	case *pickle.Record:
		var v []any
		for _, e := range x.Attrs() {
			v = append(v, e)
		}
		return v
	case *pickle.PyException:
		v := append([]any{}, x.Args...)
		for _, e := range x.Attrs {
			v = append(v, e)
		}
		return v
	case pickle.Ref:
		return []any{x.Pid}
	}
	return nil
}

func (t *treeBuilder) count(x any) {
	if key, ok := identity(x); ok {
		t.seen[key]++
		if t.seen[key] > 1 {
			return
		}
	}
	for _, c := range children(x) {
		t.count(c)
	}
}

func (t *treeBuilder) build(x any) any {
	key, ok := identity(x)
	if !ok || t.seen[key] < 2 {
		return t.convert(x)
	}
	if id, done := t.ids[key]; done {
		return map[string]any{"$ref": id}
	}
	t.next++
	id := t.next
	t.ids[key] = id
	return map[string]any{"$id": id, "$value": t.convert(x)}
}

func (t *treeBuilder) list(items []any) []any {
	out := make([]any, len(items))
	for i, x := range items {
		out[i] = t.build(x)
	}
	return out
}

// attrs builds m in key order, so ids are assigned deterministically.
func (t *treeBuilder) attrs(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = t.build(m[k])
	}
	return out
}

// sortedItems builds items and orders them by their text form.
func (t *treeBuilder) sortedItems(items []any) []any {
	sort.Slice(items, func(i, j int) bool {
		return pickle.Repr(items[i]) < pickle.Repr(items[j])
	})
	return t.list(items)
}

func (t *treeBuilder) convert(x any) any {
	switch x := x.(type) {
	case nil, pickle.None:
		return nil
	case bool, int64, string:
		return x
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return pickle.Repr(x)
		}
		return x
	case complex128:
		return map[string]any{"$complex": []any{real(x), imag(x)}}
	case pickle.Bytes:
		return []byte(x)
	case []byte:
		return x

	case pickle.Tuple:
		return t.list(x)
	case *pickle.List:
		return t.list(*x)

	case pickle.Dict:
		if m, ok := x.StringKeys(); ok {
			return t.attrs(m)
		}
		type pair struct {
			key  string
			k, v any
		}
		pairs := make([]pair, 0, x.Len())
		for k, v := range x.Iter() {
			pairs = append(pairs, pair{pickle.Repr(k), k, v})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
		items := make([]any, len(pairs))
		for i, p := range pairs {
			items[i] = []any{t.build(p.k), t.build(p.v)}
		}
		return map[string]any{"$dict": items}

	case *pickle.Set:
		return map[string]any{"$set": t.sortedItems(x.Items())}
	case *pickle.FrozenSet:
		return map[string]any{"$frozenset": t.sortedItems(x.Items())}

	case pickle.Class:
		return map[string]any{"$class": x.String()}
	case pickle.Ref:
		return map[string]any{"$persistent": t.build(x.Pid)}

	case *pickle.Record:
		return t.attrs(x.Attrs())

	case *pickle.PyException:
		out := map[string]any{
			"$exception": x.PythonType(),
			"args":       t.list(x.Args),
		}
		if len(x.Attrs) != 0 {
			out["attrs"] = t.attrs(x.Attrs)
		}
		return out

	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}

	// typed array slices and whatever registered constructors return
	return x
}
