package pickle

// Python-like Dict that handles keys by Python-like equality on access.
//
// For example Dict.Get() will access the same element for all keys int(1), float64(1.0) and big.Int(1).

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"math"
	"math/big"
	"reflect"
	"sort"

	"github.com/aristanetworks/gomap"
)

// Dict represents Python's dict.
//
// It mirrors Python with respect to which types are allowed to be used as
// keys, and with respect to keys equality. For example Tuple is allowed to be
// used as key, and all int(1), float64(1.0) and big.Int(1) are considered to be
// equal. Similarly to Python3, [Bytes] and string are considered to be not
// equal, even if their underlying content is the same.
//
// Note: similarly to builtin map Dict is pointer-like type: its zero-value
// represents nil dictionary that is empty and invalid to use Set on.
type Dict struct {
	m *gomap.Map[any, any]
}

// NewDict returns new empty dictionary.
func NewDict() Dict {
	return NewDictWithSizeHint(0)
}

// NewDictWithSizeHint returns new empty dictionary with preallocated space for size items.
func NewDictWithSizeHint(size int) Dict {
	return Dict{m: gomap.NewHint[any, any](size, equal, hash)}
}

// NewDictWithData returns new dictionary with preset data.
//
// kv should be key₁, value₁, key₂, value₂, ...
func NewDictWithData(kv ...any) Dict {
	l := len(kv)
	if l%2 != 0 {
		panic("odd number of arguments")
	}
	l /= 2
	d := NewDictWithSizeHint(l)
	for i := 0; i < l; i++ {
		d.Set(kv[2*i], kv[2*i+1])
	}
	return d
}

// Get returns value associated with equal key.
//
// nil is returned if no matching key is present in the dictionary.
//
// Get panics if key's type is not allowed to be used as Dict key.
func (d Dict) Get(key any) any {
	value, _ := d.Get_(key)
	return value
}

// Get_ is comma-ok version of Get.
func (d Dict) Get_(key any) (value any, ok bool) {
	if d.m == nil {
		return nil, false
	}
	return d.m.Get(key)
}

// Set sets key to be associated with value.
//
// Set panics if key's type is not allowed to be used as Dict key.
func (d Dict) Set(key, value any) {
	d.m.Set(key, value)
}

// Del removes equal key from the dictionary.
func (d Dict) Del(key any) {
	d.m.Delete(key)
}

// Len returns the number of items in the dictionary.
func (d Dict) Len() int {
	if d.m == nil {
		return 0
	}
	return d.m.Len()
}

// Iter returns iterator over all elements in the dictionary.
//
// The order to visit entries is arbitrary.
func (d Dict) Iter() func(yield func(any, any) bool) {
	return func(yield func(any, any) bool) {
		if d.m == nil {
			return
		}
		for it := d.m.Iter(); it.Next(); {
			if !yield(it.Key(), it.Elem()) {
				return
			}
		}
	}
}

// StringKeys returns the dictionary as map[string]any.
//
// ok is false if any key is not a string.
func (d Dict) StringKeys() (m map[string]any, ok bool) {
	m = make(map[string]any, d.Len())
	ok = true
	d.Iter()(func(k, v any) bool {
		s, isStr := k.(string)
		if !isStr {
			ok = false
			return false
		}
		m[s] = v
		return true
	})
	return m, ok
}

// String returns human-readable representation of the dictionary.
func (d Dict) String() string {
	return Repr(d)
}

// GoString returns detailed human-readable representation of the dictionary.
func (d Dict) GoString() string {
	type KV struct{ k, v string }
	vkv := make([]KV, 0, d.Len())
	d.Iter()(func(k, v any) bool {
		vkv = append(vkv, KV{
			k: fmt.Sprintf("%#v", k),
			v: fmt.Sprintf("%#v", v),
		})
		return true
	})

	sort.Slice(vkv, func(i, j int) bool {
		return vkv[i].k < vkv[j].k
	})

	s := fmt.Sprintf("%T{", d)
	for i, kv := range vkv {
		if i > 0 {
			s += ", "
		}
		s += kv.k + ": " + kv.v
	}
	return s + "}"
}

// dictTrySet does d[key] = value, turning an unhashable key into an error
// instead of a panic.
func dictTrySet(d Dict, key, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = malformed("dict key %T: %v", key, r)
		}
	}()
	d.Set(key, value)
	return nil
}

// setTryAdd is dictTrySet for sets.
func setTryAdd(s *Set, item any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = malformed("set item %T: %v", item, r)
		}
	}()
	s.Add(item)
	return nil
}

// ---- equal ----

// kind represents to which category a type belongs.
//
// It primarily classifies bool, numbers, slices, structs and maps, and puts
// everything else into "other" category.
type kind uint

const (
	kBool    = iota
	kInt     // int + intX
	kUint    // uint + uintX
	kFloat   // floatX
	kComplex // complexX
	kBigInt  // *big.Int

	kSlice   // slice + array
	kMap     // map
	kStruct  // struct
	kPointer // pointer
	kOther   // everything else
)

// kindOf returns kind of x.
func kindOf(x any) kind {
	r := reflect.ValueOf(x)

	switch r.Kind() {
	case reflect.Bool:
		return kBool
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		return kInt
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8:
		return kUint
	case reflect.Float64, reflect.Float32:
		return kFloat
	case reflect.Complex128, reflect.Complex64:
		return kComplex

	case reflect.Slice, reflect.Array:
		return kSlice
	case reflect.Map:
		return kMap
	case reflect.Struct:
		return kStruct
	}

	switch x.(type) {
	case *big.Int:
		return kBigInt
	}

	switch r.Kind() {
	case reflect.Pointer:
		return kPointer
	}

	return kOther
}

// equal implements equality matching what Python would return for a == b.
//
// Equality properties:
//
// 1) equality is extension of Go ==
//
//	(a == b) ⇒ equal(a,b)
//
// 2) self equal:
//
//	equal(a,a) = y
//
// 3) equality is symmetrical:
//
//	equal(a,b) = equal(b,a)
//
// 4) equality is transitive.
func equal(xa, xb any) bool {
	// lists and sets compare by content, not by address
	if l, ok := xa.(*List); ok && l != nil {
		xa = []any(*l)
	}
	if l, ok := xb.(*List); ok && l != nil {
		xb = []any(*l)
	}
	if sa, ok := setOf(xa); ok {
		sb, ok := setOf(xb)
		return ok && eq_Set_Set(sa, sb)
	}
	if _, ok := setOf(xb); ok {
		return false
	}

	// strings/bytes
	switch a := xa.(type) {
	case string:
		b, ok := xb.(string)
		return ok && a == b

	case Bytes:
		b, ok := xb.(Bytes)
		return ok && a == b
	}
	switch xb.(type) {
	case string, Bytes:
		return false
	}

	// everything else
	a := reflect.ValueOf(xa)
	b := reflect.ValueOf(xb)

	ak := kindOf(xa)
	bk := kindOf(xb)

	// since equality is symmetric, we can implement only half of comparison matrix
	if ak > bk {
		a, b = b, a
		ak, bk = bk, ak
		xa, xb = xb, xa
	}
	// ak ≤ bk

	handled := true
	switch ak {
	default:
		handled = false

	// numbers
	case kBool:
		// bool compares to numbers as 1 or 0
		//
		// In [1]: 1.0 == True
		// Out[1]: True
		//
		// In [2]: d = {1: 'abc'}
		//
		// In [3]: d[True]
		// Out[3]: 'abc'
		abint := bint(a.Bool())
		switch bk {
		case kBool:
			return eq_Int_Int(abint, bint(b.Bool()))
		case kInt:
			return eq_Int_Int(abint, b.Int())
		case kUint:
			return eq_Int_Uint(abint, b.Uint())
		case kFloat:
			return eq_Int_Float(abint, b.Float())
		case kComplex:
			return eq_Int_Complex(abint, b.Complex())
		case kBigInt:
			return eq_Int_BigInt(abint, xb.(*big.Int))
		}

	case kInt:
		aint := a.Int()
		switch bk {
		case kInt:
			return eq_Int_Int(aint, b.Int())
		case kUint:
			return eq_Int_Uint(aint, b.Uint())
		case kFloat:
			return eq_Int_Float(aint, b.Float())
		case kComplex:
			return eq_Int_Complex(aint, b.Complex())
		case kBigInt:
			return eq_Int_BigInt(aint, xb.(*big.Int))
		}

	case kUint:
		auint := a.Uint()
		switch bk {
		case kUint:
			return auint == b.Uint()
		case kFloat:
			return float64(auint) == b.Float()
		case kComplex:
			return complex(float64(auint), 0) == b.Complex()
		case kBigInt:
			return eq_Uint_BigInt(auint, xb.(*big.Int))
		}

	case kFloat:
		afloat := a.Float()
		switch bk {
		case kFloat:
			return afloat == b.Float()
		case kComplex:
			return complex(afloat, 0) == b.Complex()
		case kBigInt:
			return eq_Float_BigInt(afloat, xb.(*big.Int))
		}

	case kComplex:
		acomplex := a.Complex()
		switch bk {
		case kComplex:
			return acomplex == b.Complex()
		case kBigInt:
			return eq_Complex_BigInt(acomplex, xb.(*big.Int))
		}

	case kBigInt:
		switch bk {
		case kBigInt:
			return xa.(*big.Int).Cmp(xb.(*big.Int)) == 0
		}

	case kSlice:
		switch bk {
		case kSlice:
			return eq_Slice_Slice(a, b)
		}
	}

	if handled {
		return false
	}

	// our types that need special handling
	switch a := xa.(type) {
	case Dict:
		b, ok := xb.(Dict)
		return ok && eq_Dict_Dict(a, b)
	}
	if _, ok := xb.(Dict); ok {
		return false
	}

	// structs  (also covers None, Class, Ref etc...)
	if ak == kStruct {
		return bk == kStruct && eq_Struct_Struct(a, b)
	}

	// pointers, as in builtin ==, are compared only by address
	if (a.IsValid() && !a.Comparable()) || (b.IsValid() && !b.Comparable()) {
		return false
	}
	return xa == xb
}

// setOf returns the set behind *Set or *FrozenSet.
func setOf(x any) (*Set, bool) {
	switch s := x.(type) {
	case *Set:
		return s, s != nil
	case *FrozenSet:
		return &s.Set, s != nil
	}
	return nil, false
}

// equality matrix. nontrivial elements

func eq_Int_Uint(a int64, b uint64) bool {
	if a >= 0 {
		return uint64(a) == b
	}
	return false
}

func eq_Int_BigInt(a int64, b *big.Int) bool {
	if b.IsInt64() {
		return a == b.Int64()
	}
	return false
}

func eq_Uint_BigInt(a uint64, b *big.Int) bool {
	if b.IsUint64() {
		return a == b.Uint64()
	}
	return false
}

func eq_Float_BigInt(a float64, b *big.Int) bool {
	bf, accuracy := bigInt_Float64(b)
	if accuracy == big.Exact {
		return a == bf
	}
	return false
}

func eq_Complex_BigInt(a complex128, b *big.Int) bool {
	if imag(a) == 0 {
		return eq_Float_BigInt(real(a), b)
	}
	return false
}

func eq_Slice_Slice(a, b reflect.Value) bool {
	al := a.Len()
	bl := b.Len()
	if al != bl {
		return false
	}
	for i := 0; i < al; i++ {
		if !equal(a.Index(i).Interface(), b.Index(i).Interface()) {
			return false
		}
	}
	return true
}

func eq_Struct_Struct(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}

	typ := a.Type()
	l := typ.NumField()
	for i := 0; i < l; i++ {
		af := a.Field(i)
		bf := b.Field(i)

		// .Interface() is not allowed if the field is private.
		// Work around the protection via unsafe on addressable copies.
		ftyp := typ.Field(i)
		if !ftyp.IsExported() {
			if !af.CanAddr() {
				a_ := reflect.New(typ).Elem()
				a_.Set(a)
				a = a_
				af = a.Field(i)
			}
			if !bf.CanAddr() {
				b_ := reflect.New(typ).Elem()
				b_.Set(b)
				b = b_
				bf = b.Field(i)
			}
			af = reflect.NewAt(ftyp.Type, af.Addr().UnsafePointer()).Elem()
			bf = reflect.NewAt(ftyp.Type, bf.Addr().UnsafePointer()).Elem()
		}

		if !equal(af.Interface(), bf.Interface()) {
			return false
		}
	}
	return true
}

func eq_Dict_Dict(a Dict, b Dict) bool {
	// dicts D₁ and D₂ are considered equal if the following is true:
	//
	//     - len(D₁) = len(D₂)
	//     - ∀ k ∈ D₁  equal(D₁[k], D₂[k]) = y
	if a.Len() != b.Len() {
		return false
	}

	eq := true
	a.Iter()(func(k, va any) bool {
		vb, ok := b.Get_(k)
		if !ok || !equal(va, vb) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

func eq_Set_Set(a, b *Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, x := range a.Items() {
		if !b.Has(x) {
			return false
		}
	}
	return true
}

// equality matrix. trivial elements

func eq_Int_Int(a int64, b int64) bool { return a == b }
func eq_Int_Float(a int64, b float64) bool { return float64(a) == b }
func eq_Int_Complex(a int64, b complex128) bool { return complex(float64(a), 0) == b }

// ---- hash ----

// hash returns hash of x consistent with equality implemented by equal.
//
//	equal(a,b)  ⇒  hash(a) = hash(b)
//
// hash panics with "unhashable type: ..." if x is not allowed to be used as Dict key.
func hash(seed maphash.Seed, x any) uint64 {
	// strings/bytes use standard hash of string
	switch v := x.(type) {
	case string:
		return maphash.String(seed, v)
	case Bytes:
		return maphash.String(seed, string(v))

	// mutable containers
	case *List, *Set, Dict, []byte:
		panic(fmt.Sprintf("unhashable type: %T", x))

	case *FrozenSet:
		// order independent: combine item hashes commutatively
		var sum uint64
		for _, item := range v.Items() {
			sum += hash(seed, item)
		}
		return maphash.String(seed, "frozenset") ^ sum
	}

	// for everything else we implement custom hashing ourselves to match equal
	var h maphash.Hash
	h.SetSeed(seed)

	hash_Uint := func(u uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], u)
		h.Write(b[:])
	}

	hash_Int := func(i int64) {
		hash_Uint(uint64(i))
	}

	hash_Float := func(f float64) {
		// if float is in int range and is integer number - hash it as integer
		i := int64(f)
		f_ := float64(i)
		if f_ == f {
			hash_Int(i)

			// else use raw float64 bytes representation for hashing
		} else {
			hash_Uint(math.Float64bits(f))
		}
	}

	// numbers
	r := reflect.ValueOf(x)
	k := kindOf(x)

	handled := true
	switch k {
	default:
		handled = false

	case kBool:
		hash_Int(bint(r.Bool()))
	case kInt:
		hash_Int(r.Int())
	case kUint:
		hash_Uint(r.Uint())
	case kFloat:
		hash_Float(r.Float())

	case kComplex:
		c := r.Complex()
		hash_Float(real(c))
		if imag(c) != 0 {
			hash_Float(imag(c))
		}

	case kBigInt:
		b := x.(*big.Int)
		switch {
		case b.IsInt64():
			hash_Int(b.Int64())
		case b.IsUint64():
			hash_Uint(b.Uint64())
		default:
			f, accuracy := bigInt_Float64(b)
			if accuracy == big.Exact {
				hash_Float(f)
			} else {
				h.WriteString("bigInt")
				h.Write(b.Bytes())
			}
		}

	case kPointer:
		hash_Uint(uint64(r.Pointer()))
	}

	if handled {
		return h.Sum64()
	}

	// tuple
	switch v := x.(type) {
	case Tuple:
		h.WriteString("tuple")
		for _, item := range v {
			hash_Uint(hash(seed, item))
		}
		return h.Sum64()
	}

	// structs  (also covers None, Class, Ref etc)
	if k == kStruct {
		typ := r.Type()
		h.WriteString(typ.Name())
		l := typ.NumField()
		for i := 0; i < l; i++ {
			f := r.Field(i)

			// .Interface() is not allowed if the field is private.
			// Work it around via unsafe. See eq_Struct_Struct for details.
			ftyp := typ.Field(i)
			if !ftyp.IsExported() {
				if !f.CanAddr() {
					r_ := reflect.New(typ).Elem()
					r_.Set(r)
					r = r_
					f = r.Field(i)
				}
				f = reflect.NewAt(ftyp.Type, f.Addr().UnsafePointer()).Elem()
			}

			hash_Uint(hash(seed, f.Interface()))
		}
		return h.Sum64()
	}

	panic(fmt.Sprintf("unhashable type: %T", x))
}

// ---- misc ----

// bint returns int corresponding to bool.
//
// true  -> 1
// false -> 0
func bint(x bool) int64 {
	if x {
		return 1
	}
	return 0
}

// bigInt_Float64 converts b to float64 and reports whether it was exact.
func bigInt_Float64(b *big.Int) (float64, big.Accuracy) {
	return new(big.Float).SetInt(b).Float64()
}
