package pickle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"strings"
)

// errRecursive is returned when a container contains itself.
var errRecursive = errors.New("pickle: encode: recursive structure")

// An Encoder encodes Go data structures into pickle byte stream.
//
// It writes values without memo references, so shared containers are
// written once per reference and cyclic structures are rejected.
type Encoder struct {
	w      io.Writer
	config *EncoderConfig

	err    error                // first write error
	active map[uintptr]struct{} // containers being encoded
}

// EncoderConfig allows to tune Encoder.
type EncoderConfig struct {
	// Protocol specifies which pickle protocol version should be used.
	Protocol int

	// PersistentRef, if !nil, will be used by encoder to encode objects as persistent references.
	//
	// Whenever the encoders sees pointer to a Go struct object, it will call
	// PersistentRef to find out how to encode that object. If PersistentRef
	// returns nil, the object is encoded regularly. If !nil - the object
	// will be encoded as an object reference.
	PersistentRef func(obj any) *Ref
}

// NewEncoder returns a new Encoder struct with default values
func NewEncoder(w io.Writer) *Encoder {
	return NewEncoderWithConfig(w, &EncoderConfig{})
}

// NewEncoderWithConfig is similar to NewEncoder, however it allows specifying the encoder configuration.
func NewEncoderWithConfig(w io.Writer, config *EncoderConfig) *Encoder {
	if config == nil {
		config = &EncoderConfig{}
	}
	return &Encoder{w: w, config: config, active: make(map[uintptr]struct{})}
}

// Encode writes the pickle encoding of v to w, the encoder's writer
func (e *Encoder) Encode(v any) error {
	proto := e.config.Protocol
	if !(0 <= proto && proto <= highestProtocol) {
		return fmt.Errorf("pickle: encode: invalid protocol %d", proto)
	}

	if proto >= 2 {
		e.emit(opProto, byte(proto))
	}
	if err := e.encode(reflectValueOf(v)); err != nil {
		return err
	}
	e.emit(opStop)
	return e.err
}

// emit writes raw pickle data. After a failed write nothing else is written.
func (e *Encoder) emit(bv ...byte) {
	e.emitb(bv)
}

func (e *Encoder) emitb(b []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	e.err = err
}

func (e *Encoder) emits(s string) {
	e.emitb([]byte(s))
}

func (e *Encoder) emitf(format string, argv ...any) {
	e.emits(fmt.Sprintf(format, argv...))
}

// emitLen writes op followed by n as little-endian 1, 4 or 8 bytes.
func (e *Encoder) emitLen(op byte, width int, n int) {
	var b [9]byte
	b[0] = op
	switch width {
	case 1:
		b[1] = byte(n)
	case 4:
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(b[1:], uint64(n))
	}
	e.emitb(b[:1+width])
}

// enter marks container p as being encoded.
func (e *Encoder) enter(p uintptr) error {
	if _, ok := e.active[p]; ok {
		return errRecursive
	}
	e.active[p] = struct{}{}
	return nil
}

func (e *Encoder) leave(p uintptr) {
	delete(e.active, p)
}

func (e *Encoder) encode(rv reflect.Value) error {
	if e.err != nil {
		return e.err
	}

	if e.config.PersistentRef != nil && rv.IsValid() && rv.CanInterface() {
		if ref := e.config.PersistentRef(rv.Interface()); ref != nil {
			return e.encodeRef(ref)
		}
	}

	if rv.IsValid() && rv.CanInterface() {
		handled, err := e.encodeValue(rv.Interface())
		if handled {
			return err
		}
	}

	switch rk := rv.Kind(); rk {

	case reflect.Bool:
		e.encodeBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int64, reflect.Int32, reflect.Int16:
		e.encodeInt(rv.Int())
	case reflect.Uint8, reflect.Uint64, reflect.Uint, reflect.Uint32, reflect.Uint16:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return e.encodeLong(new(big.Int).SetUint64(u))
		}
		e.encodeInt(int64(u))
	case reflect.String:
		e.encodeUnicode(rv.String())
	case reflect.Array, reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return e.encodeBytearray(b)
		}
		return e.encodeList(rv)

	case reflect.Map:
		return e.encodeMap(rv)

	case reflect.Struct:
		return e.encodeStruct(rv)

	case reflect.Float32, reflect.Float64:
		e.encodeFloat(rv.Float())

	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		return e.encodeCall(pybuiltin(e.config.Protocol, "complex"), Tuple{real(c), imag(c)})

	case reflect.Interface:
		// recurse until we get a concrete type
		return e.encode(rv.Elem())

	case reflect.Ptr:
		if rv.IsNil() {
			e.emit(opNone)
			return e.err
		}
		if err := e.enter(rv.Pointer()); err != nil {
			return err
		}
		defer e.leave(rv.Pointer())
		return e.encode(rv.Elem())

	case reflect.Invalid:
		e.emit(opNone)

	default:
		return &TypeError{typ: rk.String()}
	}

	return e.err
}

// TypeError is the error returned when encoding a Go type that has no
// pickle representation.
type TypeError struct {
	typ string
}

func (te *TypeError) Error() string {
	return fmt.Sprintf("no support for type '%s'", te.typ)
}

// encodeValue handles the types of the decoded value model. handled is
// false for everything else.
func (e *Encoder) encodeValue(v any) (handled bool, err error) {
	switch v := v.(type) {
	case None:
		e.emit(opNone)
	case Bytes:
		err = e.encodeBytes(v)
	case Tuple:
		err = e.encodeTuple(v)
	case *List:
		if v == nil {
			e.emit(opNone)
			break
		}
		err = e.encodeList(reflect.ValueOf(*v))
	case Dict:
		err = e.encodeDict(v)
	case *Set:
		err = e.encodeSet(v, false)
	case *FrozenSet:
		err = e.encodeSet(&v.Set, true)
	case Class:
		e.encodeClass(v)
	case Ref:
		err = e.encodeRef(&v)
	case *big.Int:
		err = e.encodeLong(v)
	case *Record:
		err = e.encodeRecord(v)
	case *PyException:
		err = e.encodePyException(v)
	default:
		return false, nil
	}
	if err == nil {
		err = e.err
	}
	return true, err
}

func (e *Encoder) encodeBool(b bool) {
	switch {
	case e.config.Protocol >= 2 && b:
		e.emit(opNewtrue)
	case e.config.Protocol >= 2:
		e.emit(opNewfalse)
	case b:
		e.emits(opTrue)
	default:
		e.emits(opFalse)
	}
}

func (e *Encoder) encodeInt(i int64) {
	if e.config.Protocol >= 1 {
		switch {
		case i >= 0 && i <= math.MaxUint8:
			e.emit(opBinint1, byte(i))
			return
		case i >= 0 && i <= math.MaxUint16:
			e.emit(opBinint2, byte(i), byte(i>>8))
			return
		case i >= math.MinInt32 && i <= math.MaxInt32:
			var b [5]byte
			b[0] = opBinint
			binary.LittleEndian.PutUint32(b[1:], uint32(i))
			e.emitb(b[:])
			return
		}
		if e.config.Protocol >= 2 {
			e.encodeLong(big.NewInt(i))
			return
		}
	}

	e.emitf("%c%d\n", opInt, i)
}

func (e *Encoder) encodeLong(b *big.Int) error {
	if b.IsInt64() && (e.config.Protocol < 2 || b.Int64() >= math.MinInt32 && b.Int64() <= math.MaxInt32) {
		e.encodeInt(b.Int64())
		return e.err
	}
	if e.config.Protocol < 2 {
		e.emitf("%c%dL\n", opLong, b)
		return e.err
	}

	data := encodeLong(b)
	if len(data) < 256 {
		e.emitLen(opLong1, 1, len(data))
	} else {
		e.emitLen(opLong4, 4, len(data))
	}
	e.emitb(data)
	return e.err
}

// encodeLong is the inverse of decodeLong.
func encodeLong(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	n := v.BitLen()/8 + 1 // room for the sign bit
	tc := new(big.Int).Set(v)
	if v.Sign() < 0 {
		tc.Add(tc, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
	}
	be := tc.FillBytes(make([]byte, n))
	le := make([]byte, n)
	for i, b := range be {
		le[n-1-i] = b
	}
	// drop redundant sign bytes
	for len(le) > 1 {
		last, prev := le[len(le)-1], le[len(le)-2]
		if (last == 0 && prev&0x80 == 0) || (last == 0xff && prev&0x80 != 0) {
			le = le[:len(le)-1]
			continue
		}
		break
	}
	return le
}

func (e *Encoder) encodeFloat(f float64) {
	if e.config.Protocol >= 1 {
		var b [9]byte
		b[0] = opBinfloat
		binary.BigEndian.PutUint64(b[1:], math.Float64bits(f))
		e.emitb(b[:])
		return
	}
	e.emitf("%c%s\n", opFloat, pyfloat(f))
}

func (e *Encoder) encodeUnicode(s string) {
	switch {
	case e.config.Protocol >= 4 && len(s) < 256:
		e.emitLen(opShortBinUnicode, 1, len(s))
	case e.config.Protocol >= 1 && uint64(len(s)) <= math.MaxUint32:
		e.emitLen(opBinunicode, 4, len(s))
	case e.config.Protocol >= 4:
		e.emitLen(opBinunicode8, 8, len(s))
	default:
		e.emitf("%c%s\n", opUnicode, pyencodeRawUnicodeEscape(s))
		return
	}
	e.emits(s)
}

func (e *Encoder) encodeBytes(b Bytes) error {
	if e.config.Protocol < 3 {
		// there is no bytes opcode before protocol 3; Python 3 uses
		// _codecs.encode(text, 'latin1') there.
		return e.encodeCall(Class{Module: "_codecs", Name: "encode"}, Tuple{encodeLatin1([]byte(b)), "latin1"})
	}

	switch l := len(b); {
	case l < 256:
		e.emitLen(opShortBinbytes, 1, l)
	case uint64(l) <= math.MaxUint32:
		e.emitLen(opBinbytes, 4, l)
	default:
		e.emitLen(opBinbytes8, 8, l)
	}
	e.emits(string(b))
	return e.err
}

func (e *Encoder) encodeBytearray(b []byte) error {
	proto := e.config.Protocol
	switch {
	case proto >= 5:
		e.emitLen(opBytearray8, 8, len(b))
		e.emitb(b)
		return e.err
	case proto >= 3:
		return e.encodeCall(pybuiltin(proto, "bytearray"), Tuple{Bytes(b)})
	}
	return e.encodeCall(pybuiltin(proto, "bytearray"), Tuple{encodeLatin1(b), "latin-1"})
}

func (e *Encoder) encodeTuple(t Tuple) error {
	proto := e.config.Protocol
	switch {
	case len(t) == 0 && proto >= 1:
		e.emit(opEmptyTuple)
		return e.err
	case len(t) <= 3 && proto >= 2:
		for _, x := range t {
			if err := e.encode(reflectValueOf(x)); err != nil {
				return err
			}
		}
		e.emit([]byte{opTuple1, opTuple2, opTuple3}[len(t)-1])
		return e.err
	}

	e.emit(opMark)
	for _, x := range t {
		if err := e.encode(reflectValueOf(x)); err != nil {
			return err
		}
	}
	e.emit(opTuple)
	return e.err
}

// encodeList emits a list from a Go slice or array value.
func (e *Encoder) encodeList(arr reflect.Value) error {
	if arr.Kind() == reflect.Slice && arr.Len() > 0 {
		if err := e.enter(arr.Pointer()); err != nil {
			return err
		}
		defer e.leave(arr.Pointer())
	}

	l := arr.Len()
	if e.config.Protocol == 0 {
		e.emit(opMark)
		for i := 0; i < l; i++ {
			if err := e.encode(arr.Index(i)); err != nil {
				return err
			}
		}
		e.emit(opList)
		return e.err
	}

	e.emit(opEmptyList)
	if l == 0 {
		return e.err
	}
	e.emit(opMark)
	for i := 0; i < l; i++ {
		if err := e.encode(arr.Index(i)); err != nil {
			return err
		}
	}
	e.emit(opAppends)
	return e.err
}

// encodeItems emits key/value pairs produced by each as a dict.
func (e *Encoder) encodeItems(n int, each func(emit func(k, v reflect.Value) error) error) error {
	if e.config.Protocol == 0 {
		e.emit(opMark)
	} else {
		e.emit(opEmptyDict)
		if n == 0 {
			return e.err
		}
		e.emit(opMark)
	}

	err := each(func(k, v reflect.Value) error {
		if err := e.encode(k); err != nil {
			return err
		}
		return e.encode(v)
	})
	if err != nil {
		return err
	}

	if e.config.Protocol == 0 {
		e.emit(opDict)
	} else {
		e.emit(opSetitems)
	}
	return e.err
}

func (e *Encoder) encodeMap(m reflect.Value) error {
	if m.IsNil() {
		e.emit(opNone)
		return e.err
	}
	if err := e.enter(m.Pointer()); err != nil {
		return err
	}
	defer e.leave(m.Pointer())

	keys := m.MapKeys()
	return e.encodeItems(len(keys), func(emit func(k, v reflect.Value) error) error {
		for _, k := range keys {
			if err := emit(k, m.MapIndex(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Encoder) encodeDict(d Dict) error {
	if d.m != nil {
		p := reflect.ValueOf(d.m).Pointer()
		if err := e.enter(p); err != nil {
			return err
		}
		defer e.leave(p)
	}

	return e.encodeItems(d.Len(), func(emit func(k, v reflect.Value) error) error {
		for k, v := range d.Iter() {
			if err := emit(reflectValueOf(k), reflectValueOf(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Encoder) encodeSet(s *Set, frozen bool) error {
	proto := e.config.Protocol
	items := s.Items()

	if proto < 4 {
		name := "set"
		if frozen {
			name = "frozenset"
		}
		return e.encodeCall(pybuiltin(proto, name), Tuple{NewList(items...)})
	}

	if frozen {
		e.emit(opMark)
		for _, x := range items {
			if err := e.encode(reflectValueOf(x)); err != nil {
				return err
			}
		}
		e.emit(opFrozenSet)
		return e.err
	}

	e.emit(opEmptySet)
	if len(items) == 0 {
		return e.err
	}
	e.emit(opMark)
	for _, x := range items {
		if err := e.encode(reflectValueOf(x)); err != nil {
			return err
		}
	}
	e.emit(opAddItems)
	return e.err
}

func (e *Encoder) encodeClass(c Class) {
	if e.config.Protocol >= 4 {
		e.encodeUnicode(c.Module)
		e.encodeUnicode(c.Name)
		e.emit(opStackGlobal)
		return
	}
	e.emitf("%c%s\n%s\n", opGlobal, c.Module, c.Name)
}

// encodeCall emits class(*args).
func (e *Encoder) encodeCall(c Class, args Tuple) error {
	e.encodeClass(c)
	if err := e.encodeTuple(args); err != nil {
		return err
	}
	e.emit(opReduce)
	return e.err
}

func (e *Encoder) encodeRef(ref *Ref) error {
	if e.config.Protocol == 0 {
		pid, ok := ref.Pid.(string)
		if !ok || strings.ContainsRune(pid, '\n') {
			return fmt.Errorf("pickle: encode: protocol 0 persistent id must be single-line string, not %T", ref.Pid)
		}
		e.emitf("%c%s\n", opPersid, pid)
		return e.err
	}

	if err := e.encode(reflectValueOf(ref.Pid)); err != nil {
		return err
	}
	e.emit(opBinpersid)
	return e.err
}

// encodeRecord emits an instance of the record's class followed by its
// attributes as BUILD state.
func (e *Encoder) encodeRecord(r *Record) error {
	if err := e.enter(reflect.ValueOf(r).Pointer()); err != nil {
		return err
	}
	defer e.leave(reflect.ValueOf(r).Pointer())

	e.encodeClass(r.Class)
	if err := e.encodeTuple(r.Args()); err != nil {
		return err
	}
	if kwargs, ok := r.attrs[AttrKwargs].(Dict); ok && e.config.Protocol >= 4 {
		if err := e.encodeDict(kwargs); err != nil {
			return err
		}
		e.emit(opNewobjEx)
	} else if e.config.Protocol >= 2 {
		e.emit(opNewobj)
	} else {
		e.emit(opReduce)
	}

	state := NewDict()
	for k, v := range r.attrs {
		switch k {
		case AttrClass, AttrArgs, AttrKwargs:
			continue
		}
		state.Set(k, v)
	}
	if state.Len() == 0 {
		return e.err
	}
	if err := e.encodeDict(state); err != nil {
		return err
	}
	e.emit(opBuild)
	return e.err
}

func (e *Encoder) encodePyException(x *PyException) error {
	if err := e.encodeCall(x.Class, x.Args); err != nil {
		return err
	}
	if len(x.Attrs) == 0 {
		return e.err
	}
	if err := e.encodeMap(reflect.ValueOf(x.Attrs)); err != nil {
		return err
	}
	e.emit(opBuild)
	return e.err
}

func (e *Encoder) encodeStruct(st reflect.Value) error {
	typ := st.Type()

	structTags := getStructTags(st)

	var fields []int
	var names []string
	if structTags != nil {
		for f, i := range structTags {
			names = append(names, f)
			fields = append(fields, i)
		}
	} else {
		l := typ.NumField()
		for i := 0; i < l; i++ {
			fty := typ.Field(i)
			if fty.PkgPath != "" {
				continue // skip unexported names
			}
			names = append(names, fty.Name)
			fields = append(fields, i)
		}
	}

	return e.encodeItems(len(fields), func(emit func(k, v reflect.Value) error) error {
		for j, i := range fields {
			if err := emit(reflect.ValueOf(names[j]), st.Field(i)); err != nil {
				return err
			}
		}
		return nil
	})
}

func reflectValueOf(v any) reflect.Value {

	rv, ok := v.(reflect.Value)
	if !ok {
		rv = reflect.ValueOf(v)
	}
	return rv
}

func getStructTags(ptr reflect.Value) map[string]int {
	if ptr.Kind() != reflect.Struct {
		return nil
	}

	m := make(map[string]int)

	t := ptr.Type()

	l := t.NumField()
	numTags := 0
	for i := 0; i < l; i++ {
		field := t.Field(i).Tag.Get("pickle")
		if field != "" {
			m[field] = i
			numTags++
		}
	}

	if numTags == 0 {
		return nil
	}

	return m
}

// pybuiltin returns Class corresponding to Python builtin name.
func pybuiltin(protocol int, name string) Class {
	module := "builtins" // py3
	if protocol <= 2 {
		module = "__builtin__" // py2
	}
	return Class{Module: module, Name: name}
}
