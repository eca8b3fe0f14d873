package pickle

import (
	"fmt"
)

// registerBuiltins registers the classes every registry starts with.
func registerBuiltins(r *Registry) {
	for _, module := range []string{"exceptions", "builtins", "__builtin__"} {
		for _, name := range pythonExceptions {
			r.RegisterException(module, name)
		}
		r.RegisterExceptionModule(module)
	}

	// for protocols <= 2 Python3 encodes bytes as `_codecs.encode(byt.decode('latin1'), 'latin1')`
	r.Register("_codecs", "encode", codecsEncode)

	for _, module := range []string{"builtins", "__builtin__"} {
		r.Register(module, "bytearray", newBytearray)
		r.Register(module, "set", newSet)
		r.Register(module, "frozenset", newFrozenSet)
		r.Register(module, "complex", newComplex)
		r.Register(module, "str", newStr)
	}
	r.Register("builtins", "bytes", newBytes)
	r.Register("__builtin__", "unicode", newStr)
	r.Register("collections", "OrderedDict", newOrderedDict)

	registerDecimal(r)
	registerDatetime(r)
	registerArray(r)
	registerUUID(r)
}

// nargs checks that len(args) is within [min, max].
func nargs(args Tuple, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("want %d argument(s), got %d", min, len(args))
		}
		return fmt.Errorf("want %d to %d arguments, got %d", min, max, len(args))
	}
	return nil
}

func isLatin1(encoding any) bool {
	for _, name := range []string{"latin1", "latin-1", "iso-8859-1", "iso8859-1"} {
		if stringEQ(encoding, name) {
			return true
		}
	}
	return false
}

// _codecs.encode(text, encoding)
func codecsEncode(args Tuple) (any, error) {
	if err := nargs(args, 2, 2); err != nil {
		return nil, err
	}
	if !isLatin1(args[1]) {
		return nil, fmt.Errorf("unsupported encoding %v", args[1])
	}
	data, err := decodeLatin1Bytes(args[0])
	if err != nil {
		return nil, err
	}
	return Bytes(data), nil
}

// bytearray(), bytearray(bytes) or bytearray(text, encoding)
func newBytearray(args Tuple) (any, error) {
	if err := nargs(args, 0, 2); err != nil {
		return nil, err
	}
	switch len(args) {
	case 0:
		return []byte{}, nil
	case 1:
		switch x := args[0].(type) {
		case Bytes:
			return []byte(x), nil
		case []byte:
			return append([]byte{}, x...), nil
		case *List:
			return bytesFromInts(*x)
		}
		return nil, fmt.Errorf("want (bytes,); got (%T,)", args[0])
	}
	if !isLatin1(args[1]) {
		return nil, fmt.Errorf("unsupported encoding %v", args[1])
	}
	return decodeLatin1Bytes(args[0])
}

// bytes(), bytes(list of ints) or bytes(text, encoding)
func newBytes(args Tuple) (any, error) {
	v, err := newBytearray(args)
	if err != nil {
		return nil, err
	}
	return Bytes(v.([]byte)), nil
}

func bytesFromInts(items []any) ([]byte, error) {
	data := make([]byte, len(items))
	for i, x := range items {
		n, ok := x.(int64)
		if !ok || n < 0 || n > 0xff {
			return nil, fmt.Errorf("item %d: %v is not a byte", i, x)
		}
		data[i] = byte(n)
	}
	return data, nil
}

// iterable returns the items of a list-like argument.
func iterable(x any) ([]any, error) {
	switch x := x.(type) {
	case *List:
		return *x, nil
	case Tuple:
		return x, nil
	case *Set:
		return x.Items(), nil
	case *FrozenSet:
		return x.Items(), nil
	}
	return nil, fmt.Errorf("%T is not iterable", x)
}

func newSet(args Tuple) (any, error) {
	if err := nargs(args, 0, 1); err != nil {
		return nil, err
	}
	s := NewSet()
	if len(args) == 0 {
		return s, nil
	}
	items, err := iterable(args[0])
	if err != nil {
		return nil, err
	}
	for _, x := range items {
		if err := setTryAdd(s, x); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newFrozenSet(args Tuple) (any, error) {
	s, err := newSet(args)
	if err != nil {
		return nil, err
	}
	return &FrozenSet{Set: *s.(*Set)}, nil
}

// complex(real, imag)
func newComplex(args Tuple) (any, error) {
	if err := nargs(args, 0, 2); err != nil {
		return nil, err
	}
	var parts [2]float64
	for i, x := range args {
		f, err := AsFloat64(x)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		parts[i] = f
	}
	return complex(parts[0], parts[1]), nil
}

// str() or str(text)
func newStr(args Tuple) (any, error) {
	if err := nargs(args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return "", nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("want (str,); got (%T,)", args[0])
	}
	return s, nil
}

// OrderedDict() or OrderedDict([(key, value), ...])
func newOrderedDict(args Tuple) (any, error) {
	if err := nargs(args, 0, 1); err != nil {
		return nil, err
	}
	d := NewDict()
	if len(args) == 0 {
		return d, nil
	}
	if src, ok := args[0].(Dict); ok {
		for k, v := range src.Iter() {
			d.Set(k, v)
		}
		return d, nil
	}
	items, err := iterable(args[0])
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		kv, err := iterable(item)
		if err != nil || len(kv) != 2 {
			return nil, fmt.Errorf("item %d: want (key, value) pair, got %T", i, item)
		}
		if err := dictTrySet(d, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return d, nil
}
