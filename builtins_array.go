package pickle

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode/utf16"
)

func registerArray(r *Registry) {
	r.Register("array", "array", newArray)
	r.Register("array", "_array_reconstructor", arrayReconstructor)
}

// machineFormat is one of the machine format codes of the array module.
type machineFormat struct {
	size   int
	order  binary.ByteOrder
	decode func(data []byte, size int, order binary.ByteOrder) any
}

// machineFormats is indexed by machine format code.
var machineFormats = []machineFormat{
	0:  {1, binary.LittleEndian, decodeUint8},
	1:  {1, binary.LittleEndian, decodeInt8},
	2:  {2, binary.LittleEndian, decodeUint16},
	3:  {2, binary.BigEndian, decodeUint16},
	4:  {2, binary.LittleEndian, decodeInt16},
	5:  {2, binary.BigEndian, decodeInt16},
	6:  {4, binary.LittleEndian, decodeUint32},
	7:  {4, binary.BigEndian, decodeUint32},
	8:  {4, binary.LittleEndian, decodeInt32},
	9:  {4, binary.BigEndian, decodeInt32},
	10: {8, binary.LittleEndian, decodeUint64},
	11: {8, binary.BigEndian, decodeUint64},
	12: {8, binary.LittleEndian, decodeInt64},
	13: {8, binary.BigEndian, decodeInt64},
	14: {4, binary.LittleEndian, decodeFloat32},
	15: {4, binary.BigEndian, decodeFloat32},
	16: {8, binary.LittleEndian, decodeFloat64},
	17: {8, binary.BigEndian, decodeFloat64},
	18: {2, binary.LittleEndian, decodeUTF16},
	19: {2, binary.BigEndian, decodeUTF16},
	20: {4, binary.LittleEndian, decodeUTF32},
	21: {4, binary.BigEndian, decodeUTF32},
}

// nativeFormats maps typecodes to the machine format of a 64-bit little
// endian host, which is how raw array bytes from older pickles are read.
var nativeFormats = map[string]int{
	"B": 0, "b": 1, "H": 2, "h": 4, "I": 6, "i": 8,
	"L": 10, "l": 12, "Q": 10, "q": 12, "f": 14, "d": 16,
	"u": 20, "w": 20,
}

func decodeFixed[T any](data []byte, size int, conv func(b []byte) T) []T {
	out := make([]T, len(data)/size)
	for i := range out {
		out[i] = conv(data[i*size : (i+1)*size])
	}
	return out
}

func decodeUint8(data []byte, _ int, _ binary.ByteOrder) any {
	return append([]uint8{}, data...)
}

func decodeInt8(data []byte, size int, _ binary.ByteOrder) any {
	return decodeFixed(data, size, func(b []byte) int8 { return int8(b[0]) })
}

func decodeUint16(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, order.Uint16)
}

func decodeInt16(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, func(b []byte) int16 { return int16(order.Uint16(b)) })
}

func decodeUint32(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, order.Uint32)
}

func decodeInt32(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, func(b []byte) int32 { return int32(order.Uint32(b)) })
}

func decodeUint64(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, order.Uint64)
}

func decodeInt64(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, func(b []byte) int64 { return int64(order.Uint64(b)) })
}

func decodeFloat32(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) })
}

func decodeFloat64(data []byte, size int, order binary.ByteOrder) any {
	return decodeFixed(data, size, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) })
}

func decodeUTF16(data []byte, size int, order binary.ByteOrder) any {
	return string(utf16.Decode(decodeFixed(data, size, order.Uint16)))
}

func decodeUTF32(data []byte, size int, order binary.ByteOrder) any {
	return string(decodeFixed(data, size, func(b []byte) rune { return rune(order.Uint32(b)) }))
}

// decodeMachine decodes array bytes in machine format code.
func decodeMachine(code int64, data []byte) (any, error) {
	if code < 0 || code >= int64(len(machineFormats)) {
		return nil, fmt.Errorf("unknown machine format code %d", code)
	}
	f := machineFormats[code]
	if len(data)%f.size != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of item size %d", len(data), f.size)
	}
	return f.decode(data, f.size, f.order), nil
}

// array(typecode[, items]) where items is a list, or raw bytes in native
// layout, or text for the unicode typecodes.
func newArray(args Tuple) (any, error) {
	if err := nargs(args, 1, 2); err != nil {
		return nil, err
	}
	typecode, err := AsString(args[0])
	if err != nil {
		return nil, fmt.Errorf("typecode: %w", err)
	}
	code, ok := nativeFormats[typecode]
	if !ok {
		return nil, fmt.Errorf("bad typecode %q", typecode)
	}
	if len(args) == 1 {
		return decodeMachine(int64(code), nil)
	}

	unicode := typecode == "u" || typecode == "w"
	switch x := args[1].(type) {
	case string:
		if unicode {
			return x, nil
		}
		return decodeMachine(int64(code), []byte(x))
	case Bytes:
		return decodeMachine(int64(code), []byte(x))
	case *List:
		if unicode {
			return joinChars(*x)
		}
		return arrayFromList(code, *x)
	}
	return nil, fmt.Errorf("array items: unsupported %T", args[1])
}

func joinChars(items []any) (string, error) {
	var b strings.Builder
	for i, x := range items {
		s, ok := x.(string)
		if !ok {
			return "", fmt.Errorf("item %d: want str, got %T", i, x)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// arrayFromList converts Python numbers to the Go slice type of format code.
func arrayFromList(code int, items []any) (any, error) {
	switch code {
	case 14:
		out := make([]float32, len(items))
		for i, x := range items {
			v, err := AsFloat64(x)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = float32(v)
		}
		return out, nil
	case 16:
		out := make([]float64, len(items))
		for i, x := range items {
			v, err := AsFloat64(x)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}

	// integers are packed into native bytes and go through the machine
	// decoder, so the result type is the same as for the bytes form.
	f := machineFormats[code]
	bits := uint(8 * f.size)
	lo, hi := new(big.Int), new(big.Int)
	if code == 1 || code == 4 || code == 8 || code == 12 {
		lo.Lsh(big.NewInt(1), bits-1).Neg(lo)
		hi.Lsh(big.NewInt(1), bits-1).Sub(hi, big.NewInt(1))
	} else {
		hi.Lsh(big.NewInt(1), bits).Sub(hi, big.NewInt(1))
	}

	data := make([]byte, f.size*len(items))
	for i, x := range items {
		n, err := AsBigInt(x)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
			return nil, fmt.Errorf("item %d: %d out of range [%d, %d]", i, n, lo, hi)
		}
		var u uint64
		if n.Sign() < 0 {
			u = uint64(n.Int64())
		} else {
			u = n.Uint64()
		}
		b := data[i*f.size:]
		switch f.size {
		case 1:
			b[0] = byte(u)
		case 2:
			f.order.PutUint16(b, uint16(u))
		case 4:
			f.order.PutUint32(b, uint32(u))
		case 8:
			f.order.PutUint64(b, u)
		}
	}
	return f.decode(data, f.size, f.order), nil
}

// arrayReconstructor handles array._array_reconstructor(arraytype, typecode, mformat, items).
func arrayReconstructor(args Tuple) (any, error) {
	if err := nargs(args, 4, 4); err != nil {
		return nil, err
	}
	if cls, ok := args[0].(Class); !ok || cls != (Class{Module: "array", Name: "array"}) {
		return nil, fmt.Errorf("array type: want array.array, got %v", args[0])
	}
	typecode, err := AsString(args[1])
	if err != nil {
		return nil, fmt.Errorf("typecode: %w", err)
	}
	if _, ok := nativeFormats[typecode]; !ok {
		return nil, fmt.Errorf("bad typecode %q", typecode)
	}
	mformat, err := AsInt64(args[2])
	if err != nil {
		return nil, fmt.Errorf("machine format: %w", err)
	}
	data, err := AsBytes(args[3])
	if err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	return decodeMachine(mformat, []byte(data))
}
