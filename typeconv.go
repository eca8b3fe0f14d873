package pickle

// conversion in between Go types to match Python.

import (
	"fmt"
	"math/big"
)

// AsInt64 tries to represent unpickled value to int64.
//
// Python int is decoded as int64, while Python long is decoded as big.Int.
// Go code should use AsInt64 to accept normal-range integers independently of
// their Python representation.
func AsInt64(x any) (int64, error) {
	switch x := x.(type) {
	case int64:
		return x, nil
	case *big.Int:
		if !x.IsInt64() {
			return 0, fmt.Errorf("long outside of int64 range")
		}
		return x.Int64(), nil
	}
	return 0, fmt.Errorf("expect int64|long; got %T", x)
}

// AsBigInt represents any unpickled integer as *big.Int.
func AsBigInt(x any) (*big.Int, error) {
	switch x := x.(type) {
	case int64:
		return big.NewInt(x), nil
	case *big.Int:
		return x, nil
	}
	return nil, fmt.Errorf("expect int64|long; got %T", x)
}

// AsFloat64 represents unpickled float or integer as float64.
func AsFloat64(x any) (float64, error) {
	switch x := x.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case *big.Int:
		f, _ := bigInt_Float64(x)
		return f, nil
	}
	return 0, fmt.Errorf("expect float|int|long; got %T", x)
}

// AsBytes tries to represent unpickled value as Bytes.
//
// It succeeds only if the value is either [Bytes], or bytearray ([]byte).
// It does not succeed if the value is string or any other type.
func AsBytes(x any) (Bytes, error) {
	switch x := x.(type) {
	case Bytes:
		return x, nil
	case []byte:
		return Bytes(x), nil
	}
	return "", fmt.Errorf("expect bytes|bytearray; got %T", x)
}

// AsString tries to represent unpickled value as string.
//
// It succeeds only if the value is string.
// It does not succeed if the value is [Bytes] or any other type.
func AsString(x any) (string, error) {
	switch x := x.(type) {
	case string:
		return x, nil
	}
	return "", fmt.Errorf("expect unicode; got %T", x)
}

// stringEQ compares arbitrary x to string y.
//
// It succeeds only if AsString(x) succeeds and string data of x equals to y.
func stringEQ(x any, y string) bool {
	s, err := AsString(x)
	if err != nil {
		return false
	}
	return s == y
}
