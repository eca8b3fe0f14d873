package pickle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unpickle(t *testing.T, input string) any {
	t.Helper()
	v, err := Unpickle([]byte(input))
	require.NoError(t, err, "%q", input)
	return v
}

func TestDatetime(t *testing.T) {
	want := time.Date(2020, time.May, 17, 13, 45, 30, 123456000, time.UTC)

	// python3 protocol 3: state as bytes
	v := unpickle(t, "\x80\x03cdatetime\ndatetime\nC\x0a\x07\xe4\x05\x11\x0d\x2d\x1e\x01\xe2\x40\x85R.")
	assert.Equal(t, want, v)

	// python2 protocol 0: state as str
	v = unpickle(t, "cdatetime\ndatetime\n(S'\\x07\\xe4\\x05\\x11\\r-\\x1e\\x01\\xe2@'\ntR.")
	assert.Equal(t, want, v)

	// explicit fields
	v = unpickle(t, "cdatetime\ndatetime\n(I2020\nI5\nI17\nI13\nI45\nI30\nI123456\ntR.")
	assert.Equal(t, want, v)

	// with datetime.timezone(timedelta(hours=2))
	v = unpickle(t, "\x80\x03cdatetime\ndatetime\nC\x0a\x07\xe4\x05\x11\x0d\x2d\x1e\x01\xe2\x40"+
		"cdatetime\ntimezone\ncdatetime\ntimedelta\nK\x00M\x20\x1cK\x00\x87R\x85R\x86R.")
	tm, ok := v.(time.Time)
	require.True(t, ok, "%T", v)
	assert.True(t, tm.Equal(want.Add(-2*time.Hour)), "%s", tm)
	name, offset := tm.Zone()
	assert.Equal(t, "UTC+02:00", name)
	assert.Equal(t, 7200, offset)
}

func TestDateTimeOfDay(t *testing.T) {
	v := unpickle(t, "\x80\x03cdatetime\ndate\nC\x04\x07\xe4\x05\x11\x85R.")
	assert.Equal(t, time.Date(2020, time.May, 17, 0, 0, 0, 0, time.UTC), v)

	v = unpickle(t, "\x80\x03cdatetime\ntime\nC\x06\x0d\x2d\x1e\x01\xe2\x40\x85R.")
	assert.Equal(t, time.Date(0, time.January, 1, 13, 45, 30, 123456000, time.UTC), v)

	v = unpickle(t, "\x80\x02cdatetime\ntimedelta\nK\x01M\x10\x0eK\x05\x87R.")
	assert.Equal(t, 25*time.Hour+5*time.Microsecond, v)

	v = unpickle(t, "cdatetime\ntimedelta\n(I-1\nI86399\nI0\ntR.")
	assert.Equal(t, -time.Second, v)

	v = unpickle(t, "cdatetime\ntimezone\n(cdatetime\ntimedelta\n(I0\nI-19800\ntRVIST\ntR.")
	loc, ok := v.(*time.Location)
	require.True(t, ok, "%T", v)
	assert.Equal(t, "IST", loc.String())
}

func TestDecimal(t *testing.T) {
	v := unpickle(t, "\x80\x02cdecimal\nDecimal\nX\x04\x00\x00\x001.25\x85R.")
	d, ok := v.(*apd.Decimal)
	require.True(t, ok, "%T", v)
	assert.Equal(t, "1.25", d.String())

	v = unpickle(t, "cdecimal\nDecimal\n(V-1E+3\ntR.")
	assert.Equal(t, "-1E+3", v.(*apd.Decimal).String())
}

func TestArray(t *testing.T) {
	testv := []struct {
		input string
		want  any
	}{
		// array._array_reconstructor as pickled by python3
		{"carray\n_array_reconstructor\n(carray\narray\nVi\nI8\nC\x08\x01\x00\x00\x00\xfe\xff\xff\xfftR.", []int32{1, -2}},
		{"carray\n_array_reconstructor\n(carray\narray\nVH\nI3\nC\x04\x00\x01\x01\x00tR.", []uint16{1, 256}},
		{"carray\n_array_reconstructor\n(carray\narray\nVu\nI21\nC\x08\x00\x00\x00h\x00\x00\x00\xe9tR.", "hé"},

		// array(typecode, list) as pickled with protocol 2
		{"\x80\x02carray\narray\nX\x01\x00\x00\x00d](G?\xf8\x00\x00\x00\x00\x00\x00G@\x00\x00\x00\x00\x00\x00\x00e\x86R.", []float64{1.5, 2}},
		{"carray\narray\n(VB\n(lI1\naI255\natR.", []uint8{1, 255}},
		{"carray\narray\n(Vq\n(lL-9223372036854775808L\natR.", []int64{-1 << 63}},
		{"carray\narray\n(Vf\n(lF0.5\natR.", []float32{0.5}},
		{"carray\narray\n(Vu\n(lVh\naV\xe9\natR.", "hé"},

		// raw bytes in native layout
		{"carray\narray\n(Vh\nC\x04\xff\xff\x02\x00tR.", []int16{-1, 2}},
		{"carray\narray\n(Vu\nVh\xe9\ntR.", "hé"},
		{"carray\narray\n(Vl\ntR.", []int64{}},
	}

	for _, tt := range testv {
		v := unpickle(t, tt.input)
		assert.Equal(t, tt.want, v, "%q", tt.input)
	}
}

func TestUUID(t *testing.T) {
	want := &UUID{uuid.MustParse("12345678-1234-5678-1234-567812345678")}

	// python3 protocol 2: empty instance + {'int': n}
	v := unpickle(t, "\x80\x02cuuid\nUUID\n)\x81}X\x03\x00\x00\x00int\x8a\x10"+strings.Repeat("\x78\x56\x34\x12", 4)+"sb.")
	assert.Equal(t, want, v)

	// python2 protocol 0
	v = unpickle(t, "ccopy_reg\n_reconstructor\n(cuuid\nUUID\nc__builtin__\nobject\nNtR(dS'int'\nL24197857161011715162171839636988778104L\nsb.")
	assert.Equal(t, want, v)

	v = unpickle(t, "cuuid\nUUID\n(V12345678-1234-5678-1234-567812345678\ntR.")
	assert.Equal(t, want, v)
}

func TestBuiltinCallables(t *testing.T) {
	testv := []struct {
		input string
		want  any
	}{
		{"c__builtin__\nunicode\n(Vabc\ntR.", "abc"},
		{"cbuiltins\nstr\n)R.", ""},
		{"cbuiltins\nbytearray\n]K\x01aK\x02a\x85R.", []byte{1, 2}},
		{"cbuiltins\nbytearray\n)R.", []byte{}},
		{"cbuiltins\nbytes\n]K\x01aK\x02a\x85R.", Bytes("\x01\x02")},
		{"c__builtin__\nfrozenset\n(tR.", NewFrozenSet()},
		{"c__builtin__\ncomplex\n(I1\ntR.", complex(1, 0)},
		{"\x80\x02ccollections\nOrderedDict\n)R(X\x01\x00\x00\x00aK\x01X\x01\x00\x00\x00bK\x02u.", NewDictWithData("a", int64(1), "b", int64(2))},
		{"ccollections\nOrderedDict\n(((S'a'\nI1\nt(S'b'\nI2\ntltR.", NewDictWithData("a", int64(1), "b", int64(2))},
	}

	for _, tt := range testv {
		v := unpickle(t, tt.input)
		assert.True(t, deepEqual(v, tt.want), "%q: have %s  want %s", tt.input, Repr(v), Repr(tt.want))
	}
}

func TestExceptions(t *testing.T) {
	v := unpickle(t, "cexceptions\nZeroDivisionError\np0\n(S'hello'\np1\ntp2\nRp3\n.")
	exc, ok := v.(*PyException)
	require.True(t, ok, "%T", v)
	assert.Equal(t, "[exceptions.ZeroDivisionError] hello", exc.Error())
	assert.Equal(t, "exceptions.ZeroDivisionError", exc.PythonType())

	// usable as a Go error
	var err error = exc
	var target *PyException
	assert.True(t, errors.As(err, &target))

	// python3, with a __dict__
	v = unpickle(t, "\x80\x04\x8c\x08builtins\x8c\x08KeyError\x93\x8c\x01kK\x07\x86R}\x8c\x04noteK\x01sb.")
	exc = v.(*PyException)
	assert.Equal(t, "[builtins.KeyError] k, 7", exc.Error())
	assert.Equal(t, map[string]any{"note": int64(1)}, exc.Attrs)
}

func TestExceptionNames(t *testing.T) {
	for _, name := range []string{
		"EncodingWarning", "BaseExceptionGroup", "ExceptionGroup",
		"PythonFinalizationError", "FutureLibraryError", "SomeNewWarning",
	} {
		v := unpickle(t, "cbuiltins\n"+name+"\n(Vx\ntR.")
		exc, ok := v.(*PyException)
		if assert.True(t, ok, "%s: %T", name, v) {
			assert.Equal(t, "[builtins."+name+"] x", exc.Error())
		}
	}

	// other names and modules stay generic
	for _, input := range []string{
		"cbuiltins\nError\n)R.",
		"cbuiltins\nErrorCode\n)R.",
		"cmyapp\nQuotaError\n)R.",
	} {
		v := unpickle(t, input)
		assert.IsType(t, &Record{}, v, "%q", input)
	}

	// an empty registry knows no exceptions
	r := newEmptyRegistry()
	_, ok := r.Resolve("builtins", "ValueError")
	assert.False(t, ok)
	r.RegisterExceptionModule("builtins")
	_, ok = r.Resolve("builtins", "ValueError")
	assert.True(t, ok)
	_, ok = r.Clone().Resolve("builtins", "KeyError")
	assert.True(t, ok)
}

// registered constructors that reject their arguments fail the decode.
func TestBuiltinErrors(t *testing.T) {
	inputs := []string{
		"cdatetime\ndate\n(I2020\nI13\nI1\ntR.",
		"\x80\x03cdatetime\ndate\nC\x04\x07\xe4\x00\x01\x85R.",
		"\x80\x03cdatetime\ntime\nC\x06\x1e\x00\x00\x00\x00\x00\x85R.",                // hour 30
		"\x80\x03cdatetime\ntime\nC\x06\x0c\x3c\x00\x00\x00\x00\x85R.",                // minute 60
		"\x80\x03cdatetime\ntime\nC\x06\x0c\x00\x00\x0f\x42\x40\x85R.",                // 1000000 us
		"\x80\x03cdatetime\ndatetime\nC\n\x07\xe4\x01\x01\x18\x00\x00\x00\x00\x00\x85R.", // hour 24
		"\x80\x03cdatetime\ndatetime\nC\n\x07\xe4\x01\x01\x00\x00\x3d\x00\x00\x00\x85R.", // second 61
		"\x80\x03cdatetime\ndatetime\nC\n\x07\xe4\x01\x01\x00\x00\x00\xff\xff\xff\x85R.", // 16777215 us
		"cdatetime\ntimedelta\n(I999999999999\ntR.",
		"cdatetime\ntimezone\n(I5\ntR.",
		"carray\narray\n(Vb\n(lI200\natR.",
		"carray\narray\n(Vz\ntR.",
		"carray\narray\n(Vi\nC\x03abctR.",
		"carray\n_array_reconstructor\n(carray\narray\nVi\nI99\nC\x00tR.",
		"cuuid\nUUID\n(Vnot-a-uuid\ntR.",
		"\x80\x02cuuid\nUUID\n)\x81}X\x03\x00\x00\x00intJ\xff\xff\xff\xffsb.",
		"cbuiltins\nbytearray\n]M\x00\x01a\x85R.",
		"c__builtin__\ncomplex\n(S'x'\ntR.",
		"c__builtin__\nset\n(I1\ntR.",
		"ccollections\nOrderedDict\n(((I1\ntltR.",
	}
	for _, input := range inputs {
		_, err := Unpickle([]byte(input))
		assert.ErrorIs(t, err, ErrConstructorFailure, "%q", input)
	}
}
