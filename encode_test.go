package pickle

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeProto(t *testing.T, proto int, v any) string {
	t.Helper()
	buf := &bytes.Buffer{}
	err := NewEncoderWithConfig(buf, &EncoderConfig{Protocol: proto}).Encode(v)
	require.NoError(t, err)
	return buf.String()
}

// exact output for simple values.
func TestEncodeOpcodes(t *testing.T) {
	testv := []struct {
		proto int
		in    any
		out   string
	}{
		{0, int64(5), "I5\n."},
		{1, int64(5), "K\x05."},
		{2, int64(5), "\x80\x02K\x05."},
		{1, int64(0x123), "M\x23\x01."},
		{1, int64(-1), "J\xff\xff\xff\xff."},
		{1, int64(0x123456789), "I4886718345\n."},
		{2, int64(0x123456789), "\x80\x02\x8a\x05\x89\x67\x45\x23\x01."},
		{0, big.NewInt(-5), "I-5\n."},
		{2, new(big.Int).Lsh(big.NewInt(1), 64), "\x80\x02\x8a\x09\x00\x00\x00\x00\x00\x00\x00\x00\x01."},
		{0, true, "I01\n."},
		{2, false, "\x80\x02\x89."},
		{0, None{}, "N."},
		{0, nil, "N."},
		{0, 1.5, "F1.5\n."},
		{1, 1.5, "G?\xf8\x00\x00\x00\x00\x00\x00."},
		{0, "café\n", "Vcaf\xe9\\u000a\n."},
		{0, "a\\b", "Va\\u005cb\n."},
		{1, "abc", "X\x03\x00\x00\x00abc."},
		{4, "abc", "\x80\x04\x8c\x03abc."},
		{3, Bytes("abc"), "\x80\x03C\x03abc."},
		{2, Bytes("ab"), "\x80\x02c_codecs\nencode\nX\x02\x00\x00\x00abX\x06\x00\x00\x00latin1\x86R."},
		{5, []byte("ab"), "\x80\x05\x96\x02\x00\x00\x00\x00\x00\x00\x00ab."},
		{0, Tuple{}, "(t."},
		{1, Tuple{}, ")."},
		{2, Tuple{int64(1)}, "\x80\x02K\x01\x85."},
		{0, NewList(), "(l."},
		{1, NewList(), "]."},
		{1, NewList(int64(1)), "](K\x01e."},
		{0, NewDict(), "(d."},
		{1, NewDict(), "}."},
		{4, NewSet(), "\x80\x04\x8f."},
		{4, NewFrozenSet(), "\x80\x04(\x91."},
		{0, Class{Module: "foo", Name: "bar"}, "cfoo\nbar\n."},
		{4, Class{Module: "foo", Name: "bar"}, "\x80\x04\x8c\x03foo\x8c\x03bar\x93."},
		{0, Ref{Pid: "abc"}, "Pabc\n."},
		{1, Ref{Pid: "abc"}, "X\x03\x00\x00\x00abcQ."},
		{2, complex(1, 0), "\x80\x02c__builtin__\ncomplex\nG?\xf0\x00\x00\x00\x00\x00\x00G\x00\x00\x00\x00\x00\x00\x00\x00\x86R."},
	}

	for _, tt := range testv {
		out := encodeProto(t, tt.proto, tt.in)
		assert.Equal(t, tt.out, out, "proto %d: %#v", tt.proto, tt.in)
	}
}

func TestEncodeRecord(t *testing.T) {
	cls := Class{Module: "shop", Name: "Price"}

	r := NewRecord(cls)
	r.SetAttr(AttrArgs, Tuple{"EUR"})
	r.SetAttr(AttrKwargs, NewDictWithData("cents", int64(125)))
	r.SetAttr("note", "sale")

	// keyword arguments need NEWOBJ_EX
	v, err := Unpickle([]byte(encodeProto(t, 4, r)))
	require.NoError(t, err)
	assert.True(t, deepEqual(v, r), "have %s", Repr(v))

	// older protocols drop them
	want := NewRecord(cls)
	want.SetAttr(AttrArgs, Tuple{"EUR"})
	want.SetAttr("note", "sale")
	for proto := 0; proto < 4; proto++ {
		v, err := Unpickle([]byte(encodeProto(t, proto, r)))
		require.NoError(t, err)
		assert.True(t, deepEqual(v, want), "proto %d: have %s", proto, Repr(v))
	}
}

func TestEncodePyException(t *testing.T) {
	exc := &PyException{
		Class: Class{Module: "builtins", Name: "KeyError"},
		Args:  Tuple{"missing"},
		Attrs: map[string]any{"key": int64(7)},
	}
	for proto := 0; proto <= highestProtocol; proto++ {
		v, err := Unpickle([]byte(encodeProto(t, proto, exc)))
		require.NoError(t, err)
		assert.True(t, deepEqual(v, exc), "proto %d: have %s", proto, Repr(v))
	}
}

func TestEncodeRecursive(t *testing.T) {
	l := NewList(int64(1))
	l.Append(l)

	d := NewDict()
	d.Set("self", NewList(d))

	r := NewRecord(Class{Module: "foo", Name: "Node"})
	r.SetAttr("next", r)

	for _, v := range []any{l, d, r} {
		err := NewEncoder(io.Discard).Encode(v)
		assert.ErrorIs(t, err, errRecursive, "%s", Repr(v))
	}

	// shared, but not cyclic, containers are written once per reference
	shared := NewList(int64(1))
	v, err := Unpickle([]byte(encodeProto(t, 2, Tuple{shared, shared})))
	require.NoError(t, err)
	assert.True(t, deepEqual(v, Tuple{NewList(int64(1)), NewList(int64(1))}))
}

func TestEncodeErrors(t *testing.T) {
	var typeErr *TypeError
	err := NewEncoder(io.Discard).Encode(make(chan int))
	require.True(t, errors.As(err, &typeErr), "got %v", err)
	assert.Equal(t, "no support for type 'chan'", err.Error())

	err = NewEncoder(io.Discard).Encode([]any{1, func() {}})
	assert.True(t, errors.As(err, &typeErr), "got %v", err)

	for _, proto := range []int{-1, highestProtocol + 1} {
		err = NewEncoderWithConfig(io.Discard, &EncoderConfig{Protocol: proto}).Encode(None{})
		assert.Error(t, err, "protocol %d", proto)
	}

	// protocol 0 persistent ids are text lines
	err = NewEncoder(io.Discard).Encode(Ref{Pid: "a\nb"})
	assert.Error(t, err)
}

// a failed write is reported, and nothing is written after it.
func TestEncodeWriteError(t *testing.T) {
	errBroken := errors.New("broken pipe")
	w := &failingWriter{after: 3, err: errBroken}
	err := NewEncoderWithConfig(w, &EncoderConfig{Protocol: 2}).Encode(NewList(int64(1), int64(2), "abc"))
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 3, w.calls)
}

type failingWriter struct {
	after int // the call that fails first
	calls int
	err   error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls >= w.after {
		return 0, w.err
	}
	return len(p), nil
}
