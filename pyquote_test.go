package pickle

import (
	"testing"
)

// CodecTestCase represents 1 test case of a coder or decoder.
//
// Under the given transformation function in must be transformed to out.
type CodecTestCase struct {
	in, out string
}

// testCodec tests transform func applied to all test cases from testv.
func testCodec(t *testing.T, transform func(in string)(string, error), testv []CodecTestCase) {
	for _, tt := range testv {
		s, err := transform(tt.in)
		if err != nil {
			t.Errorf("%q -> error: %s", tt.in, err)
			continue
		}

		if s != tt.out {
			t.Errorf("%q -> unexpected:\nhave: %q\nwant: %q", tt.in, s, tt.out)
		}
	}
}

func TestPyDecodeStringEscape(t *testing.T) {
	testCodec(t, pydecodeStringEscape, []CodecTestCase{
		{`hello`, "hello"},
		{"hello\\\nworld", "helloworld"},
		{`\\`, `\`},
		{`\'\"`, `'"`},
		{`\b\f\t\n\r\v\a`, "\b\f\t\n\r\v\a"},
		{`\000\001\376\377`, "\000\001\376\377"},
		{`\x00\x01\x7f\x80\xfe\xff`, "\x00\x01\x7f\x80\xfe\xff"},
		// vvv stays as is
		{`\u1234\U00001234\c`, `\u1234\U00001234\c`},
	})
}

func TestPyDecodeRawUnicodeEscape(t *testing.T) {
	testCodec(t, pydecodeRawUnicodeEscape, []CodecTestCase{
		{`hello`, "hello"},
		{"\x00\x01\x80\xfe\xff", "\u0000\u0001\u0080\u00fe\u00ff"},
		{`\`, `\`},
		{`\\`, `\\`},
		{`\\\`, `\\\`},
		{`\\\\`, `\\\\`},
		{`\u1234\U00004321`, "\u1234\U00004321"},
		{`\\u1234\\U00004321`, `\\u1234\\U00004321`},
		{`\\\u1234\\\U00004321`, "\\\\\u1234\\\\\U00004321"},
		{`\\\\u1234\\\\U00004321`, `\\\\u1234\\\\U00004321`},
		{`\\\\\u1234\\\\\U00004321`, "\\\\\\\\\u1234\\\\\\\\\U00004321"},
		// vvv stays as is
		{"hello\\\nworld", "hello\\\nworld"},
		{`\'\"`, `\'\"`},
		{`\b\f\t\n\r\v\a`, `\b\f\t\n\r\v\a`},
		{`\000\001\376\377`, `\000\001\376\377`},
		{`\x00\x01\x7f\x80\xfe\xff`, `\x00\x01\x7f\x80\xfe\xff`},
	})
}

func TestPyValidUTF8(t *testing.T) {
	testv := []struct {
		in string
		ok bool
	}{
		{"", true},
		{"hello", true},
		{"日本語", true},
		{"\xed\xa0\x80", true},         // lone high surrogate
		{"a\xed\xb0\x80b", true},       // lone low surrogate
		{"\xed\xa0\xbd\xed\xb8\x80", true}, // surrogate pair
		{"\xff\xfe", false},
		{"\xc3", false},
		{"\xed\xa0", false},
		{"\xed\xc0\x80", false},
		{"\xf8\x88\x80\x80\x80", false},
	}
	for _, tt := range testv {
		if ok := pyvalidUTF8([]byte(tt.in)); ok != tt.ok {
			t.Errorf("%q: valid=%v  ; want %v", tt.in, ok, tt.ok)
		}
	}

	// surrogates written with surrogatepass decode as is
	v, err := Unpickle([]byte("\x8c\x03\xed\xa0\x80."))
	if err != nil || v != "\xed\xa0\x80" {
		t.Errorf("surrogate text: %q, %v", v, err)
	}
}

func TestPyEncodeRawUnicodeEscape(t *testing.T) {
	testCodec(t, func(in string) (string, error) { return pyencodeRawUnicodeEscape(in), nil }, []CodecTestCase{
		{"hello", "hello"},
		{"café", "caf\xe9"},
		{"\x00\n\r\x1a", `\u0000\u000a\u000d\u001a`},
		{`\u1234`, `\u005cu1234`},
		{"мир", `\u043c\u0438\u0440`},
		{"\U0001f600", `\U0001f600`},
	})

	// and back
	for _, s := range []string{"", "hello", "café\n", `\\u1234\`, "мир\x00\r", "\U0001f600"} {
		back, err := pydecodeRawUnicodeEscape(pyencodeRawUnicodeEscape(s))
		if err != nil || back != s {
			t.Errorf("%q -> encode -> decode = %q, %v", s, back, err)
		}
	}
}

func TestPyQuote(t *testing.T) {
	testCodec(t, func(in string) (string, error) { return pyquote(in), nil }, []CodecTestCase{
		{"hello", `"hello"`},
		{"мир", `"мир"`},
		{"a\"b\\c", `"a\"b\\c"`},
		{"\n\x00", `"\n\x00"`},
		{"\x80\xff", `"\x80\xff"`},
	})
}
