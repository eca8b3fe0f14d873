package pickle

import (
	"bytes"
	"encoding/binary"
)

// cursor reads sequentially over a fully buffered pickle input.
//
// pos only ever grows. A failed read leaves pos unspecified; the decoder
// aborts on the first failure anyway.
type cursor struct {
	data []byte
	pos  int
}

// remaining returns the number of unread bytes.
func (c *cursor) remaining() int {
	return len(c.data) - c.pos
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, ErrEndOfInput
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

// read returns the next n bytes. The result aliases the input and must
// be copied if it outlives the decode.
func (c *cursor) read(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, ErrEndOfInput
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// readCounted reads a length-prefixed payload of n bytes.
//
// The length is checked against what is left before anything is sliced,
// so a huge bogus length cannot make us allocate.
func (c *cursor) readCounted(what string, n uint64) ([]byte, error) {
	left := c.remaining()
	if n > uint64(left) {
		return nil, overrun(what, n, left)
	}
	return c.read(int(n))
}

func (c *cursor) readUint16() (uint16, error) {
	b, err := c.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) readUint32() (uint32, error) {
	b, err := c.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readUint64() (uint64, error) {
	b, err := c.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// readUntil returns bytes up to, not including, term and consumes term.
func (c *cursor) readUntil(term byte) ([]byte, error) {
	i := bytes.IndexByte(c.data[c.pos:], term)
	if i < 0 {
		c.pos = len(c.data)
		return nil, ErrEndOfInput
	}
	b := c.data[c.pos : c.pos+i]
	c.pos += i + 1
	return b, nil
}

// readLine reads next line from the input.
//
// The returned line does not contain \n. Only \n terminates a line: a
// preceding \r is kept as part of the text.
func (c *cursor) readLine() ([]byte, error) {
	return c.readUntil('\n')
}
