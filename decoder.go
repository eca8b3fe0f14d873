package pickle

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"

	"go.uber.org/zap"
)

// Decoder is a decoder for pickle streams.
//
// A Decoder works over a fully buffered input which may hold several
// pickles one after another; each Decode call consumes one of them.
// A Decoder is not safe for concurrent use; independent Decoders are.
type Decoder struct {
	cur      cursor
	config   *DecoderConfig
	registry *Registry
	log      *zap.Logger

	stack stack
	memo  memo

	// next out-of-band buffer to hand out for NEXT_BUFFER
	nextBuffer int

	// protocol version seen in last PROTO opcode; 0 by default.
	protocol int

	// err is sticky: after a failure the input position is meaningless
	err error
}

// DecoderConfig allows to tune Decoder.
type DecoderConfig struct {
	// PersistentLoad, if !nil, will be used by decoder to handle persistent references.
	//
	// Whenever the decoder finds an object reference in the pickle stream
	// it will call PersistentLoad. If PersistentLoad returns !nil object
	// without error, the decoder will use that object instead of Ref in
	// the resulted built Go object. Returning nil keeps the Ref.
	//
	// Without PersistentLoad any persistent reference fails the decode
	// with ErrUnresolvedPersistentID.
	PersistentLoad func(ref Ref) (any, error)

	// Registry resolves classes named by the pickle. nil means DefaultRegistry().
	Registry *Registry

	// Logger receives decoder diagnostics. nil means Logger().
	Logger *zap.Logger

	// Buffers are the out-of-band buffers that protocol 5 NEXT_BUFFER
	// opcodes refer to, in order.
	Buffers [][]byte
}

// NewDecoder constructs a new Decoder which will decode the pickles in data.
func NewDecoder(data []byte) *Decoder {
	return NewDecoderWithConfig(data, &DecoderConfig{})
}

// NewDecoderWithConfig is similar to NewDecoder, but allows specifying decoder configuration.
func NewDecoderWithConfig(data []byte, config *DecoderConfig) *Decoder {
	if config == nil {
		config = &DecoderConfig{}
	}
	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	log := config.Logger
	if log == nil {
		log = Logger()
	}
	return &Decoder{
		cur:      cursor{data: data},
		config:   config,
		registry: registry,
		log:      log,
		memo:     make(memo),
	}
}

// NewDecoderFromReader reads r to the end and returns a Decoder over what was read.
func NewDecoderFromReader(r io.Reader, config *DecoderConfig) (*Decoder, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pickle: read input: %w", err)
	}
	return NewDecoderWithConfig(data, config), nil
}

// Unpickle decodes the single pickle in data.
func Unpickle(data []byte) (any, error) {
	return UnpickleWithConfig(data, nil)
}

// UnpickleWithConfig is Unpickle with decoder configuration.
func UnpickleWithConfig(data []byte, config *DecoderConfig) (any, error) {
	v, err := NewDecoderWithConfig(data, config).Decode()
	if err == io.EOF {
		err = &DecodeError{Pos: 0, Op: opStop, Err: ErrEndOfInput}
	}
	return v, err
}

// Protocol returns the protocol announced by the last PROTO opcode, or 0.
func (d *Decoder) Protocol() int {
	return d.protocol
}

// Offset returns how many input bytes have been consumed.
func (d *Decoder) Offset() int {
	return d.cur.pos
}

// Decode decodes the next pickle from the input and returns the result.
//
// io.EOF is returned when there is no more input. Every other failure is a
// *DecodeError wrapping one of the Err* sentinels, and is returned again
// by all further calls.
func (d *Decoder) Decode() (any, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.cur.remaining() == 0 {
		return nil, io.EOF
	}

	d.stack.reset()
	d.memo.reset()
	d.protocol = 0

	for {
		pos := d.cur.pos
		key, err := d.cur.readByte()
		if err != nil {
			return nil, d.fail(pos, key, err)
		}

		if key == opStop {
			v, err := d.stop()
			if err != nil {
				return nil, d.fail(pos, key, err)
			}
			return v, nil
		}

		handle := dispatch[key]
		if handle == nil {
			return nil, d.fail(pos, key, OpcodeError{Key: key, Pos: pos})
		}
		if err := handle(d); err != nil {
			return nil, d.fail(pos, key, err)
		}
	}
}

func (d *Decoder) fail(pos int, op byte, err error) error {
	d.stack.reset()
	d.memo.reset()
	d.err = &DecodeError{Pos: pos, Op: op, Err: err}
	return d.err
}

// stop checks the final stack and returns its only item.
func (d *Decoder) stop() (any, error) {
	if n := len(d.stack.marks); n != 0 {
		return nil, fmt.Errorf("%w: %d unclosed mark(s) at STOP", ErrCorruptStream, n)
	}
	if n := d.stack.depth(); n != 1 {
		return nil, fmt.Errorf("%w: %d items on stack at STOP, want 1", ErrCorruptStream, n)
	}
	return d.stack.pop()
}

// ---- stack manipulation ----

func (d *Decoder) loadMark() error {
	d.stack.mark()
	return nil
}

// loadPop discards the stack top. On an empty frame it discards the mark
// instead, as Python does.
func (d *Decoder) loadPop() error {
	if d.stack.depth() > d.stack.floor() {
		_, err := d.stack.pop()
		return err
	}
	_, err := d.stack.popMark()
	return err
}

// Discard the stack through to the topmost marker
func (d *Decoder) popMark() error {
	_, err := d.stack.popToMark()
	return err
}

// Duplicate the top stack item
func (d *Decoder) loadDup() error {
	v, err := d.stack.peek()
	if err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

// ---- literals ----

func (d *Decoder) loadNone() error {
	d.stack.push(None{})
	return nil
}

func (d *Decoder) loadTrue() error {
	d.stack.push(true)
	return nil
}

func (d *Decoder) loadFalse() error {
	d.stack.push(false)
	return nil
}

// Push a float
func (d *Decoder) loadFloat() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(string(line), 64)
	if err != nil {
		return malformed("FLOAT %q", line)
	}
	d.stack.push(v)
	return nil
}

// Push an int
func (d *Decoder) loadInt() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}

	switch string(line) {
	case opFalse[1:3]:
		d.stack.push(false)
		return nil
	case opTrue[1:3]:
		d.stack.push(true)
		return nil
	}

	v, err := parseInt(line)
	if err != nil {
		return malformed("INT %q", line)
	}
	d.stack.push(v)
	return nil
}

// parseInt parses a decimal integer into int64, or into *big.Int when it
// does not fit.
func parseInt(text []byte) (any, error) {
	i, err := strconv.ParseInt(string(text), 10, 64)
	if err == nil {
		return i, nil
	}
	b, ok := new(big.Int).SetString(string(text), 10)
	if !ok {
		return nil, err
	}
	return b, nil
}

// Push a four-byte signed int
func (d *Decoder) loadBinInt() error {
	v, err := d.cur.readUint32()
	if err != nil {
		return err
	}
	d.stack.push(int64(int32(v))) // NOTE signed: uint32 -> int32, and only then -> int64
	return nil
}

// Push a 1-byte unsigned int
func (d *Decoder) loadBinInt1() error {
	b, err := d.cur.readByte()
	if err != nil {
		return err
	}
	d.stack.push(int64(b))
	return nil
}

// Push a 2-byte unsigned int
func (d *Decoder) loadBinInt2() error {
	v, err := d.cur.readUint16()
	if err != nil {
		return err
	}
	d.stack.push(int64(v))
	return nil
}

// Push a long; the trailing L of Python 2 is optional.
func (d *Decoder) loadLong() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}
	if l := len(line); l > 0 && line[l-1] == 'L' {
		line = line[:l-1]
	}
	v, ok := new(big.Int).SetString(string(line), 10)
	if !ok {
		return malformed("LONG %q", line)
	}
	d.stack.push(v)
	return nil
}

func (d *Decoder) loadLong1() error {
	n, err := d.cur.readByte()
	if err != nil {
		return err
	}
	data, err := d.cur.readCounted("LONG1", uint64(n))
	if err != nil {
		return err
	}
	d.stack.push(decodeLong(data))
	return nil
}

func (d *Decoder) loadLong4() error {
	n, err := d.cur.readUint32()
	if err != nil {
		return err
	}
	if int32(n) < 0 {
		return malformed("LONG4 negative length %d", int32(n))
	}
	data, err := d.cur.readCounted("LONG4", uint64(n))
	if err != nil {
		return err
	}
	d.stack.push(decodeLong(data))
	return nil
}

func (d *Decoder) binFloat() error {
	b, err := d.cur.read(8)
	if err != nil {
		return err
	}
	d.stack.push(math.Float64frombits(binary.BigEndian.Uint64(b)))
	return nil
}

// Push a string
func (d *Decoder) loadString() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}

	if len(line) < 2 {
		return malformed("STRING %q: not quoted", line)
	}

	delim := line[0]
	if delim != '\'' && delim != '"' {
		return malformed("STRING: invalid string delimiter: %c", delim)
	}
	if line[len(line)-1] != delim {
		return malformed("STRING %q: unterminated", line)
	}

	s, err := pydecodeStringEscape(string(line[1 : len(line)-1]))
	if err != nil {
		return malformed("STRING %q: %s", line, err)
	}

	d.stack.push(s)
	return nil
}

func (d *Decoder) loadBinString() error {
	n, err := d.cur.readUint32()
	if err != nil {
		return err
	}
	if int32(n) < 0 {
		return malformed("BINSTRING negative length %d", int32(n))
	}
	data, err := d.cur.readCounted("BINSTRING", uint64(n))
	if err != nil {
		return err
	}
	d.stack.push(string(data))
	return nil
}

func (d *Decoder) loadShortBinString() error {
	data, err := d.readShort("SHORT_BINSTRING")
	if err != nil {
		return err
	}
	d.stack.push(string(data))
	return nil
}

func (d *Decoder) loadUnicode() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}
	text, err := pydecodeRawUnicodeEscape(string(line))
	if err != nil {
		return malformed("UNICODE: %s", err)
	}
	d.stack.push(text)
	return nil
}

func (d *Decoder) loadBinUnicode() error {
	data, err := d.read32("BINUNICODE")
	if err != nil {
		return err
	}
	if !pyvalidUTF8(data) {
		return malformed("BINUNICODE: invalid UTF-8")
	}
	d.stack.push(string(data))
	return nil
}

func (d *Decoder) loadShortBinUnicode() error {
	data, err := d.readShort("SHORT_BINUNICODE")
	if err != nil {
		return err
	}
	if !pyvalidUTF8(data) {
		return malformed("SHORT_BINUNICODE: invalid UTF-8")
	}
	d.stack.push(string(data))
	return nil
}

func (d *Decoder) loadBinUnicode8() error {
	data, err := d.read64("BINUNICODE8")
	if err != nil {
		return err
	}
	if !pyvalidUTF8(data) {
		return malformed("BINUNICODE8: invalid UTF-8")
	}
	d.stack.push(string(data))
	return nil
}

func (d *Decoder) loadBinBytes() error {
	data, err := d.read32("BINBYTES")
	if err != nil {
		return err
	}
	d.stack.push(Bytes(data))
	return nil
}

func (d *Decoder) loadShortBinBytes() error {
	data, err := d.readShort("SHORT_BINBYTES")
	if err != nil {
		return err
	}
	d.stack.push(Bytes(data))
	return nil
}

func (d *Decoder) loadBinBytes8() error {
	data, err := d.read64("BINBYTES8")
	if err != nil {
		return err
	}
	d.stack.push(Bytes(data))
	return nil
}

func (d *Decoder) loadBytearray8() error {
	data, err := d.read64("BYTEARRAY8")
	if err != nil {
		return err
	}
	// bytearray is mutable: do not alias the input
	d.stack.push(append([]byte{}, data...))
	return nil
}

// readShort decodes `len(U8) [len]data`.
func (d *Decoder) readShort(what string) ([]byte, error) {
	n, err := d.cur.readByte()
	if err != nil {
		return nil, err
	}
	return d.cur.readCounted(what, uint64(n))
}

// read32 decodes `len(LE32) [len]data`.
func (d *Decoder) read32(what string) ([]byte, error) {
	n, err := d.cur.readUint32()
	if err != nil {
		return nil, err
	}
	return d.cur.readCounted(what, uint64(n))
}

// read64 decodes `len(LE64) [len]data`.
func (d *Decoder) read64(what string) ([]byte, error) {
	n, err := d.cur.readUint64()
	if err != nil {
		return nil, err
	}
	return d.cur.readCounted(what, n)
}

// ---- containers ----

func (d *Decoder) loadEmptyList() error {
	d.stack.push(NewList())
	return nil
}

func (d *Decoder) loadEmptyTuple() error {
	d.stack.push(Tuple{})
	return nil
}

func (d *Decoder) loadEmptyDict() error {
	d.stack.push(NewDict())
	return nil
}

func (d *Decoder) loadEmptySet() error {
	d.stack.push(NewSet())
	return nil
}

func (d *Decoder) loadList() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	d.stack.push(NewList(items...))
	return nil
}

func (d *Decoder) loadTuple() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	d.stack.push(Tuple(items))
	return nil
}

// tupleN creates tuple from top n stack objects.
// it serves TUPLE{1,2,3} opcode handlers.
func (d *Decoder) tupleN(n int) error {
	items, err := d.stack.popN(n)
	if err != nil {
		return err
	}
	d.stack.push(Tuple(items))
	return nil
}

func (d *Decoder) loadTuple1() error { return d.tupleN(1) }
func (d *Decoder) loadTuple2() error { return d.tupleN(2) }
func (d *Decoder) loadTuple3() error { return d.tupleN(3) }

func (d *Decoder) loadDict() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return malformed("DICT: odd # of elements")
	}
	m := NewDictWithSizeHint(len(items) / 2)
	for i := 0; i < len(items); i += 2 {
		if err := dictTrySet(m, items[i], items[i+1]); err != nil {
			return err
		}
	}
	d.stack.push(m)
	return nil
}

func (d *Decoder) loadFrozenSet() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	s := NewFrozenSet()
	for _, x := range items {
		if err := setTryAdd(&s.Set, x); err != nil {
			return err
		}
	}
	d.stack.push(s)
	return nil
}

func (d *Decoder) loadAppend() error {
	v, err := d.stack.pop()
	if err != nil {
		return err
	}
	return d.extendList([]any{v})
}

func (d *Decoder) loadAppends() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	return d.extendList(items)
}

// extendList appends items to the list at the stack top. Instances of
// unregistered list subclasses collect the items in their record.
func (d *Decoder) extendList(items []any) error {
	top, err := d.stack.peek()
	if err != nil {
		return err
	}
	switch l := top.(type) {
	case *List:
		l.Append(items...)
	case *Record:
		l.listItems().Append(items...)
	default:
		return malformed("APPEND: expected a list, got %T", top)
	}
	return nil
}

func (d *Decoder) loadSetItem() error {
	kv, err := d.stack.popN(2)
	if err != nil {
		return err
	}
	return d.extendDict(kv)
}

func (d *Decoder) loadSetItems() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return malformed("SETITEMS: odd # of elements")
	}
	return d.extendDict(items)
}

// extendDict sets key/value pairs on the dict at the stack top.
func (d *Decoder) extendDict(kv []any) error {
	top, err := d.stack.peek()
	if err != nil {
		return err
	}
	var m Dict
	switch x := top.(type) {
	case Dict:
		m = x
	case *Record:
		m = x.dictItems()
	default:
		return malformed("SETITEM: expected a dict, got %T", top)
	}
	for i := 0; i < len(kv); i += 2 {
		if err := dictTrySet(m, kv[i], kv[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) loadAddItems() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	top, err := d.stack.peek()
	if err != nil {
		return err
	}
	s, ok := top.(*Set)
	if !ok {
		return malformed("ADDITEMS: expected a set, got %T", top)
	}
	for _, x := range items {
		if err := setTryAdd(s, x); err != nil {
			return err
		}
	}
	return nil
}

// ---- memo ----

// memoTop puts top of the stack into memo[id]; the stack is not changed.
// it is the worker for handling PUT, BINPUT, ... opcodes
func (d *Decoder) memoTop(id int) error {
	v, err := d.stack.peek()
	if err != nil {
		return err
	}
	d.memo.put(id, v)
	return nil
}

// memoID parses the decimal id of PUT and GET.
func memoID(line []byte) (int, error) {
	id, err := strconv.Atoi(string(line))
	if err != nil || id < 0 {
		return 0, malformed("memo id %q", line)
	}
	return id, nil
}

func (d *Decoder) loadPut() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}
	id, err := memoID(line)
	if err != nil {
		return err
	}
	return d.memoTop(id)
}

func (d *Decoder) binPut() error {
	b, err := d.cur.readByte()
	if err != nil {
		return err
	}
	return d.memoTop(int(b))
}

func (d *Decoder) longBinPut() error {
	v, err := d.cur.readUint32()
	if err != nil {
		return err
	}
	return d.memoTop(int(v))
}

func (d *Decoder) loadMemoize() error {
	return d.memoTop(d.memo.next())
}

func (d *Decoder) pushMemo(id int) error {
	v, err := d.memo.get(id)
	if err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

func (d *Decoder) get() error {
	line, err := d.cur.readLine()
	if err != nil {
		return err
	}
	id, err := memoID(line)
	if err != nil {
		return err
	}
	return d.pushMemo(id)
}

func (d *Decoder) binGet() error {
	b, err := d.cur.readByte()
	if err != nil {
		return err
	}
	return d.pushMemo(int(b))
}

func (d *Decoder) longBinGet() error {
	v, err := d.cur.readUint32()
	if err != nil {
		return err
	}
	return d.pushMemo(int(v))
}

// ---- protocol, framing, out-of-band data ----

func (d *Decoder) loadProto() error {
	v, err := d.cur.readByte()
	if err != nil {
		return err
	}
	// The PROTO opcode documentation says protocol version must be in [2, 256).
	// However CPython also loads PROTO with version 0 and 1 without error.
	if v > highestProtocol {
		return fmt.Errorf("%w: %d", ErrInvalidPickleVersion, v)
	}
	d.protocol = int(v)
	d.log.Debug("pickle protocol", zap.Int("protocol", d.protocol), zap.Int("offset", d.cur.pos))
	return nil
}

// loadFrame checks that the announced frame is present. Framing carries
// no meaning once the whole input is in memory.
// https://www.python.org/dev/peps/pep-3154/#framing
func (d *Decoder) loadFrame() error {
	n, err := d.cur.readUint64()
	if err != nil {
		return err
	}
	if left := d.cur.remaining(); n > uint64(left) {
		return overrun("FRAME", n, left)
	}
	return nil
}

func (d *Decoder) loadNextBuffer() error {
	if d.nextBuffer >= len(d.config.Buffers) {
		return malformed("NEXT_BUFFER: no out-of-band buffer left (have %d)", len(d.config.Buffers))
	}
	d.stack.push(d.config.Buffers[d.nextBuffer])
	d.nextBuffer++
	return nil
}

func (d *Decoder) readOnlyBuffer() error {
	top, err := d.stack.peek()
	if err != nil {
		return err
	}
	switch b := top.(type) {
	case []byte:
		d.stack.replaceTop(Bytes(b))
	case Bytes:
	default:
		return malformed("READONLY_BUFFER: stack top is %T, not a buffer", top)
	}
	return nil
}

// decodeLong decodes a little-endian two's complement integer, as used by
// LONG1 and LONG4.
func decodeLong(data []byte) *big.Int {
	n := len(data)
	v := new(big.Int)
	if n == 0 {
		return v
	}
	be := make([]byte, n)
	for i, b := range data {
		be[n-1-i] = b
	}
	v.SetBytes(be)
	if data[n-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
	}
	return v
}
