// Package pickle is a library for decoding Python's pickle format.
//
// Use Decoder to decode pickles from an input buffer, for example:
//
//	d := pickle.NewDecoder(data)
//	obj, err := d.Decode() // obj is any representing decoded Python object
//
// The input may hold several pickles one after another; every Decode call
// returns the next one, and io.EOF once the input is exhausted. Unpickle is
// a shortcut for the common case of a single pickle.
//
// The following table summarizes mapping of basic types in between Python and Go:
//
//	Python	   Go
//	------	   --
//
//	None	↔  pickle.None
//	bool	↔  bool
//	int	↔  int64
//	int	←  int, intX, uintX
//	long	↔  *big.Int
//	float	↔  float64
//	float	←  floatX
//	complex	↔  complex128
//	list	↔  *pickle.List
//	tuple	↔  pickle.Tuple
//	dict	↔  pickle.Dict
//	set	↔  *pickle.Set
//	frozenset  ↔  *pickle.FrozenSet
//
//	str        ↔  string
//	bytes      ↔  pickle.Bytes
//	bytearray  ↔  []byte
//
// Lists, dicts and sets are reference types: every memo reference to a
// container is the same Go value, and self-referencing structures decode to
// cyclic Go graphs. Use Repr to print such graphs safely.
//
// # Classes and instances
//
// Classes named by a pickle are looked up in a Registry. A registered
// Constructor turns the class and its arguments into a Go value; the default
// registry knows Python exceptions (decoded to *PyException), decimal.Decimal
// (*apd.Decimal), the datetime types (time.Time, time.Duration,
// *time.Location), array.array (typed Go slices), uuid.UUID and a few
// builtins. Instances of unknown classes decode to *Record, which keeps the
// class name, the constructor arguments and the BUILD state:
//
//	r := pickle.NewRegistry()
//	r.Register("shop", "Price", func(args pickle.Tuple) (any, error) { ... })
//	obj, err := pickle.UnpickleWithConfig(data, &pickle.DecoderConfig{Registry: r})
//
// No Python code is ever run, so it is safe to decode pickles from untrusted
// sources(^).
//
// # Pickle protocol versions
//
// Over the time the pickle stream format was evolving. The original protocol
// version 0 is human-readable with versions 1 and 2 extending the protocol in
// backward-compatible way with binary encodings for efficiency. Protocol
// version 2 is the highest protocol version that is understood by standard
// pickle module of Python2. Protocol version 3 added ways to represent Python
// bytes objects from Python3. Protocol version 4 further enhances on
// version 3 and completely switches to binary-only encoding. Protocol
// version 5 added support for out-of-band data. Please see
// https://docs.python.org/3/library/pickle.html#data-stream-format for details.
//
// On decoding the protocol is detected automatically. Out-of-band buffers are
// passed in DecoderConfig.Buffers.
//
// Encoder writes pickles of a chosen protocol. It covers the value model
// above and exists mainly to produce test data; it does not write memo
// references.
//
// # Persistent references
//
// Pickle was originally created for serialization in ZODB (http://zodb.org)
// object database, where on-disk objects can reference each other similarly to
// how one in-RAM object can have a reference to another in-RAM object.
//
// Decoding a pickle with such persistent reference requires
// DecoderConfig.PersistentLoad, which is given the reference and returns the
// object to use in its place:
//
//	d := pickle.NewDecoderWithConfig(data, &pickle.DecoderConfig{
//		PersistentLoad: ...
//	})
//	obj, err := d.Decode()
//
// # Errors
//
// Decode failures are *DecodeError values carrying the input offset and the
// opcode. They wrap one of the Err* sentinels, to be matched with errors.Is.
//
// --------
//
// (^) contrary to Python implementation, where malicious pickle can cause the
// decoder to run arbitrary code, including e.g. os.system("rm -rf /").
package pickle
