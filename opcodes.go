package pickle

import "fmt"

// Opcodes
const (
	// Protocol 0

	opMark     byte = '(' // push special markobject on stack
	opStop     byte = '.' // every pickle ends with STOP
	opPop      byte = '0' // discard topmost stack item
	opDup      byte = '2' // duplicate top stack item
	opFloat    byte = 'F' // push float object; decimal string argument
	opInt      byte = 'I' // push integer or bool; decimal string argument
	opLong     byte = 'L' // push long; decimal string argument
	opNone     byte = 'N' // push None
	opPersid   byte = 'P' // push persistent object; id is taken from string arg
	opReduce   byte = 'R' // apply callable to argtuple, both on stack
	opString   byte = 'S' // push string; NL-terminated string argument
	opUnicode  byte = 'V' // push Unicode string; raw-unicode-escaped'd argument
	opAppend   byte = 'a' // append stack top to list below it
	opBuild    byte = 'b' // call __setstate__ or __dict__.update()
	opGlobal   byte = 'c' // push self.find_class(modname, name); 2 string args
	opDict     byte = 'd' // build a dict from stack items
	opGet      byte = 'g' // push item from memo on stack; index is string arg
	opInst     byte = 'i' // build & push class instance
	opList     byte = 'l' // build list from topmost stack items
	opPut      byte = 'p' // store stack top in memo; index is string arg
	opSetitem  byte = 's' // add key+value pair to dict
	opTuple    byte = 't' // build tuple from topmost stack items

	opTrue  = "I01\n" // not an opcode; see INT docs in pickletools.py
	opFalse = "I00\n" // not an opcode; see INT docs in pickletools.py

	// Protocol 1

	opPopMark        byte = '1' // discard stack top through topmost markobject
	opBinint         byte = 'J' // push four-byte signed int
	opBinint1        byte = 'K' // push 1-byte unsigned int
	opBinint2        byte = 'M' // push 2-byte unsigned int
	opBinpersid      byte = 'Q' // push persistent object; id is taken from stack
	opBinstring      byte = 'T' // push string; counted binary string argument
	opShortBinstring byte = 'U' //  "     "   ;    "      "       "      " < 256 bytes
	opBinunicode     byte = 'X' // push Unicode string; counted UTF-8 string argument
	opAppends        byte = 'e' // extend list on stack by topmost stack slice
	opBinget         byte = 'h' // push item from memo on stack; index is 1-byte arg
	opLongBinget     byte = 'j' //  "    "    "    "    "   "  ;   "    " 4-byte arg
	opEmptyList      byte = ']' // push empty list
	opEmptyTuple     byte = ')' // push empty tuple
	opEmptyDict      byte = '}' // push empty dict
	opObj            byte = 'o' // build & push class instance
	opBinput         byte = 'q' // store stack top in memo; index is 1-byte arg
	opLongBinput     byte = 'r' //   "     "    "   "   " ;   "    " 4-byte arg
	opSetitems       byte = 'u' // modify dict by adding topmost key+value pairs
	opBinfloat       byte = 'G' // push float; arg is 8-byte float encoding

	// Protocol 2

	opProto    byte = '\x80' // identify pickle protocol
	opNewobj   byte = '\x81' // build object by applying cls.__new__ to argtuple
	opExt1     byte = '\x82' // push object from extension registry; 1-byte index
	opExt2     byte = '\x83' // ditto, but 2-byte index
	opExt4     byte = '\x84' // ditto, but 4-byte index
	opTuple1   byte = '\x85' // build 1-tuple from stack top
	opTuple2   byte = '\x86' // build 2-tuple from two topmost stack items
	opTuple3   byte = '\x87' // build 3-tuple from three topmost stack items
	opNewtrue  byte = '\x88' // push True
	opNewfalse byte = '\x89' // push False
	opLong1    byte = '\x8a' // push long from < 256 bytes
	opLong4    byte = '\x8b' // push really big long

	// Protocol 3

	opBinbytes      byte = 'B' // push a Python bytes object (len ule32; [len]data)
	opShortBinbytes byte = 'C' //  "     "      "      "     (len ule8; [len]data)

	// Protocol 4

	opShortBinUnicode byte = '\x8c' // push short string; UTF-8 length < 256 bytes
	opBinunicode8     byte = '\x8d' // push Unicode string (len ule64; [len]data)
	opBinbytes8       byte = '\x8e' // push a Python bytes object (len ule64; [len]data)
	opEmptySet        byte = '\x8f' // push empty set
	opAddItems        byte = '\x90' // add items to existing set
	opFrozenSet       byte = '\x91' // build a frozenset out of mark..top
	opNewobjEx        byte = '\x92' // build object: cls argv kw -> cls.__new__(*argv, **kw)
	opStackGlobal     byte = '\x93' // same as OpGlobal but using names on the stacks
	opMemoize         byte = '\x94' // store top of the stack in memo
	opFrame           byte = '\x95' // indicate the beginning of a new frame

	// Protocol 5

	opBytearray8     byte = '\x96' // push a Python bytearray object (len ule64; [len]data)
	opNextBuffer     byte = '\x97' // push next out-of-band buffer
	opReadOnlyBuffer byte = '\x98' // turn out-of-band buffer at stack top to be read-only
)

// highestProtocol is the newest pickle protocol the decoder understands.
const highestProtocol = 5

// dispatch maps every opcode byte to its handler. A nil entry is an
// invalid opcode. STOP is handled by the decode loop itself.
var dispatch = [256]func(*Decoder) error{
	opMark:     (*Decoder).loadMark,
	opPop:      (*Decoder).loadPop,
	opDup:      (*Decoder).loadDup,
	opFloat:    (*Decoder).loadFloat,
	opInt:      (*Decoder).loadInt,
	opLong:     (*Decoder).loadLong,
	opNone:     (*Decoder).loadNone,
	opPersid:   (*Decoder).loadPersid,
	opReduce:   (*Decoder).reduce,
	opString:   (*Decoder).loadString,
	opUnicode:  (*Decoder).loadUnicode,
	opAppend:   (*Decoder).loadAppend,
	opBuild:    (*Decoder).build,
	opGlobal:   (*Decoder).global,
	opDict:     (*Decoder).loadDict,
	opGet:      (*Decoder).get,
	opInst:     (*Decoder).inst,
	opList:     (*Decoder).loadList,
	opPut:      (*Decoder).loadPut,
	opSetitem:  (*Decoder).loadSetItem,
	opTuple:    (*Decoder).loadTuple,

	opPopMark:        (*Decoder).popMark,
	opBinint:         (*Decoder).loadBinInt,
	opBinint1:        (*Decoder).loadBinInt1,
	opBinint2:        (*Decoder).loadBinInt2,
	opBinpersid:      (*Decoder).loadBinPersid,
	opBinstring:      (*Decoder).loadBinString,
	opShortBinstring: (*Decoder).loadShortBinString,
	opBinunicode:     (*Decoder).loadBinUnicode,
	opAppends:        (*Decoder).loadAppends,
	opBinget:         (*Decoder).binGet,
	opLongBinget:     (*Decoder).longBinGet,
	opEmptyList:      (*Decoder).loadEmptyList,
	opEmptyTuple:     (*Decoder).loadEmptyTuple,
	opEmptyDict:      (*Decoder).loadEmptyDict,
	opObj:            (*Decoder).obj,
	opBinput:         (*Decoder).binPut,
	opLongBinput:     (*Decoder).longBinPut,
	opSetitems:       (*Decoder).loadSetItems,
	opBinfloat:       (*Decoder).binFloat,

	opProto:    (*Decoder).loadProto,
	opNewobj:   (*Decoder).newobj,
	opExt1:     (*Decoder).ext1,
	opExt2:     (*Decoder).ext2,
	opExt4:     (*Decoder).ext4,
	opTuple1:   (*Decoder).loadTuple1,
	opTuple2:   (*Decoder).loadTuple2,
	opTuple3:   (*Decoder).loadTuple3,
	opNewtrue:  (*Decoder).loadTrue,
	opNewfalse: (*Decoder).loadFalse,
	opLong1:    (*Decoder).loadLong1,
	opLong4:    (*Decoder).loadLong4,

	opBinbytes:      (*Decoder).loadBinBytes,
	opShortBinbytes: (*Decoder).loadShortBinBytes,

	opShortBinUnicode: (*Decoder).loadShortBinUnicode,
	opBinunicode8:     (*Decoder).loadBinUnicode8,
	opBinbytes8:       (*Decoder).loadBinBytes8,
	opEmptySet:        (*Decoder).loadEmptySet,
	opAddItems:        (*Decoder).loadAddItems,
	opFrozenSet:       (*Decoder).loadFrozenSet,
	opNewobjEx:        (*Decoder).newobjEx,
	opStackGlobal:     (*Decoder).stackGlobal,
	opMemoize:         (*Decoder).loadMemoize,
	opFrame:           (*Decoder).loadFrame,

	opBytearray8:     (*Decoder).loadBytearray8,
	opNextBuffer:     (*Decoder).loadNextBuffer,
	opReadOnlyBuffer: (*Decoder).readOnlyBuffer,
}

var opNames = map[byte]string{
	opMark: "MARK", opStop: "STOP", opPop: "POP", opDup: "DUP",
	opFloat: "FLOAT", opInt: "INT", opLong: "LONG", opNone: "NONE",
	opPersid: "PERSID", opReduce: "REDUCE", opString: "STRING",
	opUnicode: "UNICODE", opAppend: "APPEND", opBuild: "BUILD",
	opGlobal: "GLOBAL", opDict: "DICT", opGet: "GET", opInst: "INST",
	opList: "LIST", opPut: "PUT", opSetitem: "SETITEM", opTuple: "TUPLE",

	opPopMark: "POP_MARK", opBinint: "BININT", opBinint1: "BININT1",
	opBinint2: "BININT2", opBinpersid: "BINPERSID", opBinstring: "BINSTRING",
	opShortBinstring: "SHORT_BINSTRING", opBinunicode: "BINUNICODE",
	opAppends: "APPENDS", opBinget: "BINGET", opLongBinget: "LONG_BINGET",
	opEmptyList: "EMPTY_LIST", opEmptyTuple: "EMPTY_TUPLE",
	opEmptyDict: "EMPTY_DICT", opObj: "OBJ", opBinput: "BINPUT",
	opLongBinput: "LONG_BINPUT", opSetitems: "SETITEMS", opBinfloat: "BINFLOAT",

	opProto: "PROTO", opNewobj: "NEWOBJ", opExt1: "EXT1", opExt2: "EXT2",
	opExt4: "EXT4", opTuple1: "TUPLE1", opTuple2: "TUPLE2", opTuple3: "TUPLE3",
	opNewtrue: "NEWTRUE", opNewfalse: "NEWFALSE", opLong1: "LONG1", opLong4: "LONG4",

	opBinbytes: "BINBYTES", opShortBinbytes: "SHORT_BINBYTES",

	opShortBinUnicode: "SHORT_BINUNICODE", opBinunicode8: "BINUNICODE8",
	opBinbytes8: "BINBYTES8", opEmptySet: "EMPTY_SET", opAddItems: "ADDITEMS",
	opFrozenSet: "FROZENSET", opNewobjEx: "NEWOBJ_EX", opStackGlobal: "STACK_GLOBAL",
	opMemoize: "MEMOIZE", opFrame: "FRAME",

	opBytearray8: "BYTEARRAY8", opNextBuffer: "NEXT_BUFFER",
	opReadOnlyBuffer: "READONLY_BUFFER",
}

// opName returns the pickletools name of op, or its hex value if op is
// not an opcode.
func opName(op byte) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", op)
}
