package pickle

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors. Decode wraps them into *DecodeError, so callers should
// match with errors.Is.
var (
	// ErrEndOfInput is returned when the input ends in the middle of a
	// pickle. It also matches io.ErrUnexpectedEOF.
	ErrEndOfInput = fmt.Errorf("pickle: end of input: %w", io.ErrUnexpectedEOF)

	ErrInvalidOpcode          = errors.New("pickle: invalid opcode")
	ErrStackUnderflow         = errors.New("pickle: stack underflow")
	ErrUnmatchedMark          = errors.New("pickle: no matching mark")
	ErrInvalidMemoReference   = errors.New("pickle: invalid memo reference")
	ErrMalformedField         = errors.New("pickle: malformed field")
	ErrConstructorFailure     = errors.New("pickle: constructor failure")
	ErrUnresolvedPersistentID = errors.New("pickle: persistent id without resolver")
	ErrCorruptStream          = errors.New("pickle: corrupt stream")

	// ErrInvalidPickleVersion is a malformed PROTO argument.
	ErrInvalidPickleVersion = fmt.Errorf("%w: invalid pickle version", ErrMalformedField)
)

// OpcodeError is the error that Decode returns when it sees unknown pickle opcode.
type OpcodeError struct {
	Key byte
	Pos int
}

func (e OpcodeError) Error() string {
	return fmt.Sprintf("Unknown opcode %d (%c) at position %d: %q", e.Key, e.Key, e.Pos, e.Key)
}

// Is makes OpcodeError match ErrInvalidOpcode.
func (e OpcodeError) Is(target error) bool {
	return target == ErrInvalidOpcode
}

// DecodeError describes a failed Decode: the offset and opcode being
// executed, and the underlying cause.
type DecodeError struct {
	Pos int  // offset of the opcode in the input
	Op  byte // opcode being executed
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pickle: decode %s at offset %d: %s", opName(e.Op), e.Pos, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ConstructorError is a failure reported by a registered constructor, or by
// an object's SetState, while rebuilding an instance of Class.
type ConstructorError struct {
	Class Class
	Err   error
}

func (e *ConstructorError) Error() string {
	return fmt.Sprintf("pickle: construct %s: %s", e.Class, e.Err)
}

// Unwrap exposes both ErrConstructorFailure and the original cause.
func (e *ConstructorError) Unwrap() []error {
	return []error{ErrConstructorFailure, e.Err}
}

// malformed returns an ErrMalformedField error with a formatted detail.
func malformed(format string, argv ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedField, fmt.Sprintf(format, argv...))
}

// overrun reports a length prefix that does not fit in the remaining input.
func overrun(what string, n uint64, left int) error {
	return fmt.Errorf("%w: %s: length %d exceeds remaining %d bytes: %w",
		ErrMalformedField, what, n, left, ErrEndOfInput)
}
