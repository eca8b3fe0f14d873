package pickle

import (
	"strings"
)

// PyException is a Python exception found in a pickle.
//
// It implements error so that callers can return it, or match it with
// errors.As, in their own error handling.
type PyException struct {
	Class Class
	Args  Tuple
	Attrs map[string]any
}

// Error returns "[module.Name] arg0, arg1, ...".
func (e *PyException) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Class.String())
	b.WriteString("]")
	for i, arg := range e.Args {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		if s, ok := arg.(string); ok {
			b.WriteString(s)
		} else {
			b.WriteString(Repr(arg))
		}
	}
	return b.String()
}

// PythonType returns "module.Name" of the exception class.
func (e *PyException) PythonType() string {
	return e.Class.String()
}

// SetState merges the exception's __dict__.
func (e *PyException) SetState(state any) error {
	d, ok := state.(Dict)
	if !ok {
		if _, none := state.(None); none {
			return nil
		}
		return malformed("exception state is %T, not a dict", state)
	}
	m, ok := d.StringKeys()
	if !ok {
		return malformed("exception state has non-string keys")
	}
	if e.Attrs == nil {
		e.Attrs = make(map[string]any, len(m))
	}
	for k, v := range m {
		e.Attrs[k] = v
	}
	return nil
}

// exceptionConstructor returns a Constructor producing *PyException of cls.
func exceptionConstructor(cls Class) Constructor {
	return func(args Tuple) (any, error) {
		return &PyException{Class: cls, Args: append(Tuple{}, args...)}, nil
	}
}

// pythonExceptions lists the built-in exception and warning classes.
var pythonExceptions = []string{
	"ArithmeticError", "AssertionError", "AttributeError", "BaseException",
	"BaseExceptionGroup", "BlockingIOError", "BrokenPipeError", "BufferError", "BytesWarning",
	"ChildProcessError", "ConnectionAbortedError", "ConnectionError",
	"ConnectionRefusedError", "ConnectionResetError", "DeprecationWarning",
	"EOFError", "EncodingWarning", "EnvironmentError", "Exception",
	"ExceptionGroup", "FileExistsError",
	"FileNotFoundError", "FloatingPointError", "FutureWarning",
	"GeneratorExit", "IOError", "ImportError", "ImportWarning",
	"IndentationError", "IndexError", "InterruptedError",
	"IsADirectoryError", "KeyError", "KeyboardInterrupt", "LookupError",
	"MemoryError", "ModuleNotFoundError", "NameError", "NotADirectoryError",
	"NotImplementedError", "OSError", "OverflowError",
	"PendingDeprecationWarning", "PermissionError", "ProcessLookupError",
	"PythonFinalizationError",
	"RecursionError", "ReferenceError", "ResourceWarning", "RuntimeError",
	"RuntimeWarning", "StandardError", "StopAsyncIteration", "StopIteration",
	"SyntaxError", "SyntaxWarning", "SystemError", "SystemExit", "TabError",
	"TimeoutError", "TypeError", "UnboundLocalError", "UnicodeDecodeError",
	"UnicodeEncodeError", "UnicodeError", "UnicodeTranslateError",
	"UnicodeWarning", "UserWarning", "ValueError", "Warning",
	"WindowsError", "ZeroDivisionError",
}
