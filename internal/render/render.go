package render

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"

	"github.com/kisielk/pickle"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("render: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Func writes v to w in one output format.
type Func func(w io.Writer, v any) error

// Lookup returns the writer for format text, json or cbor.
func Lookup(format string) (Func, error) {
	switch format {
	case "text":
		return Text, nil
	case "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, fmt.Errorf("render: unknown format %q", format)
}

// Text writes the Python-like repr of v followed by a newline.
func Text(w io.Writer, v any) error {
	_, err := fmt.Fprintln(w, pickle.Repr(v))
	return err
}

// JSON writes the tree of v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ToTree(v)); err != nil {
		return fmt.Errorf("render: json: %w", err)
	}
	return nil
}

// CBOR writes the tree of v as canonical CBOR.
func CBOR(w io.Writer, v any) error {
	if err := cborEncMode.NewEncoder(w).Encode(ToTree(v)); err != nil {
		return fmt.Errorf("render: cbor: %w", err)
	}
	return nil
}
