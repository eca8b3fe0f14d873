package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kisielk/pickle"
	"github.com/kisielk/pickle/internal/persist"
	"github.com/kisielk/pickle/internal/render"
)

var decodeAll bool

var decodeCmd = &cobra.Command{
	Use:   "decode [file|-]",
	Short: "Decode a pickle and print it",
	Long: `Decode reads a pickle from file, or from standard input when file is
omitted or "-", and prints the decoded value.

Example:
  pickledump decode data.pkl
  pickledump decode --format json --all < stream.pkl
  pickledump decode --store objects.db root.pkl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVarP(&decodeAll, "all", "a", false, "decode every pickle in the input, not only the first")
}

func runDecode(cmd *cobra.Command, args []string) error {
	name := "-"
	if len(args) == 1 {
		name = args[0]
	}
	data, err := readInput(cmd.InOrStdin(), name)
	if err != nil {
		return err
	}

	out, err := render.Lookup(settings.Format)
	if err != nil {
		return err
	}
	cfg, closeStore, err := decoderConfig(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	dec := pickle.NewDecoderWithConfig(data, cfg)
	for n := 0; ; n++ {
		obj, err := dec.Decode()
		if err == io.EOF {
			if n == 0 {
				return fmt.Errorf("%s: no pickle in input", name)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Debug("decoded pickle", zap.Int("index", n), zap.Int("protocol", dec.Protocol()), zap.Int("offset", dec.Offset()))

		if err := out(cmd.OutOrStdout(), obj); err != nil {
			return err
		}
		if !decodeAll {
			return nil
		}
	}
}

// readInput reads name, or r for "-", undoing snappy compression if
// configured.
func readInput(r io.Reader, name string) ([]byte, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(r)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	if settings.Snappy {
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%s: snappy decompression failed: %w", name, err)
		}
	}
	return data, nil
}

// decoderConfig builds the decoder configuration from settings. The
// returned func closes the store, if one was opened.
func decoderConfig(ctx context.Context) (*pickle.DecoderConfig, func(), error) {
	r, err := registry()
	if err != nil {
		return nil, nil, err
	}
	cfg := &pickle.DecoderConfig{Registry: r, Logger: log}
	if settings.Store == "" {
		// leave references as they are
		cfg.PersistentLoad = func(pickle.Ref) (any, error) { return nil, nil }
		return cfg, func() {}, nil
	}

	if _, err := os.Stat(settings.Store); errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("store %s does not exist", settings.Store)
	}
	s, err := persist.Open(settings.Store)
	if err != nil {
		return nil, nil, err
	}
	cfg.PersistentLoad = s.Resolver(ctx, cfg)
	return cfg, func() { s.Close() }, nil
}
