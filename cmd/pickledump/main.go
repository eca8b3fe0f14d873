// Command pickledump decodes Python pickles and prints them as text, JSON
// or CBOR.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kisielk/pickle"
	"github.com/kisielk/pickle/internal/config"
)

var (
	// configFile is set by the --config flag.
	configFile string

	// settings holds the merged flags, environment and config file.
	settings *config.Config

	log = zap.NewNop()

	v = config.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pickledump",
	Short: "Decode Python pickles",
	Long: `pickledump decodes Python pickle streams without running Python code.

Instances of unknown classes are shown as records of their attributes.
Persistent references can be resolved against a SQLite store of pickles.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return teardown() },
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: ./pickledump.yaml)")
	flags.StringP(config.KeyFormat, "f", "text", "output format: text, json or cbor")
	flags.String(config.KeyStore, "", "SQLite store resolving persistent references")
	flags.String(config.KeyClassMap, "", "TOML file with class aliases and extension codes")
	flags.Bool(config.KeySnappy, false, "input is snappy compressed")
	flags.BoolP(config.KeyVerbose, "v", false, "log decoder diagnostics to stderr")

	for _, key := range []string{config.KeyFormat, config.KeyStore, config.KeyClassMap, config.KeySnappy, config.KeyVerbose} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(classesCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	settings = cfg

	if cfg.Verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	pickle.SetLogger(log)
	return nil
}

func teardown() error {
	// syncing stderr fails on some terminals
	_ = log.Sync()
	return nil
}

// registry returns the default registry extended by the configured class map.
func registry() (*pickle.Registry, error) {
	r := pickle.DefaultRegistry().Clone()
	if settings.ClassMap == "" {
		return r, nil
	}
	m, err := config.LoadClassMap(settings.ClassMap)
	if err != nil {
		return nil, err
	}
	if err := m.Apply(r); err != nil {
		return nil, fmt.Errorf("class map %s: %w", settings.ClassMap, err)
	}
	return r, nil
}
