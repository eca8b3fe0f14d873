// Package config loads pickledump settings and class maps.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyFormat   = "format"
	KeyStore    = "store"
	KeyClassMap = "classmap"
	KeySnappy   = "snappy"
	KeyVerbose  = "verbose"
)

const envPrefix = "PICKLEDUMP"

// Config is the effective pickledump configuration.
type Config struct {
	Format   string // text, json or cbor
	Store    string // sqlite database resolving persistent references
	ClassMap string // TOML class map file
	Snappy   bool   // input is snappy compressed
	Verbose  bool
}

// Formats lists the accepted output formats.
var Formats = []string{"text", "json", "cbor"}

// New returns a viper instance with defaults and environment bindings.
// Command line flags are bound on top of it by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyFormat, "text")
	v.SetDefault(KeyStore, "")
	v.SetDefault(KeyClassMap, "")
	v.SetDefault(KeySnappy, false)
	v.SetDefault(KeyVerbose, false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and returns the result.
// An empty path looks for pickledump.yaml in the working directory; a
// missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pickledump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Format:   v.GetString(KeyFormat),
		Store:    v.GetString(KeyStore),
		ClassMap: v.GetString(KeyClassMap),
		Snappy:   v.GetBool(KeySnappy),
		Verbose:  v.GetBool(KeyVerbose),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	for _, f := range Formats {
		if c.Format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q (valid: %s)", c.Format, strings.Join(Formats, ", "))
}
