package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kisielk/pickle"
)

// ClassMap teaches a registry about application classes:
//
//	[aliases]
//	"mylib.money.Amount" = "decimal.Decimal"
//
//	[extensions]
//	"240" = "mylib.Point"
//
//	[exceptions]
//	classes = ["mylib.errors.QuotaExceeded"]
type ClassMap struct {
	Aliases    map[string]string `toml:"aliases"`
	Extensions map[string]string `toml:"extensions"`
	Exceptions struct {
		Classes []string `toml:"classes"`
	} `toml:"exceptions"`
}

// LoadClassMap parses the TOML class map at path.
func LoadClassMap(path string) (*ClassMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ParseClassMap(string(data))
}

// ParseClassMap parses a TOML class map.
func ParseClassMap(text string) (*ClassMap, error) {
	var m ClassMap
	md, err := toml.Decode(text, &m)
	if err != nil {
		return nil, fmt.Errorf("class map: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("class map: unknown keys %v", undecoded)
	}
	return &m, nil
}

// ParseClass splits "module.name" at the last dot.
func ParseClass(s string) (pickle.Class, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return pickle.Class{}, fmt.Errorf("invalid class %q: want module.name", s)
	}
	return pickle.Class{Module: s[:i], Name: s[i+1:]}, nil
}

// Apply installs the class map into r. Exceptions go first, so aliases may
// target them.
func (m *ClassMap) Apply(r *pickle.Registry) error {
	for _, name := range m.Exceptions.Classes {
		cls, err := ParseClass(name)
		if err != nil {
			return fmt.Errorf("exceptions: %w", err)
		}
		r.RegisterException(cls.Module, cls.Name)
	}

	for _, alias := range sortedKeys(m.Aliases) {
		from, err := ParseClass(alias)
		if err != nil {
			return fmt.Errorf("aliases: %w", err)
		}
		to, err := ParseClass(m.Aliases[alias])
		if err != nil {
			return fmt.Errorf("aliases: %w", err)
		}
		if err := r.Alias(from, to); err != nil {
			return err
		}
	}

	for _, code := range sortedKeys(m.Extensions) {
		n, err := strconv.Atoi(code)
		if err != nil || n <= 0 {
			return fmt.Errorf("extensions: invalid code %q", code)
		}
		cls, err := ParseClass(m.Extensions[code])
		if err != nil {
			return fmt.Errorf("extensions: %w", err)
		}
		r.RegisterExtension(n, cls.Module, cls.Name)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
