package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisielk/pickle"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, &Config{Format: "text"}, cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pickledump.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: json\nstore: objects.db\nsnappy: true\n"), 0o644))

	t.Setenv("PICKLEDUMP_FORMAT", "cbor")
	t.Setenv("PICKLEDUMP_CLASSMAP", "classes.toml")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Format:   "cbor",
		Store:    "objects.db",
		ClassMap: "classes.toml",
		Snappy:   true,
	}, cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("PICKLEDUMP_FORMAT", "xml")
	t.Chdir(t.TempDir())
	_, err = Load(New(), "")
	assert.ErrorContains(t, err, `invalid format "xml"`)
}

const classMapTOML = `
[aliases]
"legacy.money.Amount" = "decimal.Decimal"
"app.Failure" = "app.errors.Failure"

[extensions]
"240" = "app.geo.Point"

[exceptions]
classes = ["app.errors.Failure"]
`

func TestClassMapApply(t *testing.T) {
	m, err := ParseClassMap(classMapTOML)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"240": "app.geo.Point"}, m.Extensions)

	r := pickle.NewRegistry()
	require.NoError(t, m.Apply(r))

	_, ok := r.Resolve("legacy.money", "Amount")
	assert.True(t, ok)

	cls, ok := r.Extension(240)
	require.True(t, ok)
	assert.Equal(t, pickle.Class{Module: "app.geo", Name: "Point"}, cls)

	// the alias of an exception decodes to the exception
	v, err := pickle.UnpickleWithConfig([]byte("capp\nFailure\n(Vboom\ntR."), &pickle.DecoderConfig{Registry: r})
	require.NoError(t, err)
	exc, ok := v.(*pickle.PyException)
	require.True(t, ok, "%T", v)
	assert.Equal(t, "[app.errors.Failure] boom", exc.Error())
}

func TestClassMapErrors(t *testing.T) {
	_, err := ParseClassMap("[aliases\n")
	assert.Error(t, err)

	_, err = ParseClassMap("[other]\nx = 1\n")
	assert.ErrorContains(t, err, "unknown keys")

	bad := []string{
		"[aliases]\n\"nodot\" = \"decimal.Decimal\"\n",
		"[aliases]\n\"a.b\" = \"no.such\"\n",
		"[extensions]\n\"x\" = \"a.b\"\n",
		"[extensions]\n\"0\" = \"a.b\"\n",
		"[exceptions]\nclasses = [\"a.\"]\n",
	}
	for _, text := range bad {
		m, err := ParseClassMap(text)
		require.NoError(t, err, text)
		assert.Error(t, m.Apply(pickle.NewRegistry()), text)
	}
}

func TestLoadClassMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.toml")
	require.NoError(t, os.WriteFile(path, []byte(classMapTOML), 0o644))

	m, err := LoadClassMap(path)
	require.NoError(t, err)
	assert.Len(t, m.Aliases, 2)

	_, err = LoadClassMap(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseClass(t *testing.T) {
	cls, err := ParseClass("a.b.C")
	require.NoError(t, err)
	assert.Equal(t, pickle.Class{Module: "a.b", Name: "C"}, cls)

	for _, s := range []string{"", "C", ".C", "a."} {
		_, err := ParseClass(s)
		assert.Error(t, err, s)
	}
}
