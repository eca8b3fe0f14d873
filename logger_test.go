package pickle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
)

func TestDecoderLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := &DecoderConfig{Logger: zap.New(core)}

	// BUILD on a value that takes no state
	v, err := NewDecoderWithConfig([]byte("\x80\x02K\x01}b."), cfg).Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	warns := logs.FilterMessage("BUILD target cannot take state, state dropped").All()
	require.Len(t, warns, 1)
	assert.Equal(t, zapcore.WarnLevel, warns[0].Level)
	assert.Equal(t, "int64", warns[0].ContextMap()["type"])

	_, err = NewDecoderWithConfig([]byte("cshop\nItem\n)R."), cfg).Decode()
	require.NoError(t, err)
	unknown := logs.FilterMessage("unknown class, keeping generic record").All()
	require.Len(t, unknown, 1)
	assert.Equal(t, "shop.Item", unknown[0].ContextMap()["class"])
}

func TestSetLogger(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))

	_, err := Unpickle([]byte("I1\n(db."))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len())
}

func TestSetLoggerNil(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	SetLogger(nil)
	require.NotNil(t, Logger())

	v, err := Unpickle([]byte("\x80\x02K\x01."))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestSetLoggerConcurrent(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			SetLogger(zap.NewNop())
			_, err := Unpickle([]byte("\x80\x02K\x01}b."))
			return err
		})
	}
	require.NoError(t, g.Wait())
}
