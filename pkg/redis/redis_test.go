package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNew(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := Config{URL: "redis://" + mr.Addr(), ReadTimeout: 1, WriteTimeout: 1, DialTimeout: 1}
	require.True(t, cfg.Enabled())

	client, err := cfg.New()
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConfigNewInvalidURL(t *testing.T) {
	cfg := Config{URL: "not-a-url"}
	_, err := cfg.New()
	assert.Error(t, err)
	assert.Panics(t, func() { cfg.MustNew() })
}

func TestConfigDisabled(t *testing.T) {
	assert.False(t, (&Config{}).Enabled())
}
