package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kittens/internal/core/gallery"
)

func TestNewLogger_Level(t *testing.T) {
	ctx := context.Background()

	l := newLogger("json", "debug")
	assert.True(t, l.Enabled(ctx, slog.LevelDebug))

	l = newLogger("text", "warn")
	assert.False(t, l.Enabled(ctx, slog.LevelInfo))
	assert.True(t, l.Enabled(ctx, slog.LevelWarn))

	l = newLogger("", "nonsense")
	assert.True(t, l.Enabled(ctx, slog.LevelInfo))
	assert.False(t, l.Enabled(ctx, slog.LevelDebug))
}

func TestOpenCacheStore(t *testing.T) {
	ctx := context.Background()

	store, closer, err := openCacheStore(ctx, gallery.BackendMemory)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, closer.Close())

	t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "cache.db"))
	store, closer, err = openCacheStore(ctx, gallery.BackendBolt)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, closer.Close())

	_, _, err = openCacheStore(ctx, "dynamo")
	assert.ErrorIs(t, err, gallery.ErrUnknownBackend)
}

func TestListenPort(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	assert.Equal(t, "8081", listenPort(getenv))

	env["APPVIEW_PORT"] = "9000"
	assert.Equal(t, "8081", listenPort(getenv), "only PORT is read")

	env["PORT"] = " 3000 "
	assert.Equal(t, "3000", listenPort(getenv))
}
