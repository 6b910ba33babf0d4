package playerx

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	loggerKey   = NewKey[*slog.Logger]("logger")
	playlistKey = NewKey[[]string]("playlist")
)

func TestRegistry_GetSet(t *testing.T) {
	rt := newTestRuntime(t)
	logger := slog.New(slog.NewTextHandler(nil, nil))

	require.NoError(t, Set(rt.Registry(), loggerKey, logger))

	got, err := Get(rt.Context().Registry(), loggerKey)
	require.NoError(t, err)
	assert.Same(t, logger, got)
	assert.Equal(t, "logger", loggerKey.Name())
}

func TestRegistry_WriteOnce(t *testing.T) {
	rt := newTestRuntime(t)

	require.NoError(t, Set(rt.Registry(), playlistKey, []string{"a"}))
	err := Set(rt.Registry(), playlistKey, []string{"b"})

	var writeErr *RegistryWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "playlist", writeErr.Key)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	got := MustGet(rt.Registry(), playlistKey)
	assert.Equal(t, []string{"a"}, got)
}

func TestRegistry_LookupMiss(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := Get(rt.Registry(), loggerKey)
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "logger", lookupErr.Key)
	assert.ErrorIs(t, err, ErrLookup)

	assert.Panics(t, func() {
		MustGet(rt.Registry(), loggerKey)
	})
}

func TestRegistry_LayersAreWriteOnceAcrossLineage(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, Set(rt.Registry(), playlistKey, []string{"root"}))

	layered := rt.Context().WithRegistryLayer()
	err := Set(layered.Registry(), playlistKey, []string{"layer"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	downloads := NewKey[int]("downloads")
	require.NoError(t, Set(layered.Registry(), downloads, 3))

	got, err := Get(layered.Registry(), downloads)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	assert.False(t, rt.Registry().Has("downloads"), "layer writes stay out of the root")
	assert.ElementsMatch(t, []string{"playlist", "downloads"}, layered.Registry().Names())
}

func TestRegistry_ForkSeesParentRegistry(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, Set(rt.Registry(), playlistKey, []string{"intro", "main"}))

	h := Fork(rt.Context(), NewTask("read", func(ctx *ExecutionCtx, _ struct{}) (int, error) {
		items, err := Get(ctx.Registry(), playlistKey)
		return len(items), err
	}), struct{}{})

	n, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegistry_WrongTypeIsLookupError(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Registry().SetAny("logger", "not a logger"))

	_, err := Get(rt.Registry(), loggerKey)
	require.ErrorIs(t, err, ErrLookup)
}
