package dedup_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/dedup/deduptest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_AbsentStateStartsEmpty(t *testing.T) {
	f := dedup.Open(&deduptest.MemoryStore{}, dedup.DefaultParams(), quietLogger())
	assert.Equal(t, dedup.OriginFresh, f.Origin())
	assert.False(t, f.MightContain("2025-07-15:52.52:13.41"))
}

func TestOpen_CorruptStateStartsEmpty(t *testing.T) {
	store := &deduptest.MemoryStore{}
	require.NoError(t, store.Save([]byte("garbage")))

	f := dedup.Open(store, dedup.DefaultParams(), quietLogger())
	assert.Equal(t, dedup.OriginRecovered, f.Origin())
	assert.False(t, f.MightContain("2025-07-15:52.52:13.41"))
}

func TestSaveThenOpen(t *testing.T) {
	store := &deduptest.MemoryStore{}
	f := dedup.Open(store, dedup.DefaultParams(), quietLogger())
	f.Insert("2025-07-15:52.52:13.41")
	require.NoError(t, dedup.Save(store, f))
	assert.Equal(t, 1, store.Saves)

	reopened := dedup.Open(store, dedup.DefaultParams(), quietLogger())
	assert.Equal(t, dedup.OriginLoaded, reopened.Origin())
	assert.True(t, reopened.MightContain("2025-07-15:52.52:13.41"))
}

func TestOpen_KeepsStoredSizing(t *testing.T) {
	store := &deduptest.MemoryStore{}
	stored := dedup.Params{ExpectedEntries: 50, FalsePositiveRate: 0.05}
	require.NoError(t, dedup.Save(store, dedup.New(stored)))

	f := dedup.Open(store, dedup.Params{ExpectedEntries: 5000, FalsePositiveRate: 0.001}, quietLogger())
	assert.Equal(t, stored, f.Params())
}

func TestSave_StoreError(t *testing.T) {
	boom := errors.New("disk full")
	store := &deduptest.MemoryStore{Err: boom}
	err := dedup.Save(store, dedup.New(dedup.DefaultParams()))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.Saves)
}
