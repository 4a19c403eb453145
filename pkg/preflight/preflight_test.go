package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestRun_ReportsEveryCheck(t *testing.T) {
	ctx := context.Background()

	results := Run(ctx, 0, []Check{
		{Name: "first", Probe: func(ctx context.Context) error { return nil }},
		{Name: "second", Probe: func(ctx context.Context) error { return errors.New("down") }},
		{Name: "third", Probe: func(ctx context.Context) error { return nil }},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Name)
	assert.True(t, results[0].OK)
	assert.Empty(t, results[0].Detail)

	// A failed check never stops the run.
	assert.False(t, results[1].OK)
	assert.Equal(t, "down", results[1].Detail)
	assert.True(t, results[2].OK)

	assert.True(t, Failed(results))
}

func TestRun_TimesOutSlowProbe(t *testing.T) {
	ctx := context.Background()

	results := Run(ctx, 20*time.Millisecond, []Check{
		{Name: "slow", Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Detail, "deadline exceeded")
}

func TestFailed(t *testing.T) {
	assert.False(t, Failed(nil))
	assert.False(t, Failed([]Result{{OK: true}}))
	assert.True(t, Failed([]Result{{OK: true}, {OK: false}}))
}

func TestPingChecks(t *testing.T) {
	ctx := context.Background()

	ok := Run(ctx, 0, []Check{Postgres(fakePinger{}), Redis(fakePinger{})})
	assert.False(t, Failed(ok))
	assert.Equal(t, CheckPostgres, ok[0].Name)
	assert.Equal(t, CheckRedis, ok[1].Name)

	bad := Run(ctx, 0, []Check{Postgres(fakePinger{err: errors.New("refused")})})
	require.Len(t, bad, 1)
	assert.False(t, bad[0].OK)
	assert.Equal(t, "refused", bad[0].Detail)
}

func TestArchiveRoot(t *testing.T) {
	ctx := context.Background()

	t.Run("writable directory passes", func(t *testing.T) {
		err := ArchiveRoot(t.TempDir()).Probe(ctx)
		assert.NoError(t, err)
	})

	t.Run("missing directory fails", func(t *testing.T) {
		err := ArchiveRoot(filepath.Join(t.TempDir(), "absent")).Probe(ctx)
		assert.Error(t, err)
	})

	t.Run("regular file fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		err := ArchiveRoot(path).Probe(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("probe file is cleaned up", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, ArchiveRoot(dir).Probe(ctx))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestIndexPath(t *testing.T) {
	ctx := context.Background()

	t.Run("existing directory passes", func(t *testing.T) {
		err := IndexPath(t.TempDir()).Probe(ctx)
		assert.NoError(t, err)
	})

	t.Run("absent path with writable parent passes", func(t *testing.T) {
		err := IndexPath(filepath.Join(t.TempDir(), "search_index.db")).Probe(ctx)
		assert.NoError(t, err)
	})

	t.Run("absent parent fails", func(t *testing.T) {
		err := IndexPath(filepath.Join(t.TempDir(), "no", "such", "index.db")).Probe(ctx)
		assert.Error(t, err)
	})

	t.Run("regular file fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.db")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		err := IndexPath(path).Probe(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})
}
