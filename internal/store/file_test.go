package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-roster/internal/roster"
)

func sampleRegistry() *roster.Registry {
	return &roster.Registry{
		IDs:       []string{"A", "B", "C"},
		Names:     []string{"Alice", "Bob", "C"},
		FamilyIDs: []string{"7", "", "12"},
		Active:    []string{"C", "A"},
		Extra:     []roster.Field{{Key: "Languages", Values: []string{"EN", "FR"}}},
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"headsets.config", "roster.json", "roster.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "nested", "dir", name)
			s := NewFileStore(path)
			ctx := context.Background()

			want := sampleRegistry()
			require.NoError(t, s.Save(ctx, want))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, roster.Normalize(want), got)
		})
	}
}

func TestFileStore_SaveNormalizes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &roster.Registry{
		IDs:    []string{"A", "A", " "},
		Names:  []string{" Alice "},
		Active: []string{"ghost", "A", "A"},
	}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got.IDs)
	assert.Equal(t, []string{"Alice"}, got.Names)
	assert.Equal(t, []string{""}, got.FamilyIDs)
	assert.Equal(t, []string{"A"}, got.Active)
}

func TestFileStore_LoadMissingOrEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	_, err := NewFileStore(filepath.Join(dir, "missing.config")).Load(ctx)
	require.ErrorIs(t, err, ErrNotExist)

	emptyPath := filepath.Join(dir, "empty.config")
	require.NoError(t, os.WriteFile(emptyPath, []byte("  \n"), 0600))
	_, err = NewFileStore(emptyPath).Load(ctx)
	require.ErrorIs(t, err, ErrNotExist)
}

func TestFileStore_LoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.config")
	require.NoError(t, os.WriteFile(path, []byte("this is not a roster"), 0600))

	_, err := NewFileStore(path).Load(context.Background())
	require.ErrorIs(t, err, ErrInvalid)
}

func TestFileStore_AtomicWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleRegistry()))

	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temporary file should not exist after save")
}

func TestFileStore_SaveOverwritesInFull(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleRegistry()))
	require.NoError(t, s.Save(ctx, &roster.Registry{IDs: []string{"Z"}}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, got.IDs)
	assert.Empty(t, got.Extra)
}

func TestFileStore_SaveFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	s := NewFileStore(filepath.Join(blocker, DefaultFileName), WithSaveRetries(1), WithLocking(false))
	err := s.Save(context.Background(), sampleRegistry())
	require.Error(t, err)
}

func TestFileStore_ForcedEncoding(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.txt")
	s := NewFileStore(path, WithEncoding(EncodingYAML))
	assert.Equal(t, EncodingYAML, s.Encoding())
	require.NoError(t, s.Save(context.Background(), sampleRegistry()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- key: ids")
}

func TestFileStore_Lock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "locked", DefaultFileName)
	s := NewFileStore(path)

	unlock, err := s.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx)
	require.Error(t, err, "second lock must wait while the first is held")

	unlock()

	unlock2, err := s.Lock(context.Background())
	require.NoError(t, err)
	unlock2()
}

func TestFileStore_LockDisabled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewFileStore(path, WithLocking(false))

	unlock1, err := s.Lock(context.Background())
	require.NoError(t, err)
	unlock2, err := s.Lock(context.Background())
	require.NoError(t, err)
	unlock1()
	unlock2()

	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadOrEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	brokenPath := filepath.Join(dir, "broken.config")
	require.NoError(t, os.WriteFile(brokenPath, []byte(`{"ids":`), 0600))

	assert.Equal(t, roster.New(), LoadOrEmpty(ctx, NewFileStore(brokenPath)))
	assert.Equal(t, roster.New(), LoadOrEmpty(ctx, NewFileStore(filepath.Join(dir, "missing.config"))))

	goodPath := filepath.Join(dir, "good.config")
	good := NewFileStore(goodPath)
	require.NoError(t, good.Save(ctx, sampleRegistry()))
	assert.Equal(t, roster.Normalize(sampleRegistry()), LoadOrEmpty(ctx, good))
}

func TestSafeFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultFileName, SafeFileName(""))
	assert.Equal(t, DefaultFileName, SafeFileName("   "))
	assert.Equal(t, "a_b_c_.config", SafeFileName("a/b:c?.config"))
	assert.Equal(t, "headsets.config", SafeFileName("headsets.config"))
}
