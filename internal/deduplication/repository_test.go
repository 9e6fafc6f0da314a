package deduplication

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertrelay/internal/constants"
)

func TestFileRepository_AddAndMembers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewFileRepository(dir, constants.NamespaceAlerts)
	require.NoError(t, err)

	keys, err := repo.Members(ctx, "20240305")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, repo.Add(ctx, "20240305", "<b@x>"))
	require.NoError(t, repo.Add(ctx, "20240305", "<a@x>"))
	require.NoError(t, repo.Add(ctx, "20240305", "<b@x>"))

	keys, err = repo.Members(ctx, "20240305")
	require.NoError(t, err)
	assert.Equal(t, []string{"<a@x>", "<b@x>"}, keys)

	data, err := os.ReadFile(filepath.Join(dir, "alerts_cache_20240305.json"))
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"<a@x>\",\n  \"<b@x>\"\n]\n", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileRepository_CorruptBucket(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewFileRepository(dir, constants.NamespaceAlerts)
	require.NoError(t, err)

	path := filepath.Join(dir, "alerts_cache_20240305.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = repo.Members(ctx, "20240305")
	assert.Error(t, err)

	require.NoError(t, repo.Add(ctx, "20240305", "k1"))
	keys, err := repo.Members(ctx, "20240305")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys)
}

func TestFileRepository_Buckets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewFileRepository(dir, constants.NamespaceAlerts)
	require.NoError(t, err)
	other, err := NewFileRepository(dir, constants.NamespaceVehicles)
	require.NoError(t, err)

	require.NoError(t, repo.Add(ctx, "20240306", "k"))
	require.NoError(t, repo.Add(ctx, "20240301", "k"))
	require.NoError(t, other.Add(ctx, "20240302", "k"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alerts_cache_notaday.json"), []byte("[]"), 0o644))

	days, err := repo.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []BucketKey{"20240301", "20240306"}, days)

	days, err = other.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []BucketKey{"20240302"}, days)
}

func TestFileRepository_CancelledContext(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir(), constants.NamespaceAlerts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.Add(ctx, "20240305", "k"), context.Canceled)
	_, err = repo.Members(ctx, "20240305")
	assert.ErrorIs(t, err, context.Canceled)
}
