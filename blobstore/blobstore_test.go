package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "runs/a.db")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Fetch(ctx, "runs/a.db")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "runs/a.db", strings.NewReader("alpha"), 5))
	require.NoError(t, s.Put(ctx, "runs/b.db", strings.NewReader("beta"), 4))
	require.NoError(t, s.Put(ctx, "other/c.db", strings.NewReader("gamma"), 5))

	ok, err = s.Exists(ctx, "runs/a.db")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := s.Fetch(ctx, "runs/a.db")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "alpha", string(data))

	names, err := s.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a.db", "runs/b.db"}, names)

	require.NoError(t, s.Delete(ctx, "runs/a.db"))
	require.NoError(t, s.Delete(ctx, "runs/a.db"), "double delete is fine")

	ok, err = s.Exists(ctx, "runs/a.db")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocal(t.TempDir()))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestLocalPutIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "x.db", strings.NewReader("data"), 4))

	// no temp droppings next to the artifact
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.db", entries[0].Name())
}

func TestStageAndPublish(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Put(ctx, "in.db", strings.NewReader("image"), 5))

	dir := t.TempDir()
	path, err := Stage(ctx, mem, "in.db", dir)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))

	// local stores stage without copying
	local := NewLocal(dir)
	require.NoError(t, local.Put(ctx, "out.db", strings.NewReader("other"), 5))
	staged, err := Stage(ctx, local, "out.db", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.db"), staged)

	// publish a local file back to the remote store
	require.NoError(t, Publish(ctx, mem, "back.db", staged))
	r, err := mem.Fetch(ctx, "back.db")
	require.NoError(t, err)
	back, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "other", string(back))
}

func TestParseURL(t *testing.T) {
	loc, err := ParseURL("/data/untangled.db")
	require.NoError(t, err)
	assert.Equal(t, Location{Key: "/data/untangled.db"}, loc)

	loc, err = ParseURL("minio://store.example:9000/knowledge/runs/4n9.db")
	require.NoError(t, err)
	assert.Equal(t, Location{
		Scheme:   "minio",
		Endpoint: "store.example:9000",
		Bucket:   "knowledge",
		Key:      "runs/4n9.db",
	}, loc)

	loc, err = ParseURL("s3://knowledge/runs/4n9.db")
	require.NoError(t, err)
	assert.Equal(t, Location{Scheme: "s3", Bucket: "knowledge", Key: "runs/4n9.db"}, loc)

	_, err = ParseURL("minio://hostonly")
	assert.Error(t, err)
	_, err = ParseURL("s3://bucketonly")
	assert.Error(t, err)
}
