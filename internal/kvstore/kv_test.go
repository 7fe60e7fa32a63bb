package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "documents")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set(ctx, "documents", `[]`))
	require.NoError(t, kv.Set(ctx, "documentRevisions-b", `[{"version":1}]`))
	require.NoError(t, kv.Set(ctx, "documentRevisions-a", `[]`))
	require.NoError(t, kv.Set(ctx, "draft_new_document", `{"title":"x"}`))

	v, ok, err := kv.Get(ctx, "documentRevisions-b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `[{"version":1}]`, v)

	require.NoError(t, kv.Set(ctx, "documents", `[{"id":"1"}]`))
	v, _, err = kv.Get(ctx, "documents")
	require.NoError(t, err)
	require.Equal(t, `[{"id":"1"}]`, v)

	keys, err := kv.Keys(ctx, "documentRevisions-")
	require.NoError(t, err)
	require.Equal(t, []string{"documentRevisions-a", "documentRevisions-b"}, keys)

	all, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)

	require.NoError(t, kv.Remove(ctx, "draft_new_document"))
	require.NoError(t, kv.Remove(ctx, "draft_new_document"), "removing a missing key is not an error")
	_, ok, err = kv.Get(ctx, "draft_new_document")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestFileKV(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	exerciseKV(t, f)
}

func TestFileKV_EscapesKeys(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "draft_a/b c", "{}"))
	keys, err := f.Keys(ctx, "draft_")
	require.NoError(t, err)
	require.Equal(t, []string{"draft_a/b c"}, keys)

	entries, err := os.ReadDir(f.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRedisKV(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	exerciseKV(t, NewRedis(client, "test:kv:"))

	// other prefixes in the same Redis stay invisible
	require.NoError(t, client.Set(context.Background(), "other:documents", "x", 0).Err())
	keys, err := NewRedis(client, "test:kv:").Keys(context.Background(), "documents")
	require.NoError(t, err)
	require.Equal(t, []string{"documents"}, keys)
}

func TestWatcherReportsExternalWrites(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)

	changed := make(chan string, 4)
	w, err := Watch(f, 100*time.Millisecond, func(key string) { changed <- key })
	require.NoError(t, err)
	defer w.Close()

	// two quick writes from "another process" coalesce into one notification
	p := filepath.Join(f.Dir(), "recentActivity.json")
	require.NoError(t, os.WriteFile(p, []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(p, []byte(`[{"message":"m"}]`), 0o644))

	select {
	case key := <-changed:
		require.Equal(t, "recentActivity", key)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
	select {
	case key := <-changed:
		t.Fatalf("unexpected second notification for %q", key)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)

	changed := make(chan string, 4)
	w, err := Watch(f, 50*time.Millisecond, func(key string) { changed <- key })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, f.Set(ctx, "documents", `[]`))
	require.NoError(t, f.Set(ctx, "draft_doc-1", `{}`))
	require.NoError(t, f.Remove(ctx, "draft_doc-1"))
	select {
	case key := <-changed:
		t.Fatalf("own write reported as external: %q", key)
	case <-time.After(300 * time.Millisecond):
	}

	// a foreign write over a key this process wrote is still reported
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir(), "documents.json"), []byte(`[{"id":"x"}]`), 0o644))
	select {
	case key := <-changed:
		require.Equal(t, "documents", key)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}
