package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drilldocs/drilldocs/internal/document/repository"
	"github.com/drilldocs/drilldocs/internal/document/service"
	"github.com/drilldocs/drilldocs/internal/kvstore"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func newService(t *testing.T) *service.Service {
	t.Helper()
	store := repository.New(kvstore.NewMemory())
	t.Cleanup(store.Close)
	return service.New(store, nil)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestProcessSavesImportedFiles(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	var out bytes.Buffer

	failed := process(ctx, svc, []string{
		writeFile(t, "Rig Move.txt", "one\ntwo"),
		writeFile(t, "notes.pdf", "%PDF"),
	}, runOptions{user: "docimport", featured: true}, &out)

	require.Equal(t, 1, failed)
	require.Contains(t, out.String(), "\tRig Move\t1 section(s)\n")
	docs, err := svc.List(ctx, service.Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.True(t, docs[0].IsFeatured)
}

func TestProcessDryRunReportsWriteFailure(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	failed := process(ctx, svc, []string{writeFile(t, "a.txt", "text")}, runOptions{dryRun: true}, failingWriter{})
	require.Equal(t, 1, failed)

	docs, err := svc.List(ctx, service.Filter{})
	require.NoError(t, err)
	require.Empty(t, docs)
}
