package media

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://localhost:3000"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir(), testBaseURL+"/", discardLogger())
	require.NoError(t, err)
	return store
}

func putFiles(t *testing.T, store *DiskStore, n int) []Reference {
	t.Helper()
	refs := make([]Reference, 0, n)
	for i := 0; i < n; i++ {
		ref, err := store.Put(context.Background(), strings.NewReader("image"), KindGallery, "car.png")
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	return refs
}

func exists(t *testing.T, store *DiskStore, ref Reference) bool {
	t.Helper()
	path, err := store.Path(ref)
	require.NoError(t, err)
	_, err = os.Stat(path)
	return err == nil
}

func countFiles(t *testing.T, store *DiskStore, kind Kind) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(store.Root(), string(kind)))
	require.NoError(t, err)
	return len(entries)
}
