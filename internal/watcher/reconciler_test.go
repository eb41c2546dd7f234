package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type enqueueCall struct {
	FilePath string
	FileType string
}

type fakeReconcilerStore struct {
	known      map[string]bool
	enqueued   []enqueueCall
	enqueueErr error
}

func (s *fakeReconcilerStore) AddToQueue(ctx context.Context, filePath, fileType string) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, enqueueCall{filePath, fileType})
	return nil
}

func (s *fakeReconcilerStore) HasQueueJob(ctx context.Context, filePath string) (bool, error) {
	return s.known[filePath], nil
}

func TestScanOnce(t *testing.T) {
	root := t.TempDir()
	write := func(rel string) string {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		return path
	}

	imagePath := write("a.jpg")
	videoPath := write("nested/clip.mp4")
	knownPath := write("already.png")
	write("ignored.txt")

	store := &fakeReconcilerStore{known: map[string]bool{knownPath: true}}
	r := NewReconciler(root, store, zap.NewNop())

	found, err := r.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, found)
	assert.ElementsMatch(t, []enqueueCall{
		{imagePath, "image"},
		{videoPath, "video"},
	}, store.enqueued)
}

func TestScanOnceEmptyRoot(t *testing.T) {
	store := &fakeReconcilerStore{}
	r := NewReconciler(t.TempDir(), store, zap.NewNop())

	found, err := r.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, found)
	assert.Empty(t, store.enqueued)
}

func TestScanOnceSurfacesEnqueueErrors(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))

	store := &fakeReconcilerStore{enqueueErr: errors.New("connection refused")}
	r := NewReconciler(root, store, zap.NewNop())

	_, err := r.ScanOnce(context.Background())
	assert.Error(t, err)
}

func TestScanOnceHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &fakeReconcilerStore{}
	_, err := NewReconciler(root, store, zap.NewNop()).ScanOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.enqueued)
}
