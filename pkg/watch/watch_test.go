package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/sopsgate/pkg/watch"
)

type recordingEncrypter struct {
	fail  map[string]bool
	calls []string
	mu    sync.Mutex
}

func (r *recordingEncrypter) Encrypt(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, path)

	if r.fail[filepath.Base(path)] {
		return false, errors.New("sops failed")
	}

	return true, nil
}

func (r *recordingEncrypter) Called(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Contains(r.calls, path)
}

func startWatcher(t *testing.T, enc watch.FileEncrypter, roots []string, opts ...watch.WatcherOpt) {
	t.Helper()

	w, err := watch.New(enc, roots, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	<-w.Ready()
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "secrets")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	enc := &recordingEncrypter{fail: map[string]bool{"broken.yaml": true}}

	var (
		mu       sync.Mutex
		modified []string
	)

	startWatcher(t, enc, []string{root}, watch.WithOnModified(func(path string) {
		mu.Lock()
		defer mu.Unlock()

		modified = append(modified, path)
	}))

	broken := filepath.Join(nested, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("password: x\n"), 0o600))

	require.Eventually(t, func() bool {
		return enc.Called(broken)
	}, 5*time.Second, 10*time.Millisecond)

	// A failure does not stop the watcher.
	good := filepath.Join(nested, "db.yaml")
	require.NoError(t, os.WriteFile(good, []byte("password: x\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return slices.Contains(modified, good)
	}, 5*time.Second, 10*time.Millisecond)

	ignored := filepath.Join(root, ".git", "index")
	require.NoError(t, os.WriteFile(ignored, []byte("x"), 0o600))

	topLevel := filepath.Join(root, "app.yaml")
	require.NoError(t, os.WriteFile(topLevel, []byte("a: b\n"), 0o600))

	require.Eventually(t, func() bool {
		return enc.Called(topLevel)
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, enc.Called(ignored))

	mu.Lock()
	defer mu.Unlock()

	assert.NotContains(t, modified, broken)
}

func TestNew_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := watch.New(&recordingEncrypter{}, []string{filepath.Join(t.TempDir(), "missing")})
	require.ErrorIs(t, err, os.ErrNotExist)
}
