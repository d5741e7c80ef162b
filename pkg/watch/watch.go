// Package watch re-runs encryption whenever files change below a set of
// directories.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/macropower/sopsgate/pkg/log"
)

// FileEncrypter encrypts a single file, reporting whether it was modified.
type FileEncrypter interface {
	Encrypt(ctx context.Context, path string) (bool, error)
}

// WatcherOpt configures a [Watcher].
type WatcherOpt func(*Watcher)

// WithOnModified sets a function that is called with every modified path.
func WithOnModified(fn func(path string)) WatcherOpt {
	return func(w *Watcher) {
		w.onModified = fn
	}
}

// Watcher calls a [FileEncrypter] for every file that is written or created
// below its root directories. Events are handled one at a time, in the order
// they arrive.
type Watcher struct {
	enc        FileEncrypter
	watcher    *fsnotify.Watcher
	onModified func(path string)
	ready      chan struct{}
}

// New creates a [Watcher] for every directory below roots. Directories named
// .git are not watched.
func New(enc FileEncrypter, roots []string, opts ...WatcherOpt) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		enc:     enc,
		watcher: fw,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, root := range roots {
		err := w.addTree(root)
		if err != nil {
			closeErr := fw.Close()

			return nil, errors.Join(err, closeErr)
		}
	}

	return w, nil
}

// Ready is closed once [Watcher.Run] has started handling events.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run handles events until ctx is canceled. Encryption failures are logged,
// and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithContext(ctx)

	defer func() {
		err := w.watcher.Close()
		if err != nil {
			logger.ErrorContext(ctx, "close watcher", slog.Any("error", err))
		}
	}()

	logger.InfoContext(ctx, "watching for changes", slog.Int("dirs", len(w.watcher.WatchList())))
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			w.handle(ctx, evt)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			logger.ErrorContext(ctx, "watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event) {
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
		return
	}

	logger := log.WithContext(ctx).With(slog.String("path", evt.Name))

	info, err := os.Stat(evt.Name)
	if err != nil {
		// Removed or renamed before we got to it.
		logger.DebugContext(ctx, "skip event", slog.Any("error", err))

		return
	}

	if info.IsDir() {
		if evt.Has(fsnotify.Create) {
			err := w.addTree(evt.Name)
			if err != nil {
				logger.ErrorContext(ctx, "watch new directory", slog.Any("error", err))
			}
		}

		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	modified, err := w.enc.Encrypt(ctx, evt.Name)
	if err != nil {
		logger.ErrorContext(ctx, "encrypt file", slog.Any("error", err))

		return
	}

	if modified && w.onModified != nil {
		w.onModified(evt.Name)
	}
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if d.Name() == ".git" {
			return filepath.SkipDir
		}

		err = w.watcher.Add(path)
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	return nil
}
