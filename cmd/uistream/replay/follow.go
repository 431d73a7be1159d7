package replaycmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// followReader reads a recording that may still be written. At end of file
// it waits for the file to grow, and reports io.EOF once the file stayed
// unchanged for idle or was removed. An idle of zero waits until Close.
type followReader struct {
	file    *os.File
	path    string
	watcher *fsnotify.Watcher
	idle    time.Duration
	logger  *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newFollowReader(path string, idle time.Duration, logger *zap.Logger) (*followReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("creating recording watcher: %w", err)
	}

	// Watch the directory so a replaced file is still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		file.Close()
		return nil, fmt.Errorf("watching recording dir: %w", err)
	}

	return &followReader{
		file:    file,
		path:    filepath.Clean(path),
		watcher: watcher,
		idle:    idle,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

func (f *followReader) Read(p []byte) (int, error) {
	for {
		n, err := f.file.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		if err := f.wait(); err != nil {
			return 0, err
		}
	}
}

// wait blocks until the recording was written to again.
func (f *followReader) wait() error {
	var idle <-chan time.Time
	if f.idle > 0 {
		timer := time.NewTimer(f.idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-f.done:
			return os.ErrClosed

		case <-idle:
			f.logger.Debug("recording idle", zap.String("path", f.path), zap.Duration("idle", f.idle))
			return io.EOF

		case event, ok := <-f.watcher.Events:
			if !ok {
				return io.EOF
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				f.logger.Debug("recording removed", zap.String("path", f.path))
				return io.EOF
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return io.EOF
			}
			return fmt.Errorf("recording watcher error: %w", err)
		}
	}
}

func (f *followReader) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = errors.Join(f.watcher.Close(), f.file.Close())
	})
	return err
}
