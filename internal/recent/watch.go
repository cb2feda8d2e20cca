package recent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/gitk-compare/internal/debounce"
)

const reloadDebounceDelay = 200 * time.Millisecond

type watchState struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	debounce *debounce.Debouncer
	done     chan struct{}
	onReload func([]string)
}

// Watch reloads the list whenever another process rewrites the file.
// onReload, when not nil, receives the list after each reload. The parent
// directory is watched since the file is replaced by rename.
func (s *Store) Watch(onReload func([]string)) error {
	if s.file == "" {
		return nil
	}
	s.watch.mu.Lock()
	defer s.watch.mu.Unlock()
	if s.watch.watcher != nil {
		return nil
	}
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch recent list: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, errors.Join(err, watcher.Close()))
	}
	s.watch.onReload = onReload
	debounce.Ensure(&s.watch.debounce, reloadDebounceDelay, s.reloadFromWatch)
	s.watch.watcher = watcher
	s.watch.done = make(chan struct{})
	go s.watchLoop(watcher, s.watch.done)
	return nil
}

// Close stops watching. It is safe to call on a Store that never watched.
func (s *Store) Close() error {
	s.watch.mu.Lock()
	watcher, done := s.watch.watcher, s.watch.done
	s.watch.watcher, s.watch.done = nil, nil
	if s.watch.debounce != nil {
		s.watch.debounce.Stop()
	}
	s.watch.mu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (s *Store) watchLoop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	name := filepath.Base(s.file)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			s.watch.mu.Lock()
			if s.watch.debounce != nil {
				s.watch.debounce.Trigger()
			}
			s.watch.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

func (s *Store) reloadFromWatch() {
	if err := s.Reload(); err != nil {
		slog.Error("recent list reload", slog.Any("error", err))
		return
	}
	s.watch.mu.Lock()
	onReload := s.watch.onReload
	s.watch.mu.Unlock()
	if onReload != nil {
		onReload(s.List())
	}
}
