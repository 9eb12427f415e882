package riot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// LockfileWatcher reports when the Riot Client starts or stops by watching its lockfile.
// The directory is watched rather than the file, since the file does not exist while the client is down.
type LockfileWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	events  chan ProcessEvent

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLockfileWatcher creates a watcher for the lockfile at path
func NewLockfileWatcher(path string, logger *slog.Logger) (*LockfileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &LockfileWatcher{
		path:    filepath.Clean(path),
		watcher: watcher,
		logger:  logger,
		events:  make(chan ProcessEvent, 8),
		done:    make(chan struct{}),
	}, nil
}

// Events returns the channel of process state changes. It is closed by Stop.
func (lw *LockfileWatcher) Events() <-chan ProcessEvent {
	return lw.events
}

// Start begins watching. If the lockfile already exists a ProcessStarted event is emitted first.
func (lw *LockfileWatcher) Start() error {
	dir := filepath.Dir(lw.path)
	if err := lw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	lw.logger.Info("Watching lockfile",
		"function", "Start",
		"path", lw.path)

	if _, err := os.Stat(lw.path); err == nil {
		// Riot Client is already running
		lw.events <- ProcessEvent{State: ProcessStarted, Path: lw.path}
	}

	lw.wg.Add(1)
	go lw.watchLoop()
	return nil
}

// Stop ends watching and closes the Events channel
func (lw *LockfileWatcher) Stop() error {
	var err error
	lw.stopOnce.Do(func() {
		close(lw.done)
		err = lw.watcher.Close()
		lw.wg.Wait()
		close(lw.events)
	})
	return err
}

func (lw *LockfileWatcher) watchLoop() {
	defer lw.wg.Done()

	for {
		select {
		case <-lw.done:
			return
		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != lw.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				lw.emit(ProcessEvent{State: ProcessStarted, Path: lw.path})
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				lw.emit(ProcessEvent{State: ProcessStopped, Path: lw.path})
			}
		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}
			lw.logger.Error("Watcher error",
				"function", "watchLoop",
				"error", err)
		}
	}
}

func (lw *LockfileWatcher) emit(event ProcessEvent) {
	lw.logger.Info("Riot Client process state changed",
		"function", "emit",
		"state", event.State.String(),
		"path", event.Path)
	select {
	case lw.events <- event:
	case <-lw.done:
	}
}
