package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-livelink/engine/core"
)

// OnChange is called with the previous and the new configuration every time
// the watched file changes to a different, valid configuration.
type OnChange func(old, new Config)

// Watcher reloads a configuration file whenever it is written.
type Watcher struct {
	path string

	mutex       sync.RWMutex
	current     Config
	subscribers []OnChange

	fsnotify *fsnotify.Watcher
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

// NewWatcher watches path, starting from initial. The directory holding the
// file is watched rather than the file, so editors that replace the file
// instead of writing it in place are picked up too.
func NewWatcher(path string, initial Config) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		current:  initial,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.start()
	return w, nil
}

// Subscribe registers fn for every later change.
func (w *Watcher) Subscribe(fn OnChange) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Current is the last valid configuration.
func (w *Watcher) Current() Config {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.current
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.isClosed {
		w.mutex.Unlock()
		return errors.New("config watcher already closed")
	}
	w.isClosed = true
	w.mutex.Unlock()

	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("config watcher: %s", err)

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	b, err := os.ReadFile(w.path)
	if err != nil {
		core.LogWarn("config watcher: %s", err)
		return
	}
	if len(b) == 0 {
		// truncated, the write is still in progress
		return
	}
	cfg := Default()
	if err := Parse(b, &cfg); err != nil {
		core.LogError("config watcher: keeping the current configuration: %s", err)
		return
	}

	w.mutex.Lock()
	old := w.current
	if reflect.DeepEqual(old, cfg) {
		w.mutex.Unlock()
		return
	}
	w.current = cfg
	subscribers := append([]OnChange(nil), w.subscribers...)
	w.mutex.Unlock()

	core.LogInfo("configuration reloaded from %s", w.path)
	for _, fn := range subscribers {
		fn(old, cfg)
	}
}
