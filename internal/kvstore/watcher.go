package kvstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/drilldocs/drilldocs/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher reports keys of a File store changed by another process (a second
// service instance or a hand edit). Bursts on one key are coalesced and keys
// still holding this process's own last write are skipped.
type Watcher struct {
	store    *File
	fw       *fsnotify.Watcher
	debounce time.Duration
	onChange func(key string)
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// Watch starts watching the store directory and calls onChange once per
// settled change.
func Watch(store *File, debounce time.Duration, onChange func(key string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(store.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}
	w := &Watcher{
		store:    store,
		fw:       fw,
		debounce: debounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	defer w.fw.Close()
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if key, ok := keyFromPath(ev.Name); ok {
				w.schedule(key)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warnf("kvstore watcher: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()
		if w.store.written(key) {
			return
		}
		w.onChange(key)
	})
}

// Close stops the watcher and any pending notifications.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		w.mu.Lock()
		for k, t := range w.timers {
			t.Stop()
			delete(w.timers, k)
		}
		w.mu.Unlock()
	})
	return nil
}
