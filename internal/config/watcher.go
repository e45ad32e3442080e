package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded configuration, or the error that
// prevented loading it
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads a configuration file whenever it changes on disk
type Watcher struct {
	path     string
	onReload ReloadFunc
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	once     sync.Once
	debounce time.Duration
}

// NewWatcher starts watching configPath. The parent directory is watched so
// that editors which replace the file through a rename are still observed.
func NewWatcher(configPath string, onReload ReloadFunc) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		onReload: onReload,
		watcher:  watcher,
		stop:     make(chan struct{}),
		debounce: 100 * time.Millisecond,
	}

	go w.loop()

	return w, nil
}

// loop handles file system events until Close is called
func (w *Watcher) loop() {
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				// Editors emit several events per save
				pending = time.After(w.debounce)
			}

		case <-pending:
			pending = nil
			cfg, err := LoadConfig(w.path)
			if w.onReload != nil {
				w.onReload(cfg, err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onReload != nil {
				w.onReload(nil, fmt.Errorf("config watcher error: %w", err))
			}

		case <-w.stop:
			return
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
	})
	return err
}
