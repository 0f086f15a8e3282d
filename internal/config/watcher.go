package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const watchDebounce = 100 * time.Millisecond

// Watcher reloads the config file on change and hands the result to a
// callback. It is used by the serve mode; one-shot CLI commands load once
// and never watch.
type Watcher struct {
	path   string
	onLoad func(*Config)
	stopCh chan struct{}
}

// Watch starts watching path and invokes onLoad with each successfully
// reloaded configuration. Failed reloads are logged and skipped; the
// previous configuration stays in effect.
func Watch(path string, onLoad func(*Config)) (*Watcher, error) {
	w := &Watcher{path: path, onLoad: onLoad, stopCh: make(chan struct{})}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory too so atomic writes (rename) are caught.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	_ = watcher.Add(path)

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, w.reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher error")
			case <-w.stopCh:
				if debounce != nil {
					debounce.Stop()
				}
				return
			}
		}
	}()

	log.WithField("path", path).Debug("config watcher started")
	return w, nil
}

// Stop ends the watch.
func (w *Watcher) Stop() {
	close(w.stopCh)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).Warn("config reload failed, keeping previous configuration")
		return
	}
	log.WithField("path", w.path).Info("configuration reloaded")
	w.onLoad(cfg)
}
