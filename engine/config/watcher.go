package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/umbra/engine/core"
)

// Watcher reloads a settings file whenever it changes on disk. Only settings
// that parse and validate are delivered.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	updates  chan *Settings
	done     chan struct{}
	stopped  chan struct{}
	isClosed bool
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// editors often replace the file, so watch the directory
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		updates:  make(chan *Settings, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.start()
	return w, nil
}

// Updates delivers the latest valid settings. Only the newest pending value
// is kept.
func (w *Watcher) Updates() <-chan *Settings {
	return w.updates
}

func (w *Watcher) Close() error {
	if w.isClosed {
		return errors.New("settings watcher already closed")
	}
	w.isClosed = true
	close(w.done)
	<-w.stopped
	return nil
}

func (w *Watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e := <-w.fsnotify.Events:
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}

		case err := <-w.fsnotify.Errors:
			if err != nil {
				core.LogError(err.Error())
			}

		case <-w.done:
			w.fsnotify.Close()
			close(w.updates)
			return
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		core.LogWarn("settings reload failed: %s", err)
		return
	}
	// a truncate shows up as its own write event
	if len(data) == 0 {
		return
	}
	s, err := Parse(data)
	if err != nil {
		core.LogWarn("settings reload rejected: %s", err)
		return
	}

	select {
	case w.updates <- s:
	default:
		select {
		case <-w.updates:
		default:
		}
		w.updates <- s
	}
	core.LogInfo("settings reloaded from %s", w.path)
}
