// Package watcher discovers container log files under a root directory and
// watches them for appends and removal, publishing events on a path event
// bus. It never touches the container registry directly.
package watcher

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/eventbus"
	"github.com/laik/harvest/pkg/log"
)

const (
	EventCreate = "Create"
	EventWrite  = "Write"
	EventRemove = "Remove"
)

// PathEvent is the payload carried on the watcher's event bus. Entry is
// populated for Create (the synthesized container entry template); for
// Write and Remove only Path is meaningful.
type PathEvent struct {
	Path  string
	Entry container.Entry
}

// Watcher observes root for container log files matching the kubelet
// filename convention.
type Watcher struct {
	root string
	bus  *eventbus.Bus[PathEvent]
	fsw  *fsnotify.Watcher
}

// New creates a watcher rooted at root, dispatching events on bus.
func New(root string, bus *eventbus.Bus[PathEvent]) *Watcher {
	return &Watcher{root: root, bus: bus}
}

// Prepare scans the root tree once and returns every existing matching file
// as a synthetic Create-like record. It emits no events; the caller seeds
// the registry with the result directly.
func (w *Watcher) Prepare() ([]PathEvent, error) {
	var events []PathEvent
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		entry, ok := parseFilename(d.Name())
		if !ok {
			return nil
		}
		entry.Path = path
		events = append(events, PathEvent{Path: path, Entry: entry})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// WatchStart begins continuous watching of root, emitting Create/Write/
// Remove events indefinitely until Close is called. It blocks; callers
// should run it in its own goroutine.
func (w *Watcher) WatchStart() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := fsw.Add(w.root); err != nil {
		return err
	}

	componentLog := log.WithComponent("watcher")
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			componentLog.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)

	switch {
	case ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename:
		w.bus.Dispatch(EventRemove, PathEvent{Path: ev.Name})
	case ev.Op&fsnotify.Create == fsnotify.Create:
		entry, ok := parseFilename(name)
		if !ok {
			return
		}
		entry.Path = ev.Name
		w.bus.Dispatch(EventCreate, PathEvent{Path: ev.Name, Entry: entry})
	case ev.Op&fsnotify.Write == fsnotify.Write:
		// Duplicate Write notifications on the same path are safe: the
		// follower drains idempotently from its recorded offset.
		w.bus.Dispatch(EventWrite, PathEvent{Path: ev.Name})
	}
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}
