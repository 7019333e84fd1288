package container

import (
	"sync"

	"github.com/laik/harvest/pkg/eventbus"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
)

// Lifecycle events dispatched on a registry's event bus after every Update
// whose merged state is Running (Open) or Stopped (Close), whether or not the
// state changed.
const (
	EventOpen  = "Open"
	EventClose = "Close"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opIncrOffset
	opDelete
	opClose
)

// command is one item on the registry's single-consumer queue. Only the
// fields relevant to Op are populated.
type command struct {
	op    opKind
	entry Entry
	delta int64
	// scoped delete key, used when op == opDelete and entry.Path == ""
	namespace string
	podName   string
	done      chan struct{}
}

// Registry is the serialized in-memory map from path to container entry.
// All mutations funnel through a single-consumer command queue; reads take
// a read lock directly against the map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry

	cmds chan command
	bus  *eventbus.Bus[Entry]
}

// New creates a registry that dispatches Open/Close lifecycle events on bus.
func New(bus *eventbus.Bus[Entry]) *Registry {
	r := &Registry{
		entries: make(map[string]Entry),
		cmds:    make(chan command, 1024),
		bus:     bus,
	}
	return r
}

// Start launches the registry's command-draining worker. Call once.
func (r *Registry) Start() {
	go r.run()
}

func (r *Registry) run() {
	componentLog := log.WithComponent("registry")
	for cmd := range r.cmds {
		metrics.RegistryQueueDepth.Set(float64(len(r.cmds)))
		switch cmd.op {
		case opInsert:
			r.applyInsert(cmd.entry)
		case opUpdate:
			r.applyUpdate(cmd.entry)
		case opIncrOffset:
			r.applyIncrOffset(cmd.entry.Path, cmd.delta)
		case opDelete:
			r.applyDelete(cmd.entry.Path, cmd.namespace, cmd.podName)
		case opClose:
			if cmd.done != nil {
				close(cmd.done)
			}
			componentLog.Info().Msg("registry worker closed")
			return
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}
}

func (r *Registry) send(cmd command) {
	cmd.done = make(chan struct{})
	r.cmds <- cmd
	<-cmd.done
}

// Insert replaces any prior entry with the same path unconditionally.
func (r *Registry) Insert(e Entry) {
	r.send(command{op: opInsert, entry: e})
}

// Update merges the explicit field set onto the existing entry, inserting
// first if absent. See applyUpdate for the exact merge rule.
func (r *Registry) Update(e Entry) {
	r.send(command{op: opUpdate, entry: e})
}

// IncrOffset sets last_read to delta and adds delta to offset. A no-op if
// path is absent.
func (r *Registry) IncrOffset(path string, delta int64) {
	r.send(command{op: opIncrOffset, entry: Entry{Path: path}, delta: delta})
}

// Delete removes the entry at path, or, when path is empty and namespace and
// podName are both non-empty, every entry matching that (namespace, pod).
func (r *Registry) Delete(path, namespace, podName string) {
	r.send(command{op: opDelete, entry: Entry{Path: path}, namespace: namespace, podName: podName})
}

// Close terminates the command worker. No further commands are accepted
// after Close returns.
func (r *Registry) Close() {
	cmd := command{op: opClose, done: make(chan struct{})}
	r.cmds <- cmd
	<-cmd.done
}

func (r *Registry) applyInsert(e Entry) {
	r.mu.Lock()
	r.entries[e.Path] = e.Clone()
	r.mu.Unlock()
}

func (r *Registry) applyUpdate(incoming Entry) {
	r.mu.Lock()
	existing, ok := r.entries[incoming.Path]
	if !ok {
		existing = incoming
	}

	merged := existing
	merged.IsUpload = incoming.IsUpload
	merged.Filter = incoming.Filter
	merged.Output = incoming.Output
	merged.Offset = incoming.Offset
	merged.NodeName = incoming.NodeName
	merged.ServiceName = incoming.ServiceName
	merged.State = incoming.State
	if len(incoming.IPs) > 0 {
		merged.IPs = append([]string(nil), incoming.IPs...)
	}
	if !ok {
		merged.Namespace = incoming.Namespace
		merged.PodName = incoming.PodName
		merged.ContainerName = incoming.ContainerName
		merged.Path = incoming.Path
	}
	r.entries[incoming.Path] = merged
	r.mu.Unlock()

	switch merged.State {
	case StateRunning:
		r.bus.Dispatch(EventOpen, merged.Clone())
	case StateStopped:
		r.bus.Dispatch(EventClose, merged.Clone())
	}
}

func (r *Registry) applyIncrOffset(path string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		return
	}
	e.LastRead = delta
	e.Offset += delta
	r.entries[path] = e
}

func (r *Registry) applyDelete(path, namespace, podName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path != "" {
		delete(r.entries, path)
		return
	}
	if namespace == "" || podName == "" {
		return
	}
	for p, e := range r.entries {
		if e.Namespace == namespace && e.PodName == podName {
			delete(r.entries, p)
		}
	}
}

// Get returns a snapshot of the entry at path, if present.
func (r *Registry) Get(path string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[path]
	if !ok {
		return Entry{}, false
	}
	return e.Clone(), true
}

// FindByContainer returns the first entry whose ContainerName matches name.
func (r *Registry) FindByContainer(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.ContainerName == name {
			return e.Clone(), true
		}
	}
	return Entry{}, false
}

// FindByPod returns every entry matching (namespace, podName).
func (r *Registry) FindByPod(namespace, podName string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Namespace == namespace && e.PodName == podName {
			out = append(out, e.Clone())
		}
	}
	return out
}

// All returns every entry in the registry, for introspection.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	return out
}

// StateCounts returns the number of entries in each lifecycle state, for the
// metrics collector.
func (r *Registry) StateCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range r.entries {
		counts[string(e.State)]++
	}
	return counts
}

// StartPod marks every entry matching (namespace, podName) as uploading and
// running, via FindByPod + Update fan-out.
func (r *Registry) StartPod(namespace, podName string) {
	for _, e := range r.FindByPod(namespace, podName) {
		if e.IsUpload && e.State == StateRunning {
			continue
		}
		e.IsUpload = true
		e.State = StateRunning
		r.Update(e)
	}
}

// StopPod marks every entry matching (namespace, podName) as stopped, via
// FindByPod + Update fan-out.
func (r *Registry) StopPod(namespace, podName string) {
	for _, e := range r.FindByPod(namespace, podName) {
		if e.State == StateStopped {
			continue
		}
		e.IsUpload = false
		e.State = StateStopped
		r.Update(e)
	}
}
