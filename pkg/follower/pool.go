// Package follower maintains at most one tailing worker per log file path
// and streams lines to the output multiplexer.
package follower

import (
	"hash/fnv"
	"sync"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/metrics"
	"github.com/laik/harvest/pkg/output"
)

// DefaultWidth is the kubelet default of 110 pods per node, used as the
// pool's shard count unless overridden.
const DefaultWidth = 110

type controlMsg int

const (
	msgTick controlMsg = iota
	msgClose
)

type shard struct {
	mu        sync.RWMutex
	followers map[string]chan controlMsg
}

// Pool is a fixed-width array of shard buckets, each guarding its own map
// from path to a follower's control channel.
type Pool struct {
	shards   []*shard
	width    int
	registry *container.Registry
	mux      *output.Multiplexer
}

// NewPool creates a pool of the given width backed by registry and mux.
func NewPool(width int, registry *container.Registry, mux *output.Multiplexer) *Pool {
	if width <= 0 {
		width = DefaultWidth
	}
	p := &Pool{
		shards:   make([]*shard, width),
		width:    width,
		registry: registry,
		mux:      mux,
	}
	for i := range p.shards {
		p.shards[i] = &shard{followers: make(map[string]chan controlMsg)}
	}
	return p
}

func (p *Pool) shardFor(path string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return p.shards[h.Sum32()%uint32(p.width)]
}

// Open starts a follower for entry.Path if one doesn't already exist, marks
// the entry Running, and kicks off a synthetic Tick so it drains whatever
// is already beyond its recorded offset.
func (p *Pool) Open(entry container.Entry) {
	s := p.shardFor(entry.Path)

	s.mu.Lock()
	if _, exists := s.followers[entry.Path]; exists {
		s.mu.Unlock()
		return
	}
	ctrl := make(chan controlMsg, 1)
	s.followers[entry.Path] = ctrl
	s.mu.Unlock()

	go p.run(entry, ctrl)
	metrics.FollowersActive.Inc()

	// An entry that arrives already Running came from the registry's own
	// Open event, dispatched on the registry worker; updating it again from
	// here would wait on that same worker.
	if entry.State != container.StateRunning {
		entry.State = container.StateRunning
		p.registry.Update(entry)
	}

	p.Write(entry.Path)
}

// Write signals the follower owning path that more bytes may be available.
// A missing channel is a no-op.
func (p *Pool) Write(path string) {
	s := p.shardFor(path)
	s.mu.RLock()
	ctrl, ok := s.followers[path]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ctrl <- msgTick:
	default:
		// a tick is already pending; duplicates are safe, the follower
		// drains fully on each wakeup
	}
}

// Close terminates the follower owning path and forgets it, without
// touching registry state.
func (p *Pool) Close(path string) {
	s := p.shardFor(path)
	s.mu.Lock()
	ctrl, ok := s.followers[path]
	if ok {
		delete(s.followers, path)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	ctrl <- msgClose
	metrics.FollowersActive.Dec()
}

// Remove closes the follower owning path and enqueues its registry
// deletion.
func (p *Pool) Remove(path string) {
	p.Close(path)
	p.registry.Delete(path, "", "")
}

