// Package output implements the pluggable output multiplexer: a registry of
// named outputs keyed by channel URI, plus the broker producer that batches
// and ships envelopes to a message broker.
package output

import (
	"fmt"
	"sync"
)

// Multiplexer is a registry of outputs keyed by channel URI. On first write
// to a previously unseen URI matching a known scheme, it constructs and
// registers a new output.
type Multiplexer struct {
	mu         sync.RWMutex
	outputs    map[string]Output
	bufferSize int
}

// New creates a multiplexer whose broker producers batch up to bufferSize
// items before flushing.
func New(bufferSize int) *Multiplexer {
	return &Multiplexer{
		outputs:    make(map[string]Output),
		bufferSize: bufferSize,
	}
}

// Write hands item to the output registered for uri, constructing it first
// if this is the first write to that URI.
func (m *Multiplexer) Write(uri string, item Item) error {
	out, err := m.getOrCreate(uri)
	if err != nil {
		return err
	}
	out.Write(item)
	return nil
}

// PreRegister constructs the output for uri without writing to it, used by
// the control-plane client to register a destination ahead of first use.
func (m *Multiplexer) PreRegister(uri string) error {
	_, err := m.getOrCreate(uri)
	return err
}

func (m *Multiplexer) getOrCreate(uri string) (Output, error) {
	m.mu.RLock()
	out, ok := m.outputs[uri]
	m.mu.RUnlock()
	if ok {
		return out, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if out, ok := m.outputs[uri]; ok {
		return out, nil
	}

	scheme, topic, hosts, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "fake":
		out = NewFakeOutput()
	case "counter":
		out = NewCounterOutput()
	case "kafka":
		k, err := NewKafkaOutput(uri, topic, hosts, m.bufferSize)
		if err != nil {
			return nil, err
		}
		out = k
	default:
		return nil, fmt.Errorf("output: unknown scheme %q", scheme)
	}

	m.outputs[uri] = out
	return out, nil
}

// Get returns the output already constructed for uri, if any, without
// constructing one. Used by callers that need to inspect an output's state
// once it exists.
func (m *Multiplexer) Get(uri string) (Output, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, ok := m.outputs[uri]
	return out, ok
}

// WaitAll drains every registered output's pending batches before the
// process exits.
func (m *Multiplexer) WaitAll() {
	m.mu.RLock()
	outs := make([]Output, 0, len(m.outputs))
	for _, o := range m.outputs {
		outs = append(outs, o)
	}
	m.mu.RUnlock()

	for _, o := range outs {
		o.Wait(0)
	}
}
