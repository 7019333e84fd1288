package follower

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/eventbus"
	"github.com/laik/harvest/pkg/output"
)

func newTestRegistry(t *testing.T) *container.Registry {
	t.Helper()
	bus := eventbus.New[container.Entry]()
	reg := container.New(bus)
	reg.Start()
	t.Cleanup(reg.Close)
	return reg
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

func waitForFake(t *testing.T, mux *output.Multiplexer, uri string) *output.FakeOutput {
	t.Helper()
	var fake *output.FakeOutput
	waitUntil(t, time.Second, func() bool {
		out, ok := mux.Get(uri)
		if !ok {
			return false
		}
		fake = out.(*output.FakeOutput)
		return true
	})
	return fake
}

func TestPoolFollowsFileFromStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_default_web-abc123.log")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	reg := newTestRegistry(t)
	mux := output.New(100)

	pool := NewPool(4, reg, mux)
	entry := container.Entry{
		Path:          path,
		Namespace:     "default",
		PodName:       "web",
		ContainerName: "web",
		Output:        "fake:debug",
		IsUpload:      true,
	}
	pool.Open(entry)

	fake := waitForFake(t, mux, "fake:debug")
	waitUntil(t, time.Second, func() bool { return len(fake.Items()) == 2 })

	got, ok := reg.Get(path)
	require.True(t, ok)
	assert.EqualValues(t, len("line one\n")+len("line two\n"), got.Offset)
	assert.Equal(t, container.StateRunning, got.State)
}

func TestPoolWriteWakesExistingFollower(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_default_web-abc123.log")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	reg := newTestRegistry(t)
	mux := output.New(100)
	pool := NewPool(4, reg, mux)

	entry := container.Entry{Path: path, Output: "fake:debug", IsUpload: true}
	pool.Open(entry)

	fake := waitForFake(t, mux, "fake:debug")
	waitUntil(t, time.Second, func() bool { return len(fake.Items()) == 1 })

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	pool.Write(path)
	waitUntil(t, time.Second, func() bool { return len(fake.Items()) == 2 })
}

func TestPoolOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_default_web-abc123.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	reg := newTestRegistry(t)
	mux := output.New(100)
	pool := NewPool(4, reg, mux)

	entry := container.Entry{Path: path, Output: "fake:debug", IsUpload: true}
	pool.Open(entry)
	pool.Open(entry)

	s := pool.shardFor(path)
	s.mu.RLock()
	n := len(s.followers)
	s.mu.RUnlock()
	assert.Equal(t, 1, n)
}

func TestPoolCloseStopsFollower(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_default_web-abc123.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	reg := newTestRegistry(t)
	mux := output.New(100)
	pool := NewPool(4, reg, mux)

	entry := container.Entry{Path: path, Output: "fake:debug", IsUpload: true}
	pool.Open(entry)
	pool.Close(path)

	s := pool.shardFor(path)
	s.mu.RLock()
	_, ok := s.followers[path]
	s.mu.RUnlock()
	assert.False(t, ok)
}
