package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/laik/harvest/internal/config"
)

func TestAgentSeedsRegistryAndShutsDownCleanly(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "web-abc12_default_nginx-9f86d081884c.log")
	require.NoError(t, os.WriteFile(logPath, []byte("hello\n"), 0o644))

	a := New(config.Config{DockerDir: dir, BufferSize: 16, HTTPAddr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := a.registry.FindByContainer("nginx")
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not shut down in time")
	}
}

func TestAgentNamespaceFilterExcludesOtherNamespaces(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "web-abc12_other_nginx-9f86d081884c.log")
	require.NoError(t, os.WriteFile(logPath, []byte("hello\n"), 0o644))

	a := New(config.Config{DockerDir: dir, BufferSize: 16, Namespace: "default", HTTPAddr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	_, ok := a.registry.FindByContainer("nginx")
	require.False(t, ok)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not shut down in time")
	}
}
