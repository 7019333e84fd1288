// Package agent wires the harvester's subsystems together into a single
// running process: the filesystem watcher, container registry, follower
// pool, output multiplexer, task controller, control-plane client, and
// read-only HTTP surface.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/laik/harvest/internal/config"
	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/controlplane"
	"github.com/laik/harvest/pkg/eventbus"
	"github.com/laik/harvest/pkg/follower"
	"github.com/laik/harvest/pkg/httpapi"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
	"github.com/laik/harvest/pkg/output"
	"github.com/laik/harvest/pkg/task"
	"github.com/laik/harvest/pkg/watcher"
)

const collectorInterval = 15 * time.Second

// Agent owns every long-lived subsystem and their wiring. Callers construct
// one with New and call Run to block until ctx is cancelled.
type Agent struct {
	cfg config.Config

	registry  *container.Registry
	mux       *output.Multiplexer
	pool      *follower.Pool
	watcher   *watcher.Watcher
	tasks     *task.Controller
	cpClient  *controlplane.Client
	http      *httpapi.Server
	collector *metrics.Collector
}

// New constructs an agent from cfg. Nothing runs until Run is called.
func New(cfg config.Config) *Agent {
	regBus := eventbus.New[container.Entry]()
	registry := container.New(regBus)

	mux := output.New(cfg.BufferSize)
	pool := follower.NewPool(follower.DefaultWidth, registry, mux)

	pathBus := eventbus.New[watcher.PathEvent]()
	w := watcher.New(cfg.DockerDir, pathBus)

	taskBus := eventbus.New[task.Task]()
	tasks := task.New(registry, taskBus)

	httpSrv := httpapi.New(registry, tasks)
	collector := metrics.NewCollector(registry, tasks, collectorInterval)

	a := &Agent{
		cfg:       cfg,
		registry:  registry,
		mux:       mux,
		pool:      pool,
		watcher:   w,
		tasks:     tasks,
		http:      httpSrv,
		collector: collector,
	}

	if cfg.APIServer != "" {
		a.cpClient = controlplane.New(cfg.APIServer, cfg.Host, tasks, mux, nil)
	}

	a.wireRegistry(regBus)
	a.wireWatcher(pathBus)

	return a
}

// wireRegistry drives the follower pool off the registry's lifecycle
// events: a container entering Running starts a follower, one leaving it
// stops one.
func (a *Agent) wireRegistry(bus *eventbus.Bus[container.Entry]) {
	bus.Register(container.EventOpen, func(_ string, e container.Entry) {
		a.pool.Open(e)
	})
	bus.Register(container.EventClose, func(_ string, e container.Entry) {
		a.pool.Close(e.Path)
	})
}

// wireWatcher drives the registry and follower pool off filesystem events.
func (a *Agent) wireWatcher(bus *eventbus.Bus[watcher.PathEvent]) {
	bus.Register(watcher.EventCreate, func(_ string, pe watcher.PathEvent) {
		if !a.inScope(pe.Entry.Namespace) {
			return
		}
		a.registry.Insert(pe.Entry)
	})
	bus.Register(watcher.EventWrite, func(_ string, pe watcher.PathEvent) {
		a.pool.Write(pe.Path)
	})
	bus.Register(watcher.EventRemove, func(_ string, pe watcher.PathEvent) {
		a.pool.Remove(pe.Path)
	})
}

// inScope reports whether ns passes the configured namespace filter. An
// empty filter admits everything.
func (a *Agent) inScope(ns string) bool {
	return a.cfg.Namespace == "" || a.cfg.Namespace == ns
}

// Run seeds the registry from the docker directory's current contents,
// starts every subsystem, and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	componentLog := log.WithComponent("agent")

	a.registry.Start()
	a.tasks.Start()
	a.collector.Start()
	metrics.RegisterComponent("registry", true, "")

	seed, err := a.watcher.Prepare()
	if err != nil {
		return fmt.Errorf("agent: prepare watcher: %w", err)
	}
	for _, pe := range seed {
		if !a.inScope(pe.Entry.Namespace) {
			continue
		}
		a.registry.Insert(pe.Entry)
	}
	componentLog.Info().Int("count", len(seed)).Msg("agent: seeded registry")

	watchErrCh := make(chan error, 1)
	go func() {
		if err := a.watcher.WatchStart(); err != nil {
			watchErrCh <- err
			return
		}
		watchErrCh <- nil
	}()
	metrics.RegisterComponent("watcher", true, "")

	httpAddr := a.cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = config.DefaultHTTPAddr
	}
	go func() {
		if err := a.http.ListenAndServe(httpAddr); err != nil {
			componentLog.Error().Err(err).Msg("agent: http server exited")
		}
	}()

	if a.cpClient != nil {
		go a.cpClient.Run(ctx)
		metrics.RegisterComponent("controlplane", true, "")
	} else {
		metrics.RegisterComponent("controlplane", true, "disabled: no api-server configured")
	}

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-watchErrCh:
		if err != nil {
			metrics.UpdateComponent("watcher", false, err.Error())
		}
		a.shutdown()
		return err
	}
}

// shutdown closes every command queue in dependency order and waits for
// in-flight output batches to flush.
func (a *Agent) shutdown() {
	componentLog := log.WithComponent("agent")
	componentLog.Info().Msg("agent: shutting down")

	if err := a.watcher.Close(); err != nil {
		componentLog.Warn().Err(err).Msg("agent: watcher close failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		componentLog.Warn().Err(err).Msg("agent: http shutdown failed")
	}

	a.tasks.Close()
	a.registry.Close()
	a.mux.WaitAll()

	componentLog.Info().Msg("agent: shutdown complete")
}
