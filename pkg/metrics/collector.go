package metrics

import "time"

// Registry is the minimal surface the collector needs from the container
// registry, kept here to avoid an import cycle with pkg/container.
type Registry interface {
	StateCounts() map[string]int
}

// TaskController is the minimal surface the collector needs from the task
// controller.
type TaskController interface {
	Count() int
}

// Collector periodically recomputes the gauge metrics that reflect
// process-wide state (ContainersTotal by lifecycle state, TasksTotal)
// rather than being updated inline by every state transition.
type Collector struct {
	registry Registry
	tasks    TaskController
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector sampling registry and tasks every
// interval.
func NewCollector(registry Registry, tasks TaskController, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		registry: registry,
		tasks:    tasks,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sampling loop.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, state := range []string{"Ready", "Running", "Stopped"} {
		ContainersTotal.WithLabelValues(state).Set(0)
	}
	for state, count := range c.registry.StateCounts() {
		ContainersTotal.WithLabelValues(state).Set(float64(count))
	}

	TasksTotal.Set(float64(c.tasks.Count()))
}
