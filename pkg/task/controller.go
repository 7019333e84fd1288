package task

import (
	"sync"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/eventbus"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
)

// Lifecycle events dispatched on a controller's event bus.
const (
	EventRun  = "Run"
	EventStop = "Stop"
)

type opKind int

const (
	opRun opKind = iota
	opStop
	opClose
)

type command struct {
	op   opKind
	task Task
	done chan struct{}
}

// Controller is the single-consumer command queue reconciling control-plane
// intent against the registry. The task map is guarded by its own latch,
// written only by the controller worker.
type Controller struct {
	mu       sync.RWMutex
	tasks    map[string]Task
	registry *container.Registry
	bus      *eventbus.Bus[Task]
	cmds     chan command
}

// New creates a controller reconciling against registry and dispatching
// Run/Stop lifecycle events on bus.
func New(registry *container.Registry, bus *eventbus.Bus[Task]) *Controller {
	return &Controller{
		tasks:    make(map[string]Task),
		registry: registry,
		bus:      bus,
		cmds:     make(chan command, 256),
	}
}

// Start launches the controller's command-draining worker. Call once.
func (c *Controller) Start() {
	go c.run()
}

func (c *Controller) run() {
	componentLog := log.WithComponent("task")
	for cmd := range c.cmds {
		metrics.TaskQueueDepth.Set(float64(len(c.cmds)))
		switch cmd.op {
		case opRun:
			c.applyRun(cmd.task)
		case opStop:
			c.applyStop(cmd.task)
		case opClose:
			if cmd.done != nil {
				close(cmd.done)
			}
			componentLog.Info().Msg("task worker closed")
			return
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}
}

func (c *Controller) send(cmd command) {
	cmd.done = make(chan struct{})
	c.cmds <- cmd
	<-cmd.done
}

// Run reconciles task against every registry entry matching
// (task.Namespace, task.PodName), marking them uploadable and running, then
// records task under PodName (first-writer-wins) and dispatches Run.
func (c *Controller) Run(t Task) {
	c.send(command{op: opRun, task: t})
}

// Stop is symmetric to Run: matching entries are marked not-uploadable and
// stopped, the task is recorded, and Stop is dispatched.
func (c *Controller) Stop(t Task) {
	c.send(command{op: opStop, task: t})
}

// Close terminates the command worker. No further commands are accepted
// after Close returns.
func (c *Controller) Close() {
	cmd := command{op: opClose, done: make(chan struct{})}
	c.cmds <- cmd
	<-cmd.done
}

func (c *Controller) applyRun(t Task) {
	for _, e := range c.registry.FindByPod(t.Namespace, t.PodName) {
		merged := t.mergeOnto(e)
		merged.IsUpload = true
		merged.State = container.StateRunning
		c.registry.Update(merged)
	}
	c.record(t)
	c.bus.Dispatch(EventRun, t)
}

func (c *Controller) applyStop(t Task) {
	for _, e := range c.registry.FindByPod(t.Namespace, t.PodName) {
		merged := t.mergeOnto(e)
		merged.IsUpload = false
		merged.State = container.StateStopped
		c.registry.Update(merged)
	}
	c.record(t)
	c.bus.Dispatch(EventStop, t)
}

func (c *Controller) record(t Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tasks[t.PodName]; exists {
		return
	}
	c.tasks[t.PodName] = t
	metrics.TasksTotal.Set(float64(len(c.tasks)))
}

// Get returns the recorded task for podName, if any.
func (c *Controller) Get(podName string) (Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[podName]
	return t, ok
}

// Count returns the number of recorded tasks, for the metrics collector.
func (c *Controller) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// All returns every recorded task, for introspection.
func (c *Controller) All() []Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t)
	}
	return out
}
