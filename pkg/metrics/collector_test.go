package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeRegistry struct{ counts map[string]int }

func (f fakeRegistry) StateCounts() map[string]int { return f.counts }

type fakeTasks struct{ n int }

func (f fakeTasks) Count() int { return f.n }

func TestCollectorSamplesGauges(t *testing.T) {
	reg := fakeRegistry{counts: map[string]int{"Running": 3, "Stopped": 1}}
	tasks := fakeTasks{n: 2}

	c := NewCollector(reg, tasks, time.Hour)
	c.collect()

	assert.Equal(t, float64(3), testutil.ToFloat64(ContainersTotal.WithLabelValues("Running")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ContainersTotal.WithLabelValues("Stopped")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ContainersTotal.WithLabelValues("Ready")))
	assert.Equal(t, float64(2), testutil.ToFloat64(TasksTotal))
}
