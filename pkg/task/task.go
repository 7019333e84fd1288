// Package task implements the task controller: it reconciles desired state
// received from the control plane against the container registry.
package task

import "github.com/laik/harvest/pkg/container"

// Task is a desired-state record keyed by PodName. One task may resolve to
// many registry entries sharing (Namespace, PodName); its fields are merged
// onto each matching entry.
type Task struct {
	Namespace   string           `json:"ns"`
	PodName     string           `json:"pod_name"`
	ServiceName string           `json:"service_name"`
	Output      string           `json:"output"`
	Filter      container.Filter `json:"filter"`
	NodeName    string           `json:"node_name"`
	IPs         []string         `json:"ips"`
	Offset      int64            `json:"offset"`
}

// mergeOnto writes the task's template fields onto e, returning the updated
// value. It does not touch e's identity fields (Path, Namespace, PodName,
// ContainerName).
func (t Task) mergeOnto(e container.Entry) container.Entry {
	e.ServiceName = t.ServiceName
	e.Output = t.Output
	e.Filter = t.Filter
	e.NodeName = t.NodeName
	if len(t.IPs) > 0 {
		e.IPs = append([]string(nil), t.IPs...)
	}
	e.Offset = t.Offset
	return e
}
