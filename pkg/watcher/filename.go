package watcher

import (
	"regexp"

	"github.com/laik/harvest/pkg/container"
)

// logfileRegex matches the kubelet container-log filename convention:
// <pod-name>_<namespace>_<container-name>-<containerID>.log
var logfileRegex = regexp.MustCompile(`^([^_]+)_([^_]+)_(.+)-([0-9a-fA-F]+)\.log$`)

// parseFilename turns a bare log file name into a container entry template.
// It returns ok=false for names that don't match the expected convention
// (e.g. rotated or scratch files); callers should skip those.
func parseFilename(name string) (container.Entry, bool) {
	matches := logfileRegex.FindStringSubmatch(name)
	if matches == nil {
		return container.Entry{}, false
	}
	return container.Entry{
		PodName:       matches[1],
		Namespace:     matches[2],
		ContainerName: matches[3],
		State:         container.StateReady,
	}, true
}
