/*
Package metrics exposes the agent's Prometheus metrics and health/readiness
endpoints.

Metrics are registered at package init and exposed via Handler(). A
Collector samples the registry and task controller on an interval to keep
gauges (ContainersTotal by state, TasksTotal) current rather than mutating
them inline from every transition:

	collector := metrics.NewCollector(registry, tasks, 15*time.Second)
	collector.Start()
	defer collector.Stop()

Health state is tracked separately from Prometheus metrics through
RegisterComponent/UpdateComponent, feeding HealthHandler, ReadyHandler, and
LivenessHandler.
*/
package metrics
