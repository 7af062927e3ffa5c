// Package metrics provides fetch observability for registrydash.
//
// Components receive a FetchRecorder through their configuration and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	reg := prometheus.NewRegistry()
//	cfg := fetchstate.Config{Name: "models", Recorder: metrics.NewPrometheusRecorder(reg)}
//
// HTTPHandler exposes the registry on /metrics.
package metrics
