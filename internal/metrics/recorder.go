package metrics

import "time"

// OutcomeLabel enumerates how a fetch run settled.
type OutcomeLabel string

const (
	OutcomeSuccess     OutcomeLabel = "success"
	OutcomeNotReady    OutcomeLabel = "not_ready"
	OutcomeCommonState OutcomeLabel = "common_state"
	OutcomeError       OutcomeLabel = "error"
	// OutcomeStale is recorded for results dropped because a newer run superseded them.
	OutcomeStale OutcomeLabel = "stale"
)

// FetchRecorder defines observability hooks for fetch-state containers and the
// API clients behind them.
type FetchRecorder interface {
	ObserveFetchDuration(resource string, outcome OutcomeLabel, d time.Duration)
	IncFetchOutcome(resource string, outcome OutcomeLabel)
	IncPollIteration(resource string)
	SetAPIAvailable(api string, available bool)
	IncRetry(operation string)
}

// NoopRecorder is a FetchRecorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveFetchDuration(string, OutcomeLabel, time.Duration) {}

func (NoopRecorder) IncFetchOutcome(string, OutcomeLabel) {}

func (NoopRecorder) IncPollIteration(string) {}

func (NoopRecorder) SetAPIAvailable(string, bool) {}

func (NoopRecorder) IncRetry(string) {}
