package fetchstate

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/metrics"
)

// APIOptions are handed to every producer call unchanged. Their effect is up to
// the producer and the backend behind it.
type APIOptions struct {
	// DryRun asks the backend to validate without persisting.
	DryRun bool
	// RawBody disables JSON decoding; producers that support it return the raw payload.
	RawBody bool
}

// Producer performs one fetch attempt. ctx is cancelled when the attempt is
// superseded or the container is torn down. Producers must fail with
// errors.NotReady when a required input (host path, id) is missing.
type Producer[T any] func(ctx context.Context, opts APIOptions) (T, error)

// Config controls a Container. The zero value is valid: no polling, NotReady on
// the first attempt keeps the container unloaded, and collaborators default to
// slog.Default() and metrics.NoopRecorder.
type Config struct {
	// Name identifies the resource in logs and metrics. Default "resource".
	Name string

	// RefreshRate is the pause between the end of one run and the start of the
	// next poll. Zero disables polling; negative values are rejected.
	RefreshRate time.Duration

	// InitialPromisePurity keeps the last data and loaded flag when SetProducer
	// installs a new producer. Without it, SetProducer resets to the default
	// value and loaded=false. Generation invalidation applies to every run either way.
	InitialPromisePurity bool

	// StopPollingOnError stops polling after a run that ends in an unknown error.
	StopPollingOnError bool

	// LoadOnFirstNotReady marks the container loaded even when the very first
	// attempt reports not ready.
	LoadOnFirstNotReady bool

	// OnBeforeRun is called before every producer invocation with its generation.
	OnBeforeRun func(generation uint64)

	// OnCommonStateError receives errors owned by another layer. When nil they
	// are logged at debug level and otherwise dropped.
	OnCommonStateError func(err error)

	// OnSettle is called once for every run that commits, after subscribers
	// have seen the resulting state. Stale runs are not reported.
	OnSettle func(Settlement)

	// APIOptions is passed to the producer on every call.
	APIOptions APIOptions

	Logger   *slog.Logger
	Recorder metrics.FetchRecorder
}

// Validate rejects impossible settings.
func (c Config) Validate() error {
	if c.RefreshRate < 0 {
		return errors.ValidationError("refresh rate must not be negative").
			WithContext("refresh_rate", c.RefreshRate.String()).
			Build()
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "resource"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Recorder == nil {
		c.Recorder = metrics.NoopRecorder{}
	}
	return c
}
