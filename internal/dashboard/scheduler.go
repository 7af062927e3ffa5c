package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/registrydash/internal/eventstore"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

const pruneTimeout = 30 * time.Second

// pruner deletes fetch events older than the retention window on a fixed
// interval.
type pruner struct {
	scheduler gocron.Scheduler
	store     eventstore.Store
	retention time.Duration
	log       *slog.Logger
	after     func()
}

func newPruner(store eventstore.Store, retention, interval time.Duration, log *slog.Logger, after func()) (*pruner, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to create scheduler").Build()
	}
	p := &pruner{scheduler: s, store: store, retention: retention, log: log, after: after}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.prune),
		gocron.WithName("event-retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to schedule event pruning").
			WithContext("interval", interval.String()).
			Build()
	}
	return p, nil
}

func (p *pruner) start() {
	p.log.Info("Starting event retention scheduler", slog.Duration("retention", p.retention))
	p.scheduler.Start()
}

func (p *pruner) stop() error {
	return p.scheduler.Shutdown()
}

// prune runs one retention pass.
func (p *pruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	cutoff := time.Now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.log.Error("Event pruning failed", logfields.JobName("event-retention"), logfields.Error(err))
		return
	}
	p.log.Debug("Event pruning finished",
		logfields.JobName("event-retention"),
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff))
	if n > 0 && p.after != nil {
		p.after()
	}
}
