package fetchstate

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/loop"
)

// poll re-runs the producer every RefreshRate, measured from the end of the
// previous run. A tick that finds a run in flight, such as one started by
// Refresh or SetProducer during the sleep, starts nothing and waits for that
// run instead.
func (c *Container[T]) poll() {
	defer close(c.pollDone)

	log := c.log.With(logfields.PollInterval(c.cfg.RefreshRate))
	log.Debug("Polling started")

	iterations, err := loop.Start(c.rootCtx, 0, func(ctx context.Context, iteration int) (int, loop.Next) {
		if iteration > 0 && c.refreshIfIdle() {
			c.rec.IncPollIteration(c.cfg.Name)
		}
		if err := c.Wait(ctx); err != nil {
			return iteration, loop.Break(nil)
		}
		if c.cfg.StopPollingOnError && c.lastRunFailed() {
			log.Info("Polling stopped after failed fetch")
			return iteration + 1, loop.Break(nil)
		}
		return iteration + 1, loop.Continue(c.cfg.RefreshRate)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("Polling ended unexpectedly", logfields.Error(err))
		return
	}
	log.Debug("Polling stopped", "iterations", iterations)
}
