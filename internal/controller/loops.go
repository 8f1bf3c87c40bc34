package controller

import (
	"context"
)

// maxPopPerTick mirrors the queue's own 10-message ceiling.
const maxPopPerTick = 10

// ingestStateChanges pops up to 10 ids from StateChangeQueue, refetches
// each distinct id from JobStore, diffs against the cache, and fires a
// callback only on a real state diff — StateChangeQueue delivery is
// unordered and at-least-once, so a "maybe-changed" hint always gets
// reconciled against JobStore rather than trusted directly (spec §5).
func (c *Controller) ingestStateChanges(ctx context.Context) {
	ids, err := c.stateChangeQ.Pop(ctx, maxPopPerTick)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn().Err(err).Msg("state-change pop failed")
		}
		return
	}

	for _, id := range ids {
		cached, _ := c.cache.Get(id)

		fresh, err := c.jobs.Get(ctx, id)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn().Str("job_id", id).Err(err).Msg("state-change refetch failed")
			}
			continue
		}

		changed := cached == nil || cached.State != fresh.State
		if changed {
			c.notifier.Notify(ctx, fresh)
		}

		if fresh.State.IsFinished() {
			c.cache.UncacheFinished(id)
		} else {
			c.cache.Put(fresh)
		}
	}
}

// sweepStaleJobs abandons every cached active job whose UpdatedAt has
// aged past abandon_threshold. Job.Abandon is a no-op on an
// already-terminal job, which keeps the ABANDONED write observable at
// most once even though the worker's own ERROR/FINISHED write and this
// sweep could otherwise race (spec §9 open question). The sweeper only
// persists and enqueues the state change; ingestStateChanges is the
// sole caller of the notifier, so an abandoned job gets exactly one
// callback rather than one from each loop.
func (c *Controller) sweepStaleJobs(ctx context.Context) {
	threshold := c.cfg.GetAbandonThreshold()
	now := c.clock.Now()

	for _, cached := range c.cache.Active() {
		if now.Sub(cached.UpdatedAt) <= threshold {
			continue
		}

		current, err := c.jobs.Get(ctx, cached.ID)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn().Str("job_id", cached.ID).Err(err).Msg("sweeper fetch failed")
			}
			continue
		}

		if !current.Abandon("exceeded abandon_threshold with no activity", now) {
			// Already terminal; just drop it from the cache.
			c.cache.UncacheFinished(current.ID)
			continue
		}

		if err := c.jobs.Put(ctx, current); err != nil {
			if c.logger != nil {
				c.logger.Error().Str("job_id", current.ID).Err(err).Msg("failed to persist abandonment")
			}
			continue
		}
		if err := c.stateChangeQ.Push(ctx, current.ID); err != nil && c.logger != nil {
			c.logger.Warn().Str("job_id", current.ID).Err(err).Msg("failed to enqueue abandonment state-change")
		}

		c.cache.UncacheFinished(current.ID)

		if c.logger != nil {
			c.logger.Info().Str("job_id", current.ID).Msg("job abandoned by sweeper")
		}
	}
}
