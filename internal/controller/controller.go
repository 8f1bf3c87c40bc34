// Package controller implements feederd: job-cache maintenance,
// state-change ingestion, the stale-job sweeper, the autoscaler, the
// submit HTTP endpoint, and the callback notifier (spec §4.4).
package controller

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/store"
)

// Controller owns every controller-side loop. It is constructed once
// per process and threaded through as a value, replacing the original's
// lazy module-level singletons (spec §9).
type Controller struct {
	jobs            store.JobStore
	nodes           store.NodeStore
	newJobQueue     store.Queue
	stateChangeQ    store.Queue
	compute         compute.Compute
	encoders        *encoder.Registry
	clock           store.Clock
	logger          *common.Logger
	cfg             common.JobsConfig
	cache           *JobCache
	notifier        *Notifier
	autoscaler      *Autoscaler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles every collaborator the controller needs, so tests can
// inject fakes for the full {JobStore, NodeStore, Queue, Compute,
// Clock} interface set named in spec §9.
type Deps struct {
	Jobs         store.JobStore
	Nodes        store.NodeStore
	NewJobQueue  store.Queue
	StateChangeQ store.Queue
	Compute      compute.Compute
	Encoders     *encoder.Registry
	Clock        store.Clock
	Logger       *common.Logger
	Config       common.JobsConfig
	NotifyRate   float64
	NotifyBurst  int
}

func New(d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = store.SystemClock{}
	}
	if d.NotifyRate <= 0 {
		d.NotifyRate = 5
	}
	if d.NotifyBurst <= 0 {
		d.NotifyBurst = 10
	}

	c := &Controller{
		jobs:         d.Jobs,
		nodes:        d.Nodes,
		newJobQueue:  d.NewJobQueue,
		stateChangeQ: d.StateChangeQ,
		compute:      d.Compute,
		encoders:     d.Encoders,
		clock:        d.Clock,
		logger:       d.Logger,
		cfg:          d.Config,
		cache:        NewJobCache(d.Logger),
		notifier:     NewNotifier(d.NotifyRate, d.NotifyBurst, d.Logger),
	}
	c.autoscaler = NewAutoscaler(d.Jobs, d.Nodes, d.Compute, d.Config, d.Logger)
	return c
}

// safeGo launches fn in its own goroutine, recovering panics and
// logging a stack trace rather than crashing the process — the same
// wrapper shape the teacher's jobmanager.safeGo uses.
func (c *Controller) safeGo(ctx context.Context, name string, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if c.logger != nil {
					c.logger.Error().
						Str("loop", name).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(debug.Stack())).
						Msg("controller loop panicked, exiting")
				}
			}
		}()
		fn(ctx)
	}()
}

// Start loads the job cache from JobStore and launches every periodic
// loop. It returns once everything is running; loops keep running
// until Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.cache.LoadActiveAtStartup(ctx, c.jobs); err != nil {
		return fmt.Errorf("starting controller: %w", err)
	}
	if c.logger != nil {
		c.logger.Info().Int("active_jobs", c.cache.Len()).Msg("controller cache primed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.runLoop(runCtx, "state-change-ingestion", c.cfg.GetStateChangeInterval(), c.ingestStateChanges)
	c.runLoop(runCtx, "stale-job-sweep", c.cfg.GetPruneInterval(), c.sweepStaleJobs)
	c.runLoop(runCtx, "autoscaler", c.cfg.GetAutoscaleInterval(), func(ctx context.Context) {
		if err := c.autoscaler.Tick(ctx); err != nil && c.logger != nil {
			c.logger.Warn().Err(err).Msg("autoscaler tick failed")
		}
	})

	return nil
}

// runLoop runs fn every interval on its own goroutine until ctx is
// canceled, the same ticker+select pattern the teacher's scheduler.go
// uses for its periodic price refresh.
func (c *Controller) runLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	c.safeGo(ctx, name, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	})
}

// Stop cancels every loop and waits for them to exit.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}
