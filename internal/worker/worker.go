// Package worker implements nommerd: the job-intake loop, the
// heartbeat/self-termination loop, and the download-encode-upload
// pipeline a single encoder task runs per job (spec §4.6, §4.7).
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/storageuri"
	"github.com/bobmcallan/nommer/internal/store"
)

// Worker owns one node's intake loop, heartbeat loop, and in-flight
// encoder tasks. One Worker runs per compute instance.
type Worker struct {
	jobs         store.JobStore
	nodes        store.NodeStore
	newJobQueue  store.Queue
	stateChangeQ store.Queue
	storage      *storageuri.Registry
	encoders     *encoder.Registry
	compute      compute.Compute
	clock        store.Clock
	logger       *common.Logger
	cfg          common.JobsConfig
	nodeID       string

	mu             sync.Mutex
	activeTasks    int
	lastActivityAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles every collaborator a Worker needs.
type Deps struct {
	Jobs         store.JobStore
	Nodes        store.NodeStore
	NewJobQueue  store.Queue
	StateChangeQ store.Queue
	Storage      *storageuri.Registry
	Encoders     *encoder.Registry
	Compute      compute.Compute
	Clock        store.Clock
	Logger       *common.Logger
	Config       common.JobsConfig
	NodeID       string
}

func New(d Deps) *Worker {
	if d.Clock == nil {
		d.Clock = store.SystemClock{}
	}
	return &Worker{
		jobs:           d.Jobs,
		nodes:          d.Nodes,
		newJobQueue:    d.NewJobQueue,
		stateChangeQ:   d.StateChangeQ,
		storage:        d.Storage,
		encoders:       d.Encoders,
		compute:        d.Compute,
		clock:          d.Clock,
		logger:         d.Logger,
		cfg:            d.Config,
		nodeID:         d.NodeID,
		lastActivityAt: d.Clock.Now(),
	}
}

// safeGo launches fn in its own goroutine, recovering panics and
// logging a stack trace rather than crashing the process (same wrapper
// shape as the controller's).
func (w *Worker) safeGo(ctx context.Context, name string, fn func(ctx context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if w.logger != nil {
					w.logger.Error().
						Str("loop", name).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(debug.Stack())).
						Msg("worker loop panicked, exiting")
				}
			}
		}()
		fn(ctx)
	}()
}

// Start launches the intake loop and the heartbeat loop. It returns
// once both are running; they keep running until Stop is called or the
// heartbeat loop self-terminates the node.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.runLoop(runCtx, "job-intake", w.cfg.GetNewJobCheckInterval(), w.intakeOnce)
	w.runLoop(runCtx, "heartbeat", w.cfg.GetHeartbeatInterval(), w.heartbeatOnce)
}

// runLoop runs fn every interval on its own goroutine until ctx is
// canceled, the same ticker+select pattern the controller uses.
func (w *Worker) runLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	w.safeGo(ctx, name, func(ctx context.Context) {
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

// Stop cancels both loops and waits for in-flight encoder tasks and the
// loops themselves to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// bumpActivity records activity for idle accounting (spec §4.6): called
// on job pop and on every pipeline state write.
func (w *Worker) bumpActivity() {
	w.mu.Lock()
	w.lastActivityAt = w.clock.Now()
	w.mu.Unlock()
}

func (w *Worker) idleDuration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clock.Now().Sub(w.lastActivityAt)
}

func (w *Worker) taskStarted() {
	w.mu.Lock()
	w.activeTasks++
	w.mu.Unlock()
}

func (w *Worker) taskFinished() {
	w.mu.Lock()
	w.activeTasks--
	w.mu.Unlock()
}

func (w *Worker) activeTaskCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeTasks
}
