package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/job"
	"github.com/bobmcallan/nommer/internal/store"
)

// JobCache mirrors every currently-active job, grounded on the
// original's JobCache class-as-dict: a controller-local, non-durable
// view rebuilt at startup from JobStore.ListActive, kept current by
// the state-change loop, and pruned of terminal entries as they land.
type JobCache struct {
	mu     sync.Mutex
	byID   map[string]*job.Job
	logger *common.Logger
}

func NewJobCache(logger *common.Logger) *JobCache {
	return &JobCache{byID: make(map[string]*job.Job), logger: logger}
}

// LoadActiveAtStartup scans JobStore for non-terminal jobs and
// populates the cache, logging one line per loaded job.
func (c *JobCache) LoadActiveAtStartup(ctx context.Context, jobs store.JobStore) error {
	active, err := jobs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active jobs at startup: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range active {
		c.byID[j.ID] = j
		if c.logger != nil {
			c.logger.Info().Str("job_id", j.ID).Str("state", string(j.State)).Msg("loaded active job into cache")
		}
	}
	return nil
}

// Get returns the cached copy of id, and whether it was present.
func (c *JobCache) Get(id string) (*job.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.byID[id]
	return j, ok
}

// Put inserts or replaces the cached copy of j.
func (c *JobCache) Put(j *job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *j
	c.byID[j.ID] = &cp
}

// UncacheFinished drops a now-terminal job from the cache; the
// controller no longer needs to track it once it is terminal.
func (c *JobCache) UncacheFinished(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

// Active returns a snapshot of every cached job.
func (c *JobCache) Active() []*job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*job.Job, 0, len(c.byID))
	for _, j := range c.byID {
		cp := *j
		out = append(out, &cp)
	}
	return out
}

func (c *JobCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
