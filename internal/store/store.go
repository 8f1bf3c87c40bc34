// Package store defines the narrow interfaces that the controller and
// worker depend on (JobStore, NodeStore, Queue, Clock) so that
// surrealdb-backed adapters and in-memory test fakes are interchangeable,
// per the re-architecting notes: lazy module singletons become an
// explicit set of interfaces threaded through the process.
package store

import (
	"context"
	"time"

	"github.com/bobmcallan/nommer/internal/job"
)

// JobStore persists Job records. Get must return ErrNotFound for an
// unknown id; malformed rows are skipped rather than failing a scan
// (MalformedRecord in the error taxonomy).
type JobStore interface {
	Put(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
	// ListActive returns every job not in a finished state.
	ListActive(ctx context.Context) ([]*job.Job, error)
	Wipe(ctx context.Context) error
}

// NodeState is the worker-visible lifecycle of a compute node.
type NodeState string

const (
	NodeActive     NodeState = "ACTIVE"
	NodeTerminated NodeState = "TERMINATED"
)

// Node is the NodeStore record: one row per worker instance.
type Node struct {
	ID                 string
	State              NodeState
	ActiveEncoderTasks int
	LastHeartbeat      time.Time
}

// NodeStore persists Node records.
type NodeStore interface {
	Put(ctx context.Context, n *Node) error
	Get(ctx context.Context, id string) (*Node, error)
	ListActive(ctx context.Context) ([]*Node, error)
}

// Queue models NewJobQueue and StateChangeQueue: both carry only a job
// id in the message body, both support popping up to 10 at a time, and
// both must dedupe same-id deliveries within a single Pop call so a
// batch with duplicate ids resolves to the same distinct set of ids.
type Queue interface {
	Push(ctx context.Context, jobID string) error
	// Pop takes up to max messages (max <= 10) off the queue and returns
	// the distinct set of job ids they named. Popped messages are deleted
	// before Pop returns; there is no separate acknowledgement step.
	Pop(ctx context.Context, max int) ([]string, error)
}

// Clock abstracts time.Now so controller/worker loops and the job state
// machine are deterministically testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ErrNotFound is returned by JobStore.Get/NodeStore.Get for an unknown id.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }
