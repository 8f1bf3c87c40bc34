// Package memstore provides in-memory fakes for store.JobStore,
// store.NodeStore and store.Queue, used by controller/worker unit
// tests in place of a real SurrealDB connection.
package memstore

import (
	"context"
	"sync"

	"github.com/bobmcallan/nommer/internal/job"
	"github.com/bobmcallan/nommer/internal/store"
)

// JobStore is a mutex-guarded map fake of store.JobStore.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*job.Job

	// GetCalls counts Get invocations, used by dedup tests to assert
	// exactly one fetch per distinct id.
	GetCalls int
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*job.Job)}
}

func (s *JobStore) Put(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *JobStore) ListActive(ctx context.Context) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*job.Job
	for _, j := range s.jobs {
		if !j.State.IsFinished() {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *JobStore) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*job.Job)
	return nil
}

// NodeStore is a mutex-guarded map fake of store.NodeStore.
type NodeStore struct {
	mu    sync.Mutex
	nodes map[string]*store.Node
}

func NewNodeStore() *NodeStore {
	return &NodeStore{nodes: make(map[string]*store.Node)}
}

func (s *NodeStore) Put(ctx context.Context, n *store.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.nodes[n.ID] = &cp
	return nil
}

func (s *NodeStore) Get(ctx context.Context, id string) (*store.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *NodeStore) ListActive(ctx context.Context) ([]*store.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Node
	for _, n := range s.nodes {
		if n.State == store.NodeActive {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Queue is a FIFO fake of store.Queue that preserves the real
// implementation's dedup-within-one-Pop-call contract.
type Queue struct {
	mu      sync.Mutex
	pending []string
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, jobID)
	return nil
}

func (q *Queue) Pop(ctx context.Context, max int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > 10 {
		max = 10
	}
	if max <= 0 || len(q.pending) == 0 {
		return nil, nil
	}

	n := max
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := q.pending[:n]
	q.pending = q.pending[n:]

	seen := make(map[string]bool)
	var ids []string
	for _, id := range batch {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
