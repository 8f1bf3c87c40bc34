package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/job"
	"github.com/bobmcallan/nommer/internal/store"
	"github.com/bobmcallan/nommer/internal/store/memstore"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestController(t *testing.T) (*Controller, *memstore.JobStore, *memstore.Queue) {
	t.Helper()
	jobs := memstore.NewJobStore()
	nodes := memstore.NewNodeStore()
	stateChangeQ := memstore.NewQueue()
	newJobQ := memstore.NewQueue()

	c := New(Deps{
		Jobs:         jobs,
		Nodes:        nodes,
		NewJobQueue:  newJobQ,
		StateChangeQ: stateChangeQ,
		Compute:      compute.NewFake(0),
		Encoders:     encoder.DefaultRegistry(),
		Clock:        fixedClock{now: time.Now()},
		Logger:       common.NewSilentLogger(),
		Config: common.JobsConfig{
			AbandonThreshold: "24h",
			MaxJobsPerNode:   4,
			MaxNodes:         20,
		},
	})
	return c, jobs, stateChangeQ
}

func TestSubmitHandlerHappyPath(t *testing.T) {
	c, jobs, _ := newTestController(t)

	body := `{"source_path":"mem://in/a","dest_path":"mem://out/a","job_options":{"nommer":"noop","options":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/job/submit", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	c.SubmitHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.JobID)

	_, err := jobs.Get(context.Background(), resp.JobID)
	assert.NoError(t, err, "expected job to be persisted")
}

func TestSubmitHandlerMissingFieldsRejected(t *testing.T) {
	c, _, _ := newTestController(t)

	body := `{"dest_path":"mem://out/a","job_options":{"nommer":"noop","options":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/job/submit", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	c.SubmitHandler(w, req)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success, "expected success:false for missing source_path")
	assert.NotEmpty(t, resp.Message, "expected a message explaining the failure")
}

func TestSubmitHandlerUnknownEncoderRejected(t *testing.T) {
	c, _, _ := newTestController(t)

	body := `{"source_path":"mem://in/a","dest_path":"mem://out/a","job_options":{"nommer":"nonexistent","options":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/job/submit", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	c.SubmitHandler(w, req)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success, "expected success:false for unknown encoder kind")
}

func TestDuplicateStateChangeDedupsToOneFetch(t *testing.T) {
	c, jobs, stateChangeQ := newTestController(t)
	ctx := context.Background()

	j, err := job.New("mem://in/a", "mem://out/a", "", job.Options{Encoder: "noop"}, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = j.Transition(job.StateDownloading, "", time.Now())
	_ = jobs.Put(ctx, j)
	c.cache.Put(j)

	// Advance the job's state out from under the cache, then push the
	// same id twice onto the state-change queue in one batch.
	_ = j.Transition(job.StateEncoding, "", time.Now())
	_ = jobs.Put(ctx, j)

	_ = stateChangeQ.Push(ctx, j.ID)
	_ = stateChangeQ.Push(ctx, j.ID)

	jobs.GetCalls = 0
	c.ingestStateChanges(ctx)

	if jobs.GetCalls != 1 {
		t.Fatalf("expected exactly one JobStore fetch for duplicate ids, got %d", jobs.GetCalls)
	}
}

func TestSweeperAbandonsStaleJobAndEmitsStateChange(t *testing.T) {
	jobsStore := memstore.NewJobStore()
	nodes := memstore.NewNodeStore()
	stateChangeQ := memstore.NewQueue()
	newJobQ := memstore.NewQueue()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: start}

	c := New(Deps{
		Jobs:         jobsStore,
		Nodes:        nodes,
		NewJobQueue:  newJobQ,
		StateChangeQ: stateChangeQ,
		Compute:      compute.NewFake(0),
		Encoders:     encoder.DefaultRegistry(),
		Clock:        clock,
		Logger:       common.NewSilentLogger(),
		Config:       common.JobsConfig{AbandonThreshold: "1h"},
	})

	ctx := context.Background()
	j, _ := job.New("mem://in/a", "mem://out/a", "", job.Options{Encoder: "noop"}, start)
	_ = jobsStore.Put(ctx, j)
	c.cache.Put(j)

	// Advance the clock past abandon_threshold + 1s without any worker
	// touching the job.
	c.clock = fixedClock{now: start.Add(time.Hour + time.Second)}
	c.sweepStaleJobs(ctx)

	got, err := jobsStore.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateAbandoned {
		t.Fatalf("expected ABANDONED, got %s", got.State)
	}

	ids, _ := stateChangeQ.Pop(ctx, 10)
	found := false
	for _, id := range ids {
		if id == j.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a state-change notification for the abandoned job")
	}
}

func TestSweeperAbandonmentFiresExactlyOneCallback(t *testing.T) {
	var notifyCount int32
	notifyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&notifyCount, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer notifyServer.Close()

	jobsStore := memstore.NewJobStore()
	nodes := memstore.NewNodeStore()
	stateChangeQ := memstore.NewQueue()
	newJobQ := memstore.NewQueue()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := fixedClock{now: start}

	c := New(Deps{
		Jobs:         jobsStore,
		Nodes:        nodes,
		NewJobQueue:  newJobQ,
		StateChangeQ: stateChangeQ,
		Compute:      compute.NewFake(0),
		Encoders:     encoder.DefaultRegistry(),
		Clock:        clock,
		Logger:       common.NewSilentLogger(),
		Config:       common.JobsConfig{AbandonThreshold: "1h"},
	})

	ctx := context.Background()
	j, _ := job.New("mem://in/a", "mem://out/a", notifyServer.URL, job.Options{Encoder: "noop"}, start)
	_ = jobsStore.Put(ctx, j)
	c.cache.Put(j)

	c.clock = fixedClock{now: start.Add(time.Hour + time.Second)}
	c.sweepStaleJobs(ctx)
	c.ingestStateChanges(ctx)

	require.Equal(t, int32(1), atomic.LoadInt32(&notifyCount), "expected exactly one callback for the abandoned job across both loops")
}

var _ store.JobStore = (*memstore.JobStore)(nil)
