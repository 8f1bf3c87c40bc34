package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/job"
	"github.com/bobmcallan/nommer/internal/storageuri"
	"github.com/bobmcallan/nommer/internal/store"
	"github.com/bobmcallan/nommer/internal/store/memstore"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// failingEncoder always fails with a fixed exit code and stderr,
// standing in for a real subprocess-backed encoder in pipeline tests.
type failingEncoder struct {
	stderr string
}

func (f *failingEncoder) Run(ctx context.Context, workDir, infile, outfile string, passes []job.PassOptions) error {
	return &encoder.Error{ExitCode: 1, Stderr: f.stderr}
}

func newTestWorker(t *testing.T) (*Worker, *memstore.JobStore, *storageuri.MemBackend) {
	t.Helper()
	jobs := memstore.NewJobStore()
	nodes := memstore.NewNodeStore()
	newJobQ := memstore.NewQueue()
	stateChangeQ := memstore.NewQueue()

	mem := storageuri.NewMemBackend()
	storage := storageuri.NewRegistry()
	storage.Register("mem", mem)

	encoders := encoder.NewRegistry()
	encoders.Register("noop", func() encoder.Encoder { return &encoder.NoopEncoder{} })
	encoders.Register("fails", func() encoder.Encoder { return &failingEncoder{stderr: "bad opts"} })

	w := New(Deps{
		Jobs:         jobs,
		Nodes:        nodes,
		NewJobQueue:  newJobQ,
		StateChangeQ: stateChangeQ,
		Storage:      storage,
		Encoders:     encoders,
		Compute:      compute.NewFake(1),
		Clock:        fixedClock{now: time.Now()},
		Logger:       common.NewSilentLogger(),
		Config:       common.JobsConfig{MaxJobsPerNode: 4},
		NodeID:       "node-test",
	})
	return w, jobs, mem
}

func TestPipelineHappyPathCopiesSourceToDest(t *testing.T) {
	w, jobs, mem := newTestWorker(t)
	ctx := context.Background()

	mem.Put("mem://in/a", []byte("hello world"))

	j, err := job.New("mem://in/a", "mem://out/a", "", job.Options{Encoder: "noop"}, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := jobs.Put(ctx, j); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w.runPipeline(ctx, j.ID)

	got, err := jobs.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateFinished {
		t.Fatalf("expected FINISHED, got %s (%s)", got.State, got.StateDetail)
	}

	out, ok := mem.Get("mem://out/a")
	if !ok {
		t.Fatalf("expected mem://out/a to exist")
	}
	if string(out) != "hello world" {
		t.Fatalf("expected dest to equal source, got %q", out)
	}
}

func TestPipelineMissingSourceEndsInErrorWithoutUploading(t *testing.T) {
	w, jobs, mem := newTestWorker(t)
	ctx := context.Background()

	j, err := job.New("mem://in/missing", "mem://out/a", "", job.Options{Encoder: "noop"}, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := jobs.Put(ctx, j); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w.runPipeline(ctx, j.ID)

	got, err := jobs.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateError {
		t.Fatalf("expected ERROR, got %s", got.State)
	}
	if !strings.Contains(got.StateDetail, "not found") {
		t.Fatalf("expected state_detail to mention not found, got %q", got.StateDetail)
	}
	if _, ok := mem.Get("mem://out/a"); ok {
		t.Fatalf("nothing must be uploaded for a missing source")
	}
}

func TestPipelineEncoderFailureCarriesStderrTail(t *testing.T) {
	w, jobs, mem := newTestWorker(t)
	ctx := context.Background()

	mem.Put("mem://in/a", []byte("data"))

	j, err := job.New("mem://in/a", "mem://out/a", "", job.Options{Encoder: "fails"}, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := jobs.Put(ctx, j); err != nil {
		t.Fatalf("Put: %v", err)
	}

	w.runPipeline(ctx, j.ID)

	got, err := jobs.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != job.StateError {
		t.Fatalf("expected ERROR, got %s", got.State)
	}
	if !strings.HasSuffix(got.StateDetail, "bad opts") {
		t.Fatalf("expected state_detail to end with %q, got %q", "bad opts", got.StateDetail)
	}
	if len(got.StateDetail) > 1023 {
		t.Fatalf("state_detail exceeds cap: %d bytes", len(got.StateDetail))
	}
}

func TestIntakeRespectsAvailableSlots(t *testing.T) {
	w, jobs, mem := newTestWorker(t)
	w.cfg.MaxJobsPerNode = 2
	ctx := context.Background()

	newJobQ := w.newJobQueue
	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		mem.Put("mem://in/a", []byte("x"))
		j, _ := job.New("mem://in/a", "mem://out/a", "", job.Options{Encoder: "noop"}, time.Now())
		_ = jobs.Put(ctx, j)
		_ = newJobQ.Push(ctx, j.ID)
		ids = append(ids, j.ID)
	}

	w.intakeOnce(ctx)
	w.wg.Wait()

	found := 0
	for _, id := range ids {
		if j, err := jobs.Get(ctx, id); err == nil && j.State == job.StateFinished {
			found++
		}
	}
	if found > 2 {
		t.Fatalf("expected at most MaxJobsPerNode(2) jobs spawned in one intake tick, got %d", found)
	}
}

func TestHeartbeatWritesActiveNodeWhenNotIdle(t *testing.T) {
	w, _, _ := newTestWorker(t)
	ctx := context.Background()
	nodes := memstore.NewNodeStore()
	w.nodes = nodes
	w.cfg.IdleTerminationEnabled = true
	w.cfg.IdleThreshold = "1h"

	w.heartbeatOnce(ctx)

	n, err := nodes.Get(ctx, "node-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.State != store.NodeActive {
		t.Fatalf("expected ACTIVE, got %s", n.State)
	}
}

func TestHeartbeatSelfTerminatesWhenIdlePastThreshold(t *testing.T) {
	w, _, _ := newTestWorker(t)
	ctx := context.Background()
	nodes := memstore.NewNodeStore()
	w.nodes = nodes
	w.cfg.IdleTerminationEnabled = true
	w.cfg.IdleThreshold = "1s"

	clk := fixedClock{now: time.Now()}
	w.clock = clk
	w.lastActivityAt = clk.now.Add(-time.Hour)
	fake := compute.NewFake(1)
	w.compute = fake

	w.heartbeatOnce(ctx)

	n, err := nodes.Get(ctx, "node-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.State != store.NodeTerminated {
		t.Fatalf("expected TERMINATED, got %s", n.State)
	}
	if len(fake.TerminatedIDs) != 1 || fake.TerminatedIDs[0] != "node-test" {
		t.Fatalf("expected a TerminateSelf call for node-test, got %v", fake.TerminatedIDs)
	}
}
