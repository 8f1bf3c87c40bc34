package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/job"
)

// runPipeline drives one job through download -> encode -> upload,
// writing state at each stage (spec §4.7). jobID was popped from
// NewJobQueue; the job's current record is loaded fresh from JobStore
// rather than trusted from the queue message, since the queue carries
// only an id.
func (w *Worker) runPipeline(ctx context.Context, jobID string) {
	j, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn().Str("job_id", jobID).Err(err).Msg("pipeline: job fetch failed, dropping")
		}
		return
	}

	workDir, err := os.MkdirTemp("", "nommer-job-"+j.ID+"-")
	if err != nil {
		w.fail(ctx, j, fmt.Sprintf("creating working directory: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	// Guarantee an ERROR write even if encoding panics partway through;
	// a job left in a non-terminal state is picked up by the
	// controller's sweeper after abandon_threshold, but we'd rather
	// surface the real cause immediately when we can.
	defer func() {
		if r := recover(); r != nil {
			w.fail(ctx, j, fmt.Sprintf("panic during pipeline: %v", r))
		}
	}()

	if err := w.transition(ctx, j, job.StateDownloading, ""); err != nil {
		return
	}

	infile := filepath.Join(workDir, "infile")
	if err := w.download(ctx, j.SourcePath, infile); err != nil {
		w.fail(ctx, j, err.Error())
		return
	}

	if err := w.transition(ctx, j, job.StateEncoding, ""); err != nil {
		return
	}

	enc, err := w.encoders.New(j.Options.Encoder)
	if err != nil {
		w.fail(ctx, j, err.Error())
		return
	}

	outfile := filepath.Join(workDir, "outfile")
	if err := enc.Run(ctx, workDir, infile, outfile, j.Options.Passes()); err != nil {
		w.fail(ctx, j, encoderFailureDetail(err))
		return
	}

	if err := w.transition(ctx, j, job.StateUploading, ""); err != nil {
		return
	}

	if err := w.upload(ctx, j.DestPath, outfile); err != nil {
		w.fail(ctx, j, err.Error())
		return
	}

	w.transition(ctx, j, job.StateFinished, "")
}

// encoderFailureDetail extracts the stderr tail from an *encoder.Error
// so state_detail carries the useful part of a subprocess failure
// rather than just "exit status 1".
func encoderFailureDetail(err error) string {
	if encErr, ok := err.(*encoder.Error); ok {
		return encErr.Stderr
	}
	return err.Error()
}

func (w *Worker) download(ctx context.Context, uri, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating temp infile: %w", err)
	}
	defer f.Close()

	return w.storage.Download(ctx, uri, f)
}

func (w *Worker) upload(ctx context.Context, uri, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening temp outfile: %w", err)
	}
	defer f.Close()

	return w.storage.Upload(ctx, uri, f)
}

// transition applies a state change, persists it, pushes a
// state-change notification, and bumps idle accounting — every state
// write flows through this one path (spec §4.1, §4.6).
func (w *Worker) transition(ctx context.Context, j *job.Job, next job.State, detail string) error {
	if err := j.Transition(next, detail, w.clock.Now()); err != nil {
		if w.logger != nil {
			w.logger.Error().Str("job_id", j.ID).Err(err).Msg("pipeline: invalid transition")
		}
		return err
	}
	w.persist(ctx, j)
	return nil
}

// fail transitions the job to ERROR with detail and persists it. It
// never returns an error itself: by the time fail is called the
// pipeline has nothing left to do but report.
func (w *Worker) fail(ctx context.Context, j *job.Job, detail string) {
	if err := j.Transition(job.StateError, detail, w.clock.Now()); err != nil {
		if w.logger != nil {
			w.logger.Error().Str("job_id", j.ID).Err(err).Msg("pipeline: failed to record error state")
		}
		return
	}
	w.persist(ctx, j)
}

// persist writes j to JobStore, enqueues a state-change notification,
// and bumps idle accounting. Failures are logged; a dropped
// state-change push still leaves JobStore as the source of truth for
// the controller's sweeper to find later.
func (w *Worker) persist(ctx context.Context, j *job.Job) {
	w.bumpActivity()

	if err := w.jobs.Put(ctx, j); err != nil {
		if w.logger != nil {
			w.logger.Error().Str("job_id", j.ID).Err(err).Msg("pipeline: failed to persist job state")
		}
		return
	}
	if err := w.stateChangeQ.Push(ctx, j.ID); err != nil && w.logger != nil {
		w.logger.Warn().Str("job_id", j.ID).Err(err).Msg("pipeline: failed to enqueue state-change")
	}
}
