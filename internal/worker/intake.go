package worker

import "context"

// maxPopBatch mirrors NewJobQueue's own 10-message ceiling.
const maxPopBatch = 10

// intakeOnce computes available slots (MAX_PER_NODE minus in-flight
// encoder tasks), pops at most that many ids from NewJobQueue in one
// call, and spawns an independent encoder task per id.
func (w *Worker) intakeOnce(ctx context.Context) {
	maxPerNode := w.cfg.MaxJobsPerNode
	if maxPerNode <= 0 {
		maxPerNode = 1
	}

	inFlight := w.activeTaskCount()
	slots := maxPerNode - inFlight
	if slots <= 0 {
		return
	}
	if slots > maxPopBatch {
		slots = maxPopBatch
	}

	ids, err := w.newJobQueue.Pop(ctx, slots)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn().Err(err).Msg("new-job pop failed")
		}
		return
	}
	if len(ids) == 0 {
		return
	}

	w.bumpActivity()

	for _, id := range ids {
		jobID := id
		w.taskStarted()
		w.safeGo(ctx, "encode-"+jobID, func(ctx context.Context) {
			defer w.taskFinished()
			w.runPipeline(ctx, jobID)
		})
	}
}
