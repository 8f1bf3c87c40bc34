package worker

import (
	"context"

	"github.com/bobmcallan/nommer/internal/store"
)

// heartbeatOnce decides whether to self-terminate (idle-termination
// enabled, idle past threshold, no in-flight encoder tasks) or else
// reports liveness to NodeStore (spec §4.6).
func (w *Worker) heartbeatOnce(ctx context.Context) {
	if w.cfg.IdleTerminationEnabled &&
		w.idleDuration() > w.cfg.GetIdleThreshold() &&
		w.activeTaskCount() == 0 {
		w.selfTerminate(ctx)
		return
	}

	n := &store.Node{
		ID:                 w.nodeID,
		State:              store.NodeActive,
		ActiveEncoderTasks: w.activeTaskCount(),
		LastHeartbeat:      w.clock.Now(),
	}
	if err := w.nodes.Put(ctx, n); err != nil && w.logger != nil {
		w.logger.Warn().Str("node_id", w.nodeID).Err(err).Msg("heartbeat write failed")
	}
}

// selfTerminate writes state=TERMINATED to NodeStore before issuing the
// compute-API terminate call, per spec §4.6 ordering (the store write
// happens before the exit attempt, not after).
func (w *Worker) selfTerminate(ctx context.Context) {
	n := &store.Node{
		ID:                 w.nodeID,
		State:              store.NodeTerminated,
		ActiveEncoderTasks: 0,
		LastHeartbeat:      w.clock.Now(),
	}
	if err := w.nodes.Put(ctx, n); err != nil && w.logger != nil {
		w.logger.Warn().Str("node_id", w.nodeID).Err(err).Msg("terminal heartbeat write failed")
	}

	if w.logger != nil {
		w.logger.Info().Str("node_id", w.nodeID).Msg("idle past threshold, self-terminating")
	}

	if err := w.compute.TerminateSelf(ctx, w.nodeID); err != nil && w.logger != nil {
		w.logger.Error().Str("node_id", w.nodeID).Err(err).Msg("self-terminate call failed")
	}

	if w.cancel != nil {
		w.cancel()
	}
}
