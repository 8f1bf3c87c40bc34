package controller

import (
	"context"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/store"
)

// ComputeToLaunch is the autoscaler's pure arithmetic (spec §4.5),
// grounded on EC2InstanceManager.spawn_if_needed: instances are never
// terminated here, only launched, and the overflow threshold is waived
// entirely when there are jobs but no active nodes at all (the
// bootstrap case).
func ComputeToLaunch(unfinishedJobCount, activeNodeCount, maxPerNode, overflowThreshold, maxNodes int) int {
	capacity := activeNodeCount * maxPerNode
	deficit := unfinishedJobCount - capacity - overflowThreshold

	hasJobsButNoNodes := unfinishedJobCount > 0 && activeNodeCount == 0
	launchNeeded := hasJobsButNoNodes || deficit >= 0
	if !launchNeeded {
		return 0
	}

	toLaunch := deficit / maxPerNode
	if toLaunch < 1 {
		toLaunch = 1
	}

	if activeNodeCount+toLaunch > maxNodes {
		toLaunch = maxNodes - activeNodeCount
	}
	if toLaunch <= 0 {
		return 0
	}
	return toLaunch
}

// Autoscaler runs ComputeToLaunch against the JobStore's active jobs and
// the compute API's active node count, and calls compute.Launch when
// more capacity is needed. It never
// terminates nodes; workers self-terminate on idle (see internal/worker).
type Autoscaler struct {
	jobs    store.JobStore
	nodes   store.NodeStore
	compute compute.Compute
	cfg     common.JobsConfig
	logger  *common.Logger
}

func NewAutoscaler(jobs store.JobStore, nodes store.NodeStore, comp compute.Compute, cfg common.JobsConfig, logger *common.Logger) *Autoscaler {
	return &Autoscaler{jobs: jobs, nodes: nodes, compute: comp, cfg: cfg, logger: logger}
}

// Tick runs one autoscaler pass.
func (a *Autoscaler) Tick(ctx context.Context) error {
	if !a.cfg.AutoscaleEnabled {
		return nil
	}

	activeJobs, err := a.jobs.ListActive(ctx)
	if err != nil {
		return err
	}
	unfinished := 0
	for _, j := range activeJobs {
		if !j.State.IsFinished() {
			unfinished++
		}
	}

	activeNodes, err := a.compute.ActiveNodeCount(ctx)
	if err != nil {
		return err
	}

	toLaunch := ComputeToLaunch(unfinished, activeNodes, a.cfg.MaxJobsPerNode, a.cfg.JobOverflowThreshold, a.cfg.MaxNodes)
	if toLaunch <= 0 {
		return nil
	}

	if a.logger != nil {
		a.logger.Info().
			Int("unfinished_jobs", unfinished).
			Int("active_nodes", activeNodes).
			Int("to_launch", toLaunch).
			Msg("autoscaler launching new nodes")
	}
	return a.compute.Launch(ctx, toLaunch)
}
