package controller

import "testing"

func TestAutoscalerBootstrapLaunchesOne(t *testing.T) {
	// active_node_count=0, unfinished_job_count=1, MAX_PER_NODE=2,
	// MAX_NODES=3, OVERFLOW_THRESHOLD=2. Expected to_launch=1.
	got := ComputeToLaunch(1, 0, 2, 2, 3)
	if got != 1 {
		t.Fatalf("expected to_launch=1, got %d", got)
	}
}

func TestAutoscalerNoDeficitDoesNotLaunch(t *testing.T) {
	got := ComputeToLaunch(2, 2, 4, 2, 20)
	if got != 0 {
		t.Fatalf("expected to_launch=0 within capacity+threshold, got %d", got)
	}
}

func TestAutoscalerClampsAtMaxNodes(t *testing.T) {
	// active_node_count=3, unfinished_job_count=100, MAX_NODES=3.
	// Expected to_launch=0.
	got := ComputeToLaunch(100, 3, 4, 2, 3)
	if got != 0 {
		t.Fatalf("expected to_launch=0 at ceiling, got %d", got)
	}
}

func TestAutoscalerNeverTerminates(t *testing.T) {
	// Fewer jobs than capacity: autoscaler only ever returns >=0, it
	// never signals removal of nodes.
	got := ComputeToLaunch(0, 5, 4, 2, 20)
	if got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestAutoscalerMonotonicity(t *testing.T) {
	// For a fixed active_node_count under max_nodes, increasing
	// unfinished_job_count must never decrease to_launch.
	activeNodes, maxPerNode, overflow, maxNodes := 2, 4, 2, 20
	prev := ComputeToLaunch(0, activeNodes, maxPerNode, overflow, maxNodes)
	for jobs := 1; jobs <= 50; jobs++ {
		got := ComputeToLaunch(jobs, activeNodes, maxPerNode, overflow, maxNodes)
		if got < prev {
			t.Fatalf("to_launch decreased at jobs=%d: prev=%d got=%d", jobs, prev, got)
		}
		prev = got
	}
}
