// Package compute implements the elastic-compute primitive: launching
// new worker nodes and counting currently active ones, as used by the
// autoscaler (spec §4.5). The production implementation targets AWS
// EC2 via aws-sdk-go-v2, grounded on the original's EC2InstanceManager
// and on jsturma-joblet/persist's go.mod, which is the only place in
// the retrieval pack directly importing the aws-sdk-go-v2 EC2/IMDS
// family.
package compute

import "context"

// Compute is the elastic-compute surface. The autoscaler only ever
// calls ActiveNodeCount/Launch — per spec §4.5 it never terminates
// nodes. TerminateSelf is called exclusively by a worker's own
// heartbeat loop when it decides to self-terminate (spec §4.6).
type Compute interface {
	ActiveNodeCount(ctx context.Context) (int, error)
	Launch(ctx context.Context, count int) error
	TerminateSelf(ctx context.Context, instanceID string) error
}
