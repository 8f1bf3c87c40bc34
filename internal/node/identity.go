// Package node resolves the identity of the compute instance a worker
// is running on, grounded on the original's NodeStateManager.get_instance_id:
// production workers ask the cloud metadata service; local/dev runs
// fall back to a generated id rather than failing startup.
package node

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/google/uuid"

	"github.com/bobmcallan/nommer/internal/common"
)

// Resolver returns the id this process should use in NodeStore.
type Resolver interface {
	InstanceID(ctx context.Context) (string, error)
}

// IMDSResolver asks the EC2 instance metadata service for this
// instance's id.
type IMDSResolver struct {
	client *imds.Client
}

func NewIMDSResolver(client *imds.Client) *IMDSResolver {
	return &IMDSResolver{client: client}
}

func (r *IMDSResolver) InstanceID(ctx context.Context) (string, error) {
	out, err := r.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		return "", fmt.Errorf("fetching instance-id from metadata service: %w", err)
	}
	defer out.Content.Close()

	buf := make([]byte, 256)
	n, err := out.Content.Read(buf)
	if err != nil && n == 0 {
		return "", fmt.Errorf("reading instance-id response: %w", err)
	}
	return string(buf[:n]), nil
}

// LocalResolver generates a stable-for-process-lifetime "local-dev" id,
// used when compute.local_dev_allowed is set and the metadata service
// isn't reachable.
type LocalResolver struct {
	id string
}

func NewLocalResolver() *LocalResolver {
	return &LocalResolver{id: "local-" + uuid.New().String()}
}

func (r *LocalResolver) InstanceID(ctx context.Context) (string, error) {
	return r.id, nil
}

// Resolve tries the IMDS resolver first; if it fails and local-dev
// fallback is allowed by config, it falls back to a generated id
// instead of failing worker startup.
func Resolve(ctx context.Context, imdsResolver Resolver, cfg common.ComputeConfig) (string, error) {
	id, err := imdsResolver.InstanceID(ctx)
	if err == nil {
		return id, nil
	}
	if !cfg.LocalDevAllowed {
		return "", fmt.Errorf("resolving instance id: %w", err)
	}
	return NewLocalResolver().InstanceID(ctx)
}
