package compute

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/bobmcallan/nommer/internal/common"
)

// EC2Compute implements Compute against real AWS EC2, grounded on the
// original EC2InstanceManager.get_instances/spawn_instances: instances
// are filtered by AMI id and counted only in running/pending states;
// launches use RunInstances with the configured AMI, instance type,
// security groups and key pair.
type EC2Compute struct {
	client *ec2.Client
	cfg    common.ComputeConfig
	logger *common.Logger
}

func NewEC2Compute(client *ec2.Client, cfg common.ComputeConfig, logger *common.Logger) *EC2Compute {
	return &EC2Compute{client: client, cfg: cfg, logger: logger}
}

func (c *EC2Compute) ActiveNodeCount(ctx context.Context) (int, error) {
	out, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("image-id"), Values: []string{c.cfg.AMIID}},
			{Name: aws.String("instance-state-name"), Values: []string{"running", "pending"}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("describing instances: %w", err)
	}

	count := 0
	for _, reservation := range out.Reservations {
		count += len(reservation.Instances)
	}
	return count, nil
}

func (c *EC2Compute) Launch(ctx context.Context, count int) error {
	if count <= 0 {
		return nil
	}

	input := &ec2.RunInstancesInput{
		ImageId:        aws.String(c.cfg.AMIID),
		InstanceType:   types.InstanceType(c.cfg.InstanceType),
		MinCount:       aws.Int32(int32(count)),
		MaxCount:       aws.Int32(int32(count)),
		SecurityGroups: c.cfg.SecurityGroups,
	}
	if c.cfg.KeyName != "" {
		input.KeyName = aws.String(c.cfg.KeyName)
	}

	if _, err := c.client.RunInstances(ctx, input); err != nil {
		return fmt.Errorf("launching %d instances: %w", count, err)
	}
	if c.logger != nil {
		c.logger.Info().Int("count", count).Msg("launched new worker instances")
	}
	return nil
}

// TerminateSelf issues a compute-API terminate call for instanceID,
// called by a worker's own heartbeat loop right after it writes
// state=TERMINATED to NodeStore (spec §4.6).
func (c *EC2Compute) TerminateSelf(ctx context.Context, instanceID string) error {
	_, err := c.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("terminating instance %s: %w", instanceID, err)
	}
	return nil
}
