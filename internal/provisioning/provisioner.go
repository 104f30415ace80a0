package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/grussorusso/digestledge/internal/logging"
	"github.com/grussorusso/digestledge/internal/metrics"
	"github.com/grussorusso/digestledge/internal/scheduling"
)

// consecutive describe failures tolerated while waiting for an instance
const maxStatusErrors = 3

type Provisioner struct {
	api      EC2API
	template Template
	tagging  Tagging
	logger   *zap.Logger
}

func NewProvisioner(api EC2API, template Template, tagging Tagging, logger *zap.Logger) *Provisioner {
	return &Provisioner{api: api, template: template, tagging: tagging, logger: logging.OrNop(logger)}
}

func (p *Provisioner) runInstancesInput() *ec2.RunInstancesInput {
	in := &ec2.RunInstancesInput{
		ImageId:      aws.String(p.template.ImageID),
		InstanceType: types.InstanceType(p.template.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if p.template.KeyName != "" {
		in.KeyName = aws.String(p.template.KeyName)
	}
	for _, sg := range p.template.SecurityGroups {
		if strings.HasPrefix(sg, "sg-") {
			in.SecurityGroupIds = append(in.SecurityGroupIds, sg)
		} else {
			in.SecurityGroups = append(in.SecurityGroups, sg)
		}
	}
	if profile := p.template.IAMProfile; profile != "" {
		if strings.HasPrefix(profile, "arn:") {
			in.IamInstanceProfile = &types.IamInstanceProfileSpecification{Arn: aws.String(profile)}
		} else {
			in.IamInstanceProfile = &types.IamInstanceProfileSpecification{Name: aws.String(profile)}
		}
	}
	return in
}

// Launch starts one instance from the template. The returned instance carries the
// provider id but no address yet; callers tag it with Tag and wait with AwaitRunning.
func (p *Provisioner) Launch(ctx context.Context) (*Instance, error) {
	out, err := p.api.RunInstances(ctx, p.runInstancesInput())
	if err != nil {
		return nil, &ProvisioningFailure{Op: "run-instances", Err: err}
	}
	if len(out.Instances) == 0 || aws.ToString(out.Instances[0].InstanceId) == "" {
		return nil, &ProvisioningFailure{Op: "run-instances", Err: errors.New("no instance returned")}
	}

	inst := &Instance{
		ID:         aws.ToString(out.Instances[0].InstanceId),
		State:      Launched,
		LaunchedAt: time.Now(),
	}
	metrics.InstancesLaunched.Inc()
	p.logger.Info("instance launched", zap.String("instance_id", inst.ID),
		zap.String("image", p.template.ImageID), zap.String("type", p.template.InstanceType))
	return inst, nil
}

// Tag sets the Name and owner tags. A failure is returned but leaves the instance alone.
func (p *Provisioner) Tag(ctx context.Context, inst *Instance) error {
	tags := []types.Tag{
		{Key: aws.String("Name"), Value: aws.String(p.tagging.Name())},
		{Key: aws.String("owner"), Value: aws.String(p.tagging.Owner)},
	}
	_, err := p.api.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{inst.ID},
		Tags:      tags,
	})
	if err != nil {
		return &ProvisioningFailure{Op: "create-tags", InstanceID: inst.ID, Err: err}
	}
	return nil
}

// AwaitRunning polls the instance status until both instance and system checks are ok,
// then records the public address of the instance.
func (p *Provisioner) AwaitRunning(ctx context.Context, inst *Instance, interval, timeout time.Duration) (*Instance, error) {
	statusErrors := 0
	_, err := scheduling.PollUntil(func() (struct{}, bool, error) {
		out, err := p.api.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
			InstanceIds:         []string{inst.ID},
			IncludeAllInstances: aws.Bool(true),
		})
		if err != nil {
			// ids are eventually consistent right after launch
			statusErrors++
			p.logger.Warn("describe-instance-status failed", zap.String("instance_id", inst.ID),
				zap.Int("attempt", statusErrors), zap.Error(err))
			if statusErrors >= maxStatusErrors {
				return struct{}{}, false, &ProvisioningFailure{Op: "describe-instance-status", InstanceID: inst.ID, Err: err}
			}
			return struct{}{}, false, nil
		}
		statusErrors = 0

		for _, st := range out.InstanceStatuses {
			if aws.ToString(st.InstanceId) != inst.ID {
				continue
			}
			if st.InstanceState != nil {
				switch st.InstanceState.Name {
				case types.InstanceStateNameShuttingDown, types.InstanceStateNameTerminated,
					types.InstanceStateNameStopping, types.InstanceStateNameStopped:
					return struct{}{}, false, &ProvisioningFailure{Op: "await-running", InstanceID: inst.ID,
						Err: fmt.Errorf("%w: state is %s", ErrInstanceGone, st.InstanceState.Name)}
				}
			}
			instanceOk := st.InstanceStatus != nil && st.InstanceStatus.Status == types.SummaryStatusOk
			systemOk := st.SystemStatus != nil && st.SystemStatus.Status == types.SummaryStatusOk
			p.logger.Debug("instance status", zap.String("instance_id", inst.ID),
				zap.Bool("instance_ok", instanceOk), zap.Bool("system_ok", systemOk))
			return struct{}{}, instanceOk && systemOk, nil
		}
		return struct{}{}, false, nil
	}, interval, timeout)
	if err != nil {
		if errors.Is(err, scheduling.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s: %w", ErrProvisioningTimeout, inst.ID, err)
		}
		return nil, err
	}

	address, err := p.publicAddress(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	inst.Address = address
	inst.State = Running
	p.logger.Info("instance running", zap.String("instance_id", inst.ID), zap.String("address", address))
	return inst, nil
}

func (p *Provisioner) publicAddress(ctx context.Context, id string) (string, error) {
	out, err := p.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return "", &ProvisioningFailure{Op: "describe-instances", InstanceID: id, Err: err}
	}
	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			if aws.ToString(i.InstanceId) != id {
				continue
			}
			if ip := aws.ToString(i.PublicIpAddress); ip != "" {
				return ip, nil
			}
			if dns := aws.ToString(i.PublicDnsName); dns != "" {
				return dns, nil
			}
		}
	}
	return "", &ProvisioningFailure{Op: "describe-instances", InstanceID: id, Err: errors.New("no public address")}
}

// Terminate requests termination of the instance. Terminating an instance twice is
// harmless for the provider.
func (p *Provisioner) Terminate(ctx context.Context, id string) error {
	_, err := p.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return &ProvisioningFailure{Op: "terminate-instances", InstanceID: id, Err: err}
	}
	p.logger.Info("instance termination requested", zap.String("instance_id", id))
	return nil
}
