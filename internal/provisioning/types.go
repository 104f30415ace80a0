package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

var ErrProvisioningTimeout = errors.New("instance did not become ready in time")

// ErrInstanceGone is reported when an awaited instance stops or terminates instead of running.
var ErrInstanceGone = errors.New("instance will never run")

// ProvisioningFailure reports a failed call to the compute provider.
type ProvisioningFailure struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *ProvisioningFailure) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s of %s failed: %v", e.Op, e.InstanceID, e.Err)
}

func (e *ProvisioningFailure) Unwrap() error { return e.Err }

// EC2API is the subset of the EC2 client used by the Provisioner.
type EC2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DescribeInstanceStatus(ctx context.Context, params *ec2.DescribeInstanceStatusInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// Template is the fixed launch profile shared by every ephemeral instance.
type Template struct {
	ImageID      string
	InstanceType string
	KeyName      string
	// Security group ids ("sg-...") or names
	SecurityGroups []string
	// Instance profile name or ARN
	IAMProfile string
}

// Tagging describes the tags attached to launched instances.
type Tagging struct {
	ServiceName  string
	HostIdentity string
	Owner        string
}

func (t Tagging) Name() string {
	return fmt.Sprintf("%s-%s", t.HostIdentity, t.ServiceName)
}

type State int

const (
	Launched State = iota
	Running
	TerminationRequested
)

func (s State) String() string {
	switch s {
	case Launched:
		return "launched"
	case Running:
		return "running"
	case TerminationRequested:
		return "termination-requested"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Instance is an ephemeral compute instance. ID is set at launch, Address once the
// instance is running.
type Instance struct {
	ID         string
	Address    string
	State      State
	LaunchedAt time.Time
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s[%s]", i.ID, i.State)
}
