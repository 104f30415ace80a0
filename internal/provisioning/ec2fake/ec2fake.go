// Package ec2fake provides an in-memory EC2 API for tests.
package ec2fake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

var ErrInjected = errors.New("injected failure")

// EC2 records every call it receives. Instances become ok after ReadyAfter status
// calls and report Address as their public ip. A non-empty State overrides the
// lifecycle state reported by DescribeInstanceStatus.
type EC2 struct {
	mtx sync.Mutex

	ReadyAfter int
	Address    string
	State      types.InstanceStateName

	RunErr       error
	TagErr       error
	StatusErr    error
	TerminateErr error

	RunCalls      int
	LastRun       *ec2.RunInstancesInput
	Tags          map[string][]types.Tag
	StatusCalls   int
	DescribeCalls int
	Terminated    []string

	next int
}

func New(address string) *EC2 {
	return &EC2{Address: address, Tags: make(map[string][]types.Tag)}
}

func (f *EC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.RunCalls++
	f.LastRun = in
	if f.RunErr != nil {
		return nil, f.RunErr
	}
	f.next++
	id := fmt.Sprintf("i-%08d", f.next)
	return &ec2.RunInstancesOutput{Instances: []types.Instance{{InstanceId: aws.String(id)}}}, nil
}

func (f *EC2) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.TagErr != nil {
		return nil, f.TagErr
	}
	for _, r := range in.Resources {
		f.Tags[r] = append(f.Tags[r], in.Tags...)
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (f *EC2) DescribeInstanceStatus(_ context.Context, in *ec2.DescribeInstanceStatusInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.StatusCalls++
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	status := types.SummaryStatusInitializing
	state := types.InstanceStateNamePending
	if f.StatusCalls > f.ReadyAfter {
		status = types.SummaryStatusOk
		state = types.InstanceStateNameRunning
	}
	if f.State != "" {
		state = f.State
	}
	_ = state
	out := &ec2.DescribeInstanceStatusOutput{}
	for _, id := range in.InstanceIds {
		out.InstanceStatuses = append(out.InstanceStatuses, types.InstanceStatus{
			InstanceId:     aws.String(id),
			InstanceStatus: &types.InstanceStatusSummary{Status: status},
			SystemStatus:   &types.InstanceStatusSummary{Status: types.SummaryStatusOk},
		})
	}
	return out, nil
}

func (f *EC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.DescribeCalls++
	var instances []types.Instance
	for _, id := range in.InstanceIds {
		instances = append(instances, types.Instance{InstanceId: aws.String(id), PublicIpAddress: aws.String(f.Address)})
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: instances}}}, nil
}

func (f *EC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.TerminateErr != nil {
		return nil, f.TerminateErr
	}
	f.Terminated = append(f.Terminated, in.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

// TerminatedIds returns a copy of the ids passed to TerminateInstances so far.
func (f *EC2) TerminatedIds() []string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]string(nil), f.Terminated...)
}

// Runs returns the number of RunInstances calls.
func (f *EC2) Runs() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.RunCalls
}

// SetTerminateErr changes the error returned by TerminateInstances.
func (f *EC2) SetTerminateErr(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.TerminateErr = err
}
