package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/scheduler/pkg/types"
)

type fakeEC2 struct {
	state       ec2types.InstanceStateName
	instType    ec2types.InstanceType
	describeErr error
	actionErr   error
	started     bool
	stopped     bool
	missing     bool
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.missing {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	inst := ec2types.Instance{
		State:        &ec2types.InstanceState{Name: f.state},
		InstanceType: f.instType,
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{inst}}}}, nil
}

func (f *fakeEC2) StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	f.started = true
	return &ec2.StartInstancesOutput{}, nil
}

func (f *fakeEC2) StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	f.stopped = true
	return &ec2.StopInstancesOutput{}, nil
}

func testVMDriver(client EC2API) *VMDriver {
	return &VMDriver{NewClient: func(types.AccountCredentials) EC2API { return client }}
}

func TestVMDriver_StopsRunningInstance(t *testing.T) {
	fake := &fakeEC2{state: ec2types.InstanceStateNameRunning, instType: ec2types.InstanceTypeT3Micro}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.True(t, fake.stopped)
	require.NotNil(t, res.LastState.VM)
	assert.Equal(t, "running", res.LastState.VM.InstanceState)
}

func TestVMDriver_SkipsStopWhenAlreadyStopped(t *testing.T) {
	fake := &fakeEC2{state: ec2types.InstanceStateNameStopped}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ActionSkip, res.Action)
	assert.False(t, fake.stopped)
}

func TestVMDriver_SkipsStartWhenPending(t *testing.T) {
	fake := &fakeEC2{state: ec2types.InstanceStateNamePending}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ActionSkip, res.Action)
	assert.False(t, fake.started)
}

func TestVMDriver_StartsStoppedInstance(t *testing.T) {
	fake := &fakeEC2{state: ec2types.InstanceStateNameStopped}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.True(t, fake.started)
}

func TestVMDriver_DryRunDoesNotCallAWS(t *testing.T) {
	fake := &fakeEC2{state: ec2types.InstanceStateNameRunning}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{DryRun: true}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.False(t, fake.stopped)
}

func TestVMDriver_ProviderErrorOnDescribe(t *testing.T) {
	fake := &fakeEC2{describeErr: errors.New("throttled")}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
}

func TestVMDriver_NotFound(t *testing.T) {
	fake := &fakeEC2{missing: true}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-missing"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
}

func TestVMDriver_ActionErrorOnStop(t *testing.T) {
	fake := &fakeEC2{state: ec2types.InstanceStateNameRunning, actionErr: errors.New("denied")}
	d := testVMDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "i-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
	require.NotNil(t, res.LastState)
	require.NotNil(t, res.LastState.VM)
	assert.Equal(t, string(ec2types.InstanceStateNameRunning), res.LastState.VM.InstanceState)
}
