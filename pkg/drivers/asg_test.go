package drivers

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

type fakeASG struct {
	group       *asgtypes.AutoScalingGroup
	describeErr error
	updateErr   error
	updated     *autoscaling.UpdateAutoScalingGroupInput
}

func (f *fakeASG) DescribeAutoScalingGroups(ctx context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.group == nil {
		return &autoscaling.DescribeAutoScalingGroupsOutput{}, nil
	}
	return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: []asgtypes.AutoScalingGroup{*f.group}}, nil
}

func (f *fakeASG) UpdateAutoScalingGroup(ctx context.Context, in *autoscaling.UpdateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = in
	return &autoscaling.UpdateAutoScalingGroupOutput{}, nil
}

func testASGDriver(client ASGAPI) *ASGDriver {
	return &ASGDriver{NewClient: func(types.AccountCredentials) ASGAPI { return client }}
}

func TestASGDriver_StopCapturesPriorTriple(t *testing.T) {
	fake := &fakeASG{group: &asgtypes.AutoScalingGroup{MinSize: i32p(2), MaxSize: i32p(5), DesiredCapacity: i32p(3)}}
	d := testASGDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	require.Equal(t, types.ResultSuccess, res.Status)
	require.NotNil(t, fake.updated)
	assert.EqualValues(t, 0, *fake.updated.MinSize)
	assert.EqualValues(t, 0, *fake.updated.MaxSize)
	assert.EqualValues(t, 0, *fake.updated.DesiredCapacity)
	require.NotNil(t, res.LastState)
	require.NotNil(t, res.LastState.ASG)
	assert.Equal(t, 2, res.LastState.ASG.MinSize)
	assert.Equal(t, 5, res.LastState.ASG.MaxSize)
	assert.Equal(t, 3, res.LastState.ASG.DesiredCapacity)
}

func TestASGDriver_StartRestoresFromLastState(t *testing.T) {
	fake := &fakeASG{group: &asgtypes.AutoScalingGroup{MinSize: i32p(0), MaxSize: i32p(0), DesiredCapacity: i32p(0)}}
	d := testASGDriver(fake)

	last := &types.LastState{Family: types.FamilyASG, ASG: &types.ASGState{MinSize: 2, MaxSize: 5, DesiredCapacity: 3}}
	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-1"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, last)

	require.Equal(t, types.ResultSuccess, res.Status)
	require.NotNil(t, fake.updated)
	assert.EqualValues(t, 2, *fake.updated.MinSize)
	assert.EqualValues(t, 5, *fake.updated.MaxSize)
	assert.EqualValues(t, 3, *fake.updated.DesiredCapacity)
}

func TestASGDriver_StartDefaultsToOneWhenNoLastState(t *testing.T) {
	fake := &fakeASG{group: &asgtypes.AutoScalingGroup{MinSize: i32p(0), MaxSize: i32p(0), DesiredCapacity: i32p(0)}}
	d := testASGDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-1"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	require.Equal(t, types.ResultSuccess, res.Status)
	require.NotNil(t, fake.updated)
	assert.EqualValues(t, 1, *fake.updated.MinSize)
	assert.EqualValues(t, 1, *fake.updated.MaxSize)
	assert.EqualValues(t, 1, *fake.updated.DesiredCapacity)
}

func TestASGDriver_SkipsWhenAlreadyAtTarget(t *testing.T) {
	fake := &fakeASG{group: &asgtypes.AutoScalingGroup{MinSize: i32p(0), MaxSize: i32p(0), DesiredCapacity: i32p(0)}}
	d := testASGDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ActionSkip, res.Action)
	assert.Nil(t, fake.updated)
}

func TestASGDriver_DryRunDoesNotCallUpdate(t *testing.T) {
	fake := &fakeASG{group: &asgtypes.AutoScalingGroup{MinSize: i32p(2), MaxSize: i32p(5), DesiredCapacity: i32p(3)}}
	d := testASGDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{DryRun: true}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.Nil(t, fake.updated)
}

func TestASGDriver_UpdateFailureRetainsLastState(t *testing.T) {
	fake := &fakeASG{
		group:     &asgtypes.AutoScalingGroup{MinSize: i32p(2), MaxSize: i32p(5), DesiredCapacity: i32p(3)},
		updateErr: assert.AnError,
	}
	d := testASGDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	require.Equal(t, types.ResultFailed, res.Status)
	require.NotNil(t, res.LastState)
	require.NotNil(t, res.LastState.ASG)
	assert.Equal(t, 2, res.LastState.ASG.MinSize)
	assert.Equal(t, 5, res.LastState.ASG.MaxSize)
	assert.Equal(t, 3, res.LastState.ASG.DesiredCapacity)
}

func TestASGDriver_NotFoundIsResourceNotFound(t *testing.T) {
	fake := &fakeASG{}
	d := testASGDriver(fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "asg-missing"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
	assert.Contains(t, res.Error, schedulererr.ErrResourceNotFound.Error())
}

func i32p(v int32) *int32 { return &v }
