package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

type fakeECS struct {
	desired     int32
	running     int32
	missing     bool
	describeErr error
	updateErr   error
	updated     *ecs.UpdateServiceInput
}

func (f *fakeECS) DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.missing {
		return &ecs.DescribeServicesOutput{}, nil
	}
	return &ecs.DescribeServicesOutput{Services: []ecstypes.Service{{DesiredCount: f.desired, RunningCount: f.running}}}, nil
}

func (f *fakeECS) UpdateService(ctx context.Context, in *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = in
	return &ecs.UpdateServiceOutput{}, nil
}

func testECSDriver(client ECSAPI, queryLastStop func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error)) *ECSDriver {
	return &ECSDriver{
		NewClient:               func(types.AccountCredentials) ECSAPI { return client },
		QueryLastSuccessfulStop: queryLastStop,
	}
}

func TestECSDriver_MissingClusterARNIsConfigError(t *testing.T) {
	d := testECSDriver(&fakeECS{}, nil)

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
	assert.Contains(t, res.Error, schedulererr.ErrConfig.Error())
}

func TestECSDriver_StopCapturesPriorCounts(t *testing.T) {
	fake := &fakeECS{desired: 4, running: 4}
	d := testECSDriver(fake, nil)

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	require.Equal(t, types.ResultSuccess, res.Status)
	require.NotNil(t, fake.updated)
	assert.EqualValues(t, 0, *fake.updated.DesiredCount)
	require.NotNil(t, res.LastState.ECS)
	assert.Equal(t, 4, res.LastState.ECS.DesiredCount)
	assert.Equal(t, 4, res.LastState.ECS.RunningCount)
}

func TestECSDriver_StartDefaultsToOneWhenNoHistory(t *testing.T) {
	fake := &fakeECS{desired: 0, running: 0}
	d := testECSDriver(fake, func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error) {
		return nil, nil
	})

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	require.Equal(t, types.ResultSuccess, res.Status)
	require.NotNil(t, fake.updated)
	assert.EqualValues(t, 1, *fake.updated.DesiredCount)
}

func TestECSDriver_StartUsesQueriedPriorDesiredCount(t *testing.T) {
	fake := &fakeECS{desired: 0, running: 0}
	d := testECSDriver(fake, func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error) {
		return &types.PerResourceResult{LastState: &types.LastState{Family: types.FamilyECS, ECS: &types.ECSState{DesiredCount: 6, RunningCount: 6}}}, nil
	})

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	require.Equal(t, types.ResultSuccess, res.Status)
	require.NotNil(t, fake.updated)
	assert.EqualValues(t, 6, *fake.updated.DesiredCount)
}

func TestECSDriver_SkipsWhenAlreadyAtTarget(t *testing.T) {
	fake := &fakeECS{desired: 0, running: 0}
	d := testECSDriver(fake, nil)

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ActionSkip, res.Action)
	assert.Nil(t, fake.updated)
}

func TestECSDriver_DryRunDoesNotCallUpdate(t *testing.T) {
	fake := &fakeECS{desired: 4, running: 4}
	d := testECSDriver(fake, nil)

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{DryRun: true}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.Nil(t, fake.updated)
}

func TestECSDriver_ProviderErrorOnUpdate(t *testing.T) {
	fake := &fakeECS{desired: 4, running: 4, updateErr: errors.New("throttled")}
	d := testECSDriver(fake, nil)

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-1", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
	require.NotNil(t, res.LastState)
	require.NotNil(t, res.LastState.ECS)
	assert.Equal(t, 4, res.LastState.ECS.DesiredCount)
	assert.Equal(t, 4, res.LastState.ECS.RunningCount)
}

func TestECSDriver_NotFound(t *testing.T) {
	fake := &fakeECS{missing: true}
	d := testECSDriver(fake, nil)

	res := d.Process(context.Background(), types.ResourceRef{ID: "svc-missing", ClusterARN: "cluster-arn"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
}
