package drivers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

// ECSAPI is the subset of *ecs.Client the ecs driver depends on.
type ECSAPI interface {
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	UpdateService(ctx context.Context, in *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

const defaultECSDesiredCount = 1

// ECSDriver handles the ecs (container service) resource family.
type ECSDriver struct {
	NewClient func(creds types.AccountCredentials) ECSAPI

	// QueryLastSuccessfulStop resolves the prior desired_count from
	// execution history, since unlike vm/rds the ecs start target is not
	// recoverable from the service's own current state.
	QueryLastSuccessfulStop func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error)
}

// NewECSDriver constructs an ECSDriver bound to the real ECS SDK.
func NewECSDriver(queryLastStop func(ctx context.Context, tenantID, scheduleID, resourceARN string) (*types.PerResourceResult, error)) *ECSDriver {
	return &ECSDriver{
		NewClient: func(creds types.AccountCredentials) ECSAPI {
			return ecs.NewFromConfig(awsConfig(creds))
		},
		QueryLastSuccessfulStop: queryLastStop,
	}
}

func (d *ECSDriver) Family() types.Family { return types.FamilyECS }

// Process implements the ecs desired-state rule: stop sets desired_count=0,
// capturing the prior desired_count and observed running_count; start reads
// the prior desired_count from execution history (query_last_successful_stop),
// defaulting to 1 if none found. Skip iff the stop-target is already zero,
// or the start-target already matches the prior desired_count. Requires
// ClusterARN.
func (d *ECSDriver) Process(ctx context.Context, ref types.ResourceRef, sched types.Schedule, action types.Action,
	creds types.AccountCredentials, meta Metadata, _ *types.LastState) types.PerResourceResult {
	defer observeDriverCall(types.FamilyECS)()

	if ref.ClusterARN == "" {
		res := failResult(ref, action, fmt.Errorf("ecs service %s: missing cluster_arn: %w", ref.ID, schedulererr.ErrConfig))
		recordAudit(meta, types.FamilyECS, action, ref.ID, types.ResultFailed, types.SeverityHigh, "missing cluster_arn", sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyECS, action, types.ResultFailed)
		return res
	}

	client := d.NewClient(creds)
	out, err := client.DescribeServices(ctx, &ecs.DescribeServicesInput{Cluster: &ref.ClusterARN, Services: []string{ref.ID}})
	if err != nil || len(out.Services) == 0 {
		notFound := err == nil
		wrapped := schedulererr.ErrProvider
		if notFound {
			wrapped = schedulererr.ErrResourceNotFound
		}
		msg := "service not found"
		if err != nil {
			msg = err.Error()
		}
		res := failResult(ref, action, fmt.Errorf("describe service %s: %w", ref.ID, wrapped))
		recordAudit(meta, types.FamilyECS, action, ref.ID, types.ResultFailed, types.SeverityHigh, msg, sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyECS, action, types.ResultFailed)
		return res
	}

	svc := out.Services[0]
	currentDesired := int(svc.DesiredCount)
	currentRunning := int(svc.RunningCount)
	snapshot := &types.LastState{Family: types.FamilyECS, ECS: &types.ECSState{DesiredCount: currentDesired, RunningCount: currentRunning}}

	var target int
	if action == types.ActionStop {
		target = 0
	} else {
		target = defaultECSDesiredCount
		if d.QueryLastSuccessfulStop != nil {
			if prior, qerr := d.QueryLastSuccessfulStop(ctx, sched.TenantID, sched.ID, ref.ARN); qerr == nil && prior != nil && prior.LastState != nil && prior.LastState.ECS != nil {
				target = prior.LastState.ECS.DesiredCount
			}
		}
	}

	if currentDesired == target {
		recordActionMetric(types.FamilyECS, types.ActionSkip, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyECS, Action: types.ActionSkip, Status: types.ResultSuccess, LastState: snapshot}
	}

	if meta.DryRun {
		recordActionMetric(types.FamilyECS, action, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyECS, Action: action, Status: types.ResultSuccess, LastState: snapshot}
	}

	_, err = client.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      &ref.ClusterARN,
		Service:      &ref.ID,
		DesiredCount: aws.Int32(int32(target)),
	})
	if err != nil {
		recordAudit(meta, types.FamilyECS, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyECS, action, types.ResultFailed)
		return types.PerResourceResult{
			ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyECS, Action: action,
			Status: types.ResultFailed, Error: fmt.Errorf("update service %s: %w", ref.ID, schedulererr.ErrProvider).Error(),
			LastState: snapshot,
		}
	}

	recordAudit(meta, types.FamilyECS, action, ref.ID, types.ResultSuccess, types.SeverityMedium, "", sched.TenantID, creds.Region)
	recordActionMetric(types.FamilyECS, action, types.ResultSuccess)
	return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyECS, Action: action, Status: types.ResultSuccess, LastState: snapshot}
}
