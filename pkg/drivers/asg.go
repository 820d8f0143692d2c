package drivers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

// ASGAPI is the subset of *autoscaling.Client the asg driver depends on.
type ASGAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	UpdateAutoScalingGroup(ctx context.Context, in *autoscaling.UpdateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error)
}

const defaultASGSize = 1

// ASGDriver handles the asg (auto-scaling group) resource family.
type ASGDriver struct {
	NewClient func(creds types.AccountCredentials) ASGAPI
}

// NewASGDriver constructs an ASGDriver bound to the real Auto Scaling SDK.
func NewASGDriver() *ASGDriver {
	return &ASGDriver{
		NewClient: func(creds types.AccountCredentials) ASGAPI {
			return autoscaling.NewFromConfig(awsConfig(creds))
		},
	}
}

func (d *ASGDriver) Family() types.Family { return types.FamilyASG }

// Process implements the asg desired-state rule: stop sets
// (min,max,desired)=(0,0,0), capturing the prior triple; start restores the
// triple from lastState (the most recent stop record), defaulting to
// (1,1,1) if absent. Skip iff current already matches the target.
func (d *ASGDriver) Process(ctx context.Context, ref types.ResourceRef, sched types.Schedule, action types.Action,
	creds types.AccountCredentials, meta Metadata, lastState *types.LastState) types.PerResourceResult {
	defer observeDriverCall(types.FamilyASG)()

	client := d.NewClient(creds)
	out, err := client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{AutoScalingGroupNames: []string{ref.ID}})
	if err != nil {
		res := failResult(ref, action, fmt.Errorf("describe asg %s: %w", ref.ID, schedulererr.ErrProvider))
		recordAudit(meta, types.FamilyASG, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyASG, action, types.ResultFailed)
		return res
	}
	if len(out.AutoScalingGroups) == 0 {
		res := failResult(ref, action, fmt.Errorf("asg %s: %w", ref.ID, schedulererr.ErrResourceNotFound))
		recordAudit(meta, types.FamilyASG, action, ref.ID, types.ResultFailed, types.SeverityHigh, "asg not found", sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyASG, action, types.ResultFailed)
		return res
	}

	group := out.AutoScalingGroups[0]
	curMin, curMax, curDesired := int(group.MinSize), int(group.MaxSize), int(group.DesiredCapacity)
	snapshot := &types.LastState{Family: types.FamilyASG, ASG: &types.ASGState{MinSize: curMin, MaxSize: curMax, DesiredCapacity: curDesired}}

	var targetMin, targetMax, targetDesired int
	if action == types.ActionStop {
		targetMin, targetMax, targetDesired = 0, 0, 0
	} else if lastState != nil && lastState.ASG != nil {
		targetMin, targetMax, targetDesired = lastState.ASG.MinSize, lastState.ASG.MaxSize, lastState.ASG.DesiredCapacity
	} else {
		targetMin, targetMax, targetDesired = defaultASGSize, defaultASGSize, defaultASGSize
	}

	if curMin == targetMin && curMax == targetMax && curDesired == targetDesired {
		recordActionMetric(types.FamilyASG, types.ActionSkip, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyASG, Action: types.ActionSkip, Status: types.ResultSuccess, LastState: snapshot}
	}

	if meta.DryRun {
		recordActionMetric(types.FamilyASG, action, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyASG, Action: action, Status: types.ResultSuccess, LastState: snapshot}
	}

	_, err = client.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: &ref.ID,
		MinSize:              aws.Int32(int32(targetMin)),
		MaxSize:              aws.Int32(int32(targetMax)),
		DesiredCapacity:      aws.Int32(int32(targetDesired)),
	})
	if err != nil {
		recordAudit(meta, types.FamilyASG, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyASG, action, types.ResultFailed)
		return types.PerResourceResult{
			ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyASG, Action: action,
			Status: types.ResultFailed, Error: fmt.Errorf("update asg %s: %w", ref.ID, schedulererr.ErrProvider).Error(),
			LastState: snapshot,
		}
	}

	recordAudit(meta, types.FamilyASG, action, ref.ID, types.ResultSuccess, types.SeverityMedium, "", sched.TenantID, creds.Region)
	recordActionMetric(types.FamilyASG, action, types.ResultSuccess)
	return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyASG, Action: action, Status: types.ResultSuccess, LastState: snapshot}
}
