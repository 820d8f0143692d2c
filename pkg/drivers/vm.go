package drivers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

// EC2API is the subset of *ec2.Client the vm driver depends on.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// VMDriver handles the vm resource family against EC2.
type VMDriver struct {
	// NewClient is overridden in tests; production gets ec2.NewFromConfig.
	NewClient func(creds types.AccountCredentials) EC2API
}

// NewVMDriver constructs a VMDriver bound to the real EC2 SDK.
func NewVMDriver() *VMDriver {
	return &VMDriver{
		NewClient: func(creds types.AccountCredentials) EC2API {
			return ec2.NewFromConfig(awsConfig(creds))
		},
	}
}

func (d *VMDriver) Family() types.Family { return types.FamilyVM }

// Process implements the vm family's desired-state rule: start iff current
// not in {running, pending}; stop iff current == running. There is no
// first-time safeguard — a resource newly added to a schedule may be
// started even with no prior stop record.
func (d *VMDriver) Process(ctx context.Context, ref types.ResourceRef, sched types.Schedule, action types.Action,
	creds types.AccountCredentials, meta Metadata, _ *types.LastState) types.PerResourceResult {
	defer observeDriverCall(types.FamilyVM)()

	client := d.NewClient(creds)
	out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{ref.ID}})
	if err != nil {
		res := failResult(ref, action, fmt.Errorf("describe instance %s: %w", ref.ID, schedulererr.ErrProvider))
		recordAudit(meta, types.FamilyVM, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyVM, action, types.ResultFailed)
		return res
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		res := failResult(ref, action, fmt.Errorf("instance %s: %w", ref.ID, schedulererr.ErrResourceNotFound))
		recordAudit(meta, types.FamilyVM, action, ref.ID, types.ResultFailed, types.SeverityHigh, "instance not found", sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyVM, action, types.ResultFailed)
		return res
	}
	inst := out.Reservations[0].Instances[0]
	current := string(inst.State.Name)
	instanceType := string(inst.InstanceType)

	snapshot := &types.LastState{Family: types.FamilyVM, VM: &types.VMState{InstanceState: current, InstanceType: instanceType}}

	isNoOp := (action == types.ActionStart && (current == string(ec2types.InstanceStateNameRunning) || current == string(ec2types.InstanceStateNamePending))) ||
		(action == types.ActionStop && current != string(ec2types.InstanceStateNameRunning))

	if isNoOp {
		recordActionMetric(types.FamilyVM, types.ActionSkip, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyVM, Action: types.ActionSkip, Status: types.ResultSuccess, LastState: snapshot}
	}

	if meta.DryRun {
		recordActionMetric(types.FamilyVM, action, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyVM, Action: action, Status: types.ResultSuccess, LastState: snapshot}
	}

	if action == types.ActionStart {
		_, err = client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{ref.ID}})
	} else {
		_, err = client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{ref.ID}})
	}
	if err != nil {
		recordAudit(meta, types.FamilyVM, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(types.FamilyVM, action, types.ResultFailed)
		return types.PerResourceResult{
			ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyVM, Action: action,
			Status: types.ResultFailed, Error: fmt.Errorf("%s instance %s: %w", action, ref.ID, schedulererr.ErrProvider).Error(),
			LastState: snapshot,
		}
	}

	recordAudit(meta, types.FamilyVM, action, ref.ID, types.ResultSuccess, types.SeverityMedium, "", sched.TenantID, creds.Region)
	recordActionMetric(types.FamilyVM, action, types.ResultSuccess)
	return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: types.FamilyVM, Action: action, Status: types.ResultSuccess, LastState: snapshot}
}
