package drivers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

// RDSAPI is the subset of *rds.Client the db driver depends on. Amazon
// DocumentDB's control plane exposes the same describe/start/stop verbs
// against the same SDK, so one driver serves both rds and docdb families.
type RDSAPI interface {
	DescribeDBClusters(ctx context.Context, in *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error)
	StartDBCluster(ctx context.Context, in *rds.StartDBClusterInput, optFns ...func(*rds.Options)) (*rds.StartDBClusterOutput, error)
	StopDBCluster(ctx context.Context, in *rds.StopDBClusterInput, optFns ...func(*rds.Options)) (*rds.StopDBClusterOutput, error)
}

const (
	dbStatusAvailable = "available"
	dbStatusStarting  = "starting"
)

// DBDriver handles the rds and docdb resource families.
type DBDriver struct {
	family    types.Family
	NewClient func(creds types.AccountCredentials) RDSAPI
}

// NewRDSDriver constructs a DBDriver for the rds family.
func NewRDSDriver() *DBDriver { return newDBDriver(types.FamilyRDS) }

// NewDocDBDriver constructs a DBDriver for the docdb family.
func NewDocDBDriver() *DBDriver { return newDBDriver(types.FamilyDocDB) }

func newDBDriver(family types.Family) *DBDriver {
	return &DBDriver{
		family: family,
		NewClient: func(creds types.AccountCredentials) RDSAPI {
			return rds.NewFromConfig(awsConfig(creds))
		},
	}
}

func (d *DBDriver) Family() types.Family { return d.family }

// Process implements the rds/docdb desired-state rule: start iff current
// not in {available, starting}; stop iff current == available. Clusters
// already in a transitional state are never targeted for stop.
func (d *DBDriver) Process(ctx context.Context, ref types.ResourceRef, sched types.Schedule, action types.Action,
	creds types.AccountCredentials, meta Metadata, _ *types.LastState) types.PerResourceResult {
	defer observeDriverCall(d.family)()

	client := d.NewClient(creds)
	out, err := client.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{DBClusterIdentifier: &ref.ID})
	if err != nil {
		res := failResult(ref, action, fmt.Errorf("describe cluster %s: %w", ref.ID, schedulererr.ErrProvider))
		recordAudit(meta, d.family, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(d.family, action, types.ResultFailed)
		return res
	}
	if len(out.DBClusters) == 0 {
		res := failResult(ref, action, fmt.Errorf("cluster %s: %w", ref.ID, schedulererr.ErrResourceNotFound))
		recordAudit(meta, d.family, action, ref.ID, types.ResultFailed, types.SeverityHigh, "cluster not found", sched.TenantID, creds.Region)
		recordActionMetric(d.family, action, types.ResultFailed)
		return res
	}
	current := derefString(out.DBClusters[0].Status)
	snapshot := &types.LastState{Family: d.family, DB: &types.DBState{DBStatus: current}}

	isNoOp := (action == types.ActionStart && (current == dbStatusAvailable || current == dbStatusStarting)) ||
		(action == types.ActionStop && current != dbStatusAvailable)

	if isNoOp {
		recordActionMetric(d.family, types.ActionSkip, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: d.family, Action: types.ActionSkip, Status: types.ResultSuccess, LastState: snapshot}
	}

	if meta.DryRun {
		recordActionMetric(d.family, action, types.ResultSuccess)
		return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: d.family, Action: action, Status: types.ResultSuccess, LastState: snapshot}
	}

	if action == types.ActionStart {
		_, err = client.StartDBCluster(ctx, &rds.StartDBClusterInput{DBClusterIdentifier: &ref.ID})
	} else {
		_, err = client.StopDBCluster(ctx, &rds.StopDBClusterInput{DBClusterIdentifier: &ref.ID})
	}
	if err != nil {
		recordAudit(meta, d.family, action, ref.ID, types.ResultFailed, types.SeverityHigh, err.Error(), sched.TenantID, creds.Region)
		recordActionMetric(d.family, action, types.ResultFailed)
		return types.PerResourceResult{
			ARN: ref.ARN, ResourceID: ref.ID, Family: d.family, Action: action,
			Status: types.ResultFailed, Error: fmt.Errorf("%s cluster %s: %w", action, ref.ID, schedulererr.ErrProvider).Error(),
			LastState: snapshot,
		}
	}

	recordAudit(meta, d.family, action, ref.ID, types.ResultSuccess, types.SeverityMedium, "", sched.TenantID, creds.Region)
	recordActionMetric(d.family, action, types.ResultSuccess)
	return types.PerResourceResult{ARN: ref.ARN, ResourceID: ref.ID, Family: d.family, Action: action, Status: types.ResultSuccess, LastState: snapshot}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
