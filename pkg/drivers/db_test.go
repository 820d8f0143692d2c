package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/scheduler/pkg/types"
)

type fakeRDS struct {
	status      *string
	missing     bool
	describeErr error
	actionErr   error
	started     bool
	stopped     bool
}

func (f *fakeRDS) DescribeDBClusters(ctx context.Context, in *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.missing {
		return &rds.DescribeDBClustersOutput{}, nil
	}
	return &rds.DescribeDBClustersOutput{DBClusters: []rdstypes.DBCluster{{Status: f.status}}}, nil
}

func (f *fakeRDS) StartDBCluster(ctx context.Context, in *rds.StartDBClusterInput, optFns ...func(*rds.Options)) (*rds.StartDBClusterOutput, error) {
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	f.started = true
	return &rds.StartDBClusterOutput{}, nil
}

func (f *fakeRDS) StopDBCluster(ctx context.Context, in *rds.StopDBClusterInput, optFns ...func(*rds.Options)) (*rds.StopDBClusterOutput, error) {
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	f.stopped = true
	return &rds.StopDBClusterOutput{}, nil
}

func testDBDriver(family types.Family, client RDSAPI) *DBDriver {
	return &DBDriver{family: family, NewClient: func(types.AccountCredentials) RDSAPI { return client }}
}

func strp(s string) *string { return &s }

func TestDBDriver_StopsAvailableCluster(t *testing.T) {
	fake := &fakeRDS{status: strp("available")}
	d := testDBDriver(types.FamilyRDS, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.True(t, fake.stopped)
	require.NotNil(t, res.LastState.DB)
	assert.Equal(t, "available", res.LastState.DB.DBStatus)
}

func TestDBDriver_NeverStopsTransitionalState(t *testing.T) {
	fake := &fakeRDS{status: strp("backing-up")}
	d := testDBDriver(types.FamilyRDS, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ActionSkip, res.Action)
	assert.False(t, fake.stopped)
}

func TestDBDriver_SkipsStartWhenStarting(t *testing.T) {
	fake := &fakeRDS{status: strp("starting")}
	d := testDBDriver(types.FamilyDocDB, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-1"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ActionSkip, res.Action)
	assert.False(t, fake.started)
	assert.Equal(t, types.FamilyDocDB, res.Family)
}

func TestDBDriver_StartsStoppedCluster(t *testing.T) {
	fake := &fakeRDS{status: strp("stopped")}
	d := testDBDriver(types.FamilyRDS, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-1"}, types.Schedule{}, types.ActionStart,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.True(t, fake.started)
}

func TestDBDriver_DryRunDoesNotCallAWS(t *testing.T) {
	fake := &fakeRDS{status: strp("available")}
	d := testDBDriver(types.FamilyRDS, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{DryRun: true}, nil)

	assert.Equal(t, types.ResultSuccess, res.Status)
	assert.False(t, fake.stopped)
}

func TestDBDriver_NotFound(t *testing.T) {
	fake := &fakeRDS{missing: true}
	d := testDBDriver(types.FamilyRDS, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-missing"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
}

func TestDBDriver_ProviderErrorOnAction(t *testing.T) {
	fake := &fakeRDS{status: strp("available"), actionErr: errors.New("denied")}
	d := testDBDriver(types.FamilyRDS, fake)

	res := d.Process(context.Background(), types.ResourceRef{ID: "cluster-1"}, types.Schedule{}, types.ActionStop,
		types.AccountCredentials{}, Metadata{}, nil)

	assert.Equal(t, types.ResultFailed, res.Status)
	require.NotNil(t, res.LastState)
	require.NotNil(t, res.LastState.DB)
	assert.Equal(t, "available", res.LastState.DB.DBStatus)
}
