package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/cuemby/scheduler/pkg/metrics"
	"github.com/cuemby/scheduler/pkg/schedulererr"
	"github.com/cuemby/scheduler/pkg/types"
)

const (
	indexByStatus = "by-status"
	indexByType   = "by-type"
)

// item is the wire shape every entity is marshalled into: the single-table
// pk/sk pair plus a flat bag of attributes, mirroring the store key layout
// the engine depends on (see GLOSSARY / §6).
type item struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	Type   string `dynamodbav:"type"`
	Status string `dynamodbav:"status,omitempty"`
	TTL    int64  `dynamodbav:"ttl,omitempty"`
	Data   []byte `dynamodbav:"data"`
}

// DynamoDBClient is the subset of *dynamodb.Client this package depends on,
// narrowed to an interface so tests can supply a fake.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore is the production Store backed by a single DynamoDB table.
type DynamoStore struct {
	client    DynamoDBClient
	tableName string
	logger    zerolog.Logger
}

// NewDynamoStore wires a DynamoStore against an already-configured client.
func NewDynamoStore(client DynamoDBClient, tableName string, logger zerolog.Logger) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

func scheduleKey(tenantID, scheduleID string) (string, string) {
	return fmt.Sprintf("TENANT#%s#SCHEDULE#%s", tenantID, scheduleID), "METADATA"
}

func accountKey(tenantID, accountID string) (string, string) {
	return fmt.Sprintf("TENANT#%s#ACCOUNT#%s", tenantID, accountID), "METADATA"
}

func executionSK(ts time.Time, executionID string) string {
	return fmt.Sprintf("EXEC#%s#%s", ts.UTC().Format(time.RFC3339Nano), executionID)
}

func auditKey(id string, ts time.Time) (string, string) {
	return fmt.Sprintf("LOG#%s", id), ts.UTC().Format(time.RFC3339Nano)
}

func statusStr(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func (d *DynamoStore) ListActiveSchedules(ctx context.Context, tenantID string) ([]types.Schedule, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "list_active_schedules")

	schedules, err := d.queryByIndex(ctx, indexByStatus, "type", "schedule", "status", "active", tenantID)
	if err == nil && len(schedules) > 0 {
		return decodeSchedules(schedules)
	}

	metrics.StoreFallbackReads.WithLabelValues("schedule").Inc()
	all, ferr := d.queryByIndex(ctx, indexByType, "type", "schedule", "", "", tenantID)
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("list active schedules (primary and fallback failed): %w", schedulererr.ErrStore)
		}
		return nil, fmt.Errorf("list active schedules fallback: %w", schedulererr.ErrStore)
	}
	decoded, derr := decodeSchedules(all)
	if derr != nil {
		return nil, derr
	}
	active := make([]types.Schedule, 0, len(decoded))
	for _, s := range decoded {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

func (d *DynamoStore) GetSchedule(ctx context.Context, tenantID, scheduleID string) (*types.Schedule, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "get_schedule")

	pk, sk := scheduleKey(tenantID, scheduleID)
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"pk": &ddbtypes.AttributeValueMemberS{Value: pk},
			"sk": &ddbtypes.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", scheduleID, schedulererr.ErrStore)
	}
	if out.Item == nil {
		return nil, nil
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", scheduleID, schedulererr.ErrStore)
	}
	var sched types.Schedule
	if err := unmarshalJSON(it.Data, &sched); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", scheduleID, schedulererr.ErrStore)
	}
	return &sched, nil
}

func (d *DynamoStore) ListActiveAccounts(ctx context.Context, tenantID string) ([]types.Account, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "list_active_accounts")

	items, err := d.queryByIndex(ctx, indexByStatus, "type", "account", "status", "active", tenantID)
	if err == nil && len(items) > 0 {
		return decodeAccounts(items)
	}

	metrics.StoreFallbackReads.WithLabelValues("account").Inc()
	all, ferr := d.queryByIndex(ctx, indexByType, "type", "account", "", "", tenantID)
	if ferr != nil {
		return nil, fmt.Errorf("list active accounts fallback: %w", schedulererr.ErrStore)
	}
	decoded, derr := decodeAccounts(all)
	if derr != nil {
		return nil, derr
	}
	active := make([]types.Account, 0, len(decoded))
	for _, a := range decoded {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

func (d *DynamoStore) WriteExecutionRecord(ctx context.Context, record types.ExecutionRecord) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "write_execution_record")

	pk, _ := scheduleKey(record.TenantID, record.ScheduleID)
	sk := executionSK(record.StartTime, record.ExecutionID)
	data, err := marshalJSON(record)
	if err != nil {
		return fmt.Errorf("marshal execution record %s: %w", record.ExecutionID, schedulererr.ErrStore)
	}

	av, err := attributevalue.MarshalMap(item{
		PK:     pk,
		SK:     sk,
		Type:   "execution",
		Status: string(record.Status),
		TTL:    executionTTL(record.StartTime).Unix(),
		Data:   data,
	})
	if err != nil {
		return fmt.Errorf("marshal execution item %s: %w", record.ExecutionID, schedulererr.ErrStore)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk) AND attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("write execution record %s: %w", record.ExecutionID, schedulererr.ErrStore)
	}
	return nil
}

func (d *DynamoStore) UpdateExecutionRecord(ctx context.Context, tenantID, scheduleID, executionID string, update ExecutionUpdate) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "update_execution_record")

	// The sort key is timestamp-prefixed, so a true update requires
	// reading the record back to recover its start_time-derived sk. A
	// single-table design in production would carry a GSI keyed purely on
	// execution_id for O(1) updates; here we scan the schedule's recent
	// executions for the matching id, consistent with query_last_successful_stop's
	// own newest-first scan contract.
	pk, _ := scheduleKey(tenantID, scheduleID)
	sk, existing, err := d.findExecutionSK(ctx, pk, executionID)
	if err != nil {
		return fmt.Errorf("update execution record %s: %w", executionID, schedulererr.ErrStore)
	}
	if sk == "" {
		return fmt.Errorf("update execution record %s: not found: %w", executionID, schedulererr.ErrStore)
	}

	existing.EndTime = update.EndTime
	existing.DurationMS = update.DurationMS
	existing.Status = update.Status
	existing.Started = update.Started
	existing.Stopped = update.Stopped
	existing.Failed = update.Failed
	existing.ErrorMessage = update.ErrorMessage
	existing.ScheduleMetadata = update.ScheduleMetadata

	data, err := marshalJSON(existing)
	if err != nil {
		return fmt.Errorf("marshal execution update %s: %w", executionID, schedulererr.ErrStore)
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"pk": &ddbtypes.AttributeValueMemberS{Value: pk},
			"sk": &ddbtypes.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression: aws.String("SET #data = :data, #status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#data":   "data",
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":   &ddbtypes.AttributeValueMemberB{Value: data},
			":status": &ddbtypes.AttributeValueMemberS{Value: string(update.Status)},
		},
	})
	if err != nil {
		return fmt.Errorf("update execution record %s: %w", executionID, schedulererr.ErrStore)
	}
	return nil
}

func (d *DynamoStore) findExecutionSK(ctx context.Context, pk, executionID string) (string, types.ExecutionRecord, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: "EXEC#"},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return "", types.ExecutionRecord{}, err
	}
	for _, raw := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			continue
		}
		if !strings.HasSuffix(it.SK, "#"+executionID) {
			continue
		}
		var rec types.ExecutionRecord
		if err := unmarshalJSON(it.Data, &rec); err != nil {
			continue
		}
		return it.SK, rec, nil
	}
	return "", types.ExecutionRecord{}, nil
}

func (d *DynamoStore) AppendAudit(ctx context.Context, entry types.AuditEntry) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "append_audit")

	pk, sk := auditKey(entry.ID, entry.Timestamp)
	data, err := marshalJSON(entry)
	if err != nil {
		metrics.AuditEntriesDropped.Inc()
		return fmt.Errorf("marshal audit entry %s: %w", entry.ID, schedulererr.ErrStore)
	}
	av, err := attributevalue.MarshalMap(item{
		PK:   pk,
		SK:   sk,
		Type: "audit",
		TTL:  auditTTL(entry.Timestamp).Unix(),
		Data: data,
	})
	if err != nil {
		metrics.AuditEntriesDropped.Inc()
		return fmt.Errorf("marshal audit item %s: %w", entry.ID, schedulererr.ErrStore)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	}); err != nil {
		metrics.AuditEntriesDropped.Inc()
		return fmt.Errorf("append audit %s: %w", entry.ID, schedulererr.ErrStore)
	}
	metrics.AuditEntriesWritten.Inc()
	return nil
}

func (d *DynamoStore) QueryLastSuccessfulStop(ctx context.Context, tenantID, scheduleID, resourceARN string, horizon int) (*types.PerResourceResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StoreOperationDuration, "query_last_successful_stop")

	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	pk, _ := scheduleKey(tenantID, scheduleID)
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: "EXEC#"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(horizon)),
	})
	if err != nil {
		return nil, fmt.Errorf("query last successful stop for %s: %w", resourceARN, schedulererr.ErrStore)
	}

	for _, raw := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			continue
		}
		var rec types.ExecutionRecord
		if err := unmarshalJSON(it.Data, &rec); err != nil {
			continue
		}
		for _, results := range rec.ScheduleMetadata {
			for _, r := range results {
				if r.ARN == resourceARN && r.Action == types.ActionStop && r.Status == types.ResultSuccess {
					res := r
					return &res, nil
				}
			}
		}
	}
	return nil, nil
}

func (d *DynamoStore) Close() error { return nil }

// queryByIndex queries a GSI by (attrName=attrValue[, statusName=statusValue])
// scoped to the tenant, used by both the primary and fallback read paths.
func (d *DynamoStore) queryByIndex(ctx context.Context, index, typeAttr, typeValue, statusAttr, statusValue, tenantID string) ([]item, error) {
	keyCond := "#t = :t"
	names := map[string]string{"#t": typeAttr}
	values := map[string]ddbtypes.AttributeValue{
		":t": &ddbtypes.AttributeValueMemberS{Value: typeValue},
	}
	if statusAttr != "" {
		keyCond += " AND #s = :s"
		names["#s"] = statusAttr
		values[":s"] = &ddbtypes.AttributeValueMemberS{Value: statusValue}
	}

	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return nil, err
	}

	items := make([]item, 0, len(out.Items))
	prefix := fmt.Sprintf("TENANT#%s#", tenantID)
	for _, raw := range out.Items {
		var it item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			continue
		}
		if strings.HasPrefix(it.PK, prefix) {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].PK < items[j].PK })
	return items, nil
}

func decodeSchedules(items []item) ([]types.Schedule, error) {
	out := make([]types.Schedule, 0, len(items))
	for _, it := range items {
		var s types.Schedule
		if err := unmarshalJSON(it.Data, &s); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", schedulererr.ErrStore)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeAccounts(items []item) ([]types.Account, error) {
	out := make([]types.Account, 0, len(items))
	for _, it := range items {
		var a types.Account
		if err := unmarshalJSON(it.Data, &a); err != nil {
			return nil, fmt.Errorf("decode account: %w", schedulererr.ErrStore)
		}
		out = append(out, a)
	}
	return out, nil
}
