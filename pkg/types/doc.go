/*
Package types defines the core data structures shared by every component of
the scheduler engine.

It contains the domain model the orchestrator, drivers, store adapter and
credential broker all speak: schedules and accounts (owned by the external
configuration surface, read-only to the engine), execution records and audit
entries (owned by the engine), and per-resource results (owned by the driver
that produced them, aggregated by the orchestrator).

# Core Types

Configuration (read-only to the engine):
  - Schedule: a tenant's time window plus the resources it governs
  - ResourceRef: one cloud resource, tagged with the family that drives it
  - Account: a tenant cloud account the engine may assume a role into

Execution (owned by the engine):
  - ExecutionRecord: the per-schedule outcome of one invocation
  - PerResourceResult: the outcome of one driver call against one resource
  - LastState: a tagged variant over the five families' snapshot shapes
  - AuditEntry: an append-only log record, one per action or error

Invocation:
  - InvocationPayload: the optional-fields record that starts a run
  - InvocationResult: the summary record a run returns

# last_state by family

	vm    -> VMState{instance_state, instance_type?}
	rds   -> DBState{db_status}
	docdb -> DBState{db_status}
	ecs   -> ECSState{desired_count, running_count}
	asg   -> ASGState{min_size, max_size, desired_capacity}

LastState carries a Family discriminant and exactly one populated typed
field; callers switch on Family rather than doing untyped map access.

# Usage

Constructing a schedule:

	sched := types.Schedule{
		ID:          "sch-1",
		TenantID:    "acme",
		StartHHMMSS: "09:00:00",
		EndHHMMSS:   "17:00:00",
		Timezone:    "America/New_York",
		ActiveDays:  []types.Weekday{types.Monday, types.Tuesday},
		Active:      true,
		Resources: []types.ResourceRef{
			{ID: "i-001", Type: types.FamilyVM, ARN: "arn:aws:ec2:us-east-1:...:instance/i-001"},
		},
	}

Recording a stop with its pre-mutation snapshot:

	result := types.PerResourceResult{
		ARN:    sched.Resources[0].ARN,
		Family: types.FamilyVM,
		Action: types.ActionStop,
		Status: types.ResultSuccess,
		LastState: &types.LastState{
			Family: types.FamilyVM,
			VM:     &types.VMState{InstanceState: "running"},
		},
	}

# Thread Safety

Every type here is a plain value/struct intended to be built once per
invocation and handed down the call chain; nothing is mutated concurrently.
The orchestrator owns the only mutable aggregate (the in-progress
ExecutionRecord) and synchronizes writes to it itself.
*/
package types
