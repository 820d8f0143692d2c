/*
Package store implements the single-table key-value facade the engine
depends on: schedules and accounts (read-only), execution records and audit
entries (engine-owned).

Keys follow the layout:

	Schedule          TENANT#<tid>#SCHEDULE#<sid> / METADATA
	Account           TENANT#<tid>#ACCOUNT#<aid>  / METADATA
	ExecutionRecord   TENANT#<tid>#SCHEDULE#<sid> / EXEC#<iso_ts>#<exec_id>
	AuditEntry        LOG#<id>                    / <iso_ts>

Reads of active schedules/accounts try the by-status GSI first and fall
back to the by-type GSI with an in-memory active==true filter if the
primary view errors or comes back empty; this is a compatibility hedge for
data written before the secondary index existed, not an idempotence
guarantee, so both index attributes must be populated on every write.
*/
package store
