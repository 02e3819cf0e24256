// Package sqlite implements the SQLite storage backend for caretrack's
// offline store: cached remote tables, the pending mutation queue, sync
// metadata and baseline snapshots.
package sqlite

// Schema DDL for all tables. Statements are idempotent so Attach can run them
// against an existing database file.
const (
	createCachedData = `CREATE TABLE IF NOT EXISTS cached_data (
    table_name TEXT NOT NULL,
    position INTEGER NOT NULL,
    record_id TEXT NOT NULL,
    data TEXT NOT NULL,
    cached_at TEXT NOT NULL,
    PRIMARY KEY (table_name, position)
);`

	createPendingMutations = `CREATE TABLE IF NOT EXISTS pending_mutations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    mutation_id TEXT NOT NULL UNIQUE,
    table_name TEXT NOT NULL,
    operation TEXT NOT NULL,
    payload TEXT NOT NULL,
    enqueued_at TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0
);`

	createSyncMetadata = `CREATE TABLE IF NOT EXISTS sync_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	createBaselines = `CREATE TABLE IF NOT EXISTS baselines (
    baseline_id TEXT PRIMARY KEY,
    label TEXT NOT NULL DEFAULT '',
    captured_at TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    compliance_score REAL NOT NULL,
    fit_for_audit_score REAL NOT NULL,
    driver_details TEXT NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxCachedDataRecord      = `CREATE INDEX IF NOT EXISTS idx_cached_data_record ON cached_data(table_name, record_id);`
	idxPendingMutationsTable = `CREATE INDEX IF NOT EXISTS idx_pending_mutations_table ON pending_mutations(table_name);`
	idxBaselinesCapturedAt   = `CREATE INDEX IF NOT EXISTS idx_baselines_captured_at ON baselines(captured_at);`
)

// schemaDDL lists all CREATE TABLE statements.
var schemaDDL = []string{
	createCachedData,
	createPendingMutations,
	createSyncMetadata,
	createBaselines,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxCachedDataRecord,
	idxPendingMutationsTable,
	idxBaselinesCapturedAt,
}

// dataTables lists every table cleared by PurgeAll.
var dataTables = []string{
	"cached_data",
	"pending_mutations",
	"sync_metadata",
	"baselines",
}
