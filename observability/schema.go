package observability

import "database/sql"

// Schema contains the complete DDL for the scan history tables.
// Call Init(db) to apply it, or embed the constant in your own schema
// management.
const Schema = `
-- Scan Events: one row per job lifecycle transition.
CREATE TABLE IF NOT EXISTS scan_events (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    job_id TEXT NOT NULL,
    username TEXT NOT NULL,
    providers_count INTEGER NOT NULL DEFAULT 0,
    state TEXT,
    tally TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_events_job ON scan_events(job_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scan_events_username
    ON scan_events(username, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scan_events_time ON scan_events(created_at DESC);

-- Service Heartbeats: liveness probes with Go runtime stats.
CREATE TABLE IF NOT EXISTS service_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    service_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    gc_count INTEGER
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_service_time
    ON service_heartbeats(service_name, timestamp DESC);
`

// Init applies the scan history schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
