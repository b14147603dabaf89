package storage

// Schema contains the complete DDL for the dommark tables.
const Schema = `
-- Snapshots: one annotation set per page URL
CREATE TABLE IF NOT EXISTS snapshots (
    page_url   TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Event log: annotation lifecycle events for auditing and debugging
CREATE TABLE IF NOT EXISTS event_logs (
    event_id      TEXT PRIMARY KEY,
    event_type    TEXT NOT NULL,
    page_url      TEXT NOT NULL DEFAULT '',
    annotation_id TEXT NOT NULL DEFAULT '',
    details       TEXT NOT NULL DEFAULT '{}',
    success       INTEGER NOT NULL DEFAULT 1,
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_url ON event_logs(page_url);
CREATE INDEX IF NOT EXISTS idx_events_created ON event_logs(created_at);
`
