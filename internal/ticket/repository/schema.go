package repository

import "strings"

// schemaTemplate is applied with CREATE TABLE IF NOT EXISTS on every Open,
// so a fresh SQLite file or MySQL database self-provisions. Column shapes
// are otherwise portable across both backends (TEXT/INTEGER/REAL); the one
// genuine dialect split is the auto-increment primary key syntax, resolved
// by schemaFor per driver.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY %[1]s,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT
);

CREATE TABLE IF NOT EXISTS materials (
	id INTEGER PRIMARY KEY %[1]s,
	name TEXT NOT NULL UNIQUE,
	class TEXT NOT NULL,
	requires_manifest INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY %[1]s,
	name TEXT NOT NULL UNIQUE,
	job_id INTEGER,
	description TEXT
);

CREATE TABLE IF NOT EXISTS destinations (
	id INTEGER PRIMARY KEY %[1]s,
	name TEXT NOT NULL UNIQUE,
	facility_type TEXT,
	address TEXT,
	requires_manifest INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS vendors (
	id INTEGER PRIMARY KEY %[1]s,
	name TEXT NOT NULL UNIQUE,
	code TEXT,
	contact_info TEXT
);

CREATE TABLE IF NOT EXISTS ticket_types (
	id INTEGER PRIMARY KEY %[1]s,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS truck_tickets (
	id INTEGER PRIMARY KEY %[1]s,
	ticket_number TEXT NOT NULL,
	ticket_date TEXT NOT NULL,
	job_id INTEGER NOT NULL,
	material_id INTEGER NOT NULL,
	ticket_type_id INTEGER NOT NULL,
	source_id INTEGER,
	destination_id INTEGER,
	vendor_id INTEGER,
	quantity TEXT NOT NULL,
	quantity_unit TEXT NOT NULL,
	truck_number TEXT,
	manifest_number TEXT,
	file_id TEXT NOT NULL,
	file_page INTEGER NOT NULL,
	file_hash TEXT,
	request_guid TEXT,
	confidence_score REAL,
	processed_by TEXT,
	review_required INTEGER NOT NULL DEFAULT 0,
	review_reason TEXT,
	duplicate_of INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- Final arbiter against the race where two concurrent writers both run
-- the duplicate SELECT in createTicketOnce before either commits its
-- INSERT: the loser's insert fails this constraint instead of silently
-- persisting a second non-duplicate row for the same ticket_number,
-- vendor_id, ticket_date. A NULL vendor_id does not collide (both SQLite
-- and MySQL treat NULLs as distinct in a unique index), matching
-- duplicateQuery's own vendor-optional branching. This only catches an
-- exact-date collision, not the full rolling window: two concurrent
-- writes for the same ticket_number/vendor a few days apart within the
-- window can still both commit, since a plain index can't express a
-- range constraint across existing rows.
CREATE UNIQUE INDEX IF NOT EXISTS idx_truck_tickets_number_vendor_date
	ON truck_tickets (ticket_number, vendor_id, ticket_date);

CREATE INDEX IF NOT EXISTS idx_truck_tickets_ticket_date ON truck_tickets (ticket_date);
CREATE INDEX IF NOT EXISTS idx_truck_tickets_job_date ON truck_tickets (job_id, ticket_date);
CREATE INDEX IF NOT EXISTS idx_truck_tickets_manifest_number ON truck_tickets (manifest_number);
CREATE INDEX IF NOT EXISTS idx_truck_tickets_request_guid ON truck_tickets (request_guid);
CREATE INDEX IF NOT EXISTS idx_truck_tickets_file_hash ON truck_tickets (file_hash);

CREATE TABLE IF NOT EXISTS review_queue (
	id INTEGER PRIMARY KEY %[1]s,
	ticket_id INTEGER,
	page_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	severity TEXT NOT NULL,
	file_path TEXT,
	page_num INTEGER,
	detected_fields TEXT,
	suggested_fixes TEXT,
	resolved INTEGER NOT NULL DEFAULT 0,
	resolved_by TEXT,
	resolved_at TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_runs (
	id INTEGER PRIMARY KEY %[1]s,
	request_guid TEXT NOT NULL UNIQUE,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	processed_by TEXT,
	status TEXT NOT NULL,
	config_snapshot TEXT,
	files INTEGER NOT NULL DEFAULT 0,
	pages INTEGER NOT NULL DEFAULT 0,
	tickets_created INTEGER NOT NULL DEFAULT 0,
	tickets_updated INTEGER NOT NULL DEFAULT 0,
	duplicates_found INTEGER NOT NULL DEFAULT 0,
	review_queue_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	duplicate_files_skipped INTEGER NOT NULL DEFAULT 0
);
`

// schemaFor renders schemaTemplate for driverName ("sqlite" or "mysql").
// SQLite treats a bare INTEGER PRIMARY KEY as an alias for rowid and
// auto-assigns it; MySQL needs the explicit AUTO_INCREMENT keyword.
func schemaFor(driverName string) string {
	autoIncrement := "AUTOINCREMENT"
	if driverName == "mysql" {
		autoIncrement = "AUTO_INCREMENT"
	}
	return strings.ReplaceAll(schemaTemplate, "%[1]s", autoIncrement)
}

// schemaStatements splits schemaFor's output into individual statements.
// Neither sqlite nor mysql driver guarantees multi-statement Exec, so
// Open applies the schema one CREATE at a time, matching the teacher's
// one-db.Exec-per-statement migration idiom.
func schemaStatements(driverName string) []string {
	parts := strings.Split(schemaFor(driverName), ";")
	statements := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
