package sqlstore

// schema is valid in both SQLite (3.24+) and PostgreSQL.
const schema = `
CREATE TABLE IF NOT EXISTS persons (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS members (
	id TEXT PRIMARY KEY,
	person_id TEXT NOT NULL UNIQUE REFERENCES persons(id),
	membership_number TEXT NOT NULL DEFAULT '',
	joined_at TEXT NOT NULL
);

-- Activities are immutable once created
CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	activity_date TEXT NOT NULL,
	description TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	region TEXT NOT NULL DEFAULT '',
	due TEXT NOT NULL,
	discount_percent TEXT NOT NULL DEFAULT '0',
	guest_threshold INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_date
	ON activities(activity_date);

CREATE TABLE IF NOT EXISTS dues_constants (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	min_due TEXT NOT NULL,
	max_due TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
	id TEXT PRIMARY KEY,
	activity_id TEXT NOT NULL REFERENCES activities(id),
	member_id TEXT NOT NULL REFERENCES members(id),
	guest_person_id TEXT REFERENCES persons(id),
	registered_at TEXT NOT NULL
);

-- CRITICAL: one own registration per member per activity
CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_member
	ON attendance(activity_id, member_id) WHERE guest_person_id IS NULL;

-- CRITICAL: a guest attends an activity at most once
CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_guest
	ON attendance(activity_id, guest_person_id) WHERE guest_person_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_attendance_member_lookup
	ON attendance(member_id);

-- Payments (append-only ledger)
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	attendance_id TEXT NOT NULL REFERENCES attendance(id),
	amount TEXT NOT NULL,
	idempotency_key TEXT UNIQUE,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_attendance
	ON payments(attendance_id);

CREATE TABLE IF NOT EXISTS sub_groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	region TEXT NOT NULL DEFAULT '',
	discount_percent TEXT NOT NULL DEFAULT '0',
	guest_threshold INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sub_group_members (
	sub_group_id TEXT NOT NULL REFERENCES sub_groups(id),
	person_id TEXT NOT NULL REFERENCES persons(id),
	PRIMARY KEY (sub_group_id, person_id)
);
`
