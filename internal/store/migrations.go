package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL,
	action      TEXT NOT NULL CHECK(action IN ('fetch', 'update', 'remove', 'reset')),
	modtime     TEXT NOT NULL DEFAULT '',
	modby       TEXT NOT NULL DEFAULT '',
	modwith     TEXT NOT NULL DEFAULT '',
	boxes       TEXT NOT NULL DEFAULT '[]',
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_username_recorded
	ON snapshots(username, recorded_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
