package offline

type migration struct {
	version int
	sql     string
}

// migrations run in order; versions are sequential from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS offline_mutations (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	payload         TEXT NOT NULL,
	created_at      DATETIME NOT NULL,
	synced          INTEGER NOT NULL DEFAULT 0,
	synced_at       DATETIME,
	retries         INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	last_attempt_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_offline_mutations_synced ON offline_mutations(synced, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE offline_mutations ADD COLUMN user_id TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_offline_mutations_user ON offline_mutations(user_id, synced);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS sync_lease (
	user_id    TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
