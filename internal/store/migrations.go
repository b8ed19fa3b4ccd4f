package store

// migration is a single versioned schema change.
type migration struct {
	version int
	sql     string
}

// migrations are applied in order; each runs at most once per database.
var migrations = []migration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY
			);

			CREATE TABLE IF NOT EXISTS notifications (
				id         TEXT PRIMARY KEY,
				title      TEXT NOT NULL DEFAULT '',
				message    TEXT NOT NULL DEFAULT '',
				is_read    INTEGER NOT NULL DEFAULT 0,
				link_url   TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				metadata   TEXT NOT NULL DEFAULT '',
				fetched_at TIMESTAMP NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_notifications_created_at
				ON notifications(created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_notifications_is_read
				ON notifications(is_read);

			INSERT INTO schema_version (version) VALUES (1);
		`,
	},
}
