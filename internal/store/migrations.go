package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and dedupe",
		SQL: `
			CREATE TABLE bot_conversations (
				instance    TEXT NOT NULL,
				remote_jid  TEXT NOT NULL,
				state       TEXT NOT NULL DEFAULT '{}',
				updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (instance, remote_jid)
			);

			CREATE TABLE bot_messages_dedupe (
				id          TEXT PRIMARY KEY,
				instance    TEXT NOT NULL,
				remote_jid  TEXT NOT NULL,
				direction   TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_dedupe_created ON bot_messages_dedupe (created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create contact and conversation rules",
		SQL: `
			CREATE TABLE bot_contact_rules (
				number      TEXT PRIMARY KEY,
				bot_mode    TEXT NOT NULL,
				notes       TEXT,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE bot_conversation_rules (
				instance    TEXT NOT NULL,
				remote_jid  TEXT NOT NULL,
				bot_mode    TEXT NOT NULL,
				notes       TEXT,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (instance, remote_jid)
			);
		`,
	},
	{
		Version: 3,
		Name:    "create intelligence tables",
		SQL: `
			CREATE TABLE bot_faq (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				title       TEXT,
				triggers    TEXT NOT NULL DEFAULT '[]',
				answer      TEXT NOT NULL,
				enabled     INTEGER NOT NULL DEFAULT 1,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE bot_playbooks (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				intent      TEXT NOT NULL,
				triggers    TEXT NOT NULL DEFAULT '[]',
				template    TEXT NOT NULL,
				enabled     INTEGER NOT NULL DEFAULT 1,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE bot_decisions (
				id          TEXT PRIMARY KEY,
				instance    TEXT NOT NULL,
				remote_jid  TEXT NOT NULL,
				intent      TEXT,
				confidence  REAL,
				data        TEXT NOT NULL DEFAULT '{}',
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_decisions_created ON bot_decisions (created_at);

			CREATE TABLE bot_settings (
				id          INTEGER PRIMARY KEY CHECK (id = 1),
				value       TEXT NOT NULL DEFAULT '{}',
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
