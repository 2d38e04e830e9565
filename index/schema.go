package index

// CurrentSchemaVersion is the schema version this package knows how to
// read and write. Opening an older index runs the upgrade scripts between
// its stamped version and this one, under an exclusive lock; each upgrade
// statement is idempotent so re-running it is safe.
const CurrentSchemaVersion = 1

// upgrades is an in-tree, ordered list of idempotent statement batches.
// upgrades[i] takes the schema from version i to version i+1. Every
// statement uses IF NOT EXISTS / ON CONFLICT guards so that re-running a
// batch against an already-upgraded database is a no-op.
var upgrades = [][]string{
	// version 0 -> 1: initial schema.
	{
		`CREATE TABLE IF NOT EXISTS backup_meta (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunk (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_start INTEGER NOT NULL,
			ts_end INTEGER,
			offset INTEGER NOT NULL,
			length INTEGER,
			file_sha1 TEXT NOT NULL,
			data_sha1 TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunk_offset ON chunk(offset)`,
		`CREATE TABLE IF NOT EXISTS message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guid TEXT NOT NULL UNIQUE,
			partition TEXT NOT NULL,
			chunk_id INTEGER NOT NULL REFERENCES chunk(id),
			offset INTEGER NOT NULL,
			length INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_chunk ON message(chunk_id)`,
		`CREATE TABLE IF NOT EXISTS mailbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			last_chunk_id INTEGER NOT NULL REFERENCES chunk(id),
			uniqueid TEXT NOT NULL UNIQUE,
			mboxname TEXT NOT NULL,
			mboxtype TEXT NOT NULL DEFAULT '',
			last_uid INTEGER NOT NULL DEFAULT 0,
			highestmodseq INTEGER NOT NULL DEFAULT 0,
			recentuid INTEGER NOT NULL DEFAULT 0,
			recenttime INTEGER NOT NULL DEFAULT 0,
			last_appenddate INTEGER NOT NULL DEFAULT 0,
			pop3_last_login INTEGER NOT NULL DEFAULT 0,
			pop3_show_after INTEGER NOT NULL DEFAULT 0,
			uidvalidity INTEGER NOT NULL DEFAULT 0,
			partition TEXT NOT NULL DEFAULT '',
			acl TEXT NOT NULL DEFAULT '',
			options TEXT NOT NULL DEFAULT '',
			sync_crc INTEGER NOT NULL DEFAULT 0,
			sync_crc_annot INTEGER NOT NULL DEFAULT 0,
			quotaroot TEXT NOT NULL DEFAULT '',
			xconvmodseq INTEGER NOT NULL DEFAULT 0,
			annotations TEXT NOT NULL DEFAULT '',
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mailbox_name ON mailbox(mboxname)`,
		`CREATE TABLE IF NOT EXISTS mailbox_message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mailbox_id INTEGER NOT NULL REFERENCES mailbox(id),
			mailbox_uniqueid TEXT NOT NULL,
			message_id INTEGER REFERENCES message(id),
			last_chunk_id INTEGER NOT NULL REFERENCES chunk(id),
			uid INTEGER NOT NULL,
			modseq INTEGER NOT NULL DEFAULT 0,
			last_updated INTEGER NOT NULL DEFAULT 0,
			flags TEXT NOT NULL DEFAULT '',
			internaldate INTEGER NOT NULL DEFAULT 0,
			guid TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			annotations TEXT NOT NULL DEFAULT '',
			expunged INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_mbox_message_uid ON mailbox_message(mailbox_id, uid)`,
		`CREATE INDEX IF NOT EXISTS idx_mbox_message_chunk ON mailbox_message(last_chunk_id)`,
	},
}
