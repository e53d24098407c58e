package index

// Schema and statement text for the prompt search index.
const (
	queryCreateEntriesTable = `CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		project TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		prompt TEXT NOT NULL,
		UNIQUE(session_id, timestamp, project, prompt)
	)`

	queryCreateEntriesFTS = `CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		prompt,
		content=entries,
		content_rowid=id
	)`

	queryCreateIndexEntriesSession   = `CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id)`
	queryCreateIndexEntriesTimestamp = `CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp)`

	queryCreateEntriesInsertTrigger = `CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries
	BEGIN
		INSERT INTO entries_fts(rowid, prompt) VALUES (new.id, new.prompt);
	END`

	queryCreateEntriesDeleteTrigger = `CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries
	BEGIN
		DELETE FROM entries_fts WHERE rowid = old.id;
	END`

	queryInsertEntry = `INSERT OR IGNORE INTO entries (session_id, project, timestamp, prompt)
		VALUES (?, ?, ?, ?)`

	querySearchEntries = `
		SELECT e.session_id, e.project, e.timestamp, e.prompt,
			snippet(entries_fts, 0, '[', ']', '…', 16) AS snippet,
			bm25(entries_fts) AS score
		FROM entries_fts
		JOIN entries e ON entries_fts.rowid = e.id
		WHERE entries_fts MATCH ?
		ORDER BY score
		LIMIT ?`

	queryDeleteOlderThan = `DELETE FROM entries WHERE timestamp < ?`

	queryDeleteEntry = `DELETE FROM entries WHERE session_id = ? AND timestamp = ?`
)
