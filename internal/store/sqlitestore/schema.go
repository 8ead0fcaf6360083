package sqlitestore

const schemaSQL = `
CREATE TABLE IF NOT EXISTS applications (
	id               TEXT PRIMARY KEY,
	application_name TEXT NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS process_steps (
	application_id TEXT    NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
	step_number    INTEGER NOT NULL,
	step_title     TEXT    NOT NULL,
	status         TEXT    NOT NULL DEFAULT 'Not Started'
		CHECK (status IN ('Not Started', 'In Progress', 'Completed')),
	notes          TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (application_id, step_number)
);

CREATE TABLE IF NOT EXISTS step_documents (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id TEXT    NOT NULL,
	step_number    INTEGER NOT NULL,
	file_name      TEXT    NOT NULL,
	file_path      TEXT    NOT NULL DEFAULT '',
	uploaded_at    DATETIME,
	FOREIGN KEY (application_id, step_number)
		REFERENCES process_steps(application_id, step_number) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_step_documents_step ON step_documents(application_id, step_number);
`
