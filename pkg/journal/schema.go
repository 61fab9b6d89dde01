package journal

// Schema is applied on open. Prices and sizes are stored as decimal text so
// values above 2^63-1 survive the round trip.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	address     TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	capacity    INTEGER NOT NULL,
	count       INTEGER NOT NULL,
	exported_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	account    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	market     TEXT NOT NULL,
	price      TEXT NOT NULL,
	size       TEXT NOT NULL,
	direction  TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	PRIMARY KEY (account, seq)
);

CREATE INDEX IF NOT EXISTS events_market ON events (account, market);
`
