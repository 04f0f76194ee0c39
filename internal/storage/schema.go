package storage

// Schema creates the crawl tables. Statements are idempotent so
// Initialize can run against an existing store.
const Schema = `
CREATE TABLE IF NOT EXISTS domain_crawl (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	data TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_domain_crawl_url ON domain_crawl(url);

CREATE TABLE IF NOT EXISTS deep_crawls_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	crawl_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	pages INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	total_links INTEGER NOT NULL DEFAULT 0,
	total_internal_links INTEGER NOT NULL DEFAULT 0,
	total_external_links INTEGER NOT NULL DEFAULT 0,
	indexable_pages INTEGER NOT NULL DEFAULT 0,
	not_indexable_pages INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS custom_search (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	type TEXT NOT NULL DEFAULT '',
	selector TEXT NOT NULL DEFAULT '',
	search_text TEXT NOT NULL DEFAULT ''
);
`

// upsertPageSQL writes one page row, replacing an existing row for the
// same canonical URL.
const upsertPageSQL = `
INSERT INTO domain_crawl (url, data, created_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(url) DO UPDATE SET
	data = excluded.data,
	created_at = CURRENT_TIMESTAMP
`
