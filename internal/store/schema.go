package store

// Table DDL applied on connect. Statements are idempotent; ordering matters
// only for the extraction tables, whose foreign keys reference the job row.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		year INTEGER,
		language TEXT,
		description TEXT,
		genres TEXT,
		cover_url TEXT,
		download_url TEXT,
		source TEXT NOT NULL,
		source_identifier TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (source, source_identifier)
	)`,

	`CREATE TABLE IF NOT EXISTS ingestion_logs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		added INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		errors TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS ingestion_state (
		source_id TEXT PRIMARY KEY,
		last_page INTEGER NOT NULL DEFAULT 1,
		last_cursor TEXT,
		total_ingested INTEGER NOT NULL DEFAULT 0,
		last_run_at TEXT,
		last_run_status TEXT,
		last_run_added INTEGER NOT NULL DEFAULT 0,
		last_run_skipped INTEGER NOT NULL DEFAULT 0,
		last_run_failed INTEGER NOT NULL DEFAULT 0,
		is_paused INTEGER NOT NULL DEFAULT 0,
		paused_at TEXT,
		paused_by TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS source_configurations (
		source_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 100,
		rate_limit_ms INTEGER NOT NULL DEFAULT 1000,
		batch_size INTEGER NOT NULL DEFAULT 50,
		source_specific_config TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS ingestion_filter_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		filter_result TEXT NOT NULL,
		genres TEXT,
		author TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_filter_stats_job
		ON ingestion_filter_stats (job_id, filter_result)`,

	`CREATE TABLE IF NOT EXISTS extraction_jobs (
		id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		created_by TEXT,
		max_time_minutes INTEGER NOT NULL DEFAULT 0,
		max_books INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		books_extracted INTEGER NOT NULL DEFAULT 0,
		books_queued INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS extraction_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES extraction_jobs (id),
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS extracted_books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES extraction_jobs (id),
		title TEXT NOT NULL,
		author TEXT,
		file_url TEXT,
		created_at TEXT NOT NULL
	)`,
}
