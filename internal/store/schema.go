package store

// postgresMigration is idempotent. The three identity layers share the
// (platform, handle, profile_url, email) shape the resolver queries.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id          BIGSERIAL PRIMARY KEY,
	platform    TEXT NOT NULL,
	handle      TEXT NOT NULL,
	source      TEXT NOT NULL,
	email       TEXT,
	profile_url TEXT,
	profile     JSONB,
	active      BOOLEAN NOT NULL DEFAULT true,
	country     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (platform, handle)
);

CREATE INDEX IF NOT EXISTS idx_candidates_country ON candidates(country);
CREATE INDEX IF NOT EXISTS idx_candidates_source ON candidates(source);
CREATE INDEX IF NOT EXISTS idx_candidates_email ON candidates(lower(email));
CREATE INDEX IF NOT EXISTS idx_candidates_created_at ON candidates(created_at);

CREATE TABLE IF NOT EXISTS prospects (
	id                 BIGSERIAL PRIMARY KEY,
	platform           TEXT NOT NULL,
	handle             TEXT,
	profile_url        TEXT,
	email              TEXT,
	country            TEXT,
	duplicate_snapshot JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prospects_platform_handle ON prospects(platform, ltrim(lower(handle), '@'));
CREATE INDEX IF NOT EXISTS idx_prospects_email ON prospects(lower(email));

CREATE TABLE IF NOT EXISTS applications (
	id                 BIGSERIAL PRIMARY KEY,
	platform           TEXT NOT NULL,
	handle             TEXT,
	profile_url        TEXT,
	email              TEXT,
	country            TEXT,
	status             TEXT NOT NULL DEFAULT 'pending',
	duplicate_snapshot JSONB,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_applications_platform_handle ON applications(platform, ltrim(lower(handle), '@'));
CREATE INDEX IF NOT EXISTS idx_applications_email ON applications(lower(email));

CREATE TABLE IF NOT EXISTS acquisition_runs (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	config          JSONB NOT NULL,
	status          TEXT NOT NULL DEFAULT 'running',
	total_found     INTEGER NOT NULL DEFAULT 0,
	total_processed INTEGER NOT NULL DEFAULT 0,
	errors          TEXT[] NOT NULL DEFAULT '{}',
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_acquisition_runs_status ON acquisition_runs(status);
CREATE INDEX IF NOT EXISTS idx_acquisition_runs_started_at ON acquisition_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS acquisition_attempts (
	id           BIGSERIAL PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES acquisition_runs(id),
	candidate_id BIGINT REFERENCES candidates(id),
	handle       TEXT NOT NULL,
	platform     TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	raw_payload  BYTEA,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_acquisition_attempts_run_id ON acquisition_attempts(run_id, id);
CREATE INDEX IF NOT EXISTS idx_acquisition_attempts_candidate ON acquisition_attempts(candidate_id);
CREATE INDEX IF NOT EXISTS idx_acquisition_attempts_created_at ON acquisition_attempts(created_at);

CREATE TABLE IF NOT EXISTS proxy_endpoints (
	id              BIGSERIAL PRIMARY KEY,
	protocol        TEXT NOT NULL,
	host            TEXT NOT NULL,
	port            INTEGER NOT NULL,
	username        TEXT,
	password        TEXT,
	is_active       BOOLEAN NOT NULL DEFAULT true,
	success_rate    DOUBLE PRECISION NOT NULL DEFAULT 100,
	total_requests  INTEGER NOT NULL DEFAULT 0,
	failed_requests INTEGER NOT NULL DEFAULT 0,
	last_used_at    TIMESTAMPTZ,
	UNIQUE (protocol, host, port)
);
`
