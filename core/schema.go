package core

// schemaSQL creates the relational tables described in spec.md §3, along
// with the unique indexes spec.md §6 requires: a unique index on
// Market.address, a composite unique on (Attestation.market,
// Attestation.signer, Attestation.nonce) filtered on is_valid = true, and a
// unique on FinalizationQueue.market. It is applied idempotently by
// Store.Migrate at process startup (spec.md §9 — config/schema are fixed at
// boot, no hot reload).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	address    TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS markets (
	address           TEXT PRIMARY KEY,
	topic             TEXT NOT NULL,
	threshold_percent INTEGER NOT NULL,
	staking_token     TEXT NOT NULL,
	participant_count INTEGER NOT NULL DEFAULT 0,
	total_staked      NUMERIC NOT NULL DEFAULT 0,
	status            INTEGER NOT NULL,
	created_at        TIMESTAMPTZ,
	proposed_at       TIMESTAMPTZ,
	resolved_at       TIMESTAMPTZ,
	last_sync_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	cancel_reason     TEXT
);

CREATE TABLE IF NOT EXISTS participants (
	market        TEXT NOT NULL REFERENCES markets(address),
	"user"        TEXT NOT NULL REFERENCES users(address),
	stake         NUMERIC NOT NULL DEFAULT 0,
	outcome       INTEGER NOT NULL,
	has_attested  BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (market, "user")
);

CREATE TABLE IF NOT EXISTS proposals (
	id                TEXT PRIMARY KEY,
	market            TEXT NOT NULL REFERENCES markets(address),
	proposer          TEXT NOT NULL,
	outcome           INTEGER NOT NULL,
	dispute_until     TIMESTAMPTZ NOT NULL,
	evidence_hash     TEXT NOT NULL,
	attestation_count INTEGER NOT NULL DEFAULT 0,
	is_disputed       BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS one_active_proposal_per_market
	ON proposals (market) WHERE is_disputed = false;

CREATE TABLE IF NOT EXISTS attestations (
	id           TEXT PRIMARY KEY,
	market       TEXT NOT NULL REFERENCES markets(address),
	proposal_id  TEXT NOT NULL REFERENCES proposals(id),
	signer       TEXT NOT NULL,
	outcome      INTEGER NOT NULL,
	nonce        NUMERIC NOT NULL,
	signature    TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_valid     BOOLEAN NOT NULL DEFAULT true
);

CREATE UNIQUE INDEX IF NOT EXISTS one_valid_attestation_per_nonce
	ON attestations (market, signer, nonce) WHERE is_valid = true;

CREATE TABLE IF NOT EXISTS finalization_queue (
	market           TEXT PRIMARY KEY REFERENCES markets(address),
	signature_count  INTEGER NOT NULL DEFAULT 0,
	eligible_count   INTEGER NOT NULL DEFAULT 0,
	proposal_outcome INTEGER NOT NULL DEFAULT 0,
	last_checked_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	attempted_at     TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	threshold_met    BOOLEAN NOT NULL DEFAULT false,
	last_error       TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_log (
	id          TEXT PRIMARY KEY,
	op          TEXT NOT NULL,
	market      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
