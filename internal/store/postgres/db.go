package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the messaging schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Parties
		`CREATE TABLE IF NOT EXISTS parties (
			id         BIGSERIAL    PRIMARY KEY,
			tenant_id  BIGINT       NOT NULL,
			kind       VARCHAR(20)  NOT NULL,
			name       VARCHAR(100) NOT NULL,
			email      VARCHAR(100),
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Threads
		`CREATE TABLE IF NOT EXISTS threads (
			id                           BIGSERIAL    PRIMARY KEY,
			tenant_id                    BIGINT       NOT NULL,
			subject                      VARCHAR(255) NOT NULL DEFAULT '',
			is_archived                  BOOLEAN      NOT NULL DEFAULT FALSE,
			is_flagged                   BOOLEAN      NOT NULL DEFAULT FALSE,
			last_message_at              TIMESTAMPTZ,
			first_inbound_at             TIMESTAMPTZ,
			first_org_reply_at           TIMESTAMPTZ,
			response_time_seconds        BIGINT,
			business_hours_response_time BIGINT,
			created_at                   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at                   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Thread participants
		`CREATE TABLE IF NOT EXISTS thread_participants (
			thread_id    BIGINT      NOT NULL REFERENCES threads(id),
			party_id     BIGINT      NOT NULL REFERENCES parties(id),
			last_read_at TIMESTAMPTZ,
			joined_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (thread_id, party_id)
		)`,

		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id              BIGSERIAL   PRIMARY KEY,
			thread_id       BIGINT      NOT NULL REFERENCES threads(id),
			sender_party_id BIGINT      REFERENCES parties(id),
			body            TEXT        NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			attachment_name TEXT,
			attachment_type TEXT,
			attachment_size BIGINT,
			attachment_key  TEXT
		)`,

		// Per-tenant response aggregate + business-hours config
		`CREATE TABLE IF NOT EXISTS tenant_sla_stats (
			tenant_id                        BIGINT           PRIMARY KEY,
			avg_business_hours_response_time DOUBLE PRECISION,
			total_response_count             BIGINT           NOT NULL DEFAULT 0,
			quick_responder_badge            BOOLEAN          NOT NULL DEFAULT FALSE,
			last_badge_evaluated_at          TIMESTAMPTZ,
			schedule_json                    TEXT,
			time_zone                        VARCHAR(64)      NOT NULL DEFAULT 'UTC'
		)`,

		// Portal accounts (email -> external registry identity key)
		`CREATE TABLE IF NOT EXISTS portal_accounts (
			tenant_id    BIGINT       NOT NULL,
			email        VARCHAR(100) NOT NULL,
			identity_key VARCHAR(64)  NOT NULL,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant_id, email)
		)`,

		// Side-channel failure audit log
		`CREATE TABLE IF NOT EXISTS audit_log (
			id         BIGSERIAL   PRIMARY KEY,
			tenant_id  BIGINT      NOT NULL,
			channel    VARCHAR(40) NOT NULL,
			party_id   BIGINT,
			thread_id  BIGINT,
			reason     TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_parties_tenant ON parties(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_parties_tenant_kind ON parties(tenant_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_tenant ON threads(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_last_message ON threads(last_message_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_thread_participants_party ON thread_participants(party_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
