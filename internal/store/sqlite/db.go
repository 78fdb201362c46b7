package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the messaging schema.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Parties
		`CREATE TABLE IF NOT EXISTS parties (
			id INTEGER PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			kind VARCHAR(20) NOT NULL,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(100),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		// Threads
		`CREATE TABLE IF NOT EXISTS threads (
			id INTEGER PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			subject VARCHAR(255) NOT NULL DEFAULT '',
			is_archived BOOLEAN NOT NULL DEFAULT 0,
			is_flagged BOOLEAN NOT NULL DEFAULT 0,
			last_message_at DATETIME DEFAULT NULL,
			first_inbound_at DATETIME DEFAULT NULL,
			first_org_reply_at DATETIME DEFAULT NULL,
			response_time_seconds INTEGER DEFAULT NULL,
			business_hours_response_time INTEGER DEFAULT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		// Thread participants
		`CREATE TABLE IF NOT EXISTS thread_participants (
			thread_id INTEGER NOT NULL,
			party_id INTEGER NOT NULL,
			last_read_at DATETIME DEFAULT NULL,
			joined_at DATETIME DEFAULT NULL,
			PRIMARY KEY (thread_id, party_id),
			FOREIGN KEY (thread_id) REFERENCES threads(id),
			FOREIGN KEY (party_id) REFERENCES parties(id)
		);`,
		// Messages
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			thread_id INTEGER NOT NULL,
			sender_party_id INTEGER DEFAULT NULL,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			attachment_name TEXT DEFAULT NULL,
			attachment_type TEXT DEFAULT NULL,
			attachment_size INTEGER DEFAULT NULL,
			attachment_key TEXT DEFAULT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id),
			FOREIGN KEY (sender_party_id) REFERENCES parties(id)
		);`,
		// Per-tenant response aggregate + business-hours config
		`CREATE TABLE IF NOT EXISTS tenant_sla_stats (
			tenant_id INTEGER PRIMARY KEY,
			avg_business_hours_response_time REAL DEFAULT NULL,
			total_response_count INTEGER NOT NULL DEFAULT 0,
			quick_responder_badge BOOLEAN NOT NULL DEFAULT 0,
			last_badge_evaluated_at DATETIME DEFAULT NULL,
			schedule_json TEXT DEFAULT NULL,
			time_zone VARCHAR(64) NOT NULL DEFAULT 'UTC'
		);`,
		// Portal accounts (email -> external registry identity key)
		`CREATE TABLE IF NOT EXISTS portal_accounts (
			tenant_id INTEGER NOT NULL,
			email VARCHAR(100) NOT NULL,
			identity_key VARCHAR(64) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, email)
		);`,
		// Side-channel failure audit log
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY,
			tenant_id INTEGER NOT NULL,
			channel VARCHAR(40) NOT NULL,
			party_id INTEGER DEFAULT NULL,
			thread_id INTEGER DEFAULT NULL,
			reason TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE INDEX IF NOT EXISTS idx_parties_tenant ON parties(tenant_id);`,
		`CREATE INDEX IF NOT EXISTS idx_parties_tenant_kind ON parties(tenant_id, kind);`,
		`CREATE INDEX IF NOT EXISTS idx_threads_tenant ON threads(tenant_id);`,
		`CREATE INDEX IF NOT EXISTS idx_threads_last_message ON threads(last_message_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_thread_participants_party ON thread_participants(party_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_portal_accounts_email ON portal_accounts(tenant_id, email);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
