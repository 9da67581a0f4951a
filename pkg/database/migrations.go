package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema change. Migrations are embedded in the
// binary so deployments cannot drift from the code's schema expectations.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are applied in version order inside individual transactions.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "core session, room and section tables",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				date       DATETIME NOT NULL,
				owner_id   TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS rooms (
				id               TEXT PRIMARY KEY,
				session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				name             TEXT NOT NULL,
				status           TEXT NOT NULL DEFAULT 'active'
				                 CHECK (status IN ('active', 'completed')),
				supplies         TEXT NOT NULL DEFAULT '[]',
				proctors         TEXT NOT NULL DEFAULT '[]',
				notes            TEXT NOT NULL DEFAULT '',
				present_students INTEGER,
				section_ids      TEXT NOT NULL DEFAULT '[]'
			);

			CREATE TABLE IF NOT EXISTS sections (
				id            TEXT PRIMARY KEY,
				session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				number        TEXT NOT NULL,
				name          TEXT NOT NULL DEFAULT '',
				student_count INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_rooms_session ON rooms(session_id);
			CREATE INDEX IF NOT EXISTS idx_sections_session ON sections(session_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id);
		`,
	},
	{
		Version:     "002",
		Description: "users, collaborators and invitations",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id         TEXT PRIMARY KEY,
				email      TEXT NOT NULL UNIQUE,
				first_name TEXT NOT NULL DEFAULT '',
				last_name  TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS collaborators (
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				user_id    TEXT NOT NULL,
				can_view   INTEGER NOT NULL DEFAULT 1,
				can_edit   INTEGER NOT NULL DEFAULT 0,
				can_manage INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (session_id, user_id)
			);

			CREATE TABLE IF NOT EXISTS invitations (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				email      TEXT NOT NULL,
				can_view   INTEGER NOT NULL DEFAULT 1,
				can_edit   INTEGER NOT NULL DEFAULT 0,
				can_manage INTEGER NOT NULL DEFAULT 0,
				status     TEXT NOT NULL DEFAULT 'pending'
				           CHECK (status IN ('pending', 'accepted', 'declined')),
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (session_id, email)
			);
		`,
	},
	{
		Version:     "003",
		Description: "activity log and invalidation records",
		SQL: `
			CREATE TABLE IF NOT EXISTS activity_log (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				action     TEXT NOT NULL,
				user_name  TEXT NOT NULL,
				room_name  TEXT NOT NULL DEFAULT '',
				details    TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);

			CREATE TABLE IF NOT EXISTS invalidations (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				room_id    TEXT NOT NULL,
				section_id TEXT NOT NULL,
				reason     TEXT NOT NULL,
				created_by TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_activity_session_time
				ON activity_log(session_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_invalidations_session
				ON invalidations(session_id);
		`,
	},
}

// MigrationManager applies the embedded migrations against a database.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for db.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order. Each
// migration runs in its own transaction and is recorded on success.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	for _, migration := range ordered {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// ValidateSchema verifies the tables the store depends on exist.
func (m *MigrationManager) ValidateSchema() error {
	required := []string{
		"sessions", "rooms", "sections", "users",
		"collaborators", "invitations", "activity_log", "invalidations",
	}
	for _, table := range required {
		exists, err := m.tableExists(table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version) VALUES (?)", migration.Version,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MigrationManager) tableExists(name string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	return count > 0, err
}
