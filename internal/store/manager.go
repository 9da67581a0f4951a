package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "proctorboard/pkg/database"
	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Manager implements the Store interface over SQLite. All writes funnel
// through a single goroutine; reads run concurrently against the pool.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and
// starts the single-writer loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop serializes all writes. A failed write is retried once after
// five seconds before the error is surfaced to the caller.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Store write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// --- Session operations ---

// CreateSession persists a new session.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, name, date, owner_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, session.ID, session.Name, session.Date, session.OwnerID, session.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession loads a session with its collaborator rows and the ids of
// its rooms and sections.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, date, owner_id, created_at
		FROM sessions WHERE id = ?
	`, sessionID).Scan(&session.ID, &session.Name, &session.Date, &session.OwnerID, &session.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	collaborators, err := m.listCollaborators(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Collaborators = collaborators

	session.RoomIDs, err = m.childIDs(ctx, "rooms", sessionID)
	if err != nil {
		return nil, err
	}
	session.SectionIDs, err = m.childIDs(ctx, "sections", sessionID)
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// UpdateSession persists name and date changes.
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE sessions SET name = ?, date = ? WHERE id = ?
		`, session.Name, session.Date, session.ID)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrSessionNotFound)
	})
}

// DeleteSession removes a session; child rows cascade.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrSessionNotFound)
	})
}

// ListSessionsForUser returns sessions the user owns or collaborates on,
// most recent first.
func (m *Manager) ListSessionsForUser(ctx context.Context, userID string) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT DISTINCT s.id, s.name, s.date, s.owner_id, s.created_at
		FROM sessions s
		LEFT JOIN collaborators c ON c.session_id = s.id
		WHERE s.owner_id = ? OR c.user_id = ?
		ORDER BY s.date DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		if err := rows.Scan(&session.ID, &session.Name, &session.Date, &session.OwnerID, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// --- Room operations ---

// CreateRoom persists a new room under sessionID.
func (m *Manager) CreateRoom(ctx context.Context, sessionID string, room *types.Room) error {
	return m.executeWrite(func(db *sql.DB) error {
		supplies, proctors, sectionIDs, err := marshalRoomLists(room)
		if err != nil {
			return err
		}
		if room.Status == "" {
			room.Status = types.RoomStatusActive
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO rooms (id, session_id, name, status, supplies, proctors, notes, present_students, section_ids)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, room.ID, sessionID, room.Name, room.Status, supplies, proctors,
			room.Notes, room.PresentStudents, sectionIDs)
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		return nil
	})
}

// GetRoom loads a room by id.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, name, status, supplies, proctors, notes, present_students, section_ids
		FROM rooms WHERE id = ?
	`, roomID)
	return scanRoom(row)
}

// UpdateRoom persists the full mutable state of a room.
func (m *Manager) UpdateRoom(ctx context.Context, room *types.Room) error {
	return m.executeWrite(func(db *sql.DB) error {
		supplies, proctors, sectionIDs, err := marshalRoomLists(room)
		if err != nil {
			return err
		}
		res, err := db.ExecContext(ctx, `
			UPDATE rooms
			SET name = ?, status = ?, supplies = ?, proctors = ?, notes = ?,
			    present_students = ?, section_ids = ?
			WHERE id = ?
		`, room.Name, room.Status, supplies, proctors, room.Notes,
			room.PresentStudents, sectionIDs, room.ID)
		if err != nil {
			return fmt.Errorf("failed to update room: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrRoomNotFound)
	})
}

// DeleteRoom removes a room.
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", roomID)
		if err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrRoomNotFound)
	})
}

// FindSessionContainingRoom resolves the session that owns roomID.
func (m *Manager) FindSessionContainingRoom(ctx context.Context, roomID string) (*types.Session, error) {
	var sessionID string
	err := m.db.QueryRowContext(ctx,
		"SELECT session_id FROM rooms WHERE id = ?", roomID,
	).Scan(&sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to locate room: %w", err)
	}
	return m.GetSession(ctx, sessionID)
}

// --- Section operations ---

// CreateSection persists a new section under sessionID.
func (m *Manager) CreateSection(ctx context.Context, sessionID string, section *types.Section) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sections (id, session_id, number, name, student_count)
			VALUES (?, ?, ?, ?, ?)
		`, section.ID, sessionID, section.Number, section.Name, section.StudentCount)
		if err != nil {
			return fmt.Errorf("failed to insert section: %w", err)
		}
		return nil
	})
}

// GetSection loads a section by id.
func (m *Manager) GetSection(ctx context.Context, sectionID string) (*types.Section, error) {
	var section types.Section
	err := m.db.QueryRowContext(ctx, `
		SELECT id, number, name, student_count FROM sections WHERE id = ?
	`, sectionID).Scan(&section.ID, &section.Number, &section.Name, &section.StudentCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSectionNotFound
		}
		return nil, fmt.Errorf("failed to query section: %w", err)
	}
	return &section, nil
}

// UpdateSection persists section changes.
func (m *Manager) UpdateSection(ctx context.Context, section *types.Section) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE sections SET number = ?, name = ?, student_count = ? WHERE id = ?
		`, section.Number, section.Name, section.StudentCount, section.ID)
		if err != nil {
			return fmt.Errorf("failed to update section: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrSectionNotFound)
	})
}

// FindSessionContainingSection resolves the session that owns sectionID.
func (m *Manager) FindSessionContainingSection(ctx context.Context, sectionID string) (*types.Session, error) {
	var sessionID string
	err := m.db.QueryRowContext(ctx,
		"SELECT session_id FROM sections WHERE id = ?", sectionID,
	).Scan(&sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSectionNotFound
		}
		return nil, fmt.Errorf("failed to locate section: %w", err)
	}
	return m.GetSession(ctx, sessionID)
}

// --- User operations ---

// GetUser loads a user by id.
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	return m.queryUser(ctx, "SELECT id, email, first_name, last_name FROM users WHERE id = ?", userID)
}

// GetUserByEmail loads a user by email.
func (m *Manager) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return m.queryUser(ctx, "SELECT id, email, first_name, last_name FROM users WHERE email = ?", email)
}

func (m *Manager) queryUser(ctx context.Context, query, arg string) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// --- Collaborator operations ---

// AddCollaborator stores an explicit permission row. Duplicate rows fail
// with ErrDuplicateMember.
func (m *Manager) AddCollaborator(ctx context.Context, sessionID string, collab types.Collaborator) error {
	return m.executeWrite(func(db *sql.DB) error {
		var exists int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM collaborators WHERE session_id = ? AND user_id = ?",
			sessionID, collab.UserID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check collaborator: %w", err)
		}
		if exists > 0 {
			return interfaces.ErrDuplicateMember
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO collaborators (session_id, user_id, can_view, can_edit, can_manage)
			VALUES (?, ?, ?, ?, ?)
		`, sessionID, collab.UserID,
			collab.Permissions.View, collab.Permissions.Edit, collab.Permissions.Manage)
		if err != nil {
			return fmt.Errorf("failed to insert collaborator: %w", err)
		}
		return nil
	})
}

// RemoveCollaborator deletes a permission row.
func (m *Manager) RemoveCollaborator(ctx context.Context, sessionID, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"DELETE FROM collaborators WHERE session_id = ? AND user_id = ?",
			sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove collaborator: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrUserNotFound)
	})
}

// GetCollaborator loads one permission row, or ErrUserNotFound.
func (m *Manager) GetCollaborator(ctx context.Context, sessionID, userID string) (*types.Collaborator, error) {
	var collab types.Collaborator
	err := m.db.QueryRowContext(ctx, `
		SELECT user_id, can_view, can_edit, can_manage
		FROM collaborators WHERE session_id = ? AND user_id = ?
	`, sessionID, userID).Scan(&collab.UserID,
		&collab.Permissions.View, &collab.Permissions.Edit, &collab.Permissions.Manage)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query collaborator: %w", err)
	}
	return &collab, nil
}

func (m *Manager) listCollaborators(ctx context.Context, sessionID string) ([]types.Collaborator, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT user_id, can_view, can_edit, can_manage
		FROM collaborators WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaborators: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var collaborators []types.Collaborator
	for rows.Next() {
		var collab types.Collaborator
		if err := rows.Scan(&collab.UserID,
			&collab.Permissions.View, &collab.Permissions.Edit, &collab.Permissions.Manage); err != nil {
			return nil, fmt.Errorf("failed to scan collaborator row: %w", err)
		}
		collaborators = append(collaborators, collab)
	}
	return collaborators, rows.Err()
}

// --- Invitation operations ---

// CreateInvitation persists a pending invitation. A second invitation for
// the same (session, email) pair fails with ErrDuplicateInvite.
func (m *Manager) CreateInvitation(ctx context.Context, inv *types.Invitation) error {
	return m.executeWrite(func(db *sql.DB) error {
		var exists int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM invitations WHERE session_id = ? AND email = ?",
			inv.SessionID, inv.Email,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check invitation: %w", err)
		}
		if exists > 0 {
			return interfaces.ErrDuplicateInvite
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO invitations (id, session_id, email, can_view, can_edit, can_manage, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, inv.ID, inv.SessionID, inv.Email,
			inv.Permissions.View, inv.Permissions.Edit, inv.Permissions.Manage,
			inv.Status, inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert invitation: %w", err)
		}
		return nil
	})
}

// GetInvitation loads an invitation by id.
func (m *Manager) GetInvitation(ctx context.Context, invitationID string) (*types.Invitation, error) {
	var inv types.Invitation
	err := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, email, can_view, can_edit, can_manage, status, created_at
		FROM invitations WHERE id = ?
	`, invitationID).Scan(&inv.ID, &inv.SessionID, &inv.Email,
		&inv.Permissions.View, &inv.Permissions.Edit, &inv.Permissions.Manage,
		&inv.Status, &inv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to query invitation: %w", err)
	}
	return &inv, nil
}

// UpdateInvitation persists a status change.
func (m *Manager) UpdateInvitation(ctx context.Context, inv *types.Invitation) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE invitations SET status = ? WHERE id = ?", inv.Status, inv.ID)
		if err != nil {
			return fmt.Errorf("failed to update invitation: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrInvitationNotFound)
	})
}

// ListInvitations returns all invitations for a session.
func (m *Manager) ListInvitations(ctx context.Context, sessionID string) ([]*types.Invitation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, email, can_view, can_edit, can_manage, status, created_at
		FROM invitations WHERE session_id = ? ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invitations []*types.Invitation
	for rows.Next() {
		var inv types.Invitation
		if err := rows.Scan(&inv.ID, &inv.SessionID, &inv.Email,
			&inv.Permissions.View, &inv.Permissions.Edit, &inv.Permissions.Manage,
			&inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation row: %w", err)
		}
		invitations = append(invitations, &inv)
	}
	return invitations, rows.Err()
}

// --- Activity log ---

// AppendActivity inserts a log entry and trims the session's log to
// ActivityLogCap in one transaction, so no read-modify-write window
// exists between concurrent appends. Returns the stored entry with its
// server-assigned id and timestamp, or nil when the session is absent.
func (m *Manager) AppendActivity(ctx context.Context, sessionID string, entry *types.ActivityLogEntry) (*types.ActivityLogEntry, error) {
	stored := *entry
	stored.ID = uuid.New().String()
	stored.Timestamp = time.Now()

	var sessionMissing bool
	err := m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		if exists == 0 {
			sessionMissing = true
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activity_log (id, session_id, action, user_name, room_name, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, stored.ID, sessionID, stored.Action, stored.UserName,
			stored.RoomName, stored.Details, stored.Timestamp); err != nil {
			return fmt.Errorf("failed to insert activity entry: %w", err)
		}

		// FIFO eviction at insertion time keeps the log bounded.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM activity_log
			WHERE session_id = ? AND id NOT IN (
				SELECT id FROM activity_log
				WHERE session_id = ?
				ORDER BY created_at DESC, rowid DESC
				LIMIT ?
			)
		`, sessionID, sessionID, types.ActivityLogCap); err != nil {
			return fmt.Errorf("failed to trim activity log: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	if sessionMissing {
		return nil, nil
	}
	return &stored, nil
}

// ListActivity returns the session's log, most recent first.
func (m *Manager) ListActivity(ctx context.Context, sessionID string) ([]*types.ActivityLogEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, action, user_name, room_name, details, created_at
		FROM activity_log
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.ActivityLogEntry
	for rows.Next() {
		var entry types.ActivityLogEntry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.UserName,
			&entry.RoomName, &entry.Details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// --- Invalidation records ---

// AddInvalidation appends a flagged room/section record.
func (m *Manager) AddInvalidation(ctx context.Context, inv *types.Invalidation) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO invalidations (id, session_id, room_id, section_id, reason, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, inv.ID, inv.SessionID, inv.RoomID, inv.SectionID,
			inv.Reason, inv.CreatedBy, inv.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert invalidation: %w", err)
		}
		return nil
	})
}

// RemoveInvalidation deletes a flagged record by id.
func (m *Manager) RemoveInvalidation(ctx context.Context, invalidationID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"DELETE FROM invalidations WHERE id = ?", invalidationID)
		if err != nil {
			return fmt.Errorf("failed to delete invalidation: %w", err)
		}
		return rowsAffectedOr(res, interfaces.ErrInvalidationNotFound)
	})
}

// ListInvalidations returns the session's flagged records.
func (m *Manager) ListInvalidations(ctx context.Context, sessionID string) ([]*types.Invalidation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, room_id, section_id, reason, created_by, created_at
		FROM invalidations WHERE session_id = ? ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invalidations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invalidations []*types.Invalidation
	for rows.Next() {
		var inv types.Invalidation
		if err := rows.Scan(&inv.ID, &inv.SessionID, &inv.RoomID, &inv.SectionID,
			&inv.Reason, &inv.CreatedBy, &inv.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan invalidation row: %w", err)
		}
		invalidations = append(invalidations, &inv)
	}
	return invalidations, rows.Err()
}

// --- Health and lifecycle ---

// HealthCheck validates connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the write loop and closes the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

// --- helpers ---

func (m *Manager) childIDs(ctx context.Context, table, sessionID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE session_id = ?", table), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalRoomLists(room *types.Room) (supplies, proctors, sectionIDs string, err error) {
	s, err := json.Marshal(emptyIfNil(room.Supplies))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal supplies: %w", err)
	}
	p, err := json.Marshal(emptyIfNil(room.Proctors))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal proctors: %w", err)
	}
	ids, err := json.Marshal(emptyIfNil(room.SectionIDs))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal section ids: %w", err)
	}
	return string(s), string(p), string(ids), nil
}

func scanRoom(row *sql.Row) (*types.Room, error) {
	var room types.Room
	var supplies, proctors, sectionIDs string
	var present sql.NullInt64

	err := row.Scan(&room.ID, &room.Name, &room.Status,
		&supplies, &proctors, &room.Notes, &present, &sectionIDs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}

	if err := json.Unmarshal([]byte(supplies), &room.Supplies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal supplies: %w", err)
	}
	if err := json.Unmarshal([]byte(proctors), &room.Proctors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proctors: %w", err)
	}
	if err := json.Unmarshal([]byte(sectionIDs), &room.SectionIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal section ids: %w", err)
	}
	if present.Valid {
		n := int(present.Int64)
		room.PresentStudents = &n
	}
	return &room, nil
}

func rowsAffectedOr(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
