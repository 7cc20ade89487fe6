package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

const presenceSchema = `
CREATE TABLE IF NOT EXISTS presence (
	user_id      TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	avatar_ref   TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT '',
	department   TEXT NOT NULL DEFAULT '',
	current_page TEXT NOT NULL DEFAULT '',
	is_active    INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'online',
	last_active  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_presence_last_active ON presence(last_active);
`

// SQLiteStore is the default presence store. All writes are serialized
// through a single goroutine, which is how SQLite wants to be written to;
// reads go straight to the pool.
type SQLiteStore struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

type writeOp struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewSQLiteStore opens (and if needed creates) the presence database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open presence database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Second)

	if _, err := db.Exec(presenceSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply presence schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
		logger:   logger,
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			op.result <- op.operation(s.db)

		case <-s.shutdown:
			// Drain queued writes before exiting so Close doesn't lose
			// heartbeats accepted moments earlier.
			for {
				select {
				case op := <-s.writeCh:
					op.result <- op.operation(s.db)
				default:
					return
				}
			}
		}
	}
}

func (s *SQLiteStore) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	op := writeOp{operation: operation, result: make(chan error, 1)}

	select {
	case s.writeCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordHeartbeat upserts the user's presence row. Empty profile fields on
// the heartbeat never blank out previously stored values.
func (s *SQLiteStore) RecordHeartbeat(ctx context.Context, hb *types.Heartbeat) error {
	if !types.IsValidUserID(hb.UserID) {
		return types.ErrInvalidUserID
	}
	now := time.Now().UnixMilli()

	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO presence (user_id, name, email, avatar_ref, role, department, current_page, is_active, status, last_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'online', ?)
			ON CONFLICT(user_id) DO UPDATE SET
				name         = CASE WHEN excluded.name <> '' THEN excluded.name ELSE presence.name END,
				email        = CASE WHEN excluded.email <> '' THEN excluded.email ELSE presence.email END,
				avatar_ref   = CASE WHEN excluded.avatar_ref <> '' THEN excluded.avatar_ref ELSE presence.avatar_ref END,
				role         = CASE WHEN excluded.role <> '' THEN excluded.role ELSE presence.role END,
				department   = CASE WHEN excluded.department <> '' THEN excluded.department ELSE presence.department END,
				current_page = excluded.current_page,
				is_active    = excluded.is_active,
				last_active  = excluded.last_active`,
			hb.UserID, hb.Name, hb.Email, hb.AvatarRef, hb.Role, hb.Department,
			hb.CurrentPage, boolToInt(hb.IsActive), now)
		if err != nil {
			return fmt.Errorf("failed to record heartbeat: %w", err)
		}
		return nil
	})
}

// SetStatus records an explicit status transition without touching
// last_active, so an away/offline push doesn't masquerade as activity.
func (s *SQLiteStore) SetStatus(ctx context.Context, userID string, status types.Status) error {
	if !types.IsValidUserID(userID) {
		return types.ErrInvalidUserID
	}
	if !status.Valid() {
		return types.ErrInvalidStatus
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO presence (user_id, status) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET status = excluded.status`,
			userID, string(status))
		if err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}
		return nil
	})
}

// Snapshot returns every known user, name-ordered for stable output.
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]*types.UserPresence, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, email, avatar_ref, role, department, current_page, is_active, status, last_active
		FROM presence ORDER BY name COLLATE NOCASE, user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence snapshot: %w", err)
	}
	defer rows.Close()

	var users []*types.UserPresence
	for rows.Next() {
		var u types.UserPresence
		var isActive int
		var status string
		var lastActive int64
		if err := rows.Scan(&u.UserID, &u.Name, &u.Email, &u.AvatarRef, &u.Role,
			&u.Department, &u.CurrentPage, &isActive, &status, &lastActive); err != nil {
			return nil, fmt.Errorf("failed to scan presence row: %w", err)
		}
		u.IsActive = isActive != 0
		u.Status = types.Status(status)
		if lastActive > 0 {
			u.LastActive = time.UnixMilli(lastActive)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read presence snapshot: %w", err)
	}

	return users, nil
}

// Close flushes pending writes and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ interfaces.PresenceStore = (*SQLiteStore)(nil)
