// Package sqlite persists conversation histories in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/casualjim/confab"
	"github.com/casualjim/confab/chat"
	"github.com/casualjim/confab/pkg/messages"
	"github.com/casualjim/confab/pkg/uuidx"
	"github.com/casualjim/confab/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is a saved conversation.
type Session struct {
	ID        uuid.UUID
	Provider  provider.ID
	Model     string
	Usage     chat.Usage
	CreatedAt strfmt.DateTime
	UpdatedAt strfmt.DateTime
	Messages  []messages.Message
}

// SessionMetadata is a Session without its messages, for listing.
type SessionMetadata struct {
	ID           uuid.UUID
	Provider     provider.ID
	Model        string
	CreatedAt    strfmt.DateTime
	UpdatedAt    strfmt.DateTime
	MessageCount int
}

// SessionOf snapshots a conversation. A nil id takes the conversation's id.
func SessionOf(id uuid.UUID, conv *confab.Conversation) *Session {
	cp := conv.Checkpoint()
	if id == uuid.Nil {
		id = cp.ID()
	}
	return &Session{
		ID:       id,
		Provider: conv.Endpoint().Provider(),
		Model:    conv.RequestParameters().Model,
		Usage:    cp.Usage(),
		Messages: cp.Messages(),
	}
}

// Checkpoint returns the saved history and usage totals as a conversation snapshot.
func (s *Session) Checkpoint() confab.Checkpoint {
	return confab.NewCheckpoint(s.ID, s.Messages, s.Usage)
}

// Resume starts a conversation that continues the saved one: same id, history
// and usage totals.
func (s *Session) Resume(endpoint *confab.Endpoint, options ...confab.ConversationOption) (*confab.Conversation, error) {
	options = append(options, confab.WithCheckpoint(s.Checkpoint()))
	return confab.NewConversation(endpoint, s.Model, options...)
}

// Store saves sessions in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" keeps everything in memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection, so an in-memory database is shared and writes serialize
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		usage TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		role TEXT NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (session_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the session, replacing a previous version with the same id.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuidx.New()
	}
	now := time.Now().UTC()
	sess.UpdatedAt = strfmt.DateTime(now)
	if time.Time(sess.CreatedAt).IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}

	usage, err := json.Marshal(sess.Usage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint: errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, provider, model, usage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			usage = excluded.usage,
			updated_at = excluded.updated_at`,
		sess.ID.String(), string(sess.Provider), sess.Model, string(usage),
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sess.ID.String()); err != nil {
		return fmt.Errorf("clear messages of %s: %w", sess.ID, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (session_id, position, id, role, body) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, m := range sess.Messages {
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, sess.ID.String(), i, m.ID.String(), string(m.Role), string(body)); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Load reads a session with its messages in history order.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*Session, error) {
	var (
		sess                 = &Session{ID: id}
		prov, usage          string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT provider, model, usage, created_at, updated_at FROM sessions WHERE id = ?`, id.String(),
	).Scan(&prov, &sess.Model, &usage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Provider = provider.ID(prov)
	if err := json.Unmarshal([]byte(usage), &sess.Usage); err != nil {
		return nil, fmt.Errorf("decode usage of %s: %w", id, err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM messages WHERE session_id = ? ORDER BY position`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var m messages.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, fmt.Errorf("decode message of %s: %w", id, err)
		}
		sess.Messages = append(sess.Messages, m)
	}
	return sess, rows.Err()
}

// List returns every session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]SessionMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.provider, s.model, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionMetadata
	for rows.Next() {
		var (
			md                        SessionMetadata
			id, prov, created, update string
		)
		if err := rows.Scan(&id, &prov, &md.Model, &created, &update, &md.MessageCount); err != nil {
			return nil, err
		}
		if md.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		md.Provider = provider.ID(prov)
		if md.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if md.UpdatedAt, err = parseTime(update); err != nil {
			return nil, err
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

// Delete removes a session and its messages.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint: errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id.String()); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func formatTime(t strfmt.DateTime) string {
	return time.Time(t).UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (strfmt.DateTime, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return strfmt.DateTime{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return strfmt.DateTime(t), nil
}
