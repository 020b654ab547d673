package invite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SQLiteStore persists invite tokens in the invite_tokens table of a
// migrated SQLite database (see storage.OpenSQLite).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open, migrated database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, ErrInvalidInput
	}
	return &SQLiteStore{db: db}, nil
}

// Close is a no-op: the handle is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }

// Upsert inserts t or replaces the row with the same token.
func (s *SQLiteStore) Upsert(ctx context.Context, t Token) error {
	if s == nil || s.db == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Token = normalizeToken(t.Token)
	if t.Token == "" || strings.TrimSpace(t.InviterKey) == "" || !t.Mode.Valid() {
		return ErrInvalidInput
	}

	var expires sql.NullTime
	if t.ExpiresAt != nil {
		expires = sql.NullTime{Time: t.ExpiresAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invite_tokens (token, inviter_key, inviter_name, chat_id, mode, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (token) DO UPDATE
		    SET inviter_key = excluded.inviter_key,
		        inviter_name = excluded.inviter_name,
		        chat_id = excluded.chat_id,
		        mode = excluded.mode,
		        expires_at = excluded.expires_at,
		        created_at = excluded.created_at`,
		t.Token,
		t.InviterKey,
		t.InviterName,
		t.ChatID,
		string(t.Mode),
		expires,
		t.CreatedAt.UTC(),
	)
	return err
}

// Get fetches the record for token.
func (s *SQLiteStore) Get(ctx context.Context, token string) (Token, error) {
	if s == nil || s.db == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	token = normalizeToken(token)
	if token == "" {
		return Token{}, ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT token, inviter_key, inviter_name, chat_id, mode, expires_at, created_at
		   FROM invite_tokens
		  WHERE token = ?`,
		token,
	)
	out, err := scanSQLiteToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return out, nil
}

// ListByInviter returns the inviter's tokens for chatID, newest first.
func (s *SQLiteStore) ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Token, error) {
	if s == nil || s.db == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT token, inviter_key, inviter_name, chat_id, mode, expires_at, created_at
		   FROM invite_tokens
		  WHERE chat_id = ? AND inviter_key = ?
		  ORDER BY created_at DESC, token ASC`,
		chatID, inviterKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		t, err := scanSQLiteToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteToken(r rowScanner) (Token, error) {
	var (
		t       Token
		mode    string
		expires sql.NullTime
		created time.Time
	)
	if err := r.Scan(&t.Token, &t.InviterKey, &t.InviterName, &t.ChatID, &mode, &expires, &created); err != nil {
		return Token{}, err
	}
	t.Mode = Mode(mode)
	t.CreatedAt = created.UTC()
	if expires.Valid {
		exp := expires.Time.UTC()
		t.ExpiresAt = &exp
	}
	return t, nil
}
