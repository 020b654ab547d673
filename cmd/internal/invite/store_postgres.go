package invite

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists invite tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "invitetrack").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "invitetrack"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

// Close is a no-op: the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Upsert inserts t or replaces the row with the same token in one statement.
func (s *PostgresStore) Upsert(ctx context.Context, t Token) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.Token = normalizeToken(t.Token)
	if t.Token == "" || strings.TrimSpace(t.InviterKey) == "" || !t.Mode.Valid() {
		return ErrInvalidInput
	}
	tokens := pgIdent(s.schema, "invite_tokens")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+tokens+` (token, inviter_key, inviter_name, chat_id, mode, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (token) DO UPDATE
		    SET inviter_key = EXCLUDED.inviter_key,
		        inviter_name = EXCLUDED.inviter_name,
		        chat_id = EXCLUDED.chat_id,
		        mode = EXCLUDED.mode,
		        expires_at = EXCLUDED.expires_at,
		        created_at = EXCLUDED.created_at`,
		t.Token,
		t.InviterKey,
		t.InviterName,
		t.ChatID,
		string(t.Mode),
		t.ExpiresAt,
		t.CreatedAt,
	)
	return err
}

// Get fetches the record for token.
func (s *PostgresStore) Get(ctx context.Context, token string) (Token, error) {
	if s == nil || s.pool == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	token = normalizeToken(token)
	if token == "" {
		return Token{}, ErrInvalidInput
	}

	tokens := pgIdent(s.schema, "invite_tokens")
	var (
		out  Token
		mode string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT token, inviter_key, inviter_name, chat_id, mode, expires_at, created_at
		   FROM `+tokens+`
		  WHERE token = $1`,
		token,
	).Scan(
		&out.Token,
		&out.InviterKey,
		&out.InviterName,
		&out.ChatID,
		&mode,
		&out.ExpiresAt,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	out.Mode = Mode(mode)
	return out, nil
}

// ListByInviter returns the inviter's tokens for chatID, newest first.
func (s *PostgresStore) ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Token, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := pgIdent(s.schema, "invite_tokens")
	rows, err := s.pool.Query(ctx,
		`SELECT token, inviter_key, inviter_name, chat_id, mode, expires_at, created_at
		   FROM `+tokens+`
		  WHERE chat_id = $1 AND inviter_key = $2
		  ORDER BY created_at DESC, token ASC`,
		chatID, inviterKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var (
			t    Token
			mode string
		)
		if err := rows.Scan(&t.Token, &t.InviterKey, &t.InviterName, &t.ChatID, &mode, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Mode = Mode(mode)
		out = append(out, t)
	}
	return out, rows.Err()
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
