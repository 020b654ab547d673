package attribution

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists events in PostgreSQL.
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

// Append inserts ev as a single row and returns it with its Seq.
func (s *PostgresStore) Append(ctx context.Context, ev Event) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrInvalidInput
	}
	if err := validate(ev); err != nil {
		return Event{}, err
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	events := pgIdent(s.schema, "attribution_events")
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+events+` (id, chat_id, inviter_key, invitee_user_id, token, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		ev.ID,
		ev.ChatID,
		ev.InviterKey,
		ev.InviteeUserID,
		nullableToken(ev.Token),
		ev.JoinedAt,
	).Scan(&ev.Seq)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// ListByChat returns the chat's events in append order.
func (s *PostgresStore) ListByChat(ctx context.Context, chatID int64) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := pgIdent(s.schema, "attribution_events")
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, chat_id, inviter_key, invitee_user_id, COALESCE(token, ''), joined_at
		   FROM `+events+`
		  WHERE chat_id = $1
		  ORDER BY seq ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ListByInviter returns the chat's events attributed to inviterKey, in append order.
func (s *PostgresStore) ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := pgIdent(s.schema, "attribution_events")
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, chat_id, inviter_key, invitee_user_id, COALESCE(token, ''), joined_at
		   FROM `+events+`
		  WHERE chat_id = $1 AND inviter_key = $2
		  ORDER BY seq ASC`,
		chatID, inviterKey,
	)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ListChats returns the distinct chats with events.
func (s *PostgresStore) ListChats(ctx context.Context) ([]int64, error) {
	if s == nil || s.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := pgIdent(s.schema, "attribution_events")
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT chat_id FROM `+events+` ORDER BY chat_id ASC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.ChatID, &ev.InviterKey, &ev.InviteeUserID, &ev.Token, &ev.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullableToken(tok string) *string {
	if tok == "" {
		return nil
	}
	return &tok
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
