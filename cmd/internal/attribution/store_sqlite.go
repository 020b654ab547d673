package attribution

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteStore persists events in the attribution_events table of a
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

// Append inserts ev and returns it with its Seq.
func (s *SQLiteStore) Append(ctx context.Context, ev Event) (Event, error) {
	if s == nil || s.db == nil {
		return Event{}, ErrInvalidInput
	}
	if err := validate(ev); err != nil {
		return Event{}, err
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attribution_events (id, chat_id, inviter_key, invitee_user_id, token, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.ChatID,
		ev.InviterKey,
		ev.InviteeUserID,
		nullableToken(ev.Token),
		ev.JoinedAt.UTC(),
	)
	if err != nil {
		return Event{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	ev.Seq = seq
	return ev, nil
}

// ListByChat returns the chat's events in append order.
func (s *SQLiteStore) ListByChat(ctx context.Context, chatID int64) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, chat_id, inviter_key, invitee_user_id, COALESCE(token, ''), joined_at
		   FROM attribution_events
		  WHERE chat_id = ?
		  ORDER BY seq ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	return scanSQLiteEvents(rows)
}

// ListByInviter returns the chat's events attributed to inviterKey, in append order.
func (s *SQLiteStore) ListByInviter(ctx context.Context, chatID int64, inviterKey string) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, chat_id, inviter_key, invitee_user_id, COALESCE(token, ''), joined_at
		   FROM attribution_events
		  WHERE chat_id = ? AND inviter_key = ?
		  ORDER BY seq ASC`,
		chatID, inviterKey,
	)
	if err != nil {
		return nil, err
	}
	return scanSQLiteEvents(rows)
}

// ListChats returns the distinct chats with events.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrInvalidInput
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chat_id FROM attribution_events ORDER BY chat_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanSQLiteEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev     Event
			joined time.Time
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.ChatID, &ev.InviterKey, &ev.InviteeUserID, &ev.Token, &joined); err != nil {
			return nil, err
		}
		ev.JoinedAt = joined.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
