package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"invitetrack/cmd/internal/gateway"
	"invitetrack/cmd/internal/metrics"
)

const (
	defaultPrivateTTL = 7 * 24 * time.Hour
	maxLinkNameRunes  = 32
)

// LinkIssuer asks the messaging platform for a new invite link.
type LinkIssuer interface {
	CreateInviteLink(ctx context.Context, chatID int64, opts gateway.LinkOptions) (string, error)
}

// CreateInput describes a token request.
type CreateInput struct {
	ChatID      int64
	InviterKey  string
	InviterName string
	Mode        Mode
	// TTL applies to ModePrivateTimed only; <= 0 uses the service default.
	TTL time.Duration
	Now time.Time
}

// Service is the invite registry: it issues links through the platform
// and maps each token back to the inviter that requested it.
type Service struct {
	store      Store
	issuer     LinkIssuer
	privateTTL time.Duration
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service) error

// WithPrivateTTL sets the lifetime of private (timed) links.
func WithPrivateTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.privateTTL = d
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, issuer LinkIssuer, opts ...Option) (*Service, error) {
	if store == nil || issuer == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{
		store:      store,
		issuer:     issuer,
		privateTTL: defaultPrivateTTL,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PrivateTTL is the lifetime given to private links.
func (s *Service) PrivateTTL() time.Duration { return s.privateTTL }

// CreateToken requests a new link from the platform and records who asked for it.
//
// Platform failures are returned as-is (wrapping *gateway.Error) and nothing is stored.
// Storing overwrites any earlier record for the same token string; other tokens of
// the same inviter stay in place.
func (s *Service) CreateToken(ctx context.Context, in CreateInput) (Token, error) {
	if s == nil || s.store == nil {
		return Token{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	key := strings.TrimSpace(in.InviterKey)
	if key == "" || key == UnknownInviter || in.ChatID == 0 {
		return Token{}, ErrInvalidInput
	}
	mode := in.Mode
	if mode == "" {
		mode = ModePublic
	}
	if !mode.Valid() {
		return Token{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var expiresAt *time.Time
	if mode == ModePrivateTimed {
		ttl := in.TTL
		if ttl <= 0 {
			ttl = s.privateTTL
		}
		exp := now.Add(ttl).Truncate(time.Second)
		expiresAt = &exp
	}

	name := strings.TrimSpace(in.InviterName)
	link, err := s.issuer.CreateInviteLink(ctx, in.ChatID, gateway.LinkOptions{
		JoinApprovalRequired: true,
		ExpiresAt:            expiresAt,
		Name:                 truncateRunes(name, maxLinkNameRunes),
	})
	if err != nil {
		s.log.Error("invite.create.gateway_fail", "chat_id", in.ChatID, "inviter", key, "err", err)
		return Token{}, fmt.Errorf("invite: create link: %w", err)
	}
	link = normalizeToken(link)
	if link == "" {
		return Token{}, fmt.Errorf("invite: create link: %w", &gateway.Error{Method: "createChatInviteLink", Description: "empty invite link"})
	}

	tok := Token{
		Token:       link,
		InviterKey:  key,
		InviterName: name,
		ChatID:      in.ChatID,
		Mode:        mode,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.store.Upsert(ctx, tok); err != nil {
		s.log.Error("invite.store.fail", "chat_id", in.ChatID, "inviter", key, "err", err)
		return Token{}, persistenceErr(err)
	}

	s.metrics.TokenCreated(string(mode))
	s.log.Info("invite.created", "chat_id", in.ChatID, "inviter", key, "mode", mode)
	return tok, nil
}

// ResolveInviter returns the inviter key registered for token.
//
// Missing or unknown tokens resolve to UnknownInviter, never an error; the
// only error is a store failure.
func (s *Service) ResolveInviter(ctx context.Context, token string) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrInvalidInput
	}
	token = normalizeToken(token)
	if token == "" {
		return UnknownInviter, nil
	}

	t, err := s.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info("invite.resolve.unknown", "token", redact(token))
			return UnknownInviter, nil
		}
		return "", persistenceErr(err)
	}
	return t.InviterKey, nil
}

// Tokens lists the inviter's tokens for chatID, newest first.
func (s *Service) Tokens(ctx context.Context, chatID int64, inviterKey string) ([]Token, error) {
	if s == nil || s.store == nil {
		return nil, ErrInvalidInput
	}
	out, err := s.store.ListByInviter(ctx, chatID, inviterKey)
	if err != nil {
		return nil, persistenceErr(err)
	}
	return out, nil
}

func persistenceErr(err error) error {
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// redact keeps the tail of an invite link so logs do not carry usable links.
func redact(token string) string {
	const keep = 6
	if len(token) <= keep {
		return "***"
	}
	return "***" + token[len(token)-keep:]
}
