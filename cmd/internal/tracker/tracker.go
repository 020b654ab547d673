// Package tracker is the engine's surface for commands, platform signals and
// the daily job. It turns registry, recorder and leaderboard results into the
// plain text replies the bot sends.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"invitetrack/cmd/internal/attribution"
	"invitetrack/cmd/internal/gateway"
	"invitetrack/cmd/internal/invite"
	"invitetrack/cmd/internal/leaderboard"
	"invitetrack/cmd/internal/metrics"
)

var ErrInvalidInput = errors.New("invalid input")

// Report kinds, used as metric labels.
const (
	KindOnDemand  = "on_demand"
	KindPersonal  = "personal"
	KindScheduled = "scheduled"
)

// Registry issues invite tokens and lists an inviter's tokens.
type Registry interface {
	CreateToken(ctx context.Context, in invite.CreateInput) (invite.Token, error)
	Tokens(ctx context.Context, chatID int64, inviterKey string) ([]invite.Token, error)
	PrivateTTL() time.Duration
}

// JoinRecorder appends attribution events.
type JoinRecorder interface {
	RecordJoin(ctx context.Context, chatID int64, token *string, inviteeUserID int64) (attribution.Event, error)
}

// Reporter builds leaderboards.
type Reporter interface {
	BuildReport(ctx context.Context, chatID int64) (leaderboard.Report, error)
	PersonalReport(ctx context.Context, chatID int64, inviterKey string) (leaderboard.PersonalReport, error)
}

// Gateway is the subset of the platform the tracker writes to.
type Gateway interface {
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// JoinRequest is a pending request to enter a chat through an
// approval-required link. Token is nil when the platform did not say which
// link was used.
type JoinRequest struct {
	ChatID int64
	User   User
	Token  *string
}

// DirectJoin is a membership change observed in a chat.
type DirectJoin struct {
	ChatID         int64
	User           User
	Token          *string
	PreviousStatus gateway.Status
	NewStatus      gateway.Status
	// PreviousIsMember and NewIsMember carry the platform's is_member flag,
	// which keeps a restricted user in the chat.
	PreviousIsMember bool
	NewIsMember      bool
	// ViaJoinRequest is set when the member was let in by an approved join
	// request, which JoinRequested has already recorded.
	ViaJoinRequest bool
	// LinkRequiresApproval is set when Token belongs to an approval-required link.
	LinkRequiresApproval bool
}

// Joined reports whether the change is an arrival: out of the chat before,
// in it now. Lifting or adding restrictions is not an arrival.
func (d DirectJoin) Joined() bool {
	return inChat(d.NewStatus, d.NewIsMember) && !inChat(d.PreviousStatus, d.PreviousIsMember)
}

// Left reports whether the member left or was removed.
func (d DirectJoin) Left() bool {
	if !inChat(d.PreviousStatus, d.PreviousIsMember) {
		return false
	}
	return d.NewStatus == gateway.StatusLeft || d.NewStatus == gateway.StatusKicked
}

// inChat differs from Status.Present in counting restricted members who
// are still in the chat; validity keeps using Present.
func inChat(s gateway.Status, isMember bool) bool {
	return s.Present() || (s == gateway.StatusRestricted && isMember)
}

// Tracker wires the engine components together.
type Tracker struct {
	registry Registry
	recorder JoinRecorder
	reporter Reporter
	gw       Gateway
	policy   KeyPolicy
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Tracker.
type Option func(*Tracker) error

// WithKeyPolicy sets how inviters are identified.
func WithKeyPolicy(p KeyPolicy) Option {
	return func(t *Tracker) error {
		if p != KeyByID && p != KeyByDisplay {
			return fmt.Errorf("%w: key policy %q", ErrInvalidInput, p)
		}
		t.policy = p
		return nil
	}
}

// WithLogger sets the tracker logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) error {
		if log != nil {
			t.log = log
		}
		return nil
	}
}

// WithMetrics records report timings.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) error {
		t.metrics = m
		return nil
	}
}

// New constructs a Tracker.
func New(registry Registry, recorder JoinRecorder, reporter Reporter, gw Gateway, opts ...Option) (*Tracker, error) {
	if registry == nil || recorder == nil || reporter == nil || gw == nil {
		return nil, ErrInvalidInput
	}
	t := &Tracker{
		registry: registry,
		recorder: recorder,
		reporter: reporter,
		gw:       gw,
		policy:   KeyByID,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Policy returns the inviter key policy.
func (t *Tracker) Policy() KeyPolicy { return t.policy }

// CreateLink issues an approval-required invite link for u. The returned text
// is the reply to show u, also on failure.
func (t *Tracker) CreateLink(ctx context.Context, chatID int64, u User, private bool) (string, error) {
	mode := invite.ModePublic
	if private {
		mode = invite.ModePrivateTimed
	}

	tok, err := t.registry.CreateToken(ctx, invite.CreateInput{
		ChatID:      chatID,
		InviterKey:  t.policy.Key(u),
		InviterName: u.Display(),
		Mode:        mode,
	})
	if err != nil {
		t.log.Error("link.create.fail", "chat_id", chatID, "user_id", u.ID, "private", private, "err", err)
		return "Failed to create invite link: " + userError(err), err
	}

	if private {
		return fmt.Sprintf("Private invite link (with join requests, valid for %s):\n%s",
			humanTTL(t.registry.PrivateTTL()), tok.Token), nil
	}
	return "Public invite link (with join requests):\n" + tok.Token, nil
}

// Help lists the bot commands. The private link lifetime follows the registry.
func (t *Tracker) Help() string {
	return "Welcome to the Invite Tracker Bot!\n\n" +
		"Available commands:\n" +
		"/getinvite - Generate a public invite link (with join requests)\n" +
		"/getinviteprivate - Generate a private invite link (with join requests, valid for " +
		humanTTL(t.registry.PrivateTTL()) + ")\n" +
		"/leaderboard - Display the leaderboard of valid invites\n" +
		"/myinvites - Show your personal invite statistics\n" +
		"/getchatid - (Admins only) Retrieve the chat ID\n" +
		"/help - Show this help message\n"
}

// GetLeaderboard renders the chat's current leaderboard.
func (t *Tracker) GetLeaderboard(ctx context.Context, chatID int64) (string, error) {
	text, err := t.leaderboard(ctx, chatID, KindOnDemand)
	if err != nil {
		return "Sorry, the leaderboard could not be built right now.", err
	}
	return text, nil
}

// RunScheduledReport renders the daily leaderboard for one chat.
// The scheduler calls it once per tracked chat.
func (t *Tracker) RunScheduledReport(ctx context.Context, chatID int64) (string, error) {
	text, err := t.leaderboard(ctx, chatID, KindScheduled)
	if err != nil {
		return "", err
	}
	return "Daily Leaderboard:\n" + text, nil
}

// GetMyInvites renders u's personal invite stats in chatID.
func (t *Tracker) GetMyInvites(ctx context.Context, chatID int64, u User) (string, error) {
	key := t.policy.Key(u)
	if key == "" {
		return "You haven't invited anyone yet.", nil
	}

	start := time.Now()
	rep, err := t.reporter.PersonalReport(ctx, chatID, key)
	t.metrics.ReportBuilt(KindPersonal, time.Since(start), err)
	if err != nil {
		t.log.Error("report.build.fail", "kind", KindPersonal, "chat_id", chatID, "inviter", key, "err", err)
		return "Sorry, your invite stats could not be loaded right now.", err
	}

	text := leaderboard.RenderPersonal(rep, u.Display())

	toks, err := t.registry.Tokens(ctx, chatID, key)
	if err != nil {
		t.log.Warn("invite.list.fail", "chat_id", chatID, "inviter", key, "err", err)
		return text, nil
	}
	now := time.Now()
	for _, tok := range toks {
		if !tok.Expired(now) {
			text += "\nYour latest link: " + tok.Token
			break
		}
	}
	return text, nil
}

// JoinRequested approves a pending join and then records it. If approval
// fails nothing is recorded and the error is returned.
func (t *Tracker) JoinRequested(ctx context.Context, req JoinRequest) error {
	if req.ChatID == 0 || req.User.ID == 0 {
		return ErrInvalidInput
	}

	if err := t.gw.ApproveJoinRequest(ctx, req.ChatID, req.User.ID); err != nil {
		t.log.Error("join.approve.fail", "chat_id", req.ChatID, "user_id", req.User.ID, "err", err)
		return fmt.Errorf("approve join request: %w", err)
	}

	if _, err := t.recorder.RecordJoin(ctx, req.ChatID, req.Token, req.User.ID); err != nil {
		return fmt.Errorf("record join: %w", err)
	}

	t.notify(ctx, req.ChatID, fmt.Sprintf("✅ %s has joined!", firstName(req.User)))
	return nil
}

// DirectJoinObserved records an arrival that did not go through a join
// request. It reports whether an event was appended.
func (t *Tracker) DirectJoinObserved(ctx context.Context, j DirectJoin) (bool, error) {
	if j.ChatID == 0 || j.User.ID == 0 {
		return false, ErrInvalidInput
	}
	if !j.Joined() || j.ViaJoinRequest || j.LinkRequiresApproval {
		return false, nil
	}
	if _, err := t.recorder.RecordJoin(ctx, j.ChatID, j.Token, j.User.ID); err != nil {
		return false, fmt.Errorf("record join: %w", err)
	}
	return true, nil
}

func (t *Tracker) leaderboard(ctx context.Context, chatID int64, kind string) (string, error) {
	start := time.Now()
	rep, err := t.reporter.BuildReport(ctx, chatID)
	t.metrics.ReportBuilt(kind, time.Since(start), err)
	if err != nil {
		t.log.Error("report.build.fail", "kind", kind, "chat_id", chatID, "err", err)
		return "", err
	}
	return leaderboard.Render(rep, t.labeler(ctx, chatID, rep)), nil
}

// labeler names inviters for display. Display keys are shown as-is; id keys
// use the name stored with the inviter's latest token.
func (t *Tracker) labeler(ctx context.Context, chatID int64, rep leaderboard.Report) leaderboard.Labeler {
	if t.policy == KeyByDisplay {
		return nil
	}
	names := make(map[string]string, len(rep.Entries))
	for _, e := range rep.Entries {
		if e.InviterKey == invite.UnknownInviter {
			continue
		}
		toks, err := t.registry.Tokens(ctx, chatID, e.InviterKey)
		if err != nil || len(toks) == 0 || toks[0].InviterName == "" {
			continue
		}
		names[e.InviterKey] = toks[0].InviterName
	}
	return func(key string) string {
		if n, ok := names[key]; ok {
			return n
		}
		if key == invite.UnknownInviter {
			return key
		}
		return "Inviter " + key
	}
}

func (t *Tracker) notify(ctx context.Context, chatID int64, text string) {
	if err := t.gw.SendMessage(ctx, chatID, text); err != nil {
		t.log.Warn("notice.send.fail", "chat_id", chatID, "err", err)
	}
}

func firstName(u User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Display()
}

// userError is the part of err safe to show in chat.
func userError(err error) string {
	var ge *gateway.Error
	if errors.As(err, &ge) && ge.Description != "" {
		return ge.Description
	}
	if errors.Is(err, invite.ErrInvalidInput) {
		return "invalid request"
	}
	if errors.Is(err, invite.ErrPersistence) {
		return "storage unavailable"
	}
	return "platform unavailable"
}

// humanTTL renders d as whole days when it is a multiple of a day.
func humanTTL(d time.Duration) string {
	const day = 24 * time.Hour
	if d >= day && d%day == 0 {
		n := int(d / day)
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	}
	return d.String()
}
