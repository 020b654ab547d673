// Package telegram is a minimal Bot API client covering the calls the invite
// tracker makes: invite links, join approval, membership lookups, messages and
// long-polled updates.
//
// Every failed call returns a *gateway.Error. Calls are rate limited, and
// idempotent reads are retried on transient failures. Writes are never retried
// because a retried approval or message could take effect twice.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"invitetrack/cmd/internal/gateway"
	"invitetrack/cmd/internal/metrics"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "https://api.telegram.org"

	defaultRPS      = 25
	defaultRetries  = 3
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 4 << 20
)

var ErrInvalidConfig = errors.New("invalid telegram config")

// Client calls the Bot API over HTTPS.
type Client struct {
	apiURL  string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retries uint
	backoff time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Client.
type Option func(*Client) error

// WithAPIURL points the client at another Bot API server (tests, local server).
func WithAPIURL(u string) Option {
	return func(c *Client) error {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" {
			return fmt.Errorf("%w: empty api url", ErrInvalidConfig)
		}
		c.apiURL = u
		return nil
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) error {
		if h == nil {
			return fmt.Errorf("%w: nil http client", ErrInvalidConfig)
		}
		c.http = h
		return nil
	}
}

// WithRateLimit caps outbound calls per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) error {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithRetries sets the number of attempts for idempotent calls.
func WithRetries(n int) Option {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("%w: retries must be >= 1", ErrInvalidConfig)
		}
		c.retries = uint(n)
		return nil
	}
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("%w: negative backoff", ErrInvalidConfig)
		}
		c.backoff = d
		return nil
	}
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// WithMetrics counts failed calls per method.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// NewClient constructs a Client for the bot identified by token.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty bot token", ErrInvalidConfig)
	}
	c := &Client{
		apiURL:  DefaultAPIURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRPS), defaultRPS),
		retries: defaultRetries,
		backoff: 500 * time.Millisecond,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CreateInviteLink mints a new invite link for chatID and returns its URL.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, opts gateway.LinkOptions) (string, error) {
	req := map[string]any{
		"chat_id":              chatID,
		"creates_join_request": opts.JoinApprovalRequired,
	}
	if opts.ExpiresAt != nil {
		req["expire_date"] = opts.ExpiresAt.Unix()
	}
	if opts.Name != "" {
		req["name"] = opts.Name
	}

	var link ChatInviteLink
	if err := c.call(ctx, "createChatInviteLink", req, &link, false); err != nil {
		return "", c.fail(err)
	}
	if link.InviteLink == "" {
		return "", c.fail(&gateway.Error{Method: "createChatInviteLink", Description: "empty invite link in response"})
	}
	return link.InviteLink, nil
}

// ApproveJoinRequest lets userID into chatID.
func (c *Client) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	var ok bool
	err := c.call(ctx, "approveChatJoinRequest", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, &ok, false)
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// GetMembershipStatus reports userID's current status in chatID.
// A user the platform has never seen in the chat is StatusNotFound, not an error.
func (c *Client) GetMembershipStatus(ctx context.Context, chatID, userID int64) (gateway.Status, error) {
	var m ChatMember
	err := c.call(ctx, "getChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, &m, true)
	if err != nil {
		if userNotFound(err) {
			return gateway.StatusNotFound, nil
		}
		return "", c.fail(err)
	}
	return gateway.ParseStatus(m.Status), nil
}

// SendMessage posts plain text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	var msg Message
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &msg, false)
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// GetUpdates long-polls for updates starting at offset, waiting up to timeout.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	secs := int(timeout / time.Second)
	if secs < 0 {
		secs = 0
	}
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         secs,
		"allowed_updates": AllowedUpdates,
	}, &updates, true)
	if err != nil {
		return nil, c.fail(err)
	}
	return updates, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call performs method with params and decodes the result into out.
// Idempotent calls are retried on retryable errors. The returned error is
// always a *gateway.Error and has not been counted yet.
func (c *Client) call(ctx context.Context, method string, params, out any, idempotent bool) error {
	body, err := json.Marshal(params)
	if err != nil {
		return &gateway.Error{Method: method, Err: err}
	}

	attempts := uint(1)
	if idempotent {
		attempts = c.retries
	}

	err = retry.Do(
		func() error { return c.do(ctx, method, body, out) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.backoff),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && gateway.Retryable(err)
		}),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			var ge *gateway.Error
			if errors.As(err, &ge) && ge.RetryAfter > 0 {
				return ge.RetryAfter
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("gateway.retry", "method", method, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		var ge *gateway.Error
		if errors.As(err, &ge) {
			return ge
		}
		return &gateway.Error{Method: method, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Unrecoverable(&gateway.Error{Method: method, Err: err})
	}

	url := c.apiURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(&gateway.Error{Method: method, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return retry.Unrecoverable(&gateway.Error{Method: method, Err: ctxErr})
		}
		return &gateway.Error{Method: method, Err: scrub(err, c.token)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &gateway.Error{Method: method, StatusCode: resp.StatusCode, Err: err}
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return &gateway.Error{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !env.OK {
		ge := &gateway.Error{
			Method:      method,
			StatusCode:  resp.StatusCode,
			Code:        env.ErrorCode,
			Description: env.Description,
		}
		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			ge.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		return ge
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &gateway.Error{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// fail counts a failed call and logs it.
func (c *Client) fail(err error) error {
	method := "unknown"
	var ge *gateway.Error
	if errors.As(err, &ge) {
		method = ge.Method
	}
	c.metrics.GatewayError(method)
	c.log.Warn("gateway.call.fail", "method", method, "err", err)
	return err
}

// userNotFound matches the platform's "user not found" style rejections for
// getChatMember, which mean the user has no standing in the chat.
func userNotFound(err error) bool {
	var ge *gateway.Error
	if !errors.As(err, &ge) || ge.Code != http.StatusBadRequest {
		return false
	}
	d := strings.ToLower(ge.Description)
	return strings.Contains(d, "user not found") ||
		strings.Contains(d, "participant_id_invalid") ||
		strings.Contains(d, "member not found")
}

// scrub removes the bot token from transport errors, which embed the request URL.
func scrub(err error, token string) error {
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "<redacted>"))
}
