// Package leagueapi calls the league server's authoritative match endpoints.
package leagueapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/DoyleJ11/league-scorekeeper/internal/platform/logging"
	"github.com/DoyleJ11/league-scorekeeper/internal/platform/resilience"
)

var (
	ErrUnauthorized   = crerr.New("league api credential unavailable")
	ErrRejected       = crerr.New("league api rejected the request")
	ErrInvalidPayload = crerr.New("invalid league api payload")
	errTransient      = crerr.New("league api transient failure")
)

// TokenSource supplies the bearer credential for each call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	CircuitBreaker resilience.CircuitBreakerConfig
}

type Client struct {
	client         *http.Client
	baseURL        string
	tokens         TokenSource
	logger         *logging.Logger
	validate       *validator.Validate
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func New(cfg Config, tokens TokenSource, logger *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tokens:         tokens,
		logger:         logger.With("component", "leagueapi"),
		validate:       validator.New(),
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// FetchLineup returns the server's view of the match: phase, game records and rosters.
func (c *Client) FetchLineup(ctx context.Context, matchID string) (Lineup, error) {
	var out Lineup
	if err := c.do(ctx, http.MethodGet, matchPath(matchID, "lineup"), nil, &out); err != nil {
		return Lineup{}, err
	}
	if !out.LineupState.Valid() {
		return Lineup{}, crerr.Wrapf(ErrInvalidPayload, "lineup_state %q", out.LineupState)
	}
	return out, nil
}

// SubmitLineup records one side's lineup. The server answers with its game records.
func (c *Client) SubmitLineup(ctx context.Context, matchID string, sub LineupSubmission) (LineupResult, error) {
	if err := c.check(ctx, sub); err != nil {
		return LineupResult{}, err
	}
	var out LineupResult
	if err := c.do(ctx, http.MethodPost, matchPath(matchID, "lineup"), sub, &out); err != nil {
		return LineupResult{}, err
	}
	return out, nil
}

func (c *Client) StartMatch(ctx context.Context, matchID string) error {
	return c.do(ctx, http.MethodPost, matchPath(matchID, "start"), struct{}{}, nil)
}

// SubmitMatch finalizes the match with its full scorecard.
func (c *Client) SubmitMatch(ctx context.Context, sub MatchSubmission) error {
	if err := c.check(ctx, sub); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, matchPath(sub.MatchID, "submit"), sub, nil)
}

func (c *Client) check(ctx context.Context, payload any) error {
	if err := c.validate.StructCtx(ctx, payload); err != nil {
		return crerr.Mark(crerr.Wrap(err, "validate payload"), ErrInvalidPayload)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "league api circuit breaker rejected request", "state", string(c.breaker.State()))
			return fmt.Errorf("league api is temporarily unavailable: %w", err)
		}
	}

	if c.baseURL == "" {
		c.recordCircuitResult(nil)
		return crerr.New("league api base url is not configured")
	}
	endpoint := c.baseURL + path

	var reader io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			c.recordCircuitResult(nil)
			return crerr.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		c.recordCircuitResult(nil)
		return crerr.Wrap(err, "create league api request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		callErr := fmt.Errorf("%w: %s %s: %v", errTransient, method, path, err)
		c.recordCircuitResult(callErr)
		return callErr
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.DebugContext(ctx, "league api call",
		"method", method, "path", path, "status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds())

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := strings.TrimSpace(string(raw))
		if isRetryableStatus(resp.StatusCode) {
			callErr := fmt.Errorf("%w: %s %s status=%d body=%s", errTransient, method, path, resp.StatusCode, text)
			c.recordCircuitResult(callErr)
			return callErr
		}
		c.recordCircuitResult(nil)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return crerr.Wrapf(ErrUnauthorized, "%s %s status=%d body=%s", method, path, resp.StatusCode, text)
		}
		return crerr.Wrapf(ErrRejected, "%s %s status=%d body=%s", method, path, resp.StatusCode, text)
	}
	c.recordCircuitResult(nil)

	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return crerr.Wrap(err, "read league api response")
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return crerr.Mark(crerr.Wrapf(err, "decode %s %s response", method, path), ErrInvalidPayload)
	}
	return nil
}

// bearer fails before any network attempt when no credential is available.
func (c *Client) bearer(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrUnauthorized
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", crerr.Mark(crerr.Wrap(err, "obtain bearer token"), ErrUnauthorized)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

func (c *Client) recordCircuitResult(err error) {
	if !c.circuitEnabled {
		return
	}
	c.breaker.Record(err)
}

// IsTransient reports whether err came from a network failure or a retryable status.
func IsTransient(err error) bool {
	return crerr.Is(err, errTransient)
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func matchPath(matchID, action string) string {
	return "/matches/" + url.PathEscape(matchID) + "/" + action
}
