// Package authclient is an HTTP implementation of the session guard backend
// for clients running outside the auth service process.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/guard"
)

// errServiceUnavailable marks a 503 answer; only these are retried.
var errServiceUnavailable = errors.New("auth service unavailable")

// Client talks to the auth HTTP API.
type Client struct {
	baseURL  string
	http     *http.Client
	maxTries uint
	backoff  time.Duration
	log      logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithRetry sets the attempt budget and first backoff for login and logout.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(cl *Client) { cl.maxTries, cl.backoff = maxTries, initial }
}

func WithLogger(l logrus.FieldLogger) Option { return func(cl *Client) { cl.log = l } }

// New returns a Client for baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
		maxTries: 3,
		backoff:  100 * time.Millisecond,
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ guard.Backend = (*Client)(nil)

// Login exchanges a password credential for a token pair. 503 answers are retried.
func (c *Client) Login(ctx context.Context, cred credential.Credential) (*domain.TokenPair, error) {
	body := map[string]string{"email": cred.Identifier, "password": cred.Secret}
	pair, err := retry(ctx, c, func() (*domain.TokenPair, error) {
		return c.postPair(ctx, "/api/auth/login", body)
	})
	if err != nil {
		return nil, c.classify(err)
	}
	return pair, nil
}

// Refresh rotates refreshToken. It is never retried: the server may have
// rotated before the answer was lost, and a replay would be treated as reuse.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	pair, err := c.postPair(ctx, "/api/auth/refresh", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, c.classify(err)
	}
	return pair, nil
}

// Logout revokes the pair's session. 503 answers are retried.
func (c *Client) Logout(ctx context.Context, pair *domain.TokenPair) error {
	_, err := retry(ctx, c, func() (struct{}, error) {
		resp, err := c.post(ctx, "/api/auth/logout", map[string]string{"refreshToken": pair.RefreshToken})
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		return struct{}{}, statusError(resp)
	})
	if err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *Client) postPair(ctx context.Context, path string, body any) (*domain.TokenPair, error) {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, err
	}
	var pair domain.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode token pair: %w", err)
	}
	return &pair, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

type apiError struct {
	status int
	code   string
}

func (e *apiError) Error() string { return fmt.Sprintf("auth api: %d %s", e.status, e.code) }

// statusError turns a non-2xx response into an error carrying the API error code.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body)
	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %w", errServiceUnavailable, &apiError{resp.StatusCode, body.Error})
	}
	return &apiError{resp.StatusCode, body.Error}
}

// classify maps transport and API errors onto credential and guard errors.
func (c *Client) classify(err error) error {
	var api *apiError
	if errors.As(err, &api) {
		switch api.status {
		case http.StatusUnauthorized:
			if api.code == "invalid_credential" {
				return credential.ErrInvalidCredential
			}
			return guard.ErrSessionEnded
		case http.StatusTooManyRequests:
			return credential.ErrRateLimited
		case http.StatusLocked:
			return credential.ErrAccountLocked
		}
	}
	c.log.WithError(err).Debug("authclient: request failed")
	return fmt.Errorf("%w: %w", guard.ErrTemporarilyUnavailable, err)
}

func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, errServiceUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}
