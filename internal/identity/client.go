package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const userAgent = "wanderlore-go/0.1"

// Tokens is a successful credential grant from the identity service.
type Tokens struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	Username     string `json:"username"`
}

// ExpiresAt converts the relative expiry to an absolute instant from now.
func (t *Tokens) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Client talks to the identity service. It also keeps an in-memory handle to
// the most recent grant so CurrentSession can renew without a persisted
// refresh token (the "live session" path); the handle is process-local and
// lost on restart.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	live *Tokens
}

// NewClient creates an identity service client.
// baseURL is typically "https://auth.wanderlore.app".
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SignIn authenticates with username and password. On success the grant
// becomes the live session. An unconfirmed account fails with
// ErrUserNotConfirmed; callers route that to the verification flow.
func (c *Client) SignIn(ctx context.Context, username, password string) (*Tokens, error) {
	var tok Tokens

	err := c.post(ctx, "/auth/signin", map[string]any{
		"username": username,
		"password": password,
	}, &tok)
	if err != nil {
		return nil, err
	}

	if tok.Username == "" {
		tok.Username = username
	}

	c.setLive(&tok)

	c.logger.Info("sign-in successful", slog.String("username", username))

	return &tok, nil
}

// SignUp registers a new account. The account must be confirmed with the
// emailed code before it can sign in.
func (c *Client) SignUp(ctx context.Context, username, password string, attributes map[string]string) error {
	return c.post(ctx, "/auth/signup", map[string]any{
		"username":   username,
		"password":   password,
		"attributes": attributes,
	}, nil)
}

// ConfirmSignUp submits the confirmation code for a new account.
func (c *Client) ConfirmSignUp(ctx context.Context, username, code string) error {
	return c.post(ctx, "/auth/confirm", map[string]any{
		"username": username,
		"code":     code,
	}, nil)
}

// ResendConfirmationCode requests a fresh confirmation code.
func (c *Client) ResendConfirmationCode(ctx context.Context, username string) error {
	return c.post(ctx, "/auth/resend", map[string]any{
		"username": username,
	}, nil)
}

// ForgotPassword starts password recovery; the service emails a reset code.
func (c *Client) ForgotPassword(ctx context.Context, username string) error {
	return c.post(ctx, "/auth/forgot", map[string]any{
		"username": username,
	}, nil)
}

// ConfirmNewPassword completes password recovery with the emailed code.
func (c *Client) ConfirmNewPassword(ctx context.Context, username, code, newPassword string) error {
	return c.post(ctx, "/auth/forgot/confirm", map[string]any{
		"username":     username,
		"code":         code,
		"new_password": newPassword,
	}, nil)
}

// CurrentSession renews credentials using the live in-process session.
// Returns ErrNoLiveSession when no sign-in has happened in this process
// (e.g. after a cold start); callers then fall back to RefreshSession with
// a persisted refresh token.
func (c *Client) CurrentSession(ctx context.Context) (*Tokens, error) {
	c.mu.Lock()
	live := c.live
	c.mu.Unlock()

	if live == nil || live.RefreshToken == "" {
		return nil, ErrNoLiveSession
	}

	tok, err := c.RefreshSession(ctx, live.RefreshToken)
	if err != nil {
		return nil, err
	}

	if tok.Username == "" {
		tok.Username = live.Username
	}

	return tok, nil
}

// RefreshSession exchanges a refresh token for fresh credentials. The grant
// becomes the live session. A rejected token fails with ErrRefreshExpired.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error) {
	var tok Tokens

	err := c.post(ctx, "/auth/refresh", map[string]any{
		"refresh_token": refreshToken,
	}, &tok)
	if err != nil {
		return nil, err
	}

	// Some grants omit a rotated refresh token; keep the one that worked.
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	c.setLive(&tok)

	return &tok, nil
}

// DeleteAccount permanently deletes the signed-in account. Requires a valid
// access token from the live session.
func (c *Client) DeleteAccount(ctx context.Context) error {
	c.mu.Lock()
	live := c.live
	c.mu.Unlock()

	if live == nil || live.AccessToken == "" {
		return ErrNoLiveSession
	}

	err := c.do(ctx, http.MethodDelete, "/auth/account", nil, nil, live.AccessToken)
	if err != nil {
		return err
	}

	c.setLive(nil)

	return nil
}

// SignOut revokes the live session with the service and drops the local
// handle. Dropping the handle happens even if revocation fails; local state
// must never survive a sign-out.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	live := c.live
	c.live = nil
	c.mu.Unlock()

	if live == nil || live.AccessToken == "" {
		return nil
	}

	return c.do(ctx, http.MethodPost, "/auth/signout", nil, nil, live.AccessToken)
}

// HasLiveSession reports whether a sign-in has happened in this process.
func (c *Client) HasLiveSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.live != nil
}

func (c *Client) setLive(tok *Tokens) {
	c.mu.Lock()
	c.live = tok
	c.mu.Unlock()
}

// post issues an unauthenticated JSON POST and decodes the response into out
// (out may be nil for fire-and-forget operations).
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, "")
}

func (c *Client) do(ctx context.Context, method, path string, body map[string]any, out any, accessToken string) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: encoding request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity: creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if out == nil {
			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("identity: decoding response: %w", err)
		}

		return nil
	}

	return c.serviceError(resp)
}

// serviceError parses an error response body ({"code": ..., "message": ...})
// into a ServiceError carrying the matching sentinel.
func (c *Client) serviceError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		body = []byte("(failed to read response body)")
	}

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed.Message = string(body)
	}

	svcErr := &ServiceError{
		StatusCode: resp.StatusCode,
		Code:       parsed.Code,
		Message:    parsed.Message,
		Err:        classifyCode(parsed.Code),
	}

	c.logger.Debug("identity service error",
		slog.Int("status", resp.StatusCode),
		slog.String("code", parsed.Code),
	)

	return svcErr
}
