// Package clerk implements the identity-provider login handshake. Each
// login runs on the account's own freshly built HTTP client so cookies
// set by the bootstrap call are visible to the later steps.
package clerk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nanohit/nocturne/pkg/pool"
	"github.com/rs/zerolog"
)

const maxResponseBytes = 1 << 20

// Options configures a Client
type Options struct {
	BaseURL       string
	UserAgent     string
	DefaultBudget int
	Logger        zerolog.Logger
}

// Client executes the three-step sign-in flow and the token exchange
type Client struct {
	base      string
	userAgent string
	budget    int
	logger    zerolog.Logger
}

// New creates a Clerk client
func New(opts Options) *Client {
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = pool.DefaultBudget
	}
	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		budget:    opts.DefaultBudget,
		logger:    opts.Logger,
	}
}

type signInResponse struct {
	Response struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		CreatedSessionID string `json:"created_session_id"`
	} `json:"response"`
}

type tokenResponse struct {
	JWT string `json:"jwt"`
}

// Login performs the full handshake for an account and commits the
// resulting token, subject id and budget to it. Any failing step is
// returned as an error; nothing panics and nothing partial is committed.
func (c *Client) Login(ctx context.Context, acct *pool.Account) error {
	c.logger.Debug().
		Str("email", pool.RedactEmail(acct.Email)).
		Msg("Logging in account")

	httpc, err := acct.ResetTransport()
	if err != nil {
		return fmt.Errorf("failed to build transport: %w", err)
	}

	// Step 1: bootstrap the client context. Best effort — Clerk sets
	// cookies here but a failure does not doom the sign-in.
	c.bootstrap(ctx, httpc)

	// Step 2: start the sign-in flow with the identifier
	var signIn signInResponse
	err = c.postForm(ctx, httpc, c.base+"/client/sign_ins",
		url.Values{"identifier": {acct.Email}}, &signIn)
	if err != nil {
		return fmt.Errorf("sign-in request failed: %w", err)
	}
	if signIn.Response.ID == "" {
		return fmt.Errorf("sign-in response missing id")
	}

	// Step 3: submit the password as the first factor
	var attempt signInResponse
	err = c.postForm(ctx, httpc,
		fmt.Sprintf("%s/client/sign_ins/%s/attempt_first_factor", c.base, signIn.Response.ID),
		url.Values{"strategy": {"password"}, "password": {acct.Password}}, &attempt)
	if err != nil {
		return fmt.Errorf("first factor attempt failed: %w", err)
	}
	if attempt.Response.Status != "complete" {
		return fmt.Errorf("sign-in not complete: status %q", attempt.Response.Status)
	}
	sessionID := attempt.Response.CreatedSessionID

	// Step 4: exchange the session for a bearer token
	var token tokenResponse
	err = c.postForm(ctx, httpc,
		fmt.Sprintf("%s/client/sessions/%s/tokens", c.base, sessionID), nil, &token)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	if token.JWT == "" {
		return fmt.Errorf("token response missing jwt")
	}

	userID := SubjectFromJWT(token.JWT)

	acct.Commit(token.JWT, userID, sessionID, c.budget)
	return nil
}

// bootstrap performs the initial GET /client handshake
func (c *Client) bootstrap(ctx context.Context, httpc *http.Client) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/client", nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := httpc.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Client bootstrap failed, continuing")
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}

// postForm sends a form-encoded POST and decodes the JSON response into
// out. A nil values sends an empty body.
func (c *Client) postForm(ctx context.Context, httpc *http.Client, target string, values url.Values, out interface{}) error {
	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unexpected response shape: %w", err)
	}
	return nil
}
