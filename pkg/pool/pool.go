// Package pool owns the rotating collection of upstream accounts. It
// hands out a usable, logged-in account per request and skips past
// accounts that are rate-limited or cannot authenticate.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/nanohit/nocturne/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultBudget is the assumed per-account call budget after a login
// when the config does not override it.
const DefaultBudget = 10

// Authenticator performs the identity-provider login handshake for an
// account, committing token/subject id/budget to it on success.
type Authenticator interface {
	Login(ctx context.Context, acct *Account) error
}

// Options configures a Pool
type Options struct {
	Credentials   []Credential
	DefaultBudget int
	Auth          Authenticator
	Metrics       *metrics.Metrics // optional
	Logger        zerolog.Logger
}

// Pool is the ordered, append-only collection of accounts plus the
// rotation cursor. The mutex covers the whole acquire scan (cursor read,
// exhaustion check, login, return) so two concurrent acquisitions cannot
// log in the same fresh account twice. It is released before the caller
// uses the account: two callers sharing one account is intentional.
type Pool struct {
	mu            sync.Mutex
	accounts      []*Account
	cursor        int
	auth          Authenticator
	defaultBudget int
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// New creates a pool seeded with the given credentials. Accounts are
// authenticated lazily on first acquisition, not here.
func New(opts Options) (*Pool, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = DefaultBudget
	}

	p := &Pool{
		auth:          opts.Auth,
		defaultBudget: opts.DefaultBudget,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	for _, cred := range opts.Credentials {
		p.accounts = append(p.accounts, NewAccount(cred))
	}

	p.logger.Info().Int("accounts", len(p.accounts)).Msg("Account pool initialized")
	p.updateGauges()

	return p, nil
}

// Acquire returns a usable account, logging it in first if needed. It
// scans at most len(accounts) entries starting at the cursor. On success
// the cursor is NOT advanced: the same account keeps serving until it is
// exhausted. Returns nil when every account has been visited and none is
// usable.
func (p *Pool) Acquire(ctx context.Context) *Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.accounts)
	for i := 0; i < n; i++ {
		acct := p.accounts[p.cursor]

		if acct.IsExhausted() {
			p.cursor = (p.cursor + 1) % n
			continue
		}

		if acct.JWT() == "" {
			if err := p.auth.Login(ctx, acct); err != nil {
				p.logger.Warn().
					Err(err).
					Str("email", RedactEmail(acct.Email)).
					Msg("Login failed, marking account exhausted")
				if p.metrics != nil {
					p.metrics.LoginsTotal.WithLabelValues("failure").Inc()
				}
				acct.markExhausted()
				p.cursor = (p.cursor + 1) % n
				continue
			}
			p.logger.Info().
				Str("email", RedactEmail(acct.Email)).
				Msg("Account logged in")
			if p.metrics != nil {
				p.metrics.LoginsTotal.WithLabelValues("success").Inc()
			}
			p.updateGauges()
		}

		return acct
	}

	return nil
}

// MarkExhausted flags an account as rate-limited and advances the cursor
// past it. Called from the dispatcher after a 429; only the cursor
// arithmetic is locked, never a network call.
func (p *Pool) MarkExhausted(acct *Account) {
	acct.markExhausted()

	p.mu.Lock()
	for i, a := range p.accounts {
		if a == acct {
			p.cursor = (i + 1) % len(p.accounts)
			break
		}
	}
	p.updateGauges()
	p.mu.Unlock()

	p.logger.Info().
		Str("email", RedactEmail(acct.Email)).
		Msg("Account exhausted, rotating")
	if p.metrics != nil {
		p.metrics.RotationsTotal.Inc()
	}
}

// Advance moves the cursor past the given account without disqualifying
// it. Used when an attempt failed for a reason that says nothing about
// the account itself, such as a network error.
func (p *Pool) Advance(acct *Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.accounts {
		if a == acct {
			p.cursor = (i + 1) % len(p.accounts)
			return
		}
	}
}

// Add appends a new unauthenticated account. Duplicate emails are
// rejected.
func (p *Pool) Add(email, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.accounts {
		if a.Email == email {
			return fmt.Errorf("account already exists: %s", RedactEmail(email))
		}
	}
	p.accounts = append(p.accounts, NewAccount(Credential{Email: email, Password: password}))

	p.logger.Info().
		Str("email", RedactEmail(email)).
		Int("total", len(p.accounts)).
		Msg("Account added")
	p.updateGauges()

	return nil
}

// Revive reinstates every exhausted account, invalidating its token so
// the next acquisition logs in afresh. Returns the number of accounts
// revived. Driven by the optional cron schedule; never called otherwise.
func (p *Pool) Revive() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	revived := 0
	for _, a := range p.accounts {
		if a.IsExhausted() {
			a.revive(p.defaultBudget)
			revived++
		}
	}
	if revived > 0 {
		p.logger.Info().Int("revived", revived).Msg("Exhausted accounts reinstated")
	}
	p.updateGauges()

	return revived
}

// Size returns the number of accounts in the pool
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.accounts)
}

// Close releases every account's transport
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if c := a.Client(); c != nil {
			c.CloseIdleConnections()
		}
	}
}

// Status is the pool introspection snapshot served at /status
type Status struct {
	TotalAccounts  int             `json:"total_accounts"`
	ActiveAccounts int             `json:"active_accounts"`
	TotalRemaining int             `json:"total_remaining"`
	Accounts       []AccountStatus `json:"accounts"`
}

// AccountStatus is one account's redacted status line
type AccountStatus struct {
	Email     string `json:"email"`
	Remaining int    `json:"remaining"`
	Active    bool   `json:"active"`
}

// Status returns a snapshot of the pool
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{TotalAccounts: len(p.accounts)}
	for _, a := range p.accounts {
		active := !a.IsExhausted()
		remaining := a.Remaining()
		if active {
			st.ActiveAccounts++
			st.TotalRemaining += remaining
		}
		st.Accounts = append(st.Accounts, AccountStatus{
			Email:     RedactEmail(a.Email),
			Remaining: remaining,
			Active:    active,
		})
	}
	return st
}

// updateGauges refreshes the pool gauges. Callers hold p.mu.
func (p *Pool) updateGauges() {
	if p.metrics == nil {
		return
	}
	total, active, remaining := 0, 0, 0
	for _, a := range p.accounts {
		total++
		if !a.IsExhausted() {
			active++
			remaining += a.Remaining()
		}
	}
	p.metrics.AccountsTotal.Set(float64(total))
	p.metrics.AccountsActive.Set(float64(active))
	p.metrics.BudgetRemaining.Set(float64(remaining))
}

// RedactEmail truncates an email for logs and status output
func RedactEmail(email string) string {
	if len(email) <= 20 {
		return email
	}
	return email[:20] + "..."
}
