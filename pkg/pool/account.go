package pool

import (
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// Credential is an immutable email/password pair used to seed the pool
type Credential struct {
	Email    string
	Password string
}

// Account is one authenticated identity in the pool. It owns an isolated
// HTTP client (with its own cookie jar) that is torn down and rebuilt on
// every login, so identity-provider cookies never leak between accounts.
//
// Mutable fields are guarded by the account's own mutex. Budget tracking
// is best-effort: the pool deliberately hands the same account to
// concurrent callers, so Remaining is a hint, not an exact counter.
type Account struct {
	Email    string
	Password string

	mu        sync.Mutex
	jwt       string
	userID    string
	sessionID string
	remaining int
	exhausted bool
	client    *http.Client
}

// NewAccount creates an unauthenticated account from a credential
func NewAccount(cred Credential) *Account {
	return &Account{
		Email:    cred.Email,
		Password: cred.Password,
	}
}

// JWT returns the current bearer token, or empty if not logged in
func (a *Account) JWT() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jwt
}

// UserID returns the subject id derived from the bearer token
func (a *Account) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}

// SessionID returns the identity-provider session id
func (a *Account) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Remaining returns the best-effort remaining call budget
func (a *Account) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// SetRemaining updates the budget estimate from upstream response metadata
func (a *Account) SetRemaining(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remaining = n
}

// IsExhausted reports whether the account is ineligible for selection
func (a *Account) IsExhausted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exhausted
}

// Client returns the account's isolated HTTP client. Nil until the first
// login has built one.
func (a *Account) Client() *http.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

// ResetTransport discards the account's HTTP client and cookie state and
// builds a fresh one. Called at the start of every login so cookies set
// during the handshake land in a clean jar.
func (a *Account) ResetTransport() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
	a.client = &http.Client{
		Jar: jar,
		// Upstream chat calls stream for a while; logins are quick but
		// share the client.
		Timeout: 5 * time.Minute,
	}
	return a.client, nil
}

// Commit atomically installs the results of a successful login: token,
// subject id, session id and a fresh budget, clearing the exhausted flag.
func (a *Account) Commit(jwt, userID, sessionID string, budget int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jwt = jwt
	a.userID = userID
	a.sessionID = sessionID
	a.remaining = budget
	a.exhausted = false
}

// markExhausted flags the account and zeroes its budget
func (a *Account) markExhausted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exhausted = true
	a.remaining = 0
}

// revive clears the exhausted flag and invalidates the token so the next
// acquisition performs a fresh login. Token and subject id are cleared
// together: they are only ever set together by a login.
func (a *Account) revive(budget int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.exhausted {
		return
	}
	a.exhausted = false
	a.jwt = ""
	a.userID = ""
	a.sessionID = ""
	a.remaining = budget
}
