package pool

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuth is a scripted authenticator. By default every login succeeds
// and commits a distinct token; emails listed in fail always fail.
type stubAuth struct {
	fail   map[string]bool
	logins int
}

func (s *stubAuth) Login(ctx context.Context, acct *Account) error {
	s.logins++
	if s.fail[acct.Email] {
		return fmt.Errorf("scripted failure for %s", acct.Email)
	}
	if _, err := acct.ResetTransport(); err != nil {
		return err
	}
	acct.Commit("jwt-"+acct.Email, "user-"+acct.Email, "sess-"+acct.Email, DefaultBudget)
	return nil
}

func newTestPool(t *testing.T, auth Authenticator, emails ...string) *Pool {
	t.Helper()
	var creds []Credential
	for _, e := range emails {
		creds = append(creds, Credential{Email: e, Password: "pw"})
	}
	p, err := New(Options{Credentials: creds, Auth: auth, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return p
}

func TestNewRequiresAuthenticator(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestAcquireLogsInLazily(t *testing.T) {
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com", "b@x.com")

	acct := p.Acquire(context.Background())
	require.NotNil(t, acct)
	assert.Equal(t, "a@x.com", acct.Email)
	assert.Equal(t, "jwt-a@x.com", acct.JWT())
	assert.Equal(t, 1, auth.logins, "only the selected account logs in")
}

func TestAcquireReusesSameAccount(t *testing.T) {
	// The cursor does not advance on success: the same account keeps
	// serving until it is exhausted.
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com", "b@x.com", "c@x.com")

	first := p.Acquire(context.Background())
	require.NotNil(t, first)
	for i := 0; i < 5; i++ {
		assert.Same(t, first, p.Acquire(context.Background()))
	}
	assert.Equal(t, 1, auth.logins)
}

func TestAcquireSkipsFailedLogins(t *testing.T) {
	auth := &stubAuth{fail: map[string]bool{"a@x.com": true, "b@x.com": true}}
	p := newTestPool(t, auth, "a@x.com", "b@x.com", "c@x.com")

	acct := p.Acquire(context.Background())
	require.NotNil(t, acct)
	assert.Equal(t, "c@x.com", acct.Email)
	assert.Equal(t, 3, auth.logins)
}

func TestAcquireVisitsAtMostPoolSize(t *testing.T) {
	auth := &stubAuth{fail: map[string]bool{"a@x.com": true, "b@x.com": true, "c@x.com": true}}
	p := newTestPool(t, auth, "a@x.com", "b@x.com", "c@x.com")

	assert.Nil(t, p.Acquire(context.Background()))
	assert.Equal(t, 3, auth.logins)

	// Second scan does not retry accounts already marked exhausted
	assert.Nil(t, p.Acquire(context.Background()))
	assert.Equal(t, 3, auth.logins)
}

func TestMarkExhaustedRotates(t *testing.T) {
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com", "b@x.com")

	first := p.Acquire(context.Background())
	require.Equal(t, "a@x.com", first.Email)

	p.MarkExhausted(first)
	assert.True(t, first.IsExhausted())
	assert.Equal(t, 0, first.Remaining())

	second := p.Acquire(context.Background())
	require.NotNil(t, second)
	assert.Equal(t, "b@x.com", second.Email)

	// The exhausted account is never selected again
	for i := 0; i < 4; i++ {
		assert.NotSame(t, first, p.Acquire(context.Background()))
	}
}

func TestAdvanceKeepsAccountEligible(t *testing.T) {
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com", "b@x.com")

	first := p.Acquire(context.Background())
	require.Equal(t, "a@x.com", first.Email)

	p.Advance(first)
	assert.False(t, first.IsExhausted())

	second := p.Acquire(context.Background())
	require.NotNil(t, second)
	assert.Equal(t, "b@x.com", second.Email)

	// Once b is exhausted the cursor wraps back to a
	p.MarkExhausted(second)
	assert.Same(t, first, p.Acquire(context.Background()))
}

func TestAcquireEmptyPool(t *testing.T) {
	p := newTestPool(t, &stubAuth{})
	assert.Nil(t, p.Acquire(context.Background()))
}

func TestAddAccount(t *testing.T) {
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com")

	require.NoError(t, p.Add("b@x.com", "pw2"))
	assert.Equal(t, 2, p.Size())

	// New account starts unauthenticated
	st := p.Status()
	require.Len(t, st.Accounts, 2)
	assert.Equal(t, 0, st.Accounts[1].Remaining)
}

func TestAddDuplicateRejected(t *testing.T) {
	p := newTestPool(t, &stubAuth{}, "a@x.com")

	err := p.Add("a@x.com", "pw")
	require.Error(t, err)
	assert.Equal(t, 1, p.Size())
}

func TestReviveReinstates(t *testing.T) {
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com")

	acct := p.Acquire(context.Background())
	require.NotNil(t, acct)
	p.MarkExhausted(acct)
	require.Nil(t, p.Acquire(context.Background()))

	assert.Equal(t, 1, p.Revive())
	assert.False(t, acct.IsExhausted())
	assert.Empty(t, acct.JWT(), "revival invalidates the token")

	// Next acquisition performs a fresh login
	again := p.Acquire(context.Background())
	require.NotNil(t, again)
	assert.Same(t, acct, again)
	assert.Equal(t, 2, auth.logins)
}

func TestReviveNoop(t *testing.T) {
	p := newTestPool(t, &stubAuth{}, "a@x.com")
	assert.Equal(t, 0, p.Revive())
}

func TestStatusRedactsEmails(t *testing.T) {
	p := newTestPool(t, &stubAuth{}, "averylongaccountname@example.com", "short@x.com")

	st := p.Status()
	assert.Equal(t, 2, st.TotalAccounts)
	assert.Equal(t, 2, st.ActiveAccounts)
	assert.Equal(t, "averylongaccountname...", st.Accounts[0].Email)
	assert.Equal(t, "short@x.com", st.Accounts[1].Email)
}

func TestStatusCounts(t *testing.T) {
	auth := &stubAuth{}
	p := newTestPool(t, auth, "a@x.com", "b@x.com")

	acct := p.Acquire(context.Background())
	require.NotNil(t, acct)
	acct.SetRemaining(7)
	p.MarkExhausted(p.accounts[1])

	st := p.Status()
	assert.Equal(t, 2, st.TotalAccounts)
	assert.Equal(t, 1, st.ActiveAccounts)
	assert.Equal(t, 7, st.TotalRemaining)
	assert.True(t, st.Accounts[0].Active)
	assert.False(t, st.Accounts[1].Active)
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "short@x.com", RedactEmail("short@x.com"))
	assert.Equal(t, "franciscovangelderen...", RedactEmail("franciscovangelderen@protostar.example"))
}
