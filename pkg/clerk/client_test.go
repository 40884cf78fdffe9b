package clerk

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nanohit/nocturne/pkg/pool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClerk simulates the identity provider. It sets a cookie during the
// bootstrap call and requires it on every later step, which exercises
// the per-account cookie jar.
type fakeClerk struct {
	signInStatus string
	omitSignInID bool
	omitJWT      bool
	bootstrapErr bool
}

func (f *fakeClerk) handler(t *testing.T) http.Handler {
	t.Helper()
	jwt := "x." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user_clerk1"}`)) + ".y"

	mux := http.NewServeMux()
	mux.HandleFunc("/client", func(w http.ResponseWriter, r *http.Request) {
		if f.bootstrapErr {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "__client", Value: "cookie-1"})
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/client/sign_ins", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "app@example.com", r.FormValue("identifier"))
		if !f.bootstrapErr {
			c, err := r.Cookie("__client")
			require.NoError(t, err, "bootstrap cookie should be carried forward")
			require.Equal(t, "cookie-1", c.Value)
		}
		if f.omitSignInID {
			fmt.Fprint(w, `{"response":{}}`)
			return
		}
		fmt.Fprint(w, `{"response":{"id":"sia_123"}}`)
	})
	mux.HandleFunc("/client/sign_ins/sia_123/attempt_first_factor", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "password", r.FormValue("strategy"))
		require.Equal(t, "hunter2", r.FormValue("password"))
		fmt.Fprintf(w, `{"response":{"status":%q,"created_session_id":"sess_456"}}`, f.signInStatus)
	})
	mux.HandleFunc("/client/sessions/sess_456/tokens", func(w http.ResponseWriter, r *http.Request) {
		if f.omitJWT {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprintf(w, `{"jwt":%q}`, jwt)
	})
	return mux
}

func newTestAccount() *pool.Account {
	return pool.NewAccount(pool.Credential{Email: "app@example.com", Password: "hunter2"})
}

func TestLoginSuccess(t *testing.T) {
	fake := &fakeClerk{signInStatus: "complete"}
	ts := httptest.NewServer(fake.handler(t))
	defer ts.Close()

	c := New(Options{BaseURL: ts.URL, UserAgent: "test-agent", DefaultBudget: 10, Logger: zerolog.Nop()})
	acct := newTestAccount()

	err := c.Login(context.Background(), acct)
	require.NoError(t, err)

	assert.NotEmpty(t, acct.JWT())
	assert.Equal(t, "user_clerk1", acct.UserID())
	assert.Equal(t, "sess_456", acct.SessionID())
	assert.Equal(t, 10, acct.Remaining())
	assert.False(t, acct.IsExhausted())
	assert.NotNil(t, acct.Client())
}

func TestLoginBootstrapFailureIsTolerated(t *testing.T) {
	fake := &fakeClerk{signInStatus: "complete", bootstrapErr: true}
	ts := httptest.NewServer(fake.handler(t))
	defer ts.Close()

	c := New(Options{BaseURL: ts.URL, Logger: zerolog.Nop()})
	acct := newTestAccount()

	err := c.Login(context.Background(), acct)
	require.NoError(t, err)
	assert.NotEmpty(t, acct.JWT())
}

func TestLoginMissingSignInID(t *testing.T) {
	fake := &fakeClerk{signInStatus: "complete", omitSignInID: true}
	ts := httptest.NewServer(fake.handler(t))
	defer ts.Close()

	c := New(Options{BaseURL: ts.URL, Logger: zerolog.Nop()})
	acct := newTestAccount()

	err := c.Login(context.Background(), acct)
	require.Error(t, err)
	assert.Empty(t, acct.JWT())
}

func TestLoginIncompleteStatus(t *testing.T) {
	fake := &fakeClerk{signInStatus: "needs_second_factor"}
	ts := httptest.NewServer(fake.handler(t))
	defer ts.Close()

	c := New(Options{BaseURL: ts.URL, Logger: zerolog.Nop()})
	acct := newTestAccount()

	err := c.Login(context.Background(), acct)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs_second_factor")
	assert.Empty(t, acct.JWT())
}

func TestLoginMissingJWT(t *testing.T) {
	fake := &fakeClerk{signInStatus: "complete", omitJWT: true}
	ts := httptest.NewServer(fake.handler(t))
	defer ts.Close()

	c := New(Options{BaseURL: ts.URL, Logger: zerolog.Nop()})
	acct := newTestAccount()

	err := c.Login(context.Background(), acct)
	require.Error(t, err)
	assert.Empty(t, acct.JWT())
}

func TestLoginUnreachableProvider(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:1", Logger: zerolog.Nop()})
	acct := newTestAccount()

	err := c.Login(context.Background(), acct)
	require.Error(t, err)
	assert.Empty(t, acct.JWT())
}
