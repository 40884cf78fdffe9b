package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSStream(t *testing.T) {
	s, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "9")
		fmt.Fprint(w,
			`{"kind":"content","content":"one"}`+"\n"+
				`{"kind":"content","content":"two"}`+"\n")
	}, Options{})

	conn := dialWS(t, s)
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hi"}))

	var opening wsFrame
	require.NoError(t, conn.ReadJSON(&opening))
	require.NotNil(t, opening.Remaining)
	assert.Equal(t, 9, *opening.Remaining)

	var contents []string
	for {
		var frame wsFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Done {
			break
		}
		contents = append(contents, frame.Content)
	}
	assert.Equal(t, []string{"one", "two"}, contents)
}

func TestWSNoMessage(t *testing.T) {
	s, _ := newTestServer(t, okUpstream, Options{})

	conn := dialWS(t, s)
	require.NoError(t, conn.WriteJSON(map[string]string{"model": "m"}))

	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "no message", frame.Error)
}

func TestWSExhausted(t *testing.T) {
	s, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, Options{})

	conn := dialWS(t, s)
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hi"}))

	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Contains(t, frame.Error, "exhausted")
}
