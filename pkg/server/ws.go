package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/nanohit/nocturne/pkg/dispatch"
)

// wsFrame is one outbound WebSocket message
type wsFrame struct {
	Content   string `json:"content,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
}

// wsSink relays dispatcher events as WebSocket JSON frames
type wsSink struct {
	conn    *websocket.Conn
	started bool
}

func (s *wsSink) Begin(remaining int) error {
	s.started = true
	return s.conn.WriteJSON(wsFrame{Remaining: &remaining})
}

func (s *wsSink) Event(content string) error {
	return s.conn.WriteJSON(wsFrame{Content: content})
}

func (s *wsSink) Done() error {
	return s.conn.WriteJSON(wsFrame{Done: true})
}

// handleWS serves streaming chat over a WebSocket: the client sends one
// chat request, the broker relays content frames and a final done frame,
// then closes. Same dispatch path and rotation semantics as /stream.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var body chatRequest
	if err := conn.ReadJSON(&body); err != nil {
		_ = conn.WriteJSON(wsFrame{Error: "invalid JSON"})
		return
	}
	req, err := body.toDispatch()
	if err != nil {
		_ = conn.WriteJSON(wsFrame{Error: err.Error()})
		return
	}

	sink := &wsSink{conn: conn}
	if _, err := s.dispatcher.Stream(r.Context(), req, sink); err != nil && !sink.started {
		message := err.Error()
		var upstream *dispatch.UpstreamError
		if errors.As(err, &upstream) {
			message = "API error: " + upstream.Body
		}
		_ = conn.WriteJSON(wsFrame{Error: message})
	}
}
