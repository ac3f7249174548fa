package gateway

import (
	"context"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/gorilla/websocket"
)

// WebSocketSink writes events as JSON text messages.
type WebSocketSink struct {
	conn *websocket.Conn
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

func (s *WebSocketSink) Send(ctx context.Context, event model.Event) error {
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(event)
}

// ReadUntilClosed discards client messages and calls cancel once the
// connection is closed or broken. Close frames are only processed while
// reading, so this must run for the whole session.
func (s *WebSocketSink) ReadUntilClosed(cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSink) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
