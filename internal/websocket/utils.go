package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// ReadTimeout is the idle limit for a client message. The browser sends
// pings well inside this window, so expiry means the tab is gone.
const ReadTimeout = 5 * time.Minute

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}
