package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Conn serializes writes to a gorilla connection, which supports one
// concurrent writer only.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

// Wrap returns a Conn around c.
func Wrap(c *websocket.Conn) *Conn {
	return &Conn{Conn: c}
}

// WriteTyped sends a typed event payload.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// WriteError sends an ErrorResponse.
func (c *Conn) WriteError(code, msg string) error {
	return c.WriteTyped(ErrorResponse{Event: EventError, Code: code, Error: msg})
}

// ReadRequest reads the next client message, waiting at most readWait.
func (c *Conn) ReadRequest(req *Request) error {
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	return c.ReadJSON(req)
}
