package signal

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cristivoicu/appserver/internal/core/domain"
	"github.com/cristivoicu/appserver/pkg/utils"
)

// Application close codes, in the private range reserved by RFC 6455.
const (
	CloseUnauthorized      = 4401
	CloseDuplicateIdentity = 4409
	CloseAccountDisabled   = 4999
)

const ReasonAccountDisabled = "Account was disabled"

var errConnClosed = errors.New("connection closed")

// Conn is one authenticated websocket client. A single writer goroutine owns
// the socket; every outbound frame goes through the send channel so writes
// are never interleaved. Identity fields are set once before Start and read
// concurrently afterwards.
type Conn struct {
	id       string
	Username string
	Name     string
	Role     domain.Role
	Token    string

	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	pingInterval time.Duration
	writeTimeout time.Duration

	closeCode   int
	closeReason string
}

func NewConn(ws *websocket.Conn, user *domain.User, pingInterval, writeTimeout time.Duration, sendBuffer int) *Conn {
	return &Conn{
		id:           utils.NewConnectionID(),
		Username:     user.Username,
		Name:         user.Name,
		Role:         user.Role,
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		closeCode:    websocket.CloseNormalClosure,
	}
}

// ID returns the connection identifier assigned at registration.
func (c *Conn) ID() string {
	return c.id
}

// AsUser builds the identity view of this connection for service calls.
func (c *Conn) AsUser() *domain.User {
	return &domain.User{Username: c.Username, Name: c.Name, Role: c.Role}
}

// Start launches the writer pump. Must be called exactly once.
func (c *Conn) Start() {
	go c.writePump()
}

// Send queues an envelope for the writer pump. Fails when the connection is
// closed or the send buffer is full; a client that cannot keep up is treated
// the same as one that is gone.
func (c *Conn) Send(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errConnClosed
	}
}

// CloseWithCode records a close code and stops the writer pump, which sends
// the close frame and closes the socket. Idempotent: the first call wins.
func (c *Conn) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Close shuts the connection down with a normal closure code.
func (c *Conn) Close() {
	c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// Done is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			// Flush frames queued before the close was requested.
			for {
				select {
				case data := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
					if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
					c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
					c.ws.WriteMessage(websocket.CloseMessage, msg)
					return
				}
			}
		}
	}
}
