package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Enough for SDP payloads.
	maxMessageSize = 64 * 1024
)

// Conn is the relay-side handle for one websocket. The relay owns it
// exclusively: it is removed from its room and discarded on transport
// close or protocol violation.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan *signal.Envelope
	done chan struct{}
	log  *logger.Logger

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, sendBuffer int, log *logger.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan *signal.Envelope, sendBuffer),
		done: make(chan struct{}),
		log:  log.Extend(log.With().Str("conn", id)),
	}
}

func (c *Conn) ID() string { return c.id }

// trySend queues env for the writer goroutine. Delivery is bounded
// effort: a full buffer or a closed connection drops the message.
func (c *Conn) trySend(env *signal.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump pumps raw frames from the websocket into onMessage. It is
// the only reader of the socket. A frame that fails to parse is handled
// by the dispatcher; only transport errors end the loop.
func (c *Conn) readPump(onMessage func([]byte), onClose func()) {
	defer func() {
		onClose()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		onMessage(data)
	}
}

// writePump is the only writer of the socket. It drains the send queue
// and keeps the connection alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.log.Debug().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
