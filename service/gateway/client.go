package gateway

import (
	"net"
	"sync"
	"time"

	"PPRealtime/tools/errs"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	errClientClosed = errs.ErrUnavailable.WrapMsg("connection closed")
	errSendQueue    = errs.ErrUnavailable.WrapMsg("send queue full")
)

// wsClient is one websocket connection. It implements chat.Sink: Deliver only
// enqueues, the write pump owns the socket for writing.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id string, conn *websocket.Conn, queue int) *wsClient {
	return &wsClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// Deliver never blocks. A full queue means the peer cannot keep up; the
// connection is closed rather than stalling the fan-out.
func (c *wsClient) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		_ = c.Close()
		return errSendQueue
	}
}

// Close stops the write pump, which closes the socket.
func (c *wsClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump is the only writer: queued frames and pings.
func (c *wsClient) writePump(conf Conf, log *zap.Logger) {
	ticker := time.NewTicker(conf.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(conf.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("ws write failed", zap.String("session", c.id), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(conf.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug("ws ping failed", zap.String("session", c.id), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(conf.WriteWait))
			return
		}
	}
}

// readPump blocks until the peer goes away or the pong deadline passes.
func (c *wsClient) readPump(conf Conf, log *zap.Logger, onPong func(), onFrame func([]byte)) {
	c.conn.SetReadLimit(conf.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(conf.PongWait))
	c.conn.SetPongHandler(func(string) error {
		onPong()
		return c.conn.SetReadDeadline(time.Now().Add(conf.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				log.Debug("ws peer closed", zap.String("session", c.id))
			case isTimeout(err):
				log.Info("ws read timeout", zap.String("session", c.id))
			default:
				log.Debug("ws read failed", zap.String("session", c.id), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		onFrame(data)
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
