package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kasuganosora/questforge/game/player"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 1024
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxPacketSize = 1 << 20
)

// ErrClosed is returned by Send after the connection is closed.
var ErrClosed = errors.New("ws: connection closed")

// ErrBackpressure is returned by Send when the write queue is full.
var ErrBackpressure = errors.New("ws: send queue full")

// Conn is the host game server's websocket link. It implements player.Link.
type Conn struct {
	ID       string
	conn     *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
	lastSeq  uint64 // only touched by the read loop

	closeOnce sync.Once
	seqMu     sync.Mutex
	outSeq    uint64
	logger    *zap.Logger
}

// newConn wraps c and starts its write loop. c may be nil in tests, in
// which case packets stay in the send queue.
func newConn(id string, c *websocket.Conn, logger *zap.Logger) *Conn {
	conn := &Conn{
		ID:       id,
		conn:     c,
		sendChan: make(chan []byte, sendChanBuf),
		done:     make(chan struct{}),
		logger:   logger,
	}
	if c != nil {
		go conn.writePump()
	}
	return conn
}

// writePump drains the send queue and pings the host periodically.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()
	for {
		select {
		case data := <-c.sendChan:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error", zap.String("conn", c.ID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send stamps pkt with the next outbound sequence number and queues it.
// It never blocks.
func (c *Conn) Send(pkt *player.Packet) error {
	if c.IsClosed() {
		return ErrClosed
	}
	c.seqMu.Lock()
	c.outSeq++
	pkt.Seq = c.outSeq
	data, err := json.Marshal(pkt)
	c.seqMu.Unlock()
	if err != nil {
		return err
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn("send queue full, dropping packet",
			zap.String("conn", c.ID), zap.String("type", pkt.Type))
		return ErrBackpressure
	}
}

// Reply sends a packet of type typ with payload.
func (c *Conn) Reply(typ string, payload any) error {
	pkt, err := player.NewPacket(typ, payload)
	if err != nil {
		return err
	}
	return c.Send(pkt)
}

// Close stops the write loop. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) setReadDeadline() {
	if c.conn != nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	}
}
