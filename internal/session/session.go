// Package session runs the per-connection state machine of the live
// channel: register, receive loop, conditional unregister.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumen-im/lumen/internal/config"
	"github.com/lumen-im/lumen/internal/delivery"
	"github.com/lumen-im/lumen/internal/registry"
	"github.com/lumen-im/lumen/store/message"
)

const deliverTimeout = 10 * time.Second

// Deliverer is the downstream path for inbound frames.
type Deliverer interface {
	Deliver(ctx context.Context, sender delivery.Identity, recipientName, content string) (*message.Message, error)
}

// inboundFrame is what a client sends on the live channel.
type inboundFrame struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// errorFrame tells the sender why a frame went nowhere. The connection
// stays open; a bad frame never terminates the session.
type errorFrame struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Session is one live connection bound to one verified identity. It owns
// the websocket and pumps it from exactly two goroutines: Run reads, the
// writer drains the send queue.
type Session struct {
	identity delivery.Identity
	conn     *websocket.Conn
	engine   Deliverer
	registry *registry.Registry
	cfg      config.WSConfig
	log      *zap.SugaredLogger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps an upgraded websocket connection in a Session. The identity
// must come from a validated token, never from the request path.
func New(conn *websocket.Conn, identity delivery.Identity, engine Deliverer, reg *registry.Registry, cfg config.WSConfig, log *zap.SugaredLogger) *Session {
	return &Session{
		identity: identity,
		conn:     conn,
		engine:   engine,
		registry: reg,
		cfg:      cfg,
		log:      log,
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

// Run registers the session, pumps frames until the transport closes, then
// unregisters. It blocks until the session is over. Only after registration
// is the identity discoverable for delivery.
func (s *Session) Run() {
	if prev := s.registry.Register(s.identity.Username, s); prev != nil {
		// Superseded login: quietly tear the old connection down.
		prev.Close()
	}
	s.log.Infow("session active", "user", s.identity.Username)

	go s.writeLoop()
	s.readLoop()

	s.registry.Unregister(s.identity.Username, s)
	s.Close()
	s.log.Infow("session closed", "user", s.identity.Username)
}

// Push queues an outbound frame without blocking. It reports false when the
// session is closing or the client is too slow to drain its queue.
func (s *Session) Push(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close signals the session to shut down. Safe to call from any goroutine,
// any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) readLoop() {
	defer func() {
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugw("transport closed", "user", s.identity.Username, "error", err)
			}
			return
		}
		s.handleFrame(raw)
	}
}

// handleFrame processes one inbound frame. Errors are reported back to the
// client as an error frame and never affect other connections.
func (s *Session) handleFrame(raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		s.pushError("malformed_frame", "frame is not valid JSON")
		return
	}
	if in.Recipient == "" || in.Message == "" {
		s.pushError("malformed_frame", "recipient and message are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if _, err := s.engine.Deliver(ctx, s.identity, in.Recipient, in.Message); err != nil {
		switch {
		case errors.Is(err, message.ErrRecipientNotFound):
			s.pushError("recipient_not_found", "no such user: "+in.Recipient)
		default:
			s.log.Errorw("deliver failed", "user", s.identity.Username, "error", err)
			s.pushError("delivery_failed", "message could not be stored")
		}
	}
}

func (s *Session) pushError(kind, detail string) {
	payload, err := json.Marshal(errorFrame{Error: kind, Detail: detail})
	if err != nil {
		return
	}
	s.Push(payload)
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
