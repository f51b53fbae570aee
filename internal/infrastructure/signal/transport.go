package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"camwatch/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TransportConfig tunes keepalive and write behaviour of a client connection.
type TransportConfig struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func (c TransportConfig) pongWait() time.Duration {
	return 2 * c.PingInterval
}

func (c TransportConfig) controlWait() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return 10 * time.Second
}

// commandMessage is the client-to-server wire format.
type commandMessage struct {
	Command string `json:"command"`
	RTSPURL string `json:"rtsp_url,omitempty"`
}

// Transport adapts one gorilla connection to ports.SessionTransport.
// Writes are serialized; reads happen only from the session's command loop.
type Transport struct {
	conn   *websocket.Conn
	cfg    TransportConfig
	logger *zap.SugaredLogger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewTransport installs read limits and keepalive on conn and starts pinging.
func NewTransport(conn *websocket.Conn, cfg TransportConfig, logger *zap.SugaredLogger) *Transport {
	t := &Transport{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}

	if cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(cfg.MaxMessageBytes)
	}
	if cfg.PingInterval > 0 {
		conn.SetReadDeadline(time.Now().Add(cfg.pongWait()))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(cfg.pongWait()))
			return nil
		})
		go t.pingLoop()
	}
	return t
}

// ReceiveCommand blocks until the client sends a command. Cancelling ctx
// closes the connection.
func (t *Transport) ReceiveCommand(ctx context.Context) (domain.Command, error) {
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
			t.logger.Debugw("websocket read failed", "error", err)
		}
		return domain.Command{}, fmt.Errorf("%w: %v", domain.ErrConnectionClosed, err)
	}
	if t.cfg.PingInterval > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.cfg.pongWait()))
	}
	return parseCommand(data)
}

// parseCommand decodes a client message. A message carrying only rtsp_url
// is treated as a start request.
func parseCommand(data []byte) (domain.Command, error) {
	var msg commandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Command{}, &domain.UnknownCommandError{}
	}
	if msg.Command == "" && msg.RTSPURL != "" {
		msg.Command = string(domain.CommandStart)
	}
	return domain.ParseCommand(msg.Command, msg.RTSPURL)
}

func (t *Transport) SendBinary(ctx context.Context, data []byte) error {
	return t.write(ctx, websocket.BinaryMessage, data)
}

func (t *Transport) SendJSON(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrTransport, err)
	}
	return t.write(ctx, websocket.TextMessage, data)
}

func (t *Transport) write(ctx context.Context, messageType int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	select {
	case <-t.done:
		return fmt.Errorf("%w: %v", domain.ErrTransport, domain.ErrConnectionClosed)
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if err := t.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

// Close sends a close frame and releases the connection. Repeated calls are no-ops.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) pingLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.controlWait())
			if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.logger.Debugw("error sending ping", "error", err)
				_ = t.Close()
				return
			}
		}
	}
}
