package signal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/internal/core/session"
	"camwatch/pkg/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionFactory builds a session bound to the given client transport.
type SessionFactory func(transport ports.SessionTransport) *session.StreamSession

// SessionInfo is a point-in-time view of one live session.
type SessionInfo struct {
	ID               string                  `json:"id"`
	StreamID         domain.StreamID         `json:"stream_id,omitempty"`
	URL              string                  `json:"url,omitempty"`
	State            string                  `json:"state"`
	Paused           bool                    `json:"paused"`
	DetectionEnabled bool                    `json:"detection_enabled"`
	Stats            domain.PerformanceStats `json:"stats"`
}

// WebSocketServer accepts client connections on /ws/stream/ and runs one
// StreamSession per connection.
type WebSocketServer struct {
	upgrader      websocket.Upgrader
	newSession    SessionFactory
	transportCfg  TransportConfig
	maxConcurrent int

	ctx    context.Context
	cancel context.CancelFunc

	sessions map[string]*session.StreamSession
	mu       sync.RWMutex
	admitted int
	closed   bool
	wg       sync.WaitGroup

	logger *zap.SugaredLogger
}

func NewWebSocketServer(cfg *config.Config, newSession SessionFactory, logger *zap.SugaredLogger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketServer{
		newSession: newSession,
		transportCfg: TransportConfig{
			PingInterval:    cfg.Stream.PingInterval,
			WriteTimeout:    cfg.Stream.WriteTimeout,
			MaxMessageBytes: cfg.Stream.MaxMessageBytes,
		},
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session.StreamSession),
		logger:   logger,
	}
	if cfg.RateLimiting.Enabled {
		s.maxConcurrent = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(cfg.Auth.AllowedOrigins),
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
	}
	return s
}

// originChecker accepts requests without an Origin header, any origin when
// "*" is configured, and otherwise exact scheme://host matches.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(strings.ToLower(origin), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.admit() {
		http.Error(w, "too many active streams", http.StatusServiceUnavailable)
		return
	}
	defer s.release()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	query := r.URL.Query()
	streamID := domain.StreamID(query.Get("stream_id"))
	rtspURL := query.Get("url")

	transport := NewTransport(conn, s.transportCfg, s.logger)
	defer transport.Close()

	sess := s.newSession(transport)
	s.register(sess)
	defer s.unregister(sess)

	s.logger.Infow("client connected",
		"session_id", sess.ID(),
		"stream_id", streamID,
		"rtsp_url", rtspURL,
		"remote_addr", r.RemoteAddr,
	)

	if err := sess.Connect(s.ctx, streamID, rtspURL); err != nil {
		s.logger.Warnw("initial stream start failed", "session_id", sess.ID(), "error", err)
	}
	if err := sess.Serve(s.ctx); err != nil {
		s.logger.Warnw("session ended with error", "session_id", sess.ID(), "error", err)
	}

	s.logger.Infow("client disconnected", "session_id", sess.ID())
}

// admit reserves a slot for a new connection.
func (s *WebSocketServer) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.maxConcurrent > 0 && s.admitted >= s.maxConcurrent {
		return false
	}
	s.admitted++
	s.wg.Add(1)
	return true
}

func (s *WebSocketServer) release() {
	s.mu.Lock()
	s.admitted--
	s.mu.Unlock()
	s.wg.Done()
}

func (s *WebSocketServer) register(sess *session.StreamSession) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
}

func (s *WebSocketServer) unregister(sess *session.StreamSession) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}

// ActiveSessions returns the number of connected clients.
func (s *WebSocketServer) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sessions describes every live session.
func (s *WebSocketServer) Sessions() []SessionInfo {
	s.mu.RLock()
	list := make([]*session.StreamSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		infos = append(infos, SessionInfo{
			ID:               sess.ID(),
			StreamID:         sess.StreamID(),
			URL:              sess.URL(),
			State:            sess.State().String(),
			Paused:           sess.Paused(),
			DetectionEnabled: sess.DetectionEnabled(),
			Stats:            sess.Stats(),
		})
	}
	return infos
}

// Shutdown stops accepting clients, disconnects every session and waits for
// them to finish or for ctx to expire.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
