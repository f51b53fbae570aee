package signal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
	"camwatch/internal/core/session"
	"camwatch/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testWidth  = 4
	testHeight = 2
)

// scriptedDecoder yields a fixed number of frames and then blocks until stopped.
type scriptedDecoder struct {
	frames  int
	stopped chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent int
	url  string
}

func (d *scriptedDecoder) Start(ctx context.Context, url string) error {
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
	return nil
}

func (d *scriptedDecoder) ReadFrame(buf []byte) (int, error) {
	d.mu.Lock()
	if d.sent < d.frames {
		d.sent++
		d.mu.Unlock()
		for i := range buf {
			buf[i] = byte(i)
		}
		return len(buf), nil
	}
	d.mu.Unlock()
	<-d.stopped
	return 0, io.EOF
}

func (d *scriptedDecoder) ReadErrorLine() (string, error) {
	<-d.stopped
	return "", io.EOF
}

func (d *scriptedDecoder) Stop() error {
	d.once.Do(func() { close(d.stopped) })
	return nil
}

func (d *scriptedDecoder) FrameSize() int { return testWidth * testHeight * 3 }

type testServer struct {
	ws    *WebSocketServer
	http  *httptest.Server
	wsURL string
}

func newTestServer(t *testing.T, cfg *config.Config, frames int) *testServer {
	t.Helper()
	logger := zap.NewNop().Sugar()
	ts := &testServer{}

	sessionCfg := session.Config{
		FrameWidth:       testWidth,
		FrameHeight:      testHeight,
		IdleInterval:     10 * time.Millisecond,
		StatsEveryFrames: 1000,
		StatsWindow:      60,
		JPEGQuality:      80,
	}
	factory := func(transport ports.SessionTransport) *session.StreamSession {
		return session.New(sessionCfg, session.Deps{
			Transport: transport,
			NewDecoder: func() ports.FrameDecoder {
				return &scriptedDecoder{frames: frames, stopped: make(chan struct{})}
			},
			Logger: logger,
		})
	}

	ts.ws = NewWebSocketServer(cfg, factory, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/stream/", ts.ws.HandleWebSocket)
	ts.http = httptest.NewServer(mux)
	ts.wsURL = "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws/stream/"

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ts.ws.Shutdown(ctx)
		ts.http.Close()
	})
	return ts
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return kind, data
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	kind, data := readMessage(t, conn)
	require.Equal(t, websocket.TextMessage, kind)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.Command
		wantErr bool
	}{
		{"start", `{"command":"start","rtsp_url":"rtsp://cam/1"}`, domain.Command{Kind: domain.CommandStart, URL: "rtsp://cam/1"}, false},
		{"start without url", `{"command":"start"}`, domain.Command{Kind: domain.CommandStart}, false},
		{"url only", `{"rtsp_url":"rtsp://cam/2"}`, domain.Command{Kind: domain.CommandStart, URL: "rtsp://cam/2"}, false},
		{"pause", `{"command":"pause"}`, domain.Command{Kind: domain.CommandPause}, false},
		{"stop", `{"command":"stop_stream"}`, domain.Command{Kind: domain.CommandStop}, false},
		{"close ignores url", `{"command":"close","rtsp_url":"rtsp://x"}`, domain.Command{Kind: domain.CommandClose}, false},
		{"unknown", `{"command":"rewind"}`, domain.Command{}, true},
		{"empty", `{}`, domain.Command{}, true},
		{"not json", `start`, domain.Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand([]byte(tt.payload))
			if tt.wantErr {
				var unknown *domain.UnknownCommandError
				assert.ErrorAs(t, err, &unknown)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWebSocketServer_RelaysFramesAndCommands(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig(), 2)
	conn := dial(t, ts.wsURL+"?url=rtsp%3A%2F%2Fcam%2F1")

	for i := 0; i < 2; i++ {
		kind, data := readMessage(t, conn)
		assert.Equal(t, websocket.BinaryMessage, kind)
		assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "frames are JPEG encoded")
	}
	assert.Equal(t, 1, ts.ws.ActiveSessions())

	infos := ts.ws.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "rtsp://cam/1", infos[0].URL)
	assert.Equal(t, "running", infos[0].State)

	send(t, conn, `{"command":"rewind"}`)
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "rewind")

	send(t, conn, `{"command":"close"}`)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.Eventually(t, func() bool { return ts.ws.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketServer_StartWithoutURL(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig(), 1)
	conn := dial(t, ts.wsURL)

	send(t, conn, `{"command":"start"}`)
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "No RTSP URL provided", msg["message"])

	send(t, conn, `{"rtsp_url":"rtsp://cam/2"}`)
	kind, _ := readMessage(t, conn)
	assert.Equal(t, websocket.BinaryMessage, kind)
}

func TestWebSocketServer_RejectsForeignOrigin(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.AllowedOrigins = []string{"https://console.example.com"}
	ts := newTestServer(t, cfg, 0)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://console.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL, header)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocketServer_MaxConcurrent(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.WebSocket.MaxConcurrent = 1
	ts := newTestServer(t, cfg, 0)

	dial(t, ts.wsURL)
	require.Eventually(t, func() bool { return ts.ws.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebSocketServer_Shutdown(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig(), 0)
	conn := dial(t, ts.wsURL+"?url=rtsp%3A%2F%2Fcam%2F3")
	require.Eventually(t, func() bool { return ts.ws.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.ws.Shutdown(ctx))
	assert.Equal(t, 0, ts.ws.ActiveSessions())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTransport_SendAfterClose(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig(), 0)
	var got *Transport
	ready := make(chan struct{})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		got = NewTransport(conn, ts.ws.transportCfg, zap.NewNop().Sugar())
		close(ready)
	}))
	defer srv.Close()

	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	<-ready

	require.NoError(t, got.Close())
	require.NoError(t, got.Close())
	err := got.SendBinary(context.Background(), []byte{1})
	assert.ErrorIs(t, err, domain.ErrTransport)

	_, err = got.ReceiveCommand(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
}
