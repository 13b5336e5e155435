package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/questforge/api/rest"
	"github.com/kasuganosora/questforge/api/sse"
	apiws "github.com/kasuganosora/questforge/api/ws"
	"github.com/kasuganosora/questforge/audit"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/config"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/script"
	mw "github.com/kasuganosora/questforge/middleware"
	"github.com/kasuganosora/questforge/plugin/hook"
	"github.com/kasuganosora/questforge/scheduler"
	"github.com/kasuganosora/questforge/storage"
	"github.com/kasuganosora/questforge/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the admin key every TestServer accepts.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with the quest engine, host bridge,
// REST API and SSE stream wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Svc     *quest.Service
	Players *player.Manager
	NPCs    *npc.Directory
	Host    *apiws.Handler
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws/host
	Sec     config.SecurityConfig
}

// NewTestServer creates a fully wired quest server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}
	srvCfg := config.ServerConfig{AdminKey: AdminKey}

	// ---- Quest engine ----
	hooks := hook.NewHookCenter()
	players := player.NewManager(logger)
	npcs := npc.NewDirectory(players.Link, logger)
	notifier := sse.NewNotifier(pubsub, logger)
	journal := audit.New(db, logger)
	svc := quest.NewService(storage.NewGormStore(db), &quest.Host{
		Players:  players,
		Messages: players,
		NPCs:     npcs,
		Commands: players,
		Scripts:  script.NewSandbox(2, time.Second, logger),
	}, logger, quest.WithHooks(hooks), quest.WithJournal(journal), quest.WithNotifier(notifier))
	require.NoError(t, svc.Load(context.Background()))
	svc.Attach(hooks)

	sched := scheduler.New(logger)
	sched.AddQuestTasks(svc, 100*time.Millisecond, 0)

	rankH := apirest.NewRankingHandler(c, logger)
	rankH.Register(hooks)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	hostH := apiws.NewHandler(srvCfg, sec, players, npcs, svc, hooks, logger)
	r.GET("/ws/host", hostH.ServeWS)
	sseH := sse.NewHandler(pubsub, logger)

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(c, sec, logger)
	questH := apirest.NewQuestHandler(svc, t.TempDir(), logger)
	bridgeH := apirest.NewBridgeHandler(svc, journal, logger)
	playerH := apirest.NewPlayerHandler(svc, players, journal, logger)
	adminH := apirest.NewAdminHandler(svc, players, npcs, hostH, sched, sseH, c, logger)

	api := r.Group("/api")
	{
		api.GET("/ranking/completions", rankH.TopCompletions)

		playerG := api.Group("/player")
		playerG.Use(mw.Auth(sec, c))
		playerG.GET("/quests", playerH.Quests)
		playerG.GET("/quests/available", playerH.Available)
		playerG.POST("/quests/:name/accept", playerH.Accept)
		playerG.POST("/quests/:name/abort", playerH.Abort)
		playerG.GET("/messages", playerH.Messages)
		playerG.GET("/journal", playerH.Journal)
		playerG.GET("/stream", sseH.ServeSSE)
		playerG.POST("/logout", authH.Logout)
		playerG.POST("/refresh", authH.Refresh)

		adminG := api.Group("/admin")
		adminG.Use(mw.AdminKey(srvCfg.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/players", adminH.ListPlayers)
		adminG.GET("/npcs", adminH.ListNPCs)
		adminG.POST("/announce", adminH.Announce)
		adminG.GET("/announcements", adminH.Announcements)
		adminG.POST("/tokens", authH.Issue)

		adminG.GET("/quests", questH.List)
		adminG.POST("/quests", questH.Create)
		adminG.GET("/quests/:name", questH.Get)
		adminG.PUT("/quests/:name", questH.Put)
		adminG.PATCH("/quests/:name", questH.Edit)
		adminG.DELETE("/quests/:name", questH.Delete)
		adminG.POST("/quests/:name/rename", questH.Rename)

		playersG := adminG.Group("/players/:uuid")
		playersG.GET("/quests", bridgeH.Quests)
		playersG.GET("/journal", bridgeH.Journal)
		playersG.POST("/quests/:name/start", bridgeH.Start)
		playersG.POST("/quests/:name/trigger", bridgeH.TriggerObjective)
	}

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws/host"

	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Svc:     svc,
		Players: players,
		NPCs:    npcs,
		Host:    hostH,
		Server:  server,
		URL:     url,
		WSURL:   wsURL,
		Sec:     sec,
	}
	t.Cleanup(func() {
		server.Close()
		sched.Stop()
		svc.Close(context.Background())
		notifier.Stop()
		journal.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body. Header pairs follow body.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, method, path, body, mw.AdminKeyHeader, AdminKey)
}

// As sends a request with a player's Bearer token.
func (ts *TestServer) As(t *testing.T, token, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, method, path, body, "Authorization", "Bearer "+token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// RequireStatus fails unless resp has the given status, then closes it.
func RequireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		require.Equal(t, status, resp.StatusCode, "body: %s", string(data))
	}
}

// --- Auth helpers ---

// IssueToken asks the admin API for a token on the player's behalf.
func (ts *TestServer) IssueToken(t *testing.T, id uuid.UUID, name string) string {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/tokens", map[string]string{
		"player": id.String(),
		"name":   name,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string)
}

// --- SSE client ---

// Stream is an open server-sent event stream.
type Stream struct {
	t      *testing.T
	events chan Event
	cancel context.CancelFunc
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// OpenStream connects to the player's SSE stream and waits for the
// connected event.
func (ts *TestServer) OpenStream(t *testing.T, token string) *Stream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/player/stream?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s := &Stream{t: t, events: make(chan Event, 64), cancel: cancel}
	go s.readLoop(resp.Body)
	t.Cleanup(s.Close)
	s.Next("connected", 5*time.Second)
	return s
}

func (s *Stream) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer close(s.events)
	rd := bufio.NewReader(body)
	var ev Event
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.Name != "":
			s.events <- ev
			ev = Event{}
		}
	}
}

// Next returns the next event called name, skipping others.
func (s *Stream) Next(name string, timeout time.Duration) Event {
	s.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				s.t.Fatalf("stream closed while waiting for %q", name)
			}
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for event %q", name)
		}
	}
}

// NextNotification returns the next quest notification of the given kind.
func (s *Stream) NextNotification(kind string, timeout time.Duration) quest.Notification {
	s.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.t.Fatalf("timed out waiting for notification %q", kind)
		}
		ev := s.Next("quest", remaining)
		var n quest.Notification
		require.NoError(s.t, json.Unmarshal([]byte(ev.Data), &n))
		if n.Kind == kind {
			return n
		}
	}
}

// Close ends the stream.
func (s *Stream) Close() { s.cancel() }

// --- WebSocket host client ---

// WSClient plays the game host on the bridge.
// Uses a background readLoop to avoid gorilla/websocket's SetReadDeadline bug.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult // buffered channel from readLoop
}

type readResult struct {
	data []byte
	err  error
}

// ConnectHost dials the host bridge with the admin key.
func (ts *TestServer) ConnectHost(t *testing.T) *WSClient {
	t.Helper()
	header := http.Header{}
	header.Set(mw.AdminKeyHeader, AdminKey)
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	require.Eventually(t, ts.Host.Connected, 2*time.Second, 10*time.Millisecond)
	return wc
}

// readLoop continuously reads from the websocket in a dedicated goroutine.
func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet to the bridge.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(player.Packet{Seq: seq, Type: msgType, Payload: payloadJSON})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvAny reads one packet, returning an error on timeout or read failure.
func (wc *WSClient) RecvAny(timeout time.Duration) (*player.Packet, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt player.Packet
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return &pkt, nil
	case <-time.After(timeout):
		return nil, &timeoutError{}
	}
}

// timeoutError implements net.Error for timeout detection in callers.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads packets until one with the given type is found and decodes
// its payload into out when out is non-nil.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration, out interface{}) *player.Packet {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			wc.t.Fatalf("timed out waiting for packet type %q", msgType)
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt.Type != msgType {
			continue
		}
		if out != nil {
			require.NoError(wc.t, json.Unmarshal(pkt.Payload, out))
		}
		return pkt
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// websocketDial dials the host bridge with the given admin key.
func websocketDial(url, key string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	header.Set(mw.AdminKeyHeader, key)
	return websocket.DefaultDialer.Dial(url, header)
}
