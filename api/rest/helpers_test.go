package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/api/rest"
	"github.com/kasuganosora/questforge/audit"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/config"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/world"
	mw "github.com/kasuganosora/questforge/middleware"
	"github.com/kasuganosora/questforge/plugin/hook"
	"github.com/kasuganosora/questforge/storage"
	"github.com/kasuganosora/questforge/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAdminKey = "admin-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() *zap.Logger { return zap.NewNop() }

type server struct {
	r        *gin.Engine
	svc      *quest.Service
	players  *player.Manager
	npcs     *npc.Directory
	hooks    *hook.HookCenter
	cache    cache.Cache
	audit    *audit.Service
	sec      config.SecurityConfig
	questDir string

	announced *recAnnouncer
}

type recAnnouncer struct {
	mu   sync.Mutex
	msgs []string
}

func (a *recAnnouncer) Announce(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, message)
	return nil
}

// newServer wires the REST API over a sqlite-backed quest service with the
// journal enabled.
func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}

	players := player.NewManager(nopLogger())
	npcs := npc.NewDirectory(players.Link, nopLogger())
	hc := hook.NewHookCenter()
	journal := audit.New(db, nopLogger())
	svc := quest.NewService(storage.NewGormStore(db), &quest.Host{
		Players:  players,
		Messages: players,
		NPCs:     npcs,
		Commands: players,
	}, nopLogger(), quest.WithHooks(hc), quest.WithJournal(journal))
	t.Cleanup(func() {
		svc.Close(context.Background())
		journal.Stop(context.Background())
	})

	s := &server{
		svc: svc, players: players, npcs: npcs, hooks: hc,
		cache: c, audit: journal, sec: sec, questDir: t.TempDir(),
	}

	questH := rest.NewQuestHandler(svc, s.questDir, nopLogger())
	s.announced = &recAnnouncer{}
	adminH := rest.NewAdminHandler(svc, players, npcs, nil, nil, s.announced, c, nopLogger())
	bridgeH := rest.NewBridgeHandler(svc, journal, nopLogger())
	playerH := rest.NewPlayerHandler(svc, players, journal, nopLogger())
	authH := rest.NewAuthHandler(c, sec, nopLogger())
	rankH := rest.NewRankingHandler(c, nopLogger())
	rankH.Register(hc)

	r := gin.New()
	admin := r.Group("/api/admin", mw.AdminKey(testAdminKey))
	admin.GET("/metrics", adminH.Metrics)
	admin.GET("/players", adminH.ListPlayers)
	admin.GET("/npcs", adminH.ListNPCs)
	admin.POST("/players/:uuid/message", adminH.SendMessage)
	admin.POST("/announce", adminH.Announce)
	admin.GET("/announcements", adminH.Announcements)
	admin.POST("/tokens", authH.Issue)

	admin.GET("/quests", questH.List)
	admin.POST("/quests", questH.Create)
	admin.POST("/quests/import", questH.Import)
	admin.POST("/quests/export", questH.Export)
	admin.GET("/quests/:name", questH.Get)
	admin.PUT("/quests/:name", questH.Put)
	admin.PATCH("/quests/:name", questH.Edit)
	admin.DELETE("/quests/:name", questH.Delete)
	admin.POST("/quests/:name/rename", questH.Rename)
	admin.GET("/npcs/:id/quests", questH.ForNPC)

	admin.GET("/players/:uuid/quests", bridgeH.Quests)
	admin.GET("/players/:uuid/journal", bridgeH.Journal)
	admin.POST("/players/:uuid/quests/:name/start", bridgeH.Start)
	admin.POST("/players/:uuid/quests/:name/fail", bridgeH.Fail)
	admin.POST("/players/:uuid/quests/:name/abort", bridgeH.Abort)
	admin.POST("/players/:uuid/quests/:name/trigger", bridgeH.TriggerObjective)
	admin.POST("/players/:uuid/quests/:name/objectives/:id/complete", bridgeH.CompleteObjective)
	admin.POST("/players/:uuid/actions", bridgeH.RunAction)

	me := r.Group("/api/player", mw.Auth(sec, c))
	me.GET("/quests", playerH.Quests)
	me.GET("/quests/available", playerH.Available)
	me.POST("/quests/:name/accept", playerH.Accept)
	me.POST("/quests/:name/abort", playerH.Abort)
	me.GET("/messages", playerH.Messages)
	me.GET("/journal", playerH.Journal)
	me.POST("/logout", authH.Logout)
	me.POST("/refresh", authH.Refresh)

	r.GET("/api/ranking/completions", rankH.TopCompletions)

	s.r = r
	return s
}

// putWolves stores a two-kill quest rewarding a diamond.
func (s *server) putWolves(t *testing.T) {
	t.Helper()
	_, err := s.svc.PutQuest(context.Background(), quest.QuestDocument{
		Name: "Wolves",
		Objectives: []quest.ObjectiveDocument{
			{Type: quest.ObjectiveKillMobs, Mob: "WOLF", ProgressNeeded: 2},
			{Type: quest.ObjectiveTriggerCommand, Name: "report", ProgressNeeded: 1},
		},
		Rewards: []quest.ActionDocument{
			{Type: quest.ActionGiveItem, Item: &item.Stack{Material: "DIAMOND", Amount: 1}},
		},
	})
	require.NoError(t, err)
}

// join brings a player online.
func (s *server) join(name string) uuid.UUID {
	id := uuid.New()
	s.players.Join(id, name, world.Location{World: "world"}, nil)
	return id
}

// token issues a player token through the admin endpoint.
func (s *server) token(t *testing.T, id uuid.UUID, name string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/admin/tokens", map[string]string{
		"player": id.String(), "name": name,
	}, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *server) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.do(method, path, body, "X-Admin-Key", testAdminKey)
}

func (s *server) as(token, method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.do(method, path, body, "Authorization", "Bearer "+token)
}

func (s *server) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}
