package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayer_RequiresToken(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/player/quests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlayer_AcceptAndComplete(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)
	id := s.join("Steve")
	tok := s.token(t, id, "Steve")

	w := s.as(tok, http.MethodGet, "/api/player/quests/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["quests"], 1)

	w = s.as(tok, http.MethodPost, "/api/player/quests/wolves/accept", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.as(tok, http.MethodPost, "/api/player/quests/wolves/accept", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.as(tok, http.MethodGet, "/api/player/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Len(t, body["active"], 1)
	assert.Empty(t, body["completed"])

	w = s.as(tok, http.MethodGet, "/api/player/quests/available", nil)
	assert.Empty(t, decode(t, w)["quests"])

	// Finish both objectives through the admin bridge.
	path := "/api/admin/players/" + id.String() + "/quests/wolves"
	w = s.admin(http.MethodPost, path+"/objectives/1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.admin(http.MethodPost, path+"/trigger", map[string]string{"objective": "report"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.as(tok, http.MethodGet, "/api/player/quests", nil)
	body = decode(t, w)
	assert.Empty(t, body["active"])
	require.Len(t, body["completed"], 1)
	assert.Equal(t, 1, s.players.Get(id).Inventory().Count(item.Stack{Material: "DIAMOND"}))

	w = s.as(tok, http.MethodGet, "/api/player/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["messages"])

	require.NoError(t, s.audit.Flush(context.Background()))
	assert.GreaterOrEqual(t, journalLen(s.as(tok, http.MethodGet, "/api/player/journal?limit=10", nil)), 2)
}

func TestPlayer_Abort(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)
	id := s.join("Alex")
	tok := s.token(t, id, "Alex")

	w := s.as(tok, http.MethodPost, "/api/player/quests/wolves/abort", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, s.svc.Accept(context.Background(), id, "wolves", quest.AcceptOptions{}))
	w = s.as(tok, http.MethodPost, "/api/player/quests/wolves/abort", nil)
	require.Equal(t, http.StatusOK, w.Code)
	active, err := s.svc.ActiveQuests(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPlayer_MessagesOffline(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, uuid.New(), "Ghost")
	w := s.as(tok, http.MethodGet, "/api/player/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBridge_StartFail(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)
	ctx := context.Background()
	id := s.join("Steve")
	path := "/api/admin/players/" + id.String() + "/quests/wolves"

	_, err := s.svc.EditQuest(ctx, "wolves", func(q *quest.Quest) error {
		q.SetTakeEnabled(false)
		return nil
	})
	require.NoError(t, err)

	// Not takeable without force.
	w := s.admin(http.MethodPost, path+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.admin(http.MethodPost, path+"/start", map[string]bool{"force": true, "silent": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.admin(http.MethodGet, "/api/admin/players/"+id.String()+"/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["active"], 1)

	w = s.admin(http.MethodPost, path+"/fail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.admin(http.MethodPost, path+"/fail", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.admin(http.MethodPost, path+"/abort", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, s.audit.Flush(ctx))
	assert.GreaterOrEqual(t, journalLen(s.admin(http.MethodGet, "/api/admin/players/"+id.String()+"/journal", nil)), 2)
}

func TestBridge_BadParams(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)
	id := s.join("Steve")

	w := s.admin(http.MethodGet, "/api/admin/players/not-a-uuid/quests", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/players/"+id.String()+"/quests/wolves/objectives/x/complete", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/players/"+id.String()+"/quests/wolves/trigger", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/players/"+id.String()+"/quests/ghost/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBridge_RunAction(t *testing.T) {
	s := newServer(t)
	id := s.join("Steve")
	path := "/api/admin/players/" + id.String() + "/actions"

	w := s.admin(http.MethodPost, path, quest.ActionDocument{
		Type: quest.ActionGiveItem,
		Item: &item.Stack{Material: "emerald", Amount: 3},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, s.players.Get(id).Inventory().Count(item.Stack{Material: "EMERALD"}))

	w = s.admin(http.MethodPost, path, quest.ActionDocument{Type: quest.ActionCompleteObjective, ObjectiveID: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPost, path, quest.ActionDocument{Type: "Teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// journalLen counts the rows of a journal response, or -1 on error.
func journalLen(w *httptest.ResponseRecorder) int {
	if w.Code != http.StatusOK {
		return -1
	}
	var resp struct {
		Journal []json.RawMessage `json:"journal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		return -1
	}
	return len(resp.Journal)
}
