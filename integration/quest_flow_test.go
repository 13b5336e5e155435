package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	apiws "github.com/kasuganosora/questforge/api/ws"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wolvesDoc() quest.QuestDocument {
	return quest.QuestDocument{
		Name:        "Wolves",
		DisplayName: "Wolf Hunt",
		Objectives: []quest.ObjectiveDocument{
			{Type: quest.ObjectiveKillMobs, Mob: "WOLF", ProgressNeeded: 2},
		},
		Rewards: []quest.ActionDocument{
			{Type: quest.ActionGiveItem, Item: &item.Stack{Material: "DIAMOND", Amount: 1}},
		},
	}
}

// joinPlayer announces a player over the bridge and waits for the mirror.
func joinPlayer(t *testing.T, ts *TestServer, host *WSClient, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	host.Send(apiws.PacketPlayerJoin, apiws.PlayerJoinPayload{
		Player:   id.String(),
		Name:     name,
		Location: world.Location{World: "world"},
	})
	require.Eventually(t, func() bool { return ts.Players.IsOnline(id) }, 2*time.Second, 10*time.Millisecond)
	return id
}

func TestQuestFlow_EndToEnd(t *testing.T) {
	ts := NewTestServer(t)
	host := ts.ConnectHost(t)

	RequireStatus(t, ts.Admin(t, http.MethodPut, "/api/admin/quests/Wolves", wolvesDoc()), http.StatusOK)

	id := joinPlayer(t, ts, host, "Steve")
	token := ts.IssueToken(t, id, "Steve")
	stream := ts.OpenStream(t, token)

	RequireStatus(t, ts.As(t, token, http.MethodPost, "/api/player/quests/wolves/accept", nil), http.StatusOK)
	n := stream.NextNotification(quest.NotifyAccepted, 5*time.Second)
	assert.Equal(t, "Wolves", n.Quest)

	var msg player.MessagePayload
	host.RecvType(player.PacketMessage, 5*time.Second, &msg)
	assert.Equal(t, id.String(), msg.Player)

	kill := apiws.GameEventPayload{Kind: apiws.EventEntityKilled, Player: id.String(), Entity: "WOLF"}
	host.Send(apiws.PacketGameEvent, kill)
	host.Send(apiws.PacketGameEvent, kill)

	var inv player.InventoryPayload
	host.RecvType(player.PacketInventory, 5*time.Second, &inv)
	assert.Equal(t, "DIAMOND", inv.Item.Material)
	assert.Equal(t, 1, inv.Delta)

	n = stream.NextNotification(quest.NotifyCompleted, 5*time.Second)
	assert.Equal(t, "Wolves", n.Quest)

	var quests struct {
		Active    []quest.ActiveQuestStatus `json:"active"`
		Completed []quest.CompletedQuest    `json:"completed"`
	}
	ReadJSON(t, ts.As(t, token, http.MethodGet, "/api/player/quests", nil), &quests)
	assert.Empty(t, quests.Active)
	require.Len(t, quests.Completed, 1)
	assert.Equal(t, "Wolves", quests.Completed[0].Quest)

	var ranking struct {
		Ranking []struct {
			Player      string `json:"player"`
			Completions int64  `json:"completions"`
		} `json:"ranking"`
	}
	ReadJSON(t, ts.Do(t, http.MethodGet, "/api/ranking/completions", nil), &ranking)
	require.Len(t, ranking.Ranking, 1)
	assert.Equal(t, id.String(), ranking.Ranking[0].Player)
	assert.EqualValues(t, 1, ranking.Ranking[0].Completions)

	// The journal endpoint writes queued entries before reading.
	var j struct {
		Journal []map[string]interface{} `json:"journal"`
	}
	resp := ts.As(t, token, http.MethodGet, "/api/player/journal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ReadJSON(t, resp, &j)
	assert.GreaterOrEqual(t, len(j.Journal), 2)
}

func TestQuestFlow_PersistsAcrossReconnect(t *testing.T) {
	ts := NewTestServer(t)
	host := ts.ConnectHost(t)
	RequireStatus(t, ts.Admin(t, http.MethodPut, "/api/admin/quests/Wolves", wolvesDoc()), http.StatusOK)

	id := joinPlayer(t, ts, host, "Alex")
	RequireStatus(t, ts.Admin(t, http.MethodPost, "/api/admin/players/"+id.String()+"/quests/wolves/start", nil), http.StatusOK)
	host.Send(apiws.PacketGameEvent, apiws.GameEventPayload{Kind: apiws.EventEntityKilled, Player: id.String(), Entity: "WOLF"})

	// Losing the host unloads every mirrored player.
	host.Close()
	require.Eventually(t, func() bool {
		return !ts.Host.Connected() && ts.Players.Count() == 0 && ts.Svc.Players().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	host = ts.ConnectHost(t)
	host.Send(apiws.PacketPlayerJoin, apiws.PlayerJoinPayload{
		Player:   id.String(),
		Name:     "Alex",
		Location: world.Location{World: "world"},
	})
	require.Eventually(t, func() bool { return ts.Players.IsOnline(id) }, 2*time.Second, 10*time.Millisecond)

	active, err := ts.Svc.ActiveQuests(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Len(t, active[0].Objectives, 1)
	assert.EqualValues(t, 1, active[0].Objectives[0].Progress)
}

func TestHostBridge_RejectsBadKey(t *testing.T) {
	ts := NewTestServer(t)
	_, resp, err := websocketDial(ts.WSURL, "wrong")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAPI_RequiresKey(t *testing.T) {
	ts := NewTestServer(t)
	RequireStatus(t, ts.Do(t, http.MethodGet, "/api/admin/quests", nil), http.StatusUnauthorized)
	RequireStatus(t, ts.Do(t, http.MethodGet, "/api/player/quests", nil), http.StatusUnauthorized)
	RequireStatus(t, ts.Do(t, http.MethodGet, "/health", nil), http.StatusOK)
}

func TestAnnounce_ReachesStream(t *testing.T) {
	ts := NewTestServer(t)
	token := ts.IssueToken(t, uuid.New(), "Steve")
	stream := ts.OpenStream(t, token)

	RequireStatus(t, ts.Admin(t, http.MethodPost, "/api/admin/announce", map[string]string{"message": "restart soon"}), http.StatusOK)
	ev := stream.Next("announce", 5*time.Second)
	assert.JSONEq(t, `{"message":"restart soon"}`, ev.Data)
}
