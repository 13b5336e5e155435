package rest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanking_Empty(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/ranking/completions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["ranking"])
}

func TestRanking_CountsCompletions(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	steve, alex := uuid.New(), uuid.New()

	complete := func(id uuid.UUID, n int) {
		for i := 0; i < n; i++ {
			_, err := s.hooks.Trigger(ctx, hook.OnQuestComplete, quest.HookData{Player: id, Quest: "Wolves"})
			require.NoError(t, err)
		}
	}
	complete(steve, 1)
	complete(alex, 3)

	w := s.do(http.MethodGet, "/api/ranking/completions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ranking := decode(t, w)["ranking"].([]interface{})
	require.Len(t, ranking, 2)
	first := ranking[0].(map[string]interface{})
	assert.Equal(t, alex.String(), first["player"])
	assert.EqualValues(t, 3, first["completions"])
	assert.EqualValues(t, 1, first["rank"])
	second := ranking[1].(map[string]interface{})
	assert.Equal(t, steve.String(), second["player"])
	assert.EqualValues(t, 1, second["completions"])
}

func TestRanking_FromQuestFlow(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)
	ctx := context.Background()
	id := s.join("Steve")

	require.NoError(t, s.svc.Accept(ctx, id, "wolves", quest.AcceptOptions{}))
	require.NoError(t, s.svc.CompleteObjective(ctx, id, "wolves", 1))
	require.NoError(t, s.svc.TriggerObjective(ctx, id, "", "report"))

	w := s.do(http.MethodGet, "/api/ranking/completions", nil)
	ranking := decode(t, w)["ranking"].([]interface{})
	require.Len(t, ranking, 1)
	assert.Equal(t, id.String(), ranking[0].(map[string]interface{})["player"])
}
