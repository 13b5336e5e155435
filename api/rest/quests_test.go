package rest_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/questforge/api/rest"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuests_RequiresAdminKey(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/admin/quests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodGet, "/api/admin/quests", nil, "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuests_CreateGetList(t *testing.T) {
	s := newServer(t)

	w := s.admin(http.MethodPost, "/api/admin/quests", map[string]string{"name": "Miner"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Miner", decode(t, w)["name"])

	w = s.admin(http.MethodPost, "/api/admin/quests", map[string]string{"name": "miner"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "state_conflict", decode(t, w)["code"])

	w = s.admin(http.MethodPost, "/api/admin/quests", map[string]string{"name": "no spaces"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodGet, "/api/admin/quests/MINER", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Miner", decode(t, w)["name"])

	w = s.admin(http.MethodGet, "/api/admin/quests/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["code"])

	w = s.admin(http.MethodGet, "/api/admin/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["quests"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "Miner", list[0].(map[string]interface{})["name"])
}

func TestQuests_Put(t *testing.T) {
	s := newServer(t)
	doc := quest.QuestDocument{
		Objectives: []quest.ObjectiveDocument{
			{Type: quest.ObjectiveBreakBlocks, Block: "STONE", ProgressNeeded: 10},
		},
	}
	w := s.admin(http.MethodPut, "/api/admin/quests/Miner", doc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	q, err := s.svc.Quest("miner")
	require.NoError(t, err)
	require.Len(t, q.Objectives, 1)

	doc.Name = "Other"
	w = s.admin(http.MethodPut, "/api/admin/quests/Miner", doc)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown objective type.
	w = s.admin(http.MethodPut, "/api/admin/quests/Miner", map[string]interface{}{
		"objectives": []map[string]interface{}{{"type": "Fly"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["code"])
}

func TestQuests_EditOps(t *testing.T) {
	s := newServer(t)
	w := s.admin(http.MethodPost, "/api/admin/quests", map[string]string{"name": "Wolves"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.admin(http.MethodPatch, "/api/admin/quests/wolves", map[string]interface{}{
		"ops": []rest.EditOp{
			{Op: rest.OpSetDisplayName, Text: "Wolf Hunt"},
			{Op: rest.OpAddObjective, Objective: &quest.ObjectiveDocument{Type: quest.ObjectiveKillMobs, Mob: "WOLF", ProgressNeeded: 3}},
			{Op: rest.OpAddObjective, Objective: &quest.ObjectiveDocument{Type: quest.ObjectiveTalkToNPC, NPC: 7}},
			{Op: rest.OpAddDependency, ID: 2, Dependency: 1},
			{Op: rest.OpAddReward, Action: &quest.ActionDocument{Type: quest.ActionGiveItem, Item: &item.Stack{Material: "bone", Amount: 2}}},
			{Op: rest.OpAddRequirement, Condition: &quest.ConditionDocument{Type: quest.ConditionInWorld, World: "world"}},
			{Op: rest.OpSetMaxAccepts, Number: 3},
			{Op: rest.OpBindNPC, NPC: 7, Shown: true},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode(t, w)["results"].([]interface{})
	require.Len(t, results, 8)
	assert.EqualValues(t, 1, results[1].(map[string]interface{})["id"])
	assert.EqualValues(t, 2, results[2].(map[string]interface{})["id"])

	q, err := s.svc.Quest("wolves")
	require.NoError(t, err)
	assert.Equal(t, "Wolf Hunt", q.DisplayName)
	require.Len(t, q.Objectives, 2)
	assert.Len(t, q.Rewards, 1)
	assert.Len(t, q.Requirements, 1)
	assert.Equal(t, 3, q.MaxAccepts)

	w = s.admin(http.MethodGet, "/api/admin/npcs/7/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["quests"], 1)
}

func TestQuests_EditIsAtomic(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)

	w := s.admin(http.MethodPatch, "/api/admin/quests/wolves", map[string]interface{}{
		"ops": []rest.EditOp{
			{Op: rest.OpSetDescription, Text: "changed"},
			{Op: rest.OpRemoveObjective, ID: 9},
		},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	q, err := s.svc.Quest("wolves")
	require.NoError(t, err)
	assert.Empty(t, q.Description)

	w = s.admin(http.MethodPatch, "/api/admin/quests/wolves", map[string]interface{}{
		"ops": []rest.EditOp{{Op: "explode"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPatch, "/api/admin/quests/wolves", map[string]interface{}{
		"ops": []rest.EditOp{{Op: rest.OpAddReward}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(http.MethodPatch, "/api/admin/quests/ghost", map[string]interface{}{
		"ops": []rest.EditOp{{Op: rest.OpClearNPCs}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuests_RenameDelete(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)

	w := s.admin(http.MethodPost, "/api/admin/quests/wolves/rename", map[string]string{"name": "Wargs"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, err := s.svc.Quest("wolves")
	assert.Error(t, err)
	_, err = s.svc.Quest("wargs")
	require.NoError(t, err)

	w = s.admin(http.MethodDelete, "/api/admin/quests/wargs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.admin(http.MethodDelete, "/api/admin/quests/wargs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuests_ImportBody(t *testing.T) {
	s := newServer(t)
	// Chain depends on Base, which is listed after it.
	w := s.admin(http.MethodPost, "/api/admin/quests/import", map[string]interface{}{
		"quests": []quest.QuestDocument{
			{
				Name:       "Chain",
				Objectives: []quest.ObjectiveDocument{{Type: quest.ObjectiveTriggerCommand, Name: "go", ProgressNeeded: 1}},
				Requirements: []quest.ConditionDocument{
					{Type: quest.ConditionCompletedQuest, Quest: "Base", MinTimes: 1},
				},
			},
			{
				Name:       "Base",
				Objectives: []quest.ObjectiveDocument{{Type: quest.ObjectiveTriggerCommand, Name: "go", ProgressNeeded: 1}},
			},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []interface{}{"Base", "Chain"}, decode(t, w)["imported"])
}

func TestQuests_ExportThenImportDir(t *testing.T) {
	s := newServer(t)
	s.putWolves(t)

	w := s.admin(http.MethodPost, "/api/admin/quests/export", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, err := os.Stat(filepath.Join(s.questDir, "wolves.yaml"))
	require.NoError(t, err)

	w = s.admin(http.MethodDelete, "/api/admin/quests/wolves", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.admin(http.MethodPost, "/api/admin/quests/import", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []interface{}{"Wolves"}, decode(t, w)["imported"])
	q, err := s.svc.Quest("wolves")
	require.NoError(t, err)
	assert.Len(t, q.Objectives, 2)
}
