package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/questforge/game/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

const wolvesYAML = `
name: Wolves
display_name: Wolf Hunt
objectives:
  - type: KillMobs
    mob: WOLF
    progress_needed: 5
rewards:
  - type: GiveQuest
    quest: Pack
`

const bundleYAML = `
quests:
  - name: Pack
    objectives:
      - type: TalkToNPC
        npc: 3
  - name: Miner
    objectives:
      - type: BreakBlocks
        block: STONE
`

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_wolves.yaml", wolvesYAML)
	writeFile(t, dir, "a_bundle.yml", bundleYAML)
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	docs, err := NewLoader(dir, zap.NewNop()).Load()
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"Pack", "Miner", "Wolves"}, []string{docs[0].Name, docs[1].Name, docs[2].Name})
	assert.Equal(t, "Wolf Hunt", docs[2].DisplayName)
	assert.Equal(t, int64(5), docs[2].Objectives[0].ProgressNeeded)
}

func TestLoader_NameFromFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fishing.yaml", "objectives:\n  - type: CollectItems\n    item: {material: COD, amount: 3}\n")
	docs, err := NewLoader(dir, zap.NewNop()).Load()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "fishing", docs[0].Name)
}

func TestLoader_Errors(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", "name: same\n")
		writeFile(t, dir, "b.yaml", "name: SAME\n")
		_, err := NewLoader(dir, zap.NewNop()).Load()
		assert.ErrorContains(t, err, "defined in both")
	})
	t.Run("unknown field", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", "name: q\nreward_gold: 5\n")
		_, err := NewLoader(dir, zap.NewNop()).Load()
		assert.Error(t, err)
	})
	t.Run("missing dir", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "nope"), zap.NewNop()).Load()
		assert.Error(t, err)
	})
}

func TestExport_RoundTrip(t *testing.T) {
	q, err := quest.NewQuest("Wolves")
	require.NoError(t, err)
	_, err = q.AddObjective(&quest.Objective{ProgressNeeded: 5, Spec: quest.KillMobs{Mob: "WOLF"}})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Export(dir, []quest.QuestDocument{quest.EncodeQuest(q)}))
	_, err = os.Stat(filepath.Join(dir, "wolves.yaml"))
	require.NoError(t, err)

	docs, err := NewLoader(dir, zap.NewNop()).Load()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	back, err := docs[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, "Wolves", back.Name)
	assert.Equal(t, int64(5), back.Objectives[0].ProgressNeeded)
}

// orderedImporter rejects a quest whose GiveQuest reward names a quest it
// has not stored yet, like the real service does.
type orderedImporter struct {
	stored map[string]bool
	order  []string
	fail   error
}

func (o *orderedImporter) PutQuest(_ context.Context, d quest.QuestDocument) (*quest.Quest, error) {
	if o.fail != nil {
		return nil, o.fail
	}
	for _, r := range d.Rewards {
		if r.Quest != "" && !o.stored[r.Quest] {
			return nil, quest.ErrNotFound
		}
	}
	o.stored[d.Name] = true
	o.order = append(o.order, d.Name)
	return nil, nil
}

func TestImport_ResolvesOrder(t *testing.T) {
	imp := &orderedImporter{stored: map[string]bool{}}
	docs := []quest.QuestDocument{
		{Name: "A", Rewards: []quest.ActionDocument{{Type: quest.ActionGiveQuest, Quest: "B"}}},
		{Name: "B", Rewards: []quest.ActionDocument{{Type: quest.ActionGiveQuest, Quest: "C"}}},
		{Name: "C"},
	}
	names, err := Import(context.Background(), imp, docs, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, names)
}

func TestImport_UnresolvableReference(t *testing.T) {
	imp := &orderedImporter{stored: map[string]bool{}}
	docs := []quest.QuestDocument{
		{Name: "A", Rewards: []quest.ActionDocument{{Type: quest.ActionGiveQuest, Quest: "missing"}}},
		{Name: "B"},
	}
	names, err := Import(context.Background(), imp, docs, zap.NewNop())
	assert.ErrorIs(t, err, quest.ErrNotFound)
	assert.Equal(t, []string{"B"}, names)
}

func TestImport_HardError(t *testing.T) {
	imp := &orderedImporter{stored: map[string]bool{}, fail: errors.New("disk full")}
	_, err := Import(context.Background(), imp, []quest.QuestDocument{{Name: "A"}}, zap.NewNop())
	assert.ErrorContains(t, err, "disk full")
}
