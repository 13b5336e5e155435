package npc

import (
	"encoding/json"
	"testing"

	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordLink struct{ sent []*player.Packet }

func (l *recordLink) Send(pkt *player.Packet) error {
	l.sent = append(l.sent, pkt)
	return nil
}

func TestDirectory_Lookup(t *testing.T) {
	d := NewDirectory(nil, zap.NewNop())
	d.Sync([]NPC{
		{ID: 7, Name: "Trader", Spawned: true, Location: world.Location{World: "world", X: 3}},
		{ID: 2, Name: "Guard"},
	})

	assert.True(t, d.Exists(7))
	assert.False(t, d.Exists(9))
	assert.Equal(t, "Trader", d.Name(7))
	assert.Empty(t, d.Name(9))
	assert.True(t, d.Spawned(7))
	assert.False(t, d.Spawned(2))

	loc, ok := d.Location(7)
	require.True(t, ok)
	assert.Equal(t, 3.0, loc.X)
	_, ok = d.Location(2)
	assert.False(t, ok, "despawned npcs have no location")

	all := d.All()
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].ID)

	d.Upsert(NPC{ID: 2, Name: "Captain", Spawned: true})
	assert.Equal(t, "Captain", d.Name(2))
	d.Remove(2)
	assert.False(t, d.Exists(2))
}

func TestDirectory_DespawnTellsHost(t *testing.T) {
	link := &recordLink{}
	d := NewDirectory(func() player.Link { return link }, zap.NewNop())
	d.Upsert(NPC{ID: 4, Name: "Merchant", Spawned: true})

	require.NoError(t, d.Despawn(4))
	assert.False(t, d.Spawned(4))
	require.Len(t, link.sent, 1)
	assert.Equal(t, PacketDespawn, link.sent[0].Type)
	var p DespawnPayload
	require.NoError(t, json.Unmarshal(link.sent[0].Payload, &p))
	assert.Equal(t, 4, p.ID)

	assert.ErrorIs(t, d.Despawn(99), ErrUnknown)
}

func TestDirectory_DespawnWithoutLink(t *testing.T) {
	d := NewDirectory(func() player.Link { return nil }, zap.NewNop())
	d.Upsert(NPC{ID: 4, Spawned: true})
	require.NoError(t, d.Despawn(4))
	assert.False(t, d.Spawned(4))
}
