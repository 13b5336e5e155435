// Package npc keeps the server-side view of the host's NPCs.
package npc

import (
	"errors"
	"sort"
	"sync"

	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/world"
	"go.uber.org/zap"
)

// PacketDespawn asks the host to despawn an NPC.
const PacketDespawn = "npc_despawn"

// ErrUnknown is returned for NPC ids the host never reported.
var ErrUnknown = errors.New("npc: unknown npc")

// NPC is one host NPC.
type NPC struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Spawned  bool           `json:"spawned"`
	Location world.Location `json:"location"`
}

// DespawnPayload is the payload of a despawn packet.
type DespawnPayload struct {
	ID int `json:"id"`
}

// Directory is the set of NPCs known from the host. It implements
// quest.NPCDirectory.
type Directory struct {
	mu     sync.RWMutex
	npcs   map[int]*NPC
	link   func() player.Link
	logger *zap.Logger
}

// NewDirectory creates an empty Directory. link returns the current host
// link and may return nil.
func NewDirectory(link func() player.Link, logger *zap.Logger) *Directory {
	return &Directory{npcs: make(map[int]*NPC), link: link, logger: logger}
}

// Upsert records n, replacing any previous entry with the same id.
func (d *Directory) Upsert(n NPC) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.npcs[n.ID] = &n
}

// Sync replaces the whole directory.
func (d *Directory) Sync(npcs []NPC) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.npcs)
	for i := range npcs {
		n := npcs[i]
		d.npcs[n.ID] = &n
	}
	d.logger.Info("npc directory synced", zap.Int("count", len(npcs)))
}

// Remove forgets an NPC.
func (d *Directory) Remove(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.npcs, id)
}

// Get returns a copy of the NPC.
func (d *Directory) Get(id int) (NPC, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.npcs[id]
	if !ok {
		return NPC{}, false
	}
	return *n, true
}

// All returns every NPC ordered by id.
func (d *Directory) All() []NPC {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]NPC, 0, len(d.npcs))
	for _, n := range d.npcs {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Exists(id int) bool {
	_, ok := d.Get(id)
	return ok
}

func (d *Directory) Name(id int) string {
	n, _ := d.Get(id)
	return n.Name
}

func (d *Directory) Spawned(id int) bool {
	n, ok := d.Get(id)
	return ok && n.Spawned
}

func (d *Directory) Location(id int) (world.Location, bool) {
	n, ok := d.Get(id)
	if !ok || !n.Spawned {
		return world.Location{}, false
	}
	return n.Location, true
}

// Despawn marks the NPC despawned and tells the host.
func (d *Directory) Despawn(id int) error {
	d.mu.Lock()
	n, ok := d.npcs[id]
	if ok {
		n.Spawned = false
	}
	d.mu.Unlock()
	if !ok {
		return ErrUnknown
	}
	if d.link == nil {
		return nil
	}
	l := d.link()
	if l == nil {
		d.logger.Warn("npc despawned without host link", zap.Int("npc", id))
		return nil
	}
	pkt, err := player.NewPacket(PacketDespawn, DespawnPayload{ID: id})
	if err != nil {
		return err
	}
	return l.Send(pkt)
}
