package player

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/world"
)

const historySize = 50

// Player mirrors a player that is online on the host.
type Player struct {
	id       uuid.UUID
	name     string
	inv      *item.Inventory
	JoinedAt time.Time

	mu      sync.RWMutex
	loc     world.Location
	history []string
}

// New creates a player mirror with an empty inventory.
func New(id uuid.UUID, name string, loc world.Location) *Player {
	return &Player{
		id:       id,
		name:     name,
		inv:      item.NewInventory(item.DefaultSlots),
		loc:      loc,
		JoinedAt: time.Now(),
	}
}

func (p *Player) UUID() uuid.UUID            { return p.id }
func (p *Player) Name() string               { return p.name }
func (p *Player) Inventory() *item.Inventory { return p.inv }

// Location returns the last reported position.
func (p *Player) Location() world.Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loc
}

// SetLocation records a new position.
func (p *Player) SetLocation(loc world.Location) {
	p.mu.Lock()
	p.loc = loc
	p.mu.Unlock()
}

// SetWorld moves the player to another world, keeping the coordinates.
func (p *Player) SetWorld(w string) {
	p.mu.Lock()
	p.loc.World = w
	p.mu.Unlock()
}

func (p *Player) remember(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == historySize {
		copy(p.history, p.history[1:])
		p.history = p.history[:historySize-1]
	}
	p.history = append(p.history, msg)
}

// Messages returns the most recent messages sent to the player, oldest first.
func (p *Player) Messages() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.history...)
}
