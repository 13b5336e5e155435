package player

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/world"
	"go.uber.org/zap"
)

// ErrNoLink is returned when no host is connected.
var ErrNoLink = errors.New("player: no host connected")

// Manager maintains the registry of online players and relays messages,
// commands and inventory changes to the host over its Link.
type Manager struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
	link    Link
	logger  *zap.Logger
}

// NewManager creates a new Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		players: make(map[uuid.UUID]*Player),
		logger:  logger,
	}
}

// SetLink routes outbound packets through l; nil disconnects.
func (m *Manager) SetLink(l Link) {
	m.mu.Lock()
	m.link = l
	m.mu.Unlock()
}

// Link returns the current host link, or nil.
func (m *Manager) Link() Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.link
}

// Join registers a player with the given inventory contents. A previous
// record for the same id is replaced (reconnect).
func (m *Manager) Join(id uuid.UUID, name string, loc world.Location, items []item.Stack) *Player {
	p := New(id, name, loc)
	if lost := p.inv.Replace(items); lost > 0 {
		m.logger.Warn("inventory snapshot did not fit",
			zap.String("player", id.String()), zap.Int("lost", lost))
	}
	p.inv.Observe(func(s item.Stack, delta int) {
		m.send(PacketInventory, InventoryPayload{Player: id.String(), Item: s, Delta: delta})
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[id]; ok {
		m.logger.Info("duplicate player displaced", zap.String("player", id.String()))
	}
	m.players[id] = p
	m.logger.Info("player joined",
		zap.String("player", id.String()),
		zap.String("name", name),
		zap.String("world", loc.World))
	return p
}

// SyncInventory replaces the mirrored inventory with the host's snapshot
// without echoing changes back. It reports false when the player is offline.
func (m *Manager) SyncInventory(id uuid.UUID, items []item.Stack) bool {
	p := m.Get(id)
	if p == nil {
		return false
	}
	if lost := p.inv.Replace(items); lost > 0 {
		m.logger.Warn("inventory snapshot did not fit",
			zap.String("player", id.String()), zap.Int("lost", lost))
	}
	return true
}

// Leave removes the player and returns it, or nil if it was not online.
func (m *Manager) Leave(id uuid.UUID) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil
	}
	delete(m.players, id)
	p.inv.Observe(nil)
	m.logger.Info("player left", zap.String("player", id.String()))
	return p
}

// Get returns the online player, or nil if not found.
func (m *Manager) Get(id uuid.UUID) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[id]
}

// GetByName finds an online player by name (case-insensitive).
func (m *Manager) GetByName(name string) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.players {
		if strings.EqualFold(p.name, name) {
			return p
		}
	}
	return nil
}

// Online implements quest.Players.
func (m *Manager) Online(id uuid.UUID) (quest.Player, bool) {
	p := m.Get(id)
	if p == nil {
		return nil, false
	}
	return p, true
}

// IsOnline reports whether a player is currently online.
func (m *Manager) IsOnline(id uuid.UUID) bool {
	return m.Get(id) != nil
}

// Count returns the number of online players.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// All returns a snapshot slice of all online players.
func (m *Manager) All() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// Clear removes every player and returns them.
func (m *Manager) Clear() []*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Player, 0, len(m.players))
	for id, p := range m.players {
		p.inv.Observe(nil)
		out = append(out, p)
		delete(m.players, id)
	}
	return out
}

// SendMessage implements quest.Messenger. The message is kept in the
// player's history even when no host is connected.
func (m *Manager) SendMessage(id uuid.UUID, msg string) {
	if p := m.Get(id); p != nil {
		p.remember(msg)
	}
	m.send(PacketMessage, MessagePayload{Player: id.String(), Text: msg})
}

// Console implements quest.Messenger.
func (m *Manager) Console(msg string) {
	m.logger.Info("console", zap.String("message", msg))
	m.send(PacketConsole, MessagePayload{Text: msg})
}

// RunCommand implements quest.CommandRunner by forwarding cmd to the host.
func (m *Manager) RunCommand(_ context.Context, cmd string) error {
	l := m.Link()
	if l == nil {
		return ErrNoLink
	}
	pkt, err := NewPacket(PacketCommand, CommandPayload{Command: cmd})
	if err != nil {
		return err
	}
	return l.Send(pkt)
}

func (m *Manager) send(typ string, payload any) {
	l := m.Link()
	if l == nil {
		return
	}
	pkt, err := NewPacket(typ, payload)
	if err != nil {
		m.logger.Error("failed to marshal packet", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := l.Send(pkt); err != nil {
		m.logger.Warn("host send failed", zap.String("type", typ), zap.Error(err))
	}
}
