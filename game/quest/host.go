package quest

import (
	"context"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/script"
	"github.com/kasuganosora/questforge/game/world"
)

// Player is an online host player.
type Player interface {
	UUID() uuid.UUID
	Name() string
	Location() world.Location
	Inventory() *item.Inventory
}

// Players resolves online players.
type Players interface {
	Online(id uuid.UUID) (Player, bool)
}

// Messenger delivers text to a player or the console.
type Messenger interface {
	SendMessage(id uuid.UUID, msg string)
	Console(msg string)
}

// NPCDirectory resolves NPC ids to live NPCs.
type NPCDirectory interface {
	Exists(id int) bool
	Name(id int) string
	Spawned(id int) bool
	Location(id int) (world.Location, bool)
	Despawn(id int) error
}

// CommandRunner executes a console command on the host.
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd string) error
}

// ScriptRunner evaluates a boolean script condition.
type ScriptRunner interface {
	EvalCondition(ctx context.Context, src string, sc *script.ScriptContext) (bool, error)
}

// Host bundles the collaborators the engine calls out to. Nil members
// disable what depends on them.
type Host struct {
	Players  Players
	Messages Messenger
	NPCs     NPCDirectory
	Commands CommandRunner
	Scripts  ScriptRunner
}

func (h *Host) online(id uuid.UUID) Player {
	if h == nil || h.Players == nil || id == uuid.Nil {
		return nil
	}
	p, ok := h.Players.Online(id)
	if !ok {
		return nil
	}
	return p
}

func (h *Host) tell(id uuid.UUID, msg string) {
	if h == nil || h.Messages == nil || id == uuid.Nil {
		return
	}
	h.Messages.SendMessage(id, msg)
}

func (h *Host) npcName(id int) string {
	if h != nil && h.NPCs != nil {
		if n := h.NPCs.Name(id); n != "" {
			return n
		}
	}
	return "NPC"
}
