package quest

import (
	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
)

// Base carries the acting player and the world the event happened in.
// Broadcast events leave Player as uuid.Nil.
type Base struct {
	Player uuid.UUID
	World  string
}

func (b Base) base() Base { return b }

// Event is a discrete game-world event fed to Service.Handle.
type Event interface {
	base() Base
}

// EntityKilled is emitted when Player kills an entity. Victim is set when the
// killed entity is itself a player.
type EntityKilled struct {
	Base
	Entity  string
	NameTag string
	Victim  uuid.UUID
}

// PlayerDied is emitted when Player dies.
type PlayerDied struct{ Base }

// ItemPickedUp is emitted when Player picks up a stack.
type ItemPickedUp struct {
	Base
	Item item.Stack
}

// ItemDropped is emitted when Player drops a stack.
type ItemDropped struct {
	Base
	Item item.Stack
}

// BlockBroken is emitted when Player breaks a block.
type BlockBroken struct {
	Base
	Block string
}

// BlockPlaced is emitted when Player places a block.
type BlockPlaced struct {
	Base
	Block string
}

// ItemConsumed is emitted when Player eats or drinks an item.
type ItemConsumed struct {
	Base
	Item item.Stack
}

// PlayerDisconnected is emitted when Player leaves the server.
type PlayerDisconnected struct{ Base }

// WorldChanged is emitted when Player moves from one world to another.
// Base.World is the destination.
type WorldChanged struct {
	Base
	From string
}

// NPCInteracted is emitted when Player right-clicks an NPC.
type NPCInteracted struct {
	Base
	NPC int
}

// ArmorStandInteracted is emitted when Player right-clicks a quest armor stand.
type ArmorStandInteracted struct {
	Base
	ArmorStand uuid.UUID
}

// NPCDied is a broadcast: every loaded player is considered.
type NPCDied struct {
	Base
	NPC int
}

// ObjectiveTriggered is raised by integrations to advance TriggerCommand
// objectives by name.
type ObjectiveTriggered struct {
	Base
	Name  string
	Quest string // empty matches every active quest
}

// Lifecycle events. They never come from the host; the service raises them
// so Begin/Complete/Fail triggers count through the same path as game events.

// QuestBegan is raised after a quest is accepted.
type QuestBegan struct{ Base }

// ObjectiveCompleted is raised when an objective completes, before removal.
type ObjectiveCompleted struct {
	Base
	ObjectiveID int
}

// QuestCompleted is raised when the completion sweep finishes a quest.
type QuestCompleted struct{ Base }

// QuestFailed is raised when a quest is failed.
type QuestFailed struct{ Base }

func isBroadcast(ev Event) bool {
	_, ok := ev.(NPCDied)
	return ok
}
