package quest

import (
	"github.com/kasuganosora/questforge/game/world"
)

// TriggerKind is the discriminant of a TriggerSpec.
type TriggerKind string

const (
	TriggerNPCDeath   TriggerKind = "NPCDeath"
	TriggerDeath      TriggerKind = "Death"
	TriggerDisconnect TriggerKind = "Disconnect"
	TriggerWorldEnter TriggerKind = "WorldEnter"
	TriggerWorldLeave TriggerKind = "WorldLeave"
	TriggerBegin      TriggerKind = "Begin"
	TriggerComplete   TriggerKind = "Complete"
	TriggerFail       TriggerKind = "Fail"
)

// TriggerSpec is the type-specific part of a trigger.
type TriggerSpec interface {
	Kind() TriggerKind
	Validate() error
	Matches(ev Event) bool
	// FilterWorld picks the world compared against Trigger.WorldName.
	// current is the acting player's world.
	FilterWorld(ev Event, current string) string
	// OneShot triggers fire on their first threshold crossing only.
	OneShot() bool
}

// Trigger fires Action every AmountNeeded matching events.
type Trigger struct {
	ID           int
	AmountNeeded int64
	ApplyOn      int // 0 = whole quest, otherwise an objective id
	WorldName    string
	Action       Action
	Spec         TriggerSpec
}

// Validate checks the trigger in isolation.
func (t *Trigger) Validate() error {
	if t.Spec == nil {
		return validationf("trigger %d has no type", t.ID)
	}
	if t.Action == nil {
		return validationf("trigger %d has no action", t.ID)
	}
	if t.AmountNeeded < 1 {
		return validationf("trigger %d: amount needed must be at least 1", t.ID)
	}
	if t.ApplyOn < 0 {
		return validationf("trigger %d: apply-on must be 0 or an objective id", t.ID)
	}
	if err := t.Action.Validate(); err != nil {
		return err
	}
	return t.Spec.Validate()
}

func (t *Trigger) worldFilter() string {
	if t.WorldName == "" {
		return world.AllWorlds
	}
	return t.WorldName
}

type currentWorld struct{}

func (currentWorld) FilterWorld(_ Event, current string) string { return current }

type repeatable struct{}

func (repeatable) OneShot() bool { return false }

// NPCDeath counts deaths of NPC.
type NPCDeath struct {
	currentWorld
	repeatable
	NPC int
}

func (NPCDeath) Kind() TriggerKind { return TriggerNPCDeath }

func (n NPCDeath) Validate() error {
	if n.NPC <= 0 {
		return validationf("NPCDeath: npc is required")
	}
	return nil
}

func (n NPCDeath) Matches(ev Event) bool {
	e, ok := ev.(NPCDied)
	return ok && e.NPC == n.NPC
}

// Death counts deaths of the player.
type Death struct {
	currentWorld
	repeatable
}

func (Death) Kind() TriggerKind { return TriggerDeath }
func (Death) Validate() error   { return nil }

func (Death) Matches(ev Event) bool {
	_, ok := ev.(PlayerDied)
	return ok
}

// Disconnect counts the player leaving the server.
type Disconnect struct {
	currentWorld
	repeatable
}

func (Disconnect) Kind() TriggerKind { return TriggerDisconnect }
func (Disconnect) Validate() error   { return nil }

func (Disconnect) Matches(ev Event) bool {
	_, ok := ev.(PlayerDisconnected)
	return ok
}

// WorldEnter counts world changes, filtered on the destination world.
type WorldEnter struct{ repeatable }

func (WorldEnter) Kind() TriggerKind { return TriggerWorldEnter }
func (WorldEnter) Validate() error   { return nil }

func (WorldEnter) Matches(ev Event) bool {
	_, ok := ev.(WorldChanged)
	return ok
}

func (WorldEnter) FilterWorld(ev Event, current string) string {
	if e, ok := ev.(WorldChanged); ok {
		return e.World
	}
	return current
}

// WorldLeave counts world changes, filtered on the world being left.
type WorldLeave struct{ repeatable }

func (WorldLeave) Kind() TriggerKind { return TriggerWorldLeave }
func (WorldLeave) Validate() error   { return nil }

func (WorldLeave) Matches(ev Event) bool {
	_, ok := ev.(WorldChanged)
	return ok
}

func (WorldLeave) FilterWorld(ev Event, current string) string {
	if e, ok := ev.(WorldChanged); ok {
		return e.From
	}
	return current
}

type oneShot struct{}

func (oneShot) OneShot() bool { return true }

// Begin fires once when the quest is accepted.
type Begin struct {
	currentWorld
	oneShot
}

func (Begin) Kind() TriggerKind { return TriggerBegin }
func (Begin) Validate() error   { return nil }

func (Begin) Matches(ev Event) bool {
	_, ok := ev.(QuestBegan)
	return ok
}

// Complete fires once when its scope completes: the quest for apply-on 0,
// otherwise the referenced objective.
type Complete struct {
	currentWorld
	oneShot
}

func (Complete) Kind() TriggerKind { return TriggerComplete }
func (Complete) Validate() error   { return nil }

func (Complete) Matches(ev Event) bool {
	switch ev.(type) {
	case QuestCompleted, ObjectiveCompleted:
		return true
	}
	return false
}

// Fail fires once when the quest is failed.
type Fail struct {
	currentWorld
	oneShot
}

func (Fail) Kind() TriggerKind { return TriggerFail }
func (Fail) Validate() error   { return nil }

func (Fail) Matches(ev Event) bool {
	_, ok := ev.(QuestFailed)
	return ok
}

// InScope ties the completion event to the trigger's apply-on target.
func (Complete) InScope(ev Event, applyOn int) bool {
	switch e := ev.(type) {
	case QuestCompleted:
		return applyOn == 0
	case ObjectiveCompleted:
		return applyOn == e.ObjectiveID
	}
	return false
}

// scopedTrigger is implemented by specs whose events name their own target.
type scopedTrigger interface {
	InScope(ev Event, applyOn int) bool
}
