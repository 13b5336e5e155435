package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/world"
)

// Packet types sent by the host.
const (
	PacketPing             = "ping"
	PacketPlayerJoin       = "player_join"
	PacketPlayerLeave      = "player_leave"
	PacketPlayerMove       = "player_move"
	PacketInventorySync    = "inventory_sync"
	PacketGameEvent        = "game_event"
	PacketNPCSync          = "npc_sync"
	PacketNPCUpdate        = "npc_update"
	PacketNPCRemove        = "npc_remove"
	PacketTriggerObjective = "trigger_objective"
	PacketStartQuest       = "start_quest"
	PacketFailQuest        = "fail_quest"
	PacketAbortQuest       = "abort_quest"
)

// Packet types sent to the host besides the player package's ones.
const (
	PacketPong  = "pong"
	PacketError = "error"
)

// Game event kinds carried by a game_event packet.
const (
	EventEntityKilled         = "entity_killed"
	EventPlayerDied           = "player_died"
	EventItemPickedUp         = "item_picked_up"
	EventItemDropped          = "item_dropped"
	EventItemConsumed         = "item_consumed"
	EventBlockBroken          = "block_broken"
	EventBlockPlaced          = "block_placed"
	EventNPCInteracted        = "npc_interacted"
	EventArmorStandInteracted = "armor_stand_interacted"
	EventNPCDied              = "npc_died"
	EventObjectiveTriggered   = "objective_triggered"
)

var errPanic = errors.New("ws: handler panicked")

// ErrorPayload reports a failed packet back to the host.
type ErrorPayload struct {
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PlayerJoinPayload announces an online player with a full inventory snapshot.
type PlayerJoinPayload struct {
	Player    string         `json:"player"`
	Name      string         `json:"name"`
	Location  world.Location `json:"location"`
	Inventory []item.Stack   `json:"inventory"`
}

// PlayerRefPayload names a player.
type PlayerRefPayload struct {
	Player string `json:"player"`
}

// PlayerMovePayload reports a new position. A different world raises a
// world change.
type PlayerMovePayload struct {
	Player   string         `json:"player"`
	Location world.Location `json:"location"`
}

// InventorySyncPayload replaces the mirrored inventory.
type InventorySyncPayload struct {
	Player    string       `json:"player"`
	Inventory []item.Stack `json:"inventory"`
}

// NPCSyncPayload replaces the NPC directory.
type NPCSyncPayload struct {
	NPCs []npc.NPC `json:"npcs"`
}

// NPCRemovePayload drops one NPC.
type NPCRemovePayload struct {
	ID int `json:"id"`
}

// QuestCommandPayload drives the integration operations.
type QuestCommandPayload struct {
	Player     string `json:"player"`
	Quest      string `json:"quest"`
	Name       string `json:"name,omitempty"` // trigger_objective
	Force      bool   `json:"force,omitempty"`
	Silent     bool   `json:"silent,omitempty"`
	NoTriggers bool   `json:"no_triggers,omitempty"`
}

// GameEventPayload is one host game event. Kind selects which fields apply.
// Inventory, when present, is the player's inventory after the event.
type GameEventPayload struct {
	Kind       string       `json:"kind"`
	Player     string       `json:"player,omitempty"`
	World      string       `json:"world,omitempty"`
	Entity     string       `json:"entity,omitempty"`
	NameTag    string       `json:"name_tag,omitempty"`
	Victim     string       `json:"victim,omitempty"`
	Item       *item.Stack  `json:"item,omitempty"`
	Block      string       `json:"block,omitempty"`
	NPC        int          `json:"npc,omitempty"`
	ArmorStand string       `json:"armor_stand,omitempty"`
	Name       string       `json:"name,omitempty"`
	Quest      string       `json:"quest,omitempty"`
	Inventory  []item.Stack `json:"inventory,omitempty"`
}

func parsePlayer(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid player uuid %q", s)
	}
	return id, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("bad payload: %w", err)
	}
	return v, nil
}

func (p GameEventPayload) stack() (item.Stack, error) {
	if p.Item == nil || p.Item.Material == "" {
		return item.Stack{}, fmt.Errorf("%s: item is required", p.Kind)
	}
	s := *p.Item
	s.Material = item.NormalizeMaterial(s.Material)
	if s.Amount <= 0 {
		s.Amount = 1
	}
	return s, nil
}

// Event converts the payload into a quest event. world is used when the
// payload carries none.
func (p GameEventPayload) Event(player uuid.UUID, current string) (quest.Event, error) {
	w := p.World
	if w == "" {
		w = current
	}
	base := quest.Base{Player: player, World: w}
	switch p.Kind {
	case EventEntityKilled:
		ev := quest.EntityKilled{Base: base, Entity: p.Entity, NameTag: p.NameTag}
		if p.Victim != "" {
			v, err := uuid.Parse(p.Victim)
			if err != nil {
				return nil, fmt.Errorf("invalid victim uuid %q", p.Victim)
			}
			ev.Victim = v
		}
		return ev, nil
	case EventPlayerDied:
		return quest.PlayerDied{Base: base}, nil
	case EventItemPickedUp, EventItemDropped, EventItemConsumed:
		s, err := p.stack()
		if err != nil {
			return nil, err
		}
		switch p.Kind {
		case EventItemPickedUp:
			return quest.ItemPickedUp{Base: base, Item: s}, nil
		case EventItemDropped:
			return quest.ItemDropped{Base: base, Item: s}, nil
		}
		return quest.ItemConsumed{Base: base, Item: s}, nil
	case EventBlockBroken, EventBlockPlaced:
		if p.Block == "" {
			return nil, fmt.Errorf("%s: block is required", p.Kind)
		}
		b := item.NormalizeMaterial(p.Block)
		if p.Kind == EventBlockBroken {
			return quest.BlockBroken{Base: base, Block: b}, nil
		}
		return quest.BlockPlaced{Base: base, Block: b}, nil
	case EventNPCInteracted:
		if p.NPC <= 0 {
			return nil, fmt.Errorf("%s: npc is required", p.Kind)
		}
		return quest.NPCInteracted{Base: base, NPC: p.NPC}, nil
	case EventArmorStandInteracted:
		id, err := uuid.Parse(p.ArmorStand)
		if err != nil {
			return nil, fmt.Errorf("invalid armor stand uuid %q", p.ArmorStand)
		}
		return quest.ArmorStandInteracted{Base: base, ArmorStand: id}, nil
	case EventNPCDied:
		if p.NPC <= 0 {
			return nil, fmt.Errorf("%s: npc is required", p.Kind)
		}
		return quest.NPCDied{Base: quest.Base{World: p.World}, NPC: p.NPC}, nil
	case EventObjectiveTriggered:
		if p.Name == "" {
			return nil, fmt.Errorf("%s: name is required", p.Kind)
		}
		return quest.ObjectiveTriggered{Base: base, Name: p.Name, Quest: p.Quest}, nil
	}
	return nil, fmt.Errorf("unknown game event kind %q", p.Kind)
}
