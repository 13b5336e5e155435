package quest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"go.uber.org/zap"
)

// ObjectiveKind is the discriminant of an ObjectiveSpec.
type ObjectiveKind string

const (
	ObjectiveKillMobs       ObjectiveKind = "KillMobs"
	ObjectiveCollectItems   ObjectiveKind = "CollectItems"
	ObjectiveConsumeItems   ObjectiveKind = "ConsumeItems"
	ObjectiveDeliverItems   ObjectiveKind = "DeliverItems"
	ObjectiveTalkToNPC      ObjectiveKind = "TalkToNPC"
	ObjectiveEscortNPC      ObjectiveKind = "EscortNPC"
	ObjectiveBreakBlocks    ObjectiveKind = "BreakBlocks"
	ObjectivePlaceBlocks    ObjectiveKind = "PlaceBlocks"
	ObjectiveTriggerCommand ObjectiveKind = "TriggerCommand"
)

// AnyMob matches every entity type in KillMobs.
const AnyMob = "ANY"

// escortRange is how close the escorted NPC must be to the player.
const escortRange = 6.0

// Source identifies what caused a progress change. The zero value is "no
// source"; NPC ids are positive.
type Source struct {
	NPC        int
	ArmorStand uuid.UUID
}

// Delta is the progress change an objective derives from one event.
type Delta struct {
	Add    int64
	Remove int64
	Source Source
}

func (d Delta) matched() bool { return d.Add > 0 || d.Remove > 0 }

// ProgressContext is what an ObjectiveSpec sees while matching an event.
type ProgressContext struct {
	Ctx       context.Context
	Host      *Host
	Player    Player // nil when offline
	Remaining int64
	Logger    *zap.Logger
}

// ObjectiveSpec is the type-specific part of an objective.
type ObjectiveSpec interface {
	Kind() ObjectiveKind
	Validate() error
	// Progress returns the delta ev causes, or the zero Delta if ev does not
	// concern this objective. It may act on the host (take items, despawn NPCs).
	Progress(pc *ProgressContext, ev Event) Delta
}

// Objective is one measurable unit of progress within a quest.
type Objective struct {
	ID                   int
	ProgressNeeded       int64
	DisplayName          string
	Description          string
	CompletionNPC        int
	CompletionArmorStand uuid.UUID
	Conditions           []Condition
	DependsOn            []int
	Spec                 ObjectiveSpec
}

// HasCompletionTarget reports whether completion waits for an interaction.
func (o *Objective) HasCompletionTarget() bool {
	return o.CompletionNPC > 0 || o.CompletionArmorStand != uuid.Nil
}

func (o *Objective) completedBy(src Source) bool {
	if !o.HasCompletionTarget() {
		return true
	}
	if o.CompletionNPC > 0 && src.NPC == o.CompletionNPC {
		return true
	}
	return o.CompletionArmorStand != uuid.Nil && src.ArmorStand == o.CompletionArmorStand
}

// Title returns the display name, falling back to the kind.
func (o *Objective) Title() string {
	if o.DisplayName != "" {
		return o.DisplayName
	}
	return string(o.Spec.Kind())
}

// Validate checks the objective in isolation.
func (o *Objective) Validate() error {
	if o.Spec == nil {
		return validationf("objective %d has no type", o.ID)
	}
	if o.ProgressNeeded < 1 {
		return validationf("objective %d: progress needed must be at least 1", o.ID)
	}
	if o.CompletionNPC < 0 {
		return validationf("objective %d: invalid completion npc %d", o.ID, o.CompletionNPC)
	}
	for _, dep := range o.DependsOn {
		if dep == o.ID {
			return validationf("objective %d cannot depend on itself", o.ID)
		}
	}
	for _, c := range o.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return o.Spec.Validate()
}

func (o *Objective) clone() *Objective {
	c := *o
	c.Conditions = append([]Condition(nil), o.Conditions...)
	c.DependsOn = append([]int(nil), o.DependsOn...)
	return &c
}

// ---- KillMobs ----

// KillMobs counts kills of Mob, optionally filtered by name tag.
type KillMobs struct {
	Mob                string
	NameTagEquals      string
	NameTagContainsAny string
}

func (KillMobs) Kind() ObjectiveKind { return ObjectiveKillMobs }

func (k KillMobs) Validate() error {
	if strings.TrimSpace(k.Mob) == "" {
		return validationf("KillMobs: mob is required")
	}
	return nil
}

func (k KillMobs) Progress(_ *ProgressContext, ev Event) Delta {
	e, ok := ev.(EntityKilled)
	if !ok {
		return Delta{}
	}
	if e.Victim != uuid.Nil && e.Victim == e.Player {
		return Delta{}
	}
	if !strings.EqualFold(k.Mob, AnyMob) && !strings.EqualFold(k.Mob, e.Entity) {
		return Delta{}
	}
	if k.NameTagEquals != "" && e.NameTag != k.NameTagEquals {
		return Delta{}
	}
	if k.NameTagContainsAny != "" && !containsAny(e.NameTag, strings.Fields(k.NameTagContainsAny)) {
		return Delta{}
	}
	return Delta{Add: 1}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// ---- CollectItems ----

// CollectItems counts picked up items; dropping them takes progress back
// unless DeductOnDrop is off.
type CollectItems struct {
	Item         item.Stack
	DeductOnDrop bool
}

func (CollectItems) Kind() ObjectiveKind { return ObjectiveCollectItems }

func (c CollectItems) Validate() error { return validateItem("CollectItems", c.Item) }

func (c CollectItems) Progress(_ *ProgressContext, ev Event) Delta {
	switch e := ev.(type) {
	case ItemPickedUp:
		if c.Item.Similar(e.Item) {
			return Delta{Add: int64(e.Item.Amount)}
		}
	case ItemDropped:
		if c.DeductOnDrop && c.Item.Similar(e.Item) {
			return Delta{Remove: int64(e.Item.Amount)}
		}
	}
	return Delta{}
}

// ---- ConsumeItems ----

// ConsumeItems counts consumed items.
type ConsumeItems struct {
	Item item.Stack
}

func (ConsumeItems) Kind() ObjectiveKind { return ObjectiveConsumeItems }

func (c ConsumeItems) Validate() error { return validateItem("ConsumeItems", c.Item) }

func (c ConsumeItems) Progress(_ *ProgressContext, ev Event) Delta {
	if e, ok := ev.(ItemConsumed); ok && c.Item.Similar(e.Item) {
		return Delta{Add: 1}
	}
	return Delta{}
}

// ---- DeliverItems ----

// DeliverItems takes matching items from the player's inventory when they
// interact with RecipientNPC, never more than what is still needed.
type DeliverItems struct {
	Item         item.Stack
	RecipientNPC int
}

func (DeliverItems) Kind() ObjectiveKind { return ObjectiveDeliverItems }

func (d DeliverItems) Validate() error {
	if d.RecipientNPC <= 0 {
		return validationf("DeliverItems: recipient npc is required")
	}
	return validateItem("DeliverItems", d.Item)
}

func (d DeliverItems) Progress(pc *ProgressContext, ev Event) Delta {
	e, ok := ev.(NPCInteracted)
	if !ok || e.NPC != d.RecipientNPC || pc.Player == nil || pc.Remaining <= 0 {
		return Delta{}
	}
	taken := pc.Player.Inventory().Take(d.Item, int(pc.Remaining))
	if taken == 0 {
		return Delta{}
	}
	pc.Host.tell(e.Player, fmt.Sprintf("You have delivered %d items to %s", taken, pc.Host.npcName(e.NPC)))
	return Delta{Add: int64(taken), Source: Source{NPC: e.NPC}}
}

// ---- TalkToNPC ----

// TalkToNPC counts interactions with NPC.
type TalkToNPC struct {
	NPC int
}

func (TalkToNPC) Kind() ObjectiveKind { return ObjectiveTalkToNPC }

func (t TalkToNPC) Validate() error {
	if t.NPC <= 0 {
		return validationf("TalkToNPC: npc is required")
	}
	return nil
}

func (t TalkToNPC) Progress(pc *ProgressContext, ev Event) Delta {
	e, ok := ev.(NPCInteracted)
	if !ok || e.NPC != t.NPC {
		return Delta{}
	}
	pc.Host.tell(e.Player, "You talked to "+pc.Host.npcName(e.NPC))
	return Delta{Add: 1, Source: Source{NPC: e.NPC}}
}

// ---- EscortNPC ----

// EscortNPC completes when the player reaches DestinationNPC with NPC
// spawned close by. The escorted NPC is despawned on success.
type EscortNPC struct {
	NPC            int
	DestinationNPC int
}

func (EscortNPC) Kind() ObjectiveKind { return ObjectiveEscortNPC }

func (e EscortNPC) Validate() error {
	if e.NPC <= 0 || e.DestinationNPC <= 0 {
		return validationf("EscortNPC: npc and destination npc are required")
	}
	if e.NPC == e.DestinationNPC {
		return validationf("EscortNPC: npc cannot be its own destination")
	}
	return nil
}

func (e EscortNPC) Progress(pc *ProgressContext, ev Event) Delta {
	in, ok := ev.(NPCInteracted)
	if !ok || in.NPC != e.DestinationNPC || pc.Player == nil {
		return Delta{}
	}
	npcs := pc.Host.NPCs
	if npcs == nil || !npcs.Exists(e.NPC) {
		return Delta{}
	}
	loc, ok := npcs.Location(e.NPC)
	if !npcs.Spawned(e.NPC) || !ok || loc.Distance(pc.Player.Location()) >= escortRange {
		pc.Host.tell(in.Player, "The NPC you have to escort is not close enough to you!")
		return Delta{}
	}
	if err := npcs.Despawn(e.NPC); err != nil {
		pc.Logger.Warn("escort despawn failed", zap.Int("npc", e.NPC), zap.Error(err))
	}
	pc.Host.tell(in.Player, "You have successfully delivered the NPC "+pc.Host.npcName(e.NPC))
	return Delta{Add: 1, Source: Source{NPC: in.NPC}}
}

// ---- BreakBlocks / PlaceBlocks ----

// BreakBlocks counts broken blocks; placing one back deducts when enabled.
type BreakBlocks struct {
	Block          string
	DeductIfPlaced bool
}

func (BreakBlocks) Kind() ObjectiveKind { return ObjectiveBreakBlocks }

func (b BreakBlocks) Validate() error { return validateBlock("BreakBlocks", b.Block) }

func (b BreakBlocks) Progress(_ *ProgressContext, ev Event) Delta {
	switch e := ev.(type) {
	case BlockBroken:
		if e.Block == b.Block {
			return Delta{Add: 1}
		}
	case BlockPlaced:
		if b.DeductIfPlaced && e.Block == b.Block {
			return Delta{Remove: 1}
		}
	}
	return Delta{}
}

// PlaceBlocks counts placed blocks; breaking one deducts when enabled.
type PlaceBlocks struct {
	Block          string
	DeductIfBroken bool
}

func (PlaceBlocks) Kind() ObjectiveKind { return ObjectivePlaceBlocks }

func (p PlaceBlocks) Validate() error { return validateBlock("PlaceBlocks", p.Block) }

func (p PlaceBlocks) Progress(_ *ProgressContext, ev Event) Delta {
	switch e := ev.(type) {
	case BlockPlaced:
		if e.Block == p.Block {
			return Delta{Add: 1}
		}
	case BlockBroken:
		if p.DeductIfBroken && e.Block == p.Block {
			return Delta{Remove: 1}
		}
	}
	return Delta{}
}

// ---- TriggerCommand ----

// TriggerCommand advances when an integration triggers Name.
type TriggerCommand struct {
	Name string
}

func (TriggerCommand) Kind() ObjectiveKind { return ObjectiveTriggerCommand }

func (t TriggerCommand) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return validationf("TriggerCommand: name is required")
	}
	return nil
}

func (t TriggerCommand) Progress(_ *ProgressContext, ev Event) Delta {
	if e, ok := ev.(ObjectiveTriggered); ok && strings.EqualFold(e.Name, t.Name) {
		return Delta{Add: 1}
	}
	return Delta{}
}

func validateItem(kind string, s item.Stack) error {
	if strings.TrimSpace(s.Material) == "" {
		return validationf("%s: item material is required", kind)
	}
	return nil
}

func validateBlock(kind, block string) error {
	if strings.TrimSpace(block) == "" {
		return validationf("%s: block is required", kind)
	}
	return nil
}
