package quest

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/script"
	"github.com/kasuganosora/questforge/game/world"
)

// ConditionKind is the discriminant of a Condition.
type ConditionKind string

const (
	ConditionCompletedQuest    ConditionKind = "CompletedQuest"
	ConditionReachedMaxAccepts ConditionKind = "ReachedMaxAccepts"
	ConditionInWorld           ConditionKind = "InWorld"
	ConditionHasItem           ConditionKind = "HasItem"
	ConditionScript            ConditionKind = "Script"
)

// ConditionContext is what a Condition sees while checking.
type ConditionContext struct {
	Ctx      context.Context
	Host     *Host
	Player   Player // nil when offline
	QP       *QuestPlayer
	Registry *Registry
}

// Condition gates quest acceptance or objective progress.
type Condition interface {
	Kind() ConditionKind
	Validate() error
	// Check returns nil when satisfied, a PreconditionFailed error otherwise.
	Check(cc *ConditionContext) error
}

// HasCompleted requires Quest to have been completed at least MinTimes.
type HasCompleted struct {
	Quest    string
	MinTimes int
}

func (HasCompleted) Kind() ConditionKind { return ConditionCompletedQuest }

func (c HasCompleted) Validate() error {
	if strings.TrimSpace(c.Quest) == "" {
		return validationf("CompletedQuest: quest is required")
	}
	if c.MinTimes < 0 {
		return validationf("CompletedQuest: min times cannot be negative")
	}
	return nil
}

func (c HasCompleted) Check(cc *ConditionContext) error {
	need := max(c.MinTimes, 1)
	if got := cc.QP.CompletionCount(c.Quest); got < need {
		return preconditionf("you need to complete quest %s %d more time(s)", c.Quest, need-got)
	}
	return nil
}

// ReachedMaxAccepts holds when the player can no longer accept Quest because
// of its max-accepts limit. Negate inverts it.
type ReachedMaxAccepts struct {
	Quest  string
	Negate bool
}

func (ReachedMaxAccepts) Kind() ConditionKind { return ConditionReachedMaxAccepts }

func (c ReachedMaxAccepts) Validate() error {
	if strings.TrimSpace(c.Quest) == "" {
		return validationf("ReachedMaxAccepts: quest is required")
	}
	return nil
}

func (c ReachedMaxAccepts) Check(cc *ConditionContext) error {
	reached := false
	if q, ok := cc.Registry.Get(c.Quest); ok {
		reached = q.maxAcceptsReached(cc.QP.CompletionCount(q.Name))
	}
	if reached == c.Negate {
		if c.Negate {
			return preconditionf("quest %s has reached its max accepts", c.Quest)
		}
		return preconditionf("quest %s has not reached its max accepts", c.Quest)
	}
	return nil
}

// InWorld requires the player to be in World.
type InWorld struct {
	World string
}

func (InWorld) Kind() ConditionKind { return ConditionInWorld }

func (c InWorld) Validate() error {
	if strings.TrimSpace(c.World) == "" {
		return validationf("InWorld: world is required")
	}
	return nil
}

func (c InWorld) Check(cc *ConditionContext) error {
	if cc.Player == nil || !world.SameName(cc.Player.Location().World, c.World) {
		return preconditionf("you need to be in world %s", c.World)
	}
	return nil
}

// HasItem requires Amount of Item in the player's inventory.
type HasItem struct {
	Item   item.Stack
	Amount int
}

func (HasItem) Kind() ConditionKind { return ConditionHasItem }

func (c HasItem) Validate() error {
	if err := validateItem("HasItem", c.Item); err != nil {
		return err
	}
	if c.Amount < 1 {
		return validationf("HasItem: amount must be at least 1")
	}
	return nil
}

func (c HasItem) Check(cc *ConditionContext) error {
	have := 0
	if cc.Player != nil {
		have = cc.Player.Inventory().Count(c.Item)
	}
	if have < c.Amount {
		return preconditionf("you need %d more %s", c.Amount-have, c.Item.Label())
	}
	return nil
}

// Script evaluates a JavaScript expression against the player.
type Script struct {
	Source string
}

func (Script) Kind() ConditionKind { return ConditionScript }

func (c Script) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return validationf("Script: source is required")
	}
	return nil
}

func (c Script) Check(cc *ConditionContext) error {
	if cc.Host == nil || cc.Host.Scripts == nil {
		return preconditionf("script conditions are not available")
	}
	ok, err := cc.Host.Scripts.EvalCondition(cc.Ctx, c.Source, scriptContext(cc))
	if err != nil {
		return preconditionf("script condition failed: %v", err)
	}
	if !ok {
		return preconditionf("script condition not met")
	}
	return nil
}

func scriptContext(cc *ConditionContext) *script.ScriptContext {
	sc := &script.ScriptContext{
		CompletedCount: cc.QP.CompletionCount,
		IsActive: func(name string) bool {
			_, ok := cc.QP.activeByName(name)
			return ok
		},
	}
	if p := cc.Player; p != nil {
		sc.PlayerName = p.Name()
		sc.PlayerUUID = p.UUID().String()
		loc := p.Location()
		sc.World, sc.X, sc.Y, sc.Z = loc.World, loc.X, loc.Y, loc.Z
		sc.ItemCount = func(material string) int {
			return p.Inventory().Count(item.Stack{Material: item.NormalizeMaterial(material)})
		}
	}
	return sc
}

// checkAll returns the first failing condition's error.
func checkAll(cc *ConditionContext, conds []Condition) error {
	for _, c := range conds {
		if err := c.Check(cc); err != nil {
			return fmt.Errorf("%s: %w", c.Kind(), err)
		}
	}
	return nil
}

// conditionQuestRef returns the quest a condition names, if any.
func conditionQuestRef(c Condition) string {
	switch v := c.(type) {
	case HasCompleted:
		return v.Quest
	case ReachedMaxAccepts:
		return v.Quest
	}
	return ""
}
