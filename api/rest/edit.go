package rest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/quest"
)

// Edit operations accepted by PATCH /api/admin/quests/:name.
const (
	OpSetDisplayName          = "set_display_name"
	OpSetDescription          = "set_description"
	OpSetAcceptCooldown       = "set_accept_cooldown"
	OpSetMaxAccepts           = "set_max_accepts"
	OpSetTakeEnabled          = "set_take_enabled"
	OpSetTakeItem             = "set_take_item"
	OpBindNPC                 = "bind_npc"
	OpUnbindNPC               = "unbind_npc"
	OpClearNPCs               = "clear_npcs"
	OpBindArmorStand          = "bind_armor_stand"
	OpUnbindArmorStand        = "unbind_armor_stand"
	OpClearArmorStands        = "clear_armor_stands"
	OpAddObjective            = "add_objective"
	OpRemoveObjective         = "remove_objective"
	OpSetObjectiveDisplayName = "set_objective_display_name"
	OpSetObjectiveDescription = "set_objective_description"
	OpSetObjectiveNPC         = "set_objective_completion_npc"
	OpSetObjectiveArmorStand  = "set_objective_completion_armor_stand"
	OpAddDependency           = "add_dependency"
	OpRemoveDependency        = "remove_dependency"
	OpAddObjectiveCondition   = "add_objective_condition"
	OpClearObjectiveCondition = "clear_objective_conditions"
	OpAddRequirement          = "add_requirement"
	OpRemoveRequirement       = "remove_requirement"
	OpAddReward               = "add_reward"
	OpRemoveReward            = "remove_reward"
	OpAddTrigger              = "add_trigger"
	OpRemoveTrigger           = "remove_trigger"
)

// EditOp is one admin edit. Op selects which fields apply.
type EditOp struct {
	Op string `json:"op" binding:"required"`

	Text       string `json:"text,omitempty"`
	Number     int    `json:"number,omitempty"`
	Flag       bool   `json:"flag,omitempty"`
	ID         int    `json:"id,omitempty"` // objective, requirement, reward or trigger id
	NPC        int    `json:"npc,omitempty"`
	ArmorStand string `json:"armor_stand,omitempty"`
	Shown      bool   `json:"shown,omitempty"`
	Dependency int    `json:"dependency,omitempty"`

	Item      *item.Stack              `json:"item,omitempty"`
	Objective *quest.ObjectiveDocument `json:"objective,omitempty"`
	Condition *quest.ConditionDocument `json:"condition,omitempty"`
	Action    *quest.ActionDocument    `json:"action,omitempty"`
	Trigger   *quest.TriggerDocument   `json:"trigger,omitempty"`
}

// EditResult reports ids assigned by add operations, in op order.
type EditResult struct {
	Op string `json:"op"`
	ID int    `json:"id,omitempty"`
}

func (op EditOp) armorStand() (uuid.UUID, error) {
	id, err := uuid.Parse(op.ArmorStand)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: invalid armor stand id %q: %w", op.Op, op.ArmorStand, quest.ErrValidation)
	}
	return id, nil
}

func missing(op, field string) error {
	return fmt.Errorf("%s: %s is required: %w", op, field, quest.ErrValidation)
}

// applyEdits runs ops against q in order. The first failing op aborts the
// whole edit.
func applyEdits(q *quest.Quest, ops []EditOp) ([]EditResult, error) {
	results := make([]EditResult, 0, len(ops))
	for i, op := range ops {
		id, err := applyEdit(q, op)
		if err != nil {
			return nil, fmt.Errorf("op #%d: %w", i+1, err)
		}
		results = append(results, EditResult{Op: op.Op, ID: id})
	}
	return results, nil
}

func applyEdit(q *quest.Quest, op EditOp) (int, error) {
	switch op.Op {
	case OpSetDisplayName:
		q.SetDisplayName(op.Text)
	case OpSetDescription:
		q.SetDescription(op.Text)
	case OpSetAcceptCooldown:
		return 0, q.SetAcceptCooldown(op.Number)
	case OpSetMaxAccepts:
		q.SetMaxAccepts(op.Number)
	case OpSetTakeEnabled:
		q.SetTakeEnabled(op.Flag)
	case OpSetTakeItem:
		if op.Item == nil {
			return 0, missing(op.Op, "item")
		}
		return 0, q.SetTakeItem(*op.Item)
	case OpBindNPC:
		return 0, q.BindNPC(op.NPC, op.Shown)
	case OpUnbindNPC:
		return 0, q.UnbindNPC(op.NPC)
	case OpClearNPCs:
		q.ClearNPCs()
	case OpBindArmorStand, OpUnbindArmorStand:
		stand, err := op.armorStand()
		if err != nil {
			return 0, err
		}
		if op.Op == OpBindArmorStand {
			return 0, q.BindArmorStand(stand, op.Shown)
		}
		return 0, q.UnbindArmorStand(stand)
	case OpClearArmorStands:
		q.ClearArmorStands()
	case OpAddObjective:
		if op.Objective == nil {
			return 0, missing(op.Op, "objective")
		}
		o, err := op.Objective.Decode()
		if err != nil {
			return 0, err
		}
		return q.AddObjective(o)
	case OpRemoveObjective:
		return 0, q.RemoveObjective(op.ID)
	case OpSetObjectiveDisplayName:
		return 0, q.SetObjectiveDisplayName(op.ID, op.Text)
	case OpSetObjectiveDescription:
		return 0, q.SetObjectiveDescription(op.ID, op.Text)
	case OpSetObjectiveNPC:
		return 0, q.SetObjectiveCompletionNPC(op.ID, op.NPC)
	case OpSetObjectiveArmorStand:
		stand := uuid.Nil
		if op.ArmorStand != "" {
			var err error
			if stand, err = op.armorStand(); err != nil {
				return 0, err
			}
		}
		return 0, q.SetObjectiveCompletionArmorStand(op.ID, stand)
	case OpAddDependency:
		return 0, q.AddObjectiveDependency(op.ID, op.Dependency)
	case OpRemoveDependency:
		return 0, q.RemoveObjectiveDependency(op.ID, op.Dependency)
	case OpAddObjectiveCondition:
		if op.Condition == nil {
			return 0, missing(op.Op, "condition")
		}
		c, err := op.Condition.Decode()
		if err != nil {
			return 0, err
		}
		return 0, q.AddObjectiveCondition(op.ID, c)
	case OpClearObjectiveCondition:
		return 0, q.ClearObjectiveConditions(op.ID)
	case OpAddRequirement:
		if op.Condition == nil {
			return 0, missing(op.Op, "condition")
		}
		c, err := op.Condition.Decode()
		if err != nil {
			return 0, err
		}
		return q.AddRequirement(c)
	case OpRemoveRequirement:
		return 0, q.RemoveRequirement(op.ID)
	case OpAddReward:
		if op.Action == nil {
			return 0, missing(op.Op, "action")
		}
		a, err := op.Action.Decode()
		if err != nil {
			return 0, err
		}
		return q.AddReward(a)
	case OpRemoveReward:
		return 0, q.RemoveReward(op.ID)
	case OpAddTrigger:
		if op.Trigger == nil {
			return 0, missing(op.Op, "trigger")
		}
		t, err := op.Trigger.Decode()
		if err != nil {
			return 0, err
		}
		return q.AddTrigger(t)
	case OpRemoveTrigger:
		return 0, q.RemoveTrigger(op.ID)
	default:
		return 0, fmt.Errorf("unknown op %q: %w", op.Op, quest.ErrValidation)
	}
	return 0, nil
}
