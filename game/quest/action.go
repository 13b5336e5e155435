package quest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"go.uber.org/zap"
)

// ActionKind is the discriminant of an Action.
type ActionKind string

const (
	ActionSendMessage       ActionKind = "SendMessage"
	ActionGiveItem          ActionKind = "GiveItem"
	ActionConsoleCommand    ActionKind = "ConsoleCommand"
	ActionGiveQuest         ActionKind = "GiveQuest"
	ActionFailQuest         ActionKind = "FailQuest"
	ActionCompleteObjective ActionKind = "CompleteObjective"
)

var (
	errPlayerOffline = errors.New("player is offline")
	errNoCommands    = errors.New("no command runner configured")
)

// Action is a reward or trigger effect.
type Action interface {
	Kind() ActionKind
	Validate() error
	Execute(ac *ActionContext) error
}

// effect is a change to the player's quest list queued by an action. It runs
// after the current reducer pass, under the same player lock.
type effect func(p *pass) error

// ActionContext is what an Action sees while executing.
type ActionContext struct {
	Ctx      context.Context
	Host     *Host
	PlayerID uuid.UUID
	Player   Player // nil when offline
	Quest    *Quest // owning quest, nil for standalone actions
	Logger   *zap.Logger

	effects []effect
}

func (ac *ActionContext) queue(e effect) { ac.effects = append(ac.effects, e) }

func (ac *ActionContext) expand(s string) string {
	pairs := []string{"{PLAYERUUID}", ac.PlayerID.String()}
	if ac.Player != nil {
		loc := ac.Player.Location()
		pairs = append(pairs,
			"{PLAYERX}", fmt.Sprint(loc.X),
			"{PLAYERY}", fmt.Sprint(loc.Y),
			"{PLAYERZ}", fmt.Sprint(loc.Z),
			"{WORLD}", loc.World,
			"{PLAYER}", ac.Player.Name(),
		)
	}
	if ac.Quest != nil {
		pairs = append(pairs, "{QUEST}", ac.Quest.Name)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// SendMessage sends Message to the player, with placeholders expanded.
type SendMessage struct {
	Message string
}

func (SendMessage) Kind() ActionKind { return ActionSendMessage }

func (a SendMessage) Validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return validationf("SendMessage: message is required")
	}
	return nil
}

func (a SendMessage) Execute(ac *ActionContext) error {
	if ac.Player == nil {
		return errPlayerOffline
	}
	ac.Host.tell(ac.PlayerID, ac.expand(a.Message))
	return nil
}

// GiveItem puts Item into the player's inventory.
type GiveItem struct {
	Item item.Stack
}

func (GiveItem) Kind() ActionKind { return ActionGiveItem }

func (a GiveItem) Validate() error {
	if err := validateItem("GiveItem", a.Item); err != nil {
		return err
	}
	if a.Item.Amount < 1 {
		return validationf("GiveItem: amount must be at least 1")
	}
	return nil
}

func (a GiveItem) Execute(ac *ActionContext) error {
	if ac.Player == nil {
		return errPlayerOffline
	}
	left, err := ac.Player.Inventory().Add(a.Item)
	if err != nil {
		ac.Host.tell(ac.PlayerID, fmt.Sprintf("Your inventory is full, %d %s could not be given", left, a.Item.Label()))
		return fmt.Errorf("give item: %w", err)
	}
	return nil
}

// ConsoleCommand runs Command on the host console.
type ConsoleCommand struct {
	Command string
}

func (ConsoleCommand) Kind() ActionKind { return ActionConsoleCommand }

func (a ConsoleCommand) Validate() error {
	if strings.TrimSpace(a.Command) == "" {
		return validationf("ConsoleCommand: command is required")
	}
	return nil
}

func (a ConsoleCommand) Execute(ac *ActionContext) error {
	if ac.Host == nil || ac.Host.Commands == nil {
		return errNoCommands
	}
	return ac.Host.Commands.RunCommand(ac.Ctx, ac.expand(a.Command))
}

// GiveQuest force-accepts Quest for the player.
type GiveQuest struct {
	Quest string
}

func (GiveQuest) Kind() ActionKind { return ActionGiveQuest }

func (a GiveQuest) Validate() error {
	if strings.TrimSpace(a.Quest) == "" {
		return validationf("GiveQuest: quest is required")
	}
	return nil
}

func (a GiveQuest) Execute(ac *ActionContext) error {
	ac.queue(func(p *pass) error {
		_, err := p.accept(a.Quest, AcceptOptions{Force: true})
		return err
	})
	return nil
}

// FailQuest fails the player's active instance of Quest.
type FailQuest struct {
	Quest string
}

func (FailQuest) Kind() ActionKind { return ActionFailQuest }

func (a FailQuest) Validate() error {
	if strings.TrimSpace(a.Quest) == "" {
		return validationf("FailQuest: quest is required")
	}
	return nil
}

func (a FailQuest) Execute(ac *ActionContext) error {
	ac.queue(func(p *pass) error {
		return p.fail(a.Quest)
	})
	return nil
}

// CompleteObjective completes an objective of the owning quest.
type CompleteObjective struct {
	ObjectiveID int
}

func (CompleteObjective) Kind() ActionKind { return ActionCompleteObjective }

func (a CompleteObjective) Validate() error {
	if a.ObjectiveID < 1 {
		return validationf("CompleteObjective: objective id is required")
	}
	return nil
}

func (a CompleteObjective) Execute(ac *ActionContext) error {
	if ac.Quest == nil {
		return validationf("CompleteObjective needs an owning quest")
	}
	name := ac.Quest.Name
	ac.queue(func(p *pass) error {
		return p.completeObjective(name, a.ObjectiveID)
	})
	return nil
}

// actionQuestRef returns the quest an action names, if any.
func actionQuestRef(a Action) string {
	switch v := a.(type) {
	case GiveQuest:
		return v.Quest
	case FailQuest:
		return v.Quest
	}
	return ""
}
