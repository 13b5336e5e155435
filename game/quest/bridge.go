package quest

import (
	"context"

	"github.com/google/uuid"
)

// Operations for integrations (scripting plugins, the admin API) that act
// on a player directly instead of publishing a game event.

// TriggerObjective advances TriggerCommand objectives called name. quest
// restricts it to one active quest; empty means every active quest.
func (svc *Service) TriggerObjective(ctx context.Context, id uuid.UUID, quest, name string) error {
	return svc.Apply(ctx, id, ObjectiveTriggered{Base: Base{Player: id}, Name: name, Quest: quest})
}

// Apply reduces ev for the player, loading it first if needed.
func (svc *Service) Apply(ctx context.Context, id uuid.UUID, ev Event) error {
	return svc.update(ctx, id, func(p *pass) error {
		p.dispatch(ev)
		return nil
	})
}

// RunAction executes a standalone action for the player. Actions that need
// an owning quest are rejected.
func (svc *Service) RunAction(ctx context.Context, id uuid.UUID, a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if _, ok := a.(CompleteObjective); ok {
		return validationf("CompleteObjective needs an owning quest")
	}
	return svc.update(ctx, id, func(p *pass) error {
		return p.execute(nil, a)
	})
}

// StartQuest is Accept with the integration flags spelled out.
func (svc *Service) StartQuest(ctx context.Context, id uuid.UUID, name string, force, silent, noTriggers bool) error {
	return svc.Accept(ctx, id, name, AcceptOptions{Force: force, Silent: silent, NoTriggers: noTriggers})
}
