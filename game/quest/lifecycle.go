package quest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/plugin/hook"
	"go.uber.org/zap"
)

// AcceptOptions tune Accept.
type AcceptOptions struct {
	// Force skips the takeable flag, requirements and cooldown. The
	// max-accepts limit still applies.
	Force bool
	// Silent suppresses the acceptance message.
	Silent bool
	// NoTriggers suppresses Begin triggers.
	NoTriggers bool
}

// Accept starts quest name for the player.
func (svc *Service) Accept(ctx context.Context, id uuid.UUID, name string, opts AcceptOptions) error {
	return svc.update(ctx, id, func(p *pass) error {
		_, err := p.accept(name, opts)
		return err
	})
}

// Fail fails the player's active instance of quest name, firing its Fail
// triggers.
func (svc *Service) Fail(ctx context.Context, id uuid.UUID, name string) error {
	return svc.update(ctx, id, func(p *pass) error { return p.fail(name) })
}

// Abort removes the player's active instance of quest name without firing
// anything.
func (svc *Service) Abort(ctx context.Context, id uuid.UUID, name string) error {
	return svc.update(ctx, id, func(p *pass) error { return p.abort(name) })
}

// CompleteObjective marks an objective of an active quest completed.
func (svc *Service) CompleteObjective(ctx context.Context, id uuid.UUID, name string, objectiveID int) error {
	return svc.update(ctx, id, func(p *pass) error { return p.completeObjective(name, objectiveID) })
}

// CanAccept runs every acceptance check without side effects.
func (svc *Service) CanAccept(ctx context.Context, id uuid.UUID, name string) error {
	return svc.players.Update(ctx, id, func(qp *QuestPlayer) error {
		q, ok := svc.registry.Get(name)
		if !ok {
			return notFoundf("quest %s does not exist", name)
		}
		if _, active := qp.activeByName(q.Name); active {
			return conflictf("quest %s is already active", q.Name)
		}
		p := svc.newPass(ctx, qp)
		return p.acceptable(q, false)
	})
}

// acceptable applies the acceptance policy to q.
func (p *pass) acceptable(q *Quest, force bool) error {
	if q.maxAcceptsReached(p.qp.CompletionCount(q.Name)) {
		return conflictf("you have reached the maximum amount of accepts for quest %s", q.Name)
	}
	if force {
		return nil
	}
	if !q.TakeEnabled {
		return conflictf("quest %s cannot be taken", q.Name)
	}
	if q.AcceptCooldown >= 0 {
		if last, ok := p.qp.LastAccepted[foldName(q.Name)]; ok {
			ready := last.Add(time.Duration(q.AcceptCooldown) * time.Minute)
			if wait := ready.Sub(p.svc.now()); wait > 0 {
				return conflictf("you have to wait %s before accepting quest %s again", wait.Round(time.Second), q.Name)
			}
		}
	}
	return checkAll(p.conditionContext(), q.Requirements)
}

func (p *pass) accept(name string, opts AcceptOptions) (*ActiveQuest, error) {
	q, ok := p.svc.registry.Get(name)
	if !ok {
		return nil, notFoundf("quest %s does not exist", name)
	}
	if _, active := p.qp.activeByName(q.Name); active {
		return nil, conflictf("quest %s is already active", q.Name)
	}
	if len(q.Objectives) == 0 {
		return nil, conflictf("quest %s has no objectives", q.Name)
	}
	if err := p.acceptable(q, opts.Force); err != nil {
		return nil, err
	}
	data := HookData{Player: p.qp.UUID, Quest: q.Name}
	if err := p.svc.trigger(p.ctx, hook.BeforeQuestAccept, data); errors.Is(err, hook.ErrInterrupt) {
		return nil, preconditionf("quest %s cannot be accepted right now", q.Name)
	}

	now := p.svc.now()
	aq := newActiveQuest(q, now)
	p.qp.Active = append(p.qp.Active, aq)
	p.qp.LastAccepted[foldName(q.Name)] = now
	p.dirty = true
	p.applyGate(q, aq)

	if !opts.Silent {
		p.svc.host.tell(p.qp.UUID, "Quest accepted: "+q.Title())
	}
	_ = p.svc.trigger(p.ctx, hook.AfterQuestAccept, data)
	p.svc.record(p.ctx, p.qp.UUID, q.Name, "accepted", acceptDetail(opts))
	p.svc.notify(p.ctx, p.qp.UUID, Notification{Kind: NotifyAccepted, Quest: q.Name})
	p.logger.Info("quest accepted", zap.String("quest", q.Name), zap.Bool("force", opts.Force))

	if !opts.NoTriggers {
		p.applyTriggers(q, aq, QuestBegan{Base: p.base()})
	}
	return aq, nil
}

func acceptDetail(opts AcceptOptions) string {
	if opts.Force {
		return "forced"
	}
	return ""
}

func (p *pass) fail(name string) error {
	aq, ok := p.qp.activeByName(name)
	if !ok {
		return notFoundf("quest %s is not active", name)
	}
	if q, ok := p.svc.registry.Get(aq.QuestName); ok {
		p.applyTriggers(q, aq, QuestFailed{Base: p.base()})
		p.svc.host.tell(p.qp.UUID, "Quest failed: "+q.Title())
	}
	p.qp.removeActive(aq)
	p.dirty = true
	_ = p.svc.trigger(p.ctx, hook.OnQuestFail, HookData{Player: p.qp.UUID, Quest: aq.QuestName})
	p.svc.record(p.ctx, p.qp.UUID, aq.QuestName, "failed", "")
	p.svc.notify(p.ctx, p.qp.UUID, Notification{Kind: NotifyFailed, Quest: aq.QuestName})
	p.logger.Info("quest failed", zap.String("quest", aq.QuestName))
	return nil
}

func (p *pass) abort(name string) error {
	aq, ok := p.qp.activeByName(name)
	if !ok {
		return notFoundf("quest %s is not active", name)
	}
	p.qp.removeActive(aq)
	p.dirty = true
	_ = p.svc.trigger(p.ctx, hook.OnQuestAbort, HookData{Player: p.qp.UUID, Quest: aq.QuestName})
	p.svc.record(p.ctx, p.qp.UUID, aq.QuestName, "aborted", "")
	p.svc.notify(p.ctx, p.qp.UUID, Notification{Kind: NotifyAborted, Quest: aq.QuestName})
	return nil
}

func (p *pass) completeObjective(name string, id int) error {
	aq, ok := p.qp.activeByName(name)
	if !ok {
		return notFoundf("quest %s is not active", name)
	}
	q, ok := p.svc.registry.Get(aq.QuestName)
	if !ok {
		return notFoundf("quest %s does not exist", name)
	}
	obj := q.Objective(id)
	if obj == nil {
		return notFoundf("quest %s has no objective %d", q.Name, id)
	}
	ao := aq.Objective(id)
	if ao == nil {
		return conflictf("objective %d of quest %s is already completed", id, q.Name)
	}
	ao.Progress = obj.ProgressNeeded
	ao.CompletionReached = true
	p.dirty = true
	p.cascade(q, aq)
	return nil
}

// ---- queries ----

// ObjectiveStatus is a read-only view of an active objective.
type ObjectiveStatus struct {
	ID          int           `json:"id"`
	Kind        ObjectiveKind `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Progress    int64         `json:"progress"`
	Needed      int64         `json:"needed"`
	Unlocked    bool          `json:"unlocked"`
	// AwaitingTurnIn is set when progress is full but the completion NPC or
	// armor stand has not been visited.
	AwaitingTurnIn bool `json:"awaiting_turn_in,omitempty"`
}

// ActiveQuestStatus is a read-only view of an active quest.
type ActiveQuestStatus struct {
	Quest       string            `json:"quest"`
	Title       string            `json:"title"`
	AcceptedAt  time.Time         `json:"accepted_at"`
	Objectives  []ObjectiveStatus `json:"objectives"`
	Completed   int               `json:"completed_objectives"`
	TotalNeeded int               `json:"total_objectives"`
}

// ActiveQuests returns the player's active quests in acceptance order.
func (svc *Service) ActiveQuests(ctx context.Context, id uuid.UUID) ([]ActiveQuestStatus, error) {
	var out []ActiveQuestStatus
	err := svc.players.Update(ctx, id, func(qp *QuestPlayer) error {
		out = make([]ActiveQuestStatus, 0, len(qp.Active))
		for _, aq := range qp.Active {
			q, ok := svc.registry.Get(aq.QuestName)
			if !ok {
				continue
			}
			st := ActiveQuestStatus{
				Quest:       q.Name,
				Title:       q.Title(),
				AcceptedAt:  aq.AcceptedAt,
				TotalNeeded: len(q.Objectives),
				Completed:   len(q.Objectives) - len(aq.Objectives),
			}
			for _, ao := range aq.Objectives {
				obj := q.Objective(ao.ObjectiveID)
				if obj == nil {
					continue
				}
				st.Objectives = append(st.Objectives, ObjectiveStatus{
					ID:             obj.ID,
					Kind:           obj.Spec.Kind(),
					Title:          obj.Title(),
					Description:    obj.Description,
					Progress:       ao.Progress,
					Needed:         obj.ProgressNeeded,
					Unlocked:       ao.Unlocked,
					AwaitingTurnIn: ao.Progress >= obj.ProgressNeeded && !ao.Completed(obj),
				})
			}
			out = append(out, st)
		}
		return nil
	})
	return out, err
}

// CompletedQuests returns the player's completion history, oldest first.
func (svc *Service) CompletedQuests(ctx context.Context, id uuid.UUID) ([]CompletedQuest, error) {
	var out []CompletedQuest
	err := svc.players.Update(ctx, id, func(qp *QuestPlayer) error {
		out = append([]CompletedQuest(nil), qp.Completed...)
		return nil
	})
	return out, err
}

// Available returns the quests the player could accept right now.
func (svc *Service) Available(ctx context.Context, id uuid.UUID) ([]*Quest, error) {
	var out []*Quest
	err := svc.players.Update(ctx, id, func(qp *QuestPlayer) error {
		p := svc.newPass(ctx, qp)
		for _, q := range svc.registry.All() {
			if _, active := qp.activeByName(q.Name); active || len(q.Objectives) == 0 {
				continue
			}
			if p.acceptable(q, false) == nil {
				out = append(out, q)
			}
		}
		return nil
	})
	return out, err
}

// QuestsForNPC returns the quests shown on npc.
func (svc *Service) QuestsForNPC(npc int) []*Quest {
	return svc.registry.ForNPC(npc, false)
}

// QuestsForArmorStand returns the quests shown on an armor stand.
func (svc *Service) QuestsForArmorStand(stand uuid.UUID) []*Quest {
	return svc.registry.ForArmorStand(stand, false)
}

// Quest returns the definition named name.
func (svc *Service) Quest(name string) (*Quest, error) {
	q, ok := svc.registry.Get(name)
	if !ok {
		return nil, notFoundf("quest %s does not exist", name)
	}
	return q, nil
}

// Quests returns every definition sorted by name.
func (svc *Service) Quests() []*Quest { return svc.registry.All() }
