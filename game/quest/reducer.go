package quest

import (
	"context"
	"fmt"
	"slices"

	"github.com/kasuganosora/questforge/game/world"
	"github.com/kasuganosora/questforge/plugin/hook"
	"go.uber.org/zap"
)

// maxEffectRounds bounds how often deferred effects may queue further
// effects within one pass.
const maxEffectRounds = 8

// pass is one exclusive run over a player's state: an event dispatch or a
// lifecycle operation, followed by cascade, completion sweep, deferred
// effects and persistence. The player's lock is held for its whole life.
type pass struct {
	svc     *Service
	ctx     context.Context
	qp      *QuestPlayer
	player  Player // nil when offline
	effects []effect
	dirty   bool
	logger  *zap.Logger
}

func (svc *Service) newPass(ctx context.Context, qp *QuestPlayer) *pass {
	return &pass{
		svc:    svc,
		ctx:    ctx,
		qp:     qp,
		player: svc.host.online(qp.UUID),
		logger: svc.logger.With(zap.String("player", qp.UUID.String())),
	}
}

// guard runs fn, turning a panic into a log line.
func (p *pass) guard(where string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("quest entry panicked, skipped",
				zap.String("where", where), zap.Any("panic", r))
		}
	}()
	fn()
}

func (p *pass) world() string {
	if p.player != nil {
		return p.player.Location().World
	}
	return ""
}

func (p *pass) base() Base { return Base{Player: p.qp.UUID, World: p.world()} }

// currentWorld is the acting player's world for ev: the world the event
// carries, or the player's location for broadcasts.
func (p *pass) currentWorld(ev Event) string {
	if isBroadcast(ev) {
		return p.world()
	}
	if w := ev.base().World; w != "" {
		return w
	}
	return p.world()
}

// dispatch feeds ev to every active quest in acceptance order.
func (p *pass) dispatch(ev Event) {
	only := ""
	if t, ok := ev.(ObjectiveTriggered); ok {
		only = t.Quest
	}
	for _, aq := range slices.Clone(p.qp.Active) {
		if only != "" && !sameQuest(aq.QuestName, only) {
			continue
		}
		q, ok := p.svc.registry.Get(aq.QuestName)
		if !ok {
			p.logger.Warn("active quest has no definition", zap.String("quest", aq.QuestName))
			continue
		}
		p.applyTriggers(q, aq, ev)
		p.applyObjectives(q, aq, ev)
		p.cascade(q, aq)
	}
}

// applyTriggers counts ev on every matching trigger of aq, in declaration
// order, and fires those that reach their threshold.
func (p *pass) applyTriggers(q *Quest, aq *ActiveQuest, ev Event) {
	for _, at := range aq.Triggers {
		t := q.Trigger(at.TriggerID)
		if t == nil {
			p.logger.Warn("active trigger has no definition",
				zap.String("quest", q.Name), zap.Int("trigger", at.TriggerID))
			continue
		}
		p.guard(fmt.Sprintf("%s trigger %d", q.Name, t.ID), func() {
			if !p.triggerApplies(aq, t, ev) {
				return
			}
			p.dirty = true
			if at.AddAndCheck(t) {
				p.fire(q, t)
			}
		})
	}
}

func (p *pass) triggerApplies(aq *ActiveQuest, t *Trigger, ev Event) bool {
	if !t.Spec.Matches(ev) {
		return false
	}
	if s, ok := t.Spec.(scopedTrigger); ok {
		if !s.InScope(ev, t.ApplyOn) {
			return false
		}
	} else if t.ApplyOn > 0 {
		ao := aq.Objective(t.ApplyOn)
		if ao == nil || !ao.Unlocked {
			return false
		}
	}
	return world.MatchesFilter(t.worldFilter(), t.Spec.FilterWorld(ev, p.currentWorld(ev)))
}

func (p *pass) fire(q *Quest, t *Trigger) {
	if err := p.execute(q, t.Action); err != nil {
		p.logger.Warn("trigger action failed",
			zap.String("quest", q.Name), zap.Int("trigger", t.ID), zap.Error(err))
	}
	data := HookData{Player: p.qp.UUID, Quest: q.Name, TriggerID: t.ID, ObjectiveID: t.ApplyOn}
	_ = p.svc.trigger(p.ctx, hook.OnTriggerFire, data)
	p.svc.record(p.ctx, p.qp.UUID, q.Name, "trigger_fired", fmt.Sprintf("%d:%s", t.ID, t.Spec.Kind()))
	p.svc.notify(p.ctx, p.qp.UUID, Notification{Kind: NotifyTriggerFired, Quest: q.Name, TriggerID: t.ID})
}

// execute runs a with an ActionContext bound to this pass. Effects it queues
// run after the sweep.
func (p *pass) execute(q *Quest, a Action) error {
	ac := &ActionContext{
		Ctx:      p.ctx,
		Host:     p.svc.host,
		PlayerID: p.qp.UUID,
		Player:   p.player,
		Quest:    q,
		Logger:   p.logger,
	}
	err := a.Execute(ac)
	p.effects = append(p.effects, ac.effects...)
	return err
}

// applyObjectives feeds ev to every unlocked objective of aq in declaration
// order.
func (p *pass) applyObjectives(q *Quest, aq *ActiveQuest, ev Event) {
	src, interaction := interactionSource(ev)
	for _, ao := range slices.Clone(aq.Objectives) {
		if !ao.Unlocked {
			continue
		}
		obj := q.Objective(ao.ObjectiveID)
		if obj == nil {
			p.logger.Warn("active objective has no definition",
				zap.String("quest", q.Name), zap.Int("objective", ao.ObjectiveID))
			continue
		}
		p.guard(fmt.Sprintf("%s objective %d", q.Name, obj.ID), func() {
			if len(obj.Conditions) > 0 {
				cc := p.conditionContext()
				if err := checkAll(cc, obj.Conditions); err != nil {
					return
				}
			}
			d := obj.Spec.Progress(&ProgressContext{
				Ctx:       p.ctx,
				Host:      p.svc.host,
				Player:    p.player,
				Remaining: obj.ProgressNeeded - ao.Progress,
				Logger:    p.logger,
			}, ev)
			if d.Remove > 0 {
				ao.RemoveProgress(d.Remove, false)
				p.dirty = true
			}
			if d.Add > 0 {
				ao.AddProgress(obj, d.Add, d.Source)
				p.dirty = true
			}
			if interaction && obj.HasCompletionTarget() && !ao.CompletionReached {
				ao.AddProgress(obj, 0, src)
				if ao.CompletionReached {
					p.dirty = true
				}
			}
		})
	}
}

// interactionSource returns the entity a player interacted with, if ev is
// an interaction.
func interactionSource(ev Event) (Source, bool) {
	switch e := ev.(type) {
	case NPCInteracted:
		return Source{NPC: e.NPC}, true
	case ArmorStandInteracted:
		return Source{ArmorStand: e.ArmorStand}, true
	}
	return Source{}, false
}

// cascade removes completed objectives of aq, firing their Complete
// triggers first, then lets the gate re-evaluate locks.
func (p *pass) cascade(q *Quest, aq *ActiveQuest) {
	for _, ao := range slices.Clone(aq.Objectives) {
		obj := q.Objective(ao.ObjectiveID)
		if obj == nil || !ao.Completed(obj) {
			continue
		}
		p.applyTriggers(q, aq, ObjectiveCompleted{Base: p.base(), ObjectiveID: obj.ID})
		aq.removeObjective(obj.ID)
		p.dirty = true

		p.svc.host.tell(p.qp.UUID, fmt.Sprintf("You have completed objective %s of quest %s", obj.Title(), q.Title()))
		_ = p.svc.trigger(p.ctx, hook.OnObjectiveComplete, HookData{Player: p.qp.UUID, Quest: q.Name, ObjectiveID: obj.ID})
		p.svc.record(p.ctx, p.qp.UUID, q.Name, "objective_completed", fmt.Sprint(obj.ID))
		p.svc.notify(p.ctx, p.qp.UUID, Notification{Kind: NotifyObjectiveCompleted, Quest: q.Name, ObjectiveID: obj.ID})
	}
	p.applyGate(q, aq)
}

func (p *pass) applyGate(q *Quest, aq *ActiveQuest) {
	gate := p.svc.gate
	if gate == nil {
		return
	}
	for _, ao := range aq.Objectives {
		obj := q.Objective(ao.ObjectiveID)
		if obj == nil {
			continue
		}
		if u := gate.Unlocked(q, aq, obj); u != ao.Unlocked {
			ao.Unlocked = u
			p.dirty = true
		}
	}
}

// sweep completes every active quest with no objectives left.
func (p *pass) sweep() {
	for _, aq := range slices.Clone(p.qp.Active) {
		if !aq.Done() {
			continue
		}
		p.qp.removeActive(aq)
		p.qp.Completed = append(p.qp.Completed, CompletedQuest{
			Quest:       aq.QuestName,
			AcceptedAt:  aq.AcceptedAt,
			CompletedAt: p.svc.now(),
		})
		p.dirty = true

		q, ok := p.svc.registry.Get(aq.QuestName)
		if !ok {
			continue
		}
		p.applyTriggers(q, aq, QuestCompleted{Base: p.base()})
		for i, r := range q.Rewards {
			p.guard(fmt.Sprintf("%s reward %d", q.Name, i+1), func() {
				if err := p.execute(q, r); err != nil {
					p.logger.Warn("quest reward failed",
						zap.String("quest", q.Name), zap.Int("reward", i+1), zap.Error(err))
				}
			})
		}
		p.svc.host.tell(p.qp.UUID, "Quest completed: "+q.Title())
		_ = p.svc.trigger(p.ctx, hook.OnQuestComplete, HookData{Player: p.qp.UUID, Quest: q.Name})
		p.svc.record(p.ctx, p.qp.UUID, q.Name, "completed", "")
		p.svc.notify(p.ctx, p.qp.UUID, Notification{Kind: NotifyCompleted, Quest: q.Name})
		p.logger.Info("quest completed", zap.String("quest", q.Name))
	}
}

// settle finishes the pass: sweep, deferred effects in bounded rounds, and a
// snapshot to the writer when anything changed.
func (p *pass) settle() {
	p.sweep()
	for round := 0; len(p.effects) > 0 && round < maxEffectRounds; round++ {
		effects := p.effects
		p.effects = nil
		for _, e := range effects {
			p.guard("deferred effect", func() {
				if err := e(p); err != nil {
					p.logger.Info("deferred quest action not applied", zap.Error(err))
				}
			})
		}
		p.sweep()
	}
	if n := len(p.effects); n > 0 {
		p.logger.Warn("dropping deferred quest actions", zap.Int("count", n))
		p.effects = nil
	}
	if p.dirty {
		p.svc.writer.Enqueue(EncodePlayer(p.qp))
		p.dirty = false
	}
}

func (p *pass) conditionContext() *ConditionContext {
	return &ConditionContext{
		Ctx:      p.ctx,
		Host:     p.svc.host,
		Player:   p.player,
		QP:       p.qp,
		Registry: p.svc.registry,
	}
}
