package quest

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// CreateQuest adds an empty quest.
func (svc *Service) CreateQuest(ctx context.Context, name string) (*Quest, error) {
	svc.editMu.Lock()
	defer svc.editMu.Unlock()
	if _, ok := svc.registry.Get(name); ok {
		return nil, conflictf("quest %s already exists", name)
	}
	q, err := NewQuest(name)
	if err != nil {
		return nil, err
	}
	if err := svc.store.SaveQuest(ctx, EncodeQuest(q)); err != nil {
		return nil, fmt.Errorf("save quest: %w", err)
	}
	svc.registry.Put(q)
	svc.logger.Info("quest created", zap.String("quest", name))
	return q, nil
}

// PutQuest creates or replaces a whole definition.
func (svc *Service) PutQuest(ctx context.Context, doc QuestDocument) (*Quest, error) {
	q, err := doc.Decode()
	if err != nil {
		return nil, err
	}
	svc.editMu.Lock()
	defer svc.editMu.Unlock()
	if err := svc.commit(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// EditQuest applies fn to a copy of quest name and commits the copy when fn
// succeeds and the result validates. Nothing changes otherwise.
func (svc *Service) EditQuest(ctx context.Context, name string, fn func(q *Quest) error) (*Quest, error) {
	svc.editMu.Lock()
	defer svc.editMu.Unlock()
	cur, ok := svc.registry.Get(name)
	if !ok {
		return nil, notFoundf("quest %s does not exist", name)
	}
	q := cur.Clone()
	if err := fn(q); err != nil {
		return nil, err
	}
	if !sameQuest(q.Name, cur.Name) {
		return nil, validationf("use RenameQuest to change a quest's name")
	}
	if err := svc.commit(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// commit validates q, persists it and swaps it into the registry.
func (svc *Service) commit(ctx context.Context, q *Quest) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if err := svc.checkRefs(q); err != nil {
		return err
	}
	if err := svc.store.SaveQuest(ctx, EncodeQuest(q)); err != nil {
		return fmt.Errorf("save quest: %w", err)
	}
	svc.registry.Put(q)
	svc.reconcile(ctx, q)
	return nil
}

// checkRefs rejects references to quests that do not exist.
func (svc *Service) checkRefs(q *Quest) error {
	var refs []string
	for _, c := range q.Requirements {
		refs = append(refs, conditionQuestRef(c))
	}
	for _, o := range q.Objectives {
		for _, c := range o.Conditions {
			refs = append(refs, conditionQuestRef(c))
		}
	}
	for _, a := range q.Rewards {
		refs = append(refs, actionQuestRef(a))
	}
	for _, t := range q.Triggers {
		refs = append(refs, actionQuestRef(t.Action))
	}
	for _, ref := range refs {
		if ref == "" || sameQuest(ref, q.Name) {
			continue
		}
		if _, ok := svc.registry.Get(ref); !ok {
			return notFoundf("referenced quest %s does not exist", ref)
		}
	}
	return nil
}

// reconcile aligns loaded players' active instances of q with its current
// definition: entries for removed objectives and triggers are dropped and
// new triggers start counting.
func (svc *Service) reconcile(ctx context.Context, q *Quest) {
	svc.players.Each(func(qp *QuestPlayer) {
		if aq, ok := qp.activeByName(q.Name); ok && reconcileActive(q, aq) {
			svc.writer.Enqueue(EncodePlayer(qp))
		}
	})
}

func reconcileActive(q *Quest, aq *ActiveQuest) bool {
	changed := false
	n := len(aq.Objectives)
	aq.Objectives = slices.DeleteFunc(aq.Objectives, func(ao *ActiveObjective) bool {
		return q.Objective(ao.ObjectiveID) == nil
	})
	changed = changed || n != len(aq.Objectives)

	n = len(aq.Triggers)
	aq.Triggers = slices.DeleteFunc(aq.Triggers, func(at *ActiveTrigger) bool {
		return q.Trigger(at.TriggerID) == nil
	})
	changed = changed || n != len(aq.Triggers)

	for _, t := range q.Triggers {
		if !slices.ContainsFunc(aq.Triggers, func(at *ActiveTrigger) bool { return at.TriggerID == t.ID }) {
			aq.Triggers = append(aq.Triggers, &ActiveTrigger{TriggerID: t.ID})
			changed = true
		}
	}
	return changed
}

// RenameQuest renames a quest everywhere it is stored.
func (svc *Service) RenameQuest(ctx context.Context, from, to string) (*Quest, error) {
	if err := ValidateName(to); err != nil {
		return nil, err
	}
	svc.editMu.Lock()
	defer svc.editMu.Unlock()
	cur, ok := svc.registry.Get(from)
	if !ok {
		return nil, notFoundf("quest %s does not exist", from)
	}
	if other, ok := svc.registry.Get(to); ok && other != cur {
		return nil, conflictf("quest %s already exists", to)
	}
	if err := svc.store.RenameQuest(ctx, cur.Name, to); err != nil {
		return nil, fmt.Errorf("rename quest: %w", err)
	}
	q := cur.Clone()
	q.Name = to
	svc.registry.Delete(cur.Name)
	svc.registry.Put(q)

	svc.players.Each(func(qp *QuestPlayer) {
		if qp.renameQuest(cur.Name, to) {
			svc.writer.Enqueue(EncodePlayer(qp))
		}
	})
	svc.logger.Info("quest renamed", zap.String("from", cur.Name), zap.String("to", to))
	return q, nil
}

// DeleteQuest removes a quest and every loaded active instance of it.
// Stored players drop their instances when next loaded.
func (svc *Service) DeleteQuest(ctx context.Context, name string) error {
	svc.editMu.Lock()
	defer svc.editMu.Unlock()
	q, ok := svc.registry.Get(name)
	if !ok {
		return notFoundf("quest %s does not exist", name)
	}
	if err := svc.store.DeleteQuest(ctx, q.Name); err != nil {
		return fmt.Errorf("delete quest: %w", err)
	}
	svc.registry.Delete(q.Name)
	svc.players.Each(func(qp *QuestPlayer) {
		if qp.dropQuest(q.Name) {
			svc.writer.Enqueue(EncodePlayer(qp))
		}
	})
	svc.logger.Info("quest deleted", zap.String("quest", q.Name))
	return nil
}
