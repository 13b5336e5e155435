package quest

import (
	"slices"
	"time"
)

// ActiveObjective is the per-player progress of one objective.
type ActiveObjective struct {
	ObjectiveID int
	Progress    int64
	Unlocked    bool
	// CompletionReached is set once the completion NPC or armor stand was
	// interacted with while progress was full.
	CompletionReached bool
}

// AddProgress adds amount, saturating at the objective's target. src marks a
// completion interaction when it names the objective's completion target.
func (ao *ActiveObjective) AddProgress(obj *Objective, amount int64, src Source) {
	if amount > 0 {
		ao.Progress = min(ao.Progress+amount, obj.ProgressNeeded)
	}
	if ao.Progress >= obj.ProgressNeeded && obj.HasCompletionTarget() && obj.completedBy(src) {
		ao.CompletionReached = true
	}
}

// RemoveProgress subtracts amount, flooring at zero unless allowNegative.
func (ao *ActiveObjective) RemoveProgress(amount int64, allowNegative bool) {
	ao.Progress -= amount
	if !allowNegative && ao.Progress < 0 {
		ao.Progress = 0
	}
}

// Completed reports whether progress is full and any completion interaction
// has happened.
func (ao *ActiveObjective) Completed(obj *Objective) bool {
	if ao.Progress < obj.ProgressNeeded {
		return false
	}
	return !obj.HasCompletionTarget() || ao.CompletionReached
}

// ActiveTrigger counts matching events for one trigger.
type ActiveTrigger struct {
	TriggerID int
	Count     int64
}

// AddAndCheck counts one event and reports whether the trigger fires.
func (at *ActiveTrigger) AddAndCheck(t *Trigger) bool {
	at.Count++
	if at.Count%t.AmountNeeded != 0 {
		return false
	}
	return !t.Spec.OneShot() || at.Count == t.AmountNeeded
}

// ActiveQuest is a player's running instance of a quest. It refers to its
// definition by name; objectives and triggers by id.
type ActiveQuest struct {
	QuestName  string
	Objectives []*ActiveObjective
	Triggers   []*ActiveTrigger
	AcceptedAt time.Time
}

func newActiveQuest(q *Quest, now time.Time) *ActiveQuest {
	aq := &ActiveQuest{
		QuestName:  q.Name,
		Objectives: make([]*ActiveObjective, 0, len(q.Objectives)),
		Triggers:   make([]*ActiveTrigger, 0, len(q.Triggers)),
		AcceptedAt: now,
	}
	for _, o := range q.Objectives {
		aq.Objectives = append(aq.Objectives, &ActiveObjective{ObjectiveID: o.ID, Unlocked: true})
	}
	for _, t := range q.Triggers {
		aq.Triggers = append(aq.Triggers, &ActiveTrigger{TriggerID: t.ID})
	}
	return aq
}

// Objective returns the active objective with id, or nil once it completed.
func (aq *ActiveQuest) Objective(id int) *ActiveObjective {
	for _, ao := range aq.Objectives {
		if ao.ObjectiveID == id {
			return ao
		}
	}
	return nil
}

// Done reports whether every objective has completed.
func (aq *ActiveQuest) Done() bool { return len(aq.Objectives) == 0 }

func (aq *ActiveQuest) removeObjective(id int) {
	aq.Objectives = slices.DeleteFunc(aq.Objectives, func(ao *ActiveObjective) bool {
		return ao.ObjectiveID == id
	})
}

func (aq *ActiveQuest) clone() *ActiveQuest {
	c := &ActiveQuest{QuestName: aq.QuestName, AcceptedAt: aq.AcceptedAt}
	c.Objectives = make([]*ActiveObjective, len(aq.Objectives))
	for i, ao := range aq.Objectives {
		v := *ao
		c.Objectives[i] = &v
	}
	c.Triggers = make([]*ActiveTrigger, len(aq.Triggers))
	for i, at := range aq.Triggers {
		v := *at
		c.Triggers[i] = &v
	}
	return c
}
