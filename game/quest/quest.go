package quest

import (
	"maps"
	"slices"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
)

const maxNameLen = 64

// Quest is an authored quest definition.
type Quest struct {
	Name        string
	DisplayName string
	Description string

	Objectives   []*Objective
	Requirements []Condition
	Rewards      []Action
	Triggers     []*Trigger

	AcceptCooldown int // minutes, -1 disabled
	MaxAccepts     int // <= -1 unlimited, 0 never
	TakeEnabled    bool
	TakeItem       item.Stack

	NPCs        map[int]bool       // npc id -> shown
	ArmorStands map[uuid.UUID]bool // armor stand -> shown
}

// NewQuest returns an empty, takeable quest with no limits.
func NewQuest(name string) (*Quest, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Quest{
		Name:           name,
		AcceptCooldown: -1,
		MaxAccepts:     -1,
		TakeEnabled:    true,
		NPCs:           make(map[int]bool),
		ArmorStands:    make(map[uuid.UUID]bool),
	}, nil
}

// ValidateName checks a quest name: letters, digits, '_' and '-'.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxNameLen {
		return validationf("quest name must be 1-%d characters", maxNameLen)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return validationf("quest name %q contains invalid character %q", name, r)
		}
	}
	return nil
}

// Title returns the display name, falling back to the name.
func (q *Quest) Title() string {
	if q.DisplayName != "" {
		return q.DisplayName
	}
	return q.Name
}

// Objective returns the objective with id, or nil.
func (q *Quest) Objective(id int) *Objective {
	for _, o := range q.Objectives {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Trigger returns the trigger with id, or nil.
func (q *Quest) Trigger(id int) *Trigger {
	for _, t := range q.Triggers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Clone returns a copy that can be edited without touching q.
func (q *Quest) Clone() *Quest {
	c := *q
	c.Objectives = make([]*Objective, len(q.Objectives))
	for i, o := range q.Objectives {
		c.Objectives[i] = o.clone()
	}
	c.Triggers = make([]*Trigger, len(q.Triggers))
	for i, t := range q.Triggers {
		tc := *t
		c.Triggers[i] = &tc
	}
	c.Requirements = slices.Clone(q.Requirements)
	c.Rewards = slices.Clone(q.Rewards)
	c.TakeItem = q.TakeItem.Clone()
	c.NPCs = maps.Clone(q.NPCs)
	if c.NPCs == nil {
		c.NPCs = make(map[int]bool)
	}
	c.ArmorStands = maps.Clone(q.ArmorStands)
	if c.ArmorStands == nil {
		c.ArmorStands = make(map[uuid.UUID]bool)
	}
	return &c
}

// maxAcceptsReached applies the max-accepts policy to a completion count.
func (q *Quest) maxAcceptsReached(completed int) bool {
	switch {
	case q.MaxAccepts <= -1:
		return false
	case q.MaxAccepts == 0:
		return true
	default:
		return completed >= q.MaxAccepts
	}
}

// Validate checks the whole definition, including cross references.
func (q *Quest) Validate() error {
	if err := ValidateName(q.Name); err != nil {
		return err
	}
	if q.AcceptCooldown < -1 {
		return validationf("accept cooldown must be -1 or more")
	}
	seen := make(map[int]bool, len(q.Objectives))
	for _, o := range q.Objectives {
		if o.ID < 1 || seen[o.ID] {
			return validationf("objective ids must be unique positive integers (got %d)", o.ID)
		}
		seen[o.ID] = true
	}
	for _, o := range q.Objectives {
		if err := o.Validate(); err != nil {
			return err
		}
		for _, dep := range o.DependsOn {
			if !seen[dep] {
				return validationf("objective %d depends on unknown objective %d", o.ID, dep)
			}
		}
	}
	if id, ok := q.dependencyCycle(); ok {
		return validationf("objective %d is part of a dependency cycle", id)
	}
	for _, c := range q.Requirements {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, a := range q.Rewards {
		if err := q.validateAction(a); err != nil {
			return err
		}
	}
	tseen := make(map[int]bool, len(q.Triggers))
	for _, t := range q.Triggers {
		if t.ID < 1 || tseen[t.ID] {
			return validationf("trigger ids must be unique positive integers (got %d)", t.ID)
		}
		tseen[t.ID] = true
		if err := t.Validate(); err != nil {
			return err
		}
		if t.ApplyOn > 0 && !seen[t.ApplyOn] {
			return validationf("trigger %d applies on unknown objective %d", t.ID, t.ApplyOn)
		}
		if err := q.validateAction(t.Action); err != nil {
			return err
		}
	}
	return nil
}

// dependencyCycle reports an objective on a DependsOn cycle, if any.
func (q *Quest) dependencyCycle() (int, bool) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[int]int, len(q.Objectives))
	var visit func(id int) (int, bool)
	visit = func(id int) (int, bool) {
		switch state[id] {
		case visiting:
			return id, true
		case done:
			return 0, false
		}
		state[id] = visiting
		if o := q.Objective(id); o != nil {
			for _, dep := range o.DependsOn {
				if at, ok := visit(dep); ok {
					return at, true
				}
			}
		}
		state[id] = done
		return 0, false
	}
	for _, o := range q.Objectives {
		if at, ok := visit(o.ID); ok {
			return at, true
		}
	}
	return 0, false
}

// dependsOn reports whether id depends on target, directly or through
// other objectives.
func (q *Quest) dependsOn(id, target int) bool {
	seen := make(map[int]bool)
	stack := []int{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		o := q.Objective(cur)
		if o == nil {
			continue
		}
		for _, dep := range o.DependsOn {
			if dep == target {
				return true
			}
			stack = append(stack, dep)
		}
	}
	return false
}

func (q *Quest) validateAction(a Action) error {
	if a == nil {
		return validationf("action is required")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if co, ok := a.(CompleteObjective); ok && q.Objective(co.ObjectiveID) == nil {
		return validationf("CompleteObjective: unknown objective %d", co.ObjectiveID)
	}
	return nil
}

// ---- Quest attributes ----

// SetDisplayName sets the display name; empty clears it.
func (q *Quest) SetDisplayName(s string) { q.DisplayName = s }

// SetDescription sets the description; empty clears it.
func (q *Quest) SetDescription(s string) { q.Description = s }

// SetAcceptCooldown sets the cooldown in minutes; -1 disables it.
func (q *Quest) SetAcceptCooldown(minutes int) error {
	if minutes < -1 {
		return validationf("accept cooldown must be -1 or more")
	}
	q.AcceptCooldown = minutes
	return nil
}

// SetMaxAccepts sets the max-accepts limit; any value <= -1 means unlimited.
func (q *Quest) SetMaxAccepts(n int) {
	if n < -1 {
		n = -1
	}
	q.MaxAccepts = n
}

// SetTakeEnabled toggles whether players can accept the quest themselves.
func (q *Quest) SetTakeEnabled(v bool) { q.TakeEnabled = v }

// SetTakeItem sets the icon item.
func (q *Quest) SetTakeItem(s item.Stack) error {
	if err := validateItem("take item", s); err != nil {
		return err
	}
	q.TakeItem = s
	return nil
}

// ---- Objectives ----

func (q *Quest) nextObjectiveID() int {
	next := 1
	for _, o := range q.Objectives {
		if o.ID >= next {
			next = o.ID + 1
		}
	}
	return next
}

// AddObjective appends o under the next free id and returns it.
func (q *Quest) AddObjective(o *Objective) (int, error) {
	o.ID = q.nextObjectiveID()
	if o.ProgressNeeded == 0 {
		o.ProgressNeeded = 1
	}
	if err := o.Validate(); err != nil {
		return 0, err
	}
	for _, dep := range o.DependsOn {
		if q.Objective(dep) == nil {
			return 0, validationf("objective depends on unknown objective %d", dep)
		}
	}
	q.Objectives = append(q.Objectives, o)
	return o.ID, nil
}

// RemoveObjective deletes an objective and any dependency on it. It fails if
// a trigger or action still references it.
func (q *Quest) RemoveObjective(id int) error {
	idx := slices.IndexFunc(q.Objectives, func(o *Objective) bool { return o.ID == id })
	if idx < 0 {
		return notFoundf("objective %d does not exist", id)
	}
	for _, t := range q.Triggers {
		if t.ApplyOn == id {
			return validationf("trigger %d applies on objective %d", t.ID, id)
		}
	}
	q.Objectives = slices.Delete(q.Objectives, idx, idx+1)
	for _, o := range q.Objectives {
		o.DependsOn = slices.DeleteFunc(o.DependsOn, func(d int) bool { return d == id })
	}
	return nil
}

func (q *Quest) mustObjective(id int) (*Objective, error) {
	o := q.Objective(id)
	if o == nil {
		return nil, notFoundf("objective %d does not exist", id)
	}
	return o, nil
}

// SetObjectiveDisplayName sets an objective's display name.
func (q *Quest) SetObjectiveDisplayName(id int, s string) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	o.DisplayName = s
	return nil
}

// SetObjectiveDescription sets an objective's description.
func (q *Quest) SetObjectiveDescription(id int, s string) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	o.Description = s
	return nil
}

// SetObjectiveCompletionNPC gates completion behind talking to npc; 0 clears it.
func (q *Quest) SetObjectiveCompletionNPC(id, npc int) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	if npc < 0 {
		return validationf("invalid npc id %d", npc)
	}
	o.CompletionNPC = npc
	return nil
}

// SetObjectiveCompletionArmorStand gates completion behind an armor stand;
// uuid.Nil clears it.
func (q *Quest) SetObjectiveCompletionArmorStand(id int, stand uuid.UUID) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	o.CompletionArmorStand = stand
	return nil
}

// AddObjectiveDependency records that id depends on dep.
func (q *Quest) AddObjectiveDependency(id, dep int) error {
	if id == dep {
		return validationf("objective %d cannot depend on itself", id)
	}
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	if q.Objective(dep) == nil {
		return validationf("objective %d does not exist", dep)
	}
	if q.dependsOn(dep, id) {
		return validationf("objective %d already depends on %d; the dependency would form a cycle", dep, id)
	}
	if !slices.Contains(o.DependsOn, dep) {
		o.DependsOn = append(o.DependsOn, dep)
	}
	return nil
}

// RemoveObjectiveDependency drops a dependency.
func (q *Quest) RemoveObjectiveDependency(id, dep int) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	if !slices.Contains(o.DependsOn, dep) {
		return notFoundf("objective %d does not depend on %d", id, dep)
	}
	o.DependsOn = slices.DeleteFunc(o.DependsOn, func(d int) bool { return d == dep })
	return nil
}

// AddObjectiveCondition appends an objective-local condition.
func (q *Quest) AddObjectiveCondition(id int, c Condition) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	o.Conditions = append(o.Conditions, c)
	return nil
}

// ClearObjectiveConditions removes all objective-local conditions.
func (q *Quest) ClearObjectiveConditions(id int) error {
	o, err := q.mustObjective(id)
	if err != nil {
		return err
	}
	o.Conditions = nil
	return nil
}

// ---- Requirements and rewards (1-based ids) ----

// AddRequirement appends an acceptance condition and returns its id.
func (q *Quest) AddRequirement(c Condition) (int, error) {
	if c == nil {
		return 0, validationf("condition is required")
	}
	if err := c.Validate(); err != nil {
		return 0, err
	}
	q.Requirements = append(q.Requirements, c)
	return len(q.Requirements), nil
}

// RemoveRequirement deletes requirement id.
func (q *Quest) RemoveRequirement(id int) error {
	if id < 1 || id > len(q.Requirements) {
		return notFoundf("requirement %d does not exist", id)
	}
	q.Requirements = slices.Delete(q.Requirements, id-1, id)
	return nil
}

// AddReward appends a reward and returns its id.
func (q *Quest) AddReward(a Action) (int, error) {
	if err := q.validateAction(a); err != nil {
		return 0, err
	}
	q.Rewards = append(q.Rewards, a)
	return len(q.Rewards), nil
}

// RemoveReward deletes reward id.
func (q *Quest) RemoveReward(id int) error {
	if id < 1 || id > len(q.Rewards) {
		return notFoundf("reward %d does not exist", id)
	}
	q.Rewards = slices.Delete(q.Rewards, id-1, id)
	return nil
}

// ---- Triggers ----

// AddTrigger appends t under the next free id and returns it.
func (q *Quest) AddTrigger(t *Trigger) (int, error) {
	next := 1
	for _, e := range q.Triggers {
		if e.ID >= next {
			next = e.ID + 1
		}
	}
	t.ID = next
	if t.AmountNeeded == 0 {
		t.AmountNeeded = 1
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if t.ApplyOn > 0 && q.Objective(t.ApplyOn) == nil {
		return 0, validationf("trigger applies on unknown objective %d", t.ApplyOn)
	}
	if err := q.validateAction(t.Action); err != nil {
		return 0, err
	}
	q.Triggers = append(q.Triggers, t)
	return t.ID, nil
}

// RemoveTrigger deletes trigger id.
func (q *Quest) RemoveTrigger(id int) error {
	idx := slices.IndexFunc(q.Triggers, func(t *Trigger) bool { return t.ID == id })
	if idx < 0 {
		return notFoundf("trigger %d does not exist", id)
	}
	q.Triggers = slices.Delete(q.Triggers, idx, idx+1)
	return nil
}

// ---- NPC and armor stand bindings ----

// BindNPC attaches the quest to an NPC.
func (q *Quest) BindNPC(npc int, shown bool) error {
	if npc <= 0 {
		return validationf("invalid npc id %d", npc)
	}
	if _, ok := q.NPCs[npc]; ok {
		return conflictf("quest %s is already bound to npc %d", q.Name, npc)
	}
	q.NPCs[npc] = shown
	return nil
}

// UnbindNPC detaches the quest from an NPC.
func (q *Quest) UnbindNPC(npc int) error {
	if _, ok := q.NPCs[npc]; !ok {
		return notFoundf("quest %s is not bound to npc %d", q.Name, npc)
	}
	delete(q.NPCs, npc)
	return nil
}

// ClearNPCs removes every NPC binding.
func (q *Quest) ClearNPCs() { clear(q.NPCs) }

// BindArmorStand attaches the quest to an armor stand.
func (q *Quest) BindArmorStand(stand uuid.UUID, shown bool) error {
	if stand == uuid.Nil {
		return validationf("armor stand id is required")
	}
	if _, ok := q.ArmorStands[stand]; ok {
		return conflictf("quest %s is already bound to armor stand %s", q.Name, stand)
	}
	q.ArmorStands[stand] = shown
	return nil
}

// UnbindArmorStand detaches the quest from an armor stand.
func (q *Quest) UnbindArmorStand(stand uuid.UUID) error {
	if _, ok := q.ArmorStands[stand]; !ok {
		return notFoundf("quest %s is not bound to armor stand %s", q.Name, stand)
	}
	delete(q.ArmorStands, stand)
	return nil
}

// ClearArmorStands removes every armor stand binding.
func (q *Quest) ClearArmorStands() { clear(q.ArmorStands) }
