package quest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
)

// QuestDocument is the storage form of a Quest. The same document is used
// for YAML definition files, JSON API bodies and database rows.
type QuestDocument struct {
	Name           string               `yaml:"name" json:"name"`
	DisplayName    string               `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Description    string               `yaml:"description,omitempty" json:"description,omitempty"`
	AcceptCooldown *int                 `yaml:"accept_cooldown,omitempty" json:"accept_cooldown,omitempty"`
	MaxAccepts     *int                 `yaml:"max_accepts,omitempty" json:"max_accepts,omitempty"`
	TakeEnabled    *bool                `yaml:"take_enabled,omitempty" json:"take_enabled,omitempty"`
	TakeItem       *item.Stack          `yaml:"take_item,omitempty" json:"take_item,omitempty"`
	Objectives     []ObjectiveDocument  `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	Requirements   []ConditionDocument  `yaml:"requirements,omitempty" json:"requirements,omitempty"`
	Rewards        []ActionDocument     `yaml:"rewards,omitempty" json:"rewards,omitempty"`
	Triggers       []TriggerDocument    `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	NPCs           []NPCBindingDocument `yaml:"npcs,omitempty" json:"npcs,omitempty"`
	ArmorStands    []StandBindingDoc    `yaml:"armor_stands,omitempty" json:"armor_stands,omitempty"`
}

// NPCBindingDocument binds a quest to an NPC.
type NPCBindingDocument struct {
	NPC   int  `yaml:"npc" json:"npc"`
	Shown bool `yaml:"shown" json:"shown"`
}

// StandBindingDoc binds a quest to an armor stand.
type StandBindingDoc struct {
	ArmorStand string `yaml:"armor_stand" json:"armor_stand"`
	Shown      bool   `yaml:"shown" json:"shown"`
}

// ObjectiveDocument is the storage form of an Objective. Type selects which
// of the parameter fields apply.
type ObjectiveDocument struct {
	ID                   int                 `yaml:"id,omitempty" json:"id,omitempty"`
	Type                 ObjectiveKind       `yaml:"type" json:"type"`
	ProgressNeeded       int64               `yaml:"progress_needed,omitempty" json:"progress_needed,omitempty"`
	DisplayName          string              `yaml:"display_name,omitempty" json:"display_name,omitempty"`
	Description          string              `yaml:"description,omitempty" json:"description,omitempty"`
	CompletionNPC        int                 `yaml:"completion_npc,omitempty" json:"completion_npc,omitempty"`
	CompletionArmorStand string              `yaml:"completion_armor_stand,omitempty" json:"completion_armor_stand,omitempty"`
	DependsOn            []int               `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Conditions           []ConditionDocument `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	Mob                string      `yaml:"mob,omitempty" json:"mob,omitempty"`
	NameTagEquals      string      `yaml:"name_tag_equals,omitempty" json:"name_tag_equals,omitempty"`
	NameTagContainsAny string      `yaml:"name_tag_contains_any,omitempty" json:"name_tag_contains_any,omitempty"`
	Item               *item.Stack `yaml:"item,omitempty" json:"item,omitempty"`
	NPC                int         `yaml:"npc,omitempty" json:"npc,omitempty"`
	DestinationNPC     int         `yaml:"destination_npc,omitempty" json:"destination_npc,omitempty"`
	Block              string      `yaml:"block,omitempty" json:"block,omitempty"`
	Deduct             *bool       `yaml:"deduct,omitempty" json:"deduct,omitempty"`
	Name               string      `yaml:"name,omitempty" json:"name,omitempty"`
}

// TriggerDocument is the storage form of a Trigger.
type TriggerDocument struct {
	ID           int            `yaml:"id,omitempty" json:"id,omitempty"`
	Type         TriggerKind    `yaml:"type" json:"type"`
	AmountNeeded int64          `yaml:"amount_needed,omitempty" json:"amount_needed,omitempty"`
	ApplyOn      int            `yaml:"apply_on,omitempty" json:"apply_on,omitempty"`
	World        string         `yaml:"world,omitempty" json:"world,omitempty"`
	NPC          int            `yaml:"npc,omitempty" json:"npc,omitempty"`
	Action       ActionDocument `yaml:"action" json:"action"`
}

// ActionDocument is the storage form of an Action.
type ActionDocument struct {
	Type        ActionKind  `yaml:"type" json:"type"`
	Message     string      `yaml:"message,omitempty" json:"message,omitempty"`
	Item        *item.Stack `yaml:"item,omitempty" json:"item,omitempty"`
	Command     string      `yaml:"command,omitempty" json:"command,omitempty"`
	Quest       string      `yaml:"quest,omitempty" json:"quest,omitempty"`
	ObjectiveID int         `yaml:"objective_id,omitempty" json:"objective_id,omitempty"`
}

// ConditionDocument is the storage form of a Condition.
type ConditionDocument struct {
	Type     ConditionKind `yaml:"type" json:"type"`
	Quest    string        `yaml:"quest,omitempty" json:"quest,omitempty"`
	MinTimes int           `yaml:"min_times,omitempty" json:"min_times,omitempty"`
	Negate   bool          `yaml:"negate,omitempty" json:"negate,omitempty"`
	World    string        `yaml:"world,omitempty" json:"world,omitempty"`
	Item     *item.Stack   `yaml:"item,omitempty" json:"item,omitempty"`
	Amount   int           `yaml:"amount,omitempty" json:"amount,omitempty"`
	Source   string        `yaml:"source,omitempty" json:"source,omitempty"`
}

// ---- decode ----

// Decode builds and validates a Quest from the document.
func (d QuestDocument) Decode() (*Quest, error) {
	q, err := NewQuest(d.Name)
	if err != nil {
		return nil, err
	}
	q.DisplayName = d.DisplayName
	q.Description = d.Description
	if d.AcceptCooldown != nil {
		q.AcceptCooldown = *d.AcceptCooldown
	}
	if d.MaxAccepts != nil {
		q.SetMaxAccepts(*d.MaxAccepts)
	}
	if d.TakeEnabled != nil {
		q.TakeEnabled = *d.TakeEnabled
	}
	if d.TakeItem != nil {
		q.TakeItem = normalizeStack(*d.TakeItem)
	}
	for i, od := range d.Objectives {
		o, err := od.Decode()
		if err != nil {
			return nil, fmt.Errorf("objective #%d: %w", i+1, err)
		}
		if o.ID == 0 {
			o.ID = q.nextObjectiveID()
		}
		q.Objectives = append(q.Objectives, o)
	}
	for i, cd := range d.Requirements {
		c, err := cd.Decode()
		if err != nil {
			return nil, fmt.Errorf("requirement #%d: %w", i+1, err)
		}
		q.Requirements = append(q.Requirements, c)
	}
	for i, ad := range d.Rewards {
		a, err := ad.Decode()
		if err != nil {
			return nil, fmt.Errorf("reward #%d: %w", i+1, err)
		}
		q.Rewards = append(q.Rewards, a)
	}
	nextTrigger := 1
	for i, td := range d.Triggers {
		t, err := td.Decode()
		if err != nil {
			return nil, fmt.Errorf("trigger #%d: %w", i+1, err)
		}
		if t.ID == 0 {
			t.ID = nextTrigger
		}
		nextTrigger = max(nextTrigger, t.ID+1)
		q.Triggers = append(q.Triggers, t)
	}
	for _, b := range d.NPCs {
		if err := q.BindNPC(b.NPC, b.Shown); err != nil {
			return nil, err
		}
	}
	for _, b := range d.ArmorStands {
		id, err := uuid.Parse(b.ArmorStand)
		if err != nil {
			return nil, validationf("invalid armor stand id %q", b.ArmorStand)
		}
		if err := q.BindArmorStand(id, b.Shown); err != nil {
			return nil, err
		}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func normalizeStack(s item.Stack) item.Stack {
	s.Material = item.NormalizeMaterial(s.Material)
	return s
}

func (d ObjectiveDocument) stack() item.Stack {
	if d.Item == nil {
		return item.Stack{}
	}
	return normalizeStack(*d.Item)
}

func (d ObjectiveDocument) deduct() bool {
	return d.Deduct == nil || *d.Deduct
}

// Decode builds an Objective from the document. Missing progress defaults to
// the item amount, or 1.
func (d ObjectiveDocument) Decode() (*Objective, error) {
	o := &Objective{
		ID:             d.ID,
		ProgressNeeded: d.ProgressNeeded,
		DisplayName:    d.DisplayName,
		Description:    d.Description,
		CompletionNPC:  d.CompletionNPC,
		DependsOn:      append([]int(nil), d.DependsOn...),
	}
	if d.CompletionArmorStand != "" {
		id, err := uuid.Parse(d.CompletionArmorStand)
		if err != nil {
			return nil, validationf("invalid completion armor stand %q", d.CompletionArmorStand)
		}
		o.CompletionArmorStand = id
	}
	switch d.Type {
	case ObjectiveKillMobs:
		o.Spec = KillMobs{Mob: d.Mob, NameTagEquals: d.NameTagEquals, NameTagContainsAny: d.NameTagContainsAny}
	case ObjectiveCollectItems:
		o.Spec = CollectItems{Item: d.stack(), DeductOnDrop: d.deduct()}
	case ObjectiveConsumeItems:
		o.Spec = ConsumeItems{Item: d.stack()}
	case ObjectiveDeliverItems:
		o.Spec = DeliverItems{Item: d.stack(), RecipientNPC: d.NPC}
	case ObjectiveTalkToNPC:
		o.Spec = TalkToNPC{NPC: d.NPC}
	case ObjectiveEscortNPC:
		o.Spec = EscortNPC{NPC: d.NPC, DestinationNPC: d.DestinationNPC}
	case ObjectiveBreakBlocks:
		o.Spec = BreakBlocks{Block: item.NormalizeMaterial(d.Block), DeductIfPlaced: d.deduct()}
	case ObjectivePlaceBlocks:
		o.Spec = PlaceBlocks{Block: item.NormalizeMaterial(d.Block), DeductIfBroken: d.deduct()}
	case ObjectiveTriggerCommand:
		o.Spec = TriggerCommand{Name: d.Name}
	default:
		return nil, validationf("unknown objective type %q", d.Type)
	}
	if o.ProgressNeeded == 0 {
		o.ProgressNeeded = 1
		if d.Item != nil && d.Item.Amount > 0 {
			o.ProgressNeeded = int64(d.Item.Amount)
		}
	}
	for _, cd := range d.Conditions {
		c, err := cd.Decode()
		if err != nil {
			return nil, err
		}
		o.Conditions = append(o.Conditions, c)
	}
	return o, nil
}

// Decode builds a Trigger from the document.
func (d TriggerDocument) Decode() (*Trigger, error) {
	a, err := d.Action.Decode()
	if err != nil {
		return nil, err
	}
	t := &Trigger{
		ID:           d.ID,
		AmountNeeded: d.AmountNeeded,
		ApplyOn:      d.ApplyOn,
		WorldName:    d.World,
		Action:       a,
	}
	if t.AmountNeeded == 0 {
		t.AmountNeeded = 1
	}
	switch d.Type {
	case TriggerNPCDeath:
		t.Spec = NPCDeath{NPC: d.NPC}
	case TriggerDeath:
		t.Spec = Death{}
	case TriggerDisconnect:
		t.Spec = Disconnect{}
	case TriggerWorldEnter:
		t.Spec = WorldEnter{}
	case TriggerWorldLeave:
		t.Spec = WorldLeave{}
	case TriggerBegin:
		t.Spec = Begin{}
	case TriggerComplete:
		t.Spec = Complete{}
	case TriggerFail:
		t.Spec = Fail{}
	default:
		return nil, validationf("unknown trigger type %q", d.Type)
	}
	return t, nil
}

// Decode builds an Action from the document.
func (d ActionDocument) Decode() (Action, error) {
	var a Action
	switch d.Type {
	case ActionSendMessage:
		a = SendMessage{Message: d.Message}
	case ActionGiveItem:
		if d.Item == nil {
			return nil, validationf("GiveItem: item is required")
		}
		a = GiveItem{Item: normalizeStack(*d.Item)}
	case ActionConsoleCommand:
		a = ConsoleCommand{Command: d.Command}
	case ActionGiveQuest:
		a = GiveQuest{Quest: d.Quest}
	case ActionFailQuest:
		a = FailQuest{Quest: d.Quest}
	case ActionCompleteObjective:
		a = CompleteObjective{ObjectiveID: d.ObjectiveID}
	default:
		return nil, validationf("unknown action type %q", d.Type)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Decode builds a Condition from the document.
func (d ConditionDocument) Decode() (Condition, error) {
	var c Condition
	switch d.Type {
	case ConditionCompletedQuest:
		c = HasCompleted{Quest: d.Quest, MinTimes: d.MinTimes}
	case ConditionReachedMaxAccepts:
		c = ReachedMaxAccepts{Quest: d.Quest, Negate: d.Negate}
	case ConditionInWorld:
		c = InWorld{World: d.World}
	case ConditionHasItem:
		if d.Item == nil {
			return nil, validationf("HasItem: item is required")
		}
		amount := d.Amount
		if amount == 0 {
			amount = max(d.Item.Amount, 1)
		}
		c = HasItem{Item: normalizeStack(*d.Item), Amount: amount}
	case ConditionScript:
		c = Script{Source: d.Source}
	default:
		return nil, validationf("unknown condition type %q", d.Type)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ---- encode ----

func stackPtr(s item.Stack) *item.Stack {
	if s.Material == "" {
		return nil
	}
	c := s.Clone()
	return &c
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

// EncodeQuest converts q to its storage form.
func EncodeQuest(q *Quest) QuestDocument {
	d := QuestDocument{
		Name:           q.Name,
		DisplayName:    q.DisplayName,
		Description:    q.Description,
		AcceptCooldown: intPtr(q.AcceptCooldown),
		MaxAccepts:     intPtr(q.MaxAccepts),
		TakeEnabled:    boolPtr(q.TakeEnabled),
		TakeItem:       stackPtr(q.TakeItem),
	}
	for _, o := range q.Objectives {
		d.Objectives = append(d.Objectives, EncodeObjective(o))
	}
	for _, c := range q.Requirements {
		d.Requirements = append(d.Requirements, EncodeCondition(c))
	}
	for _, a := range q.Rewards {
		d.Rewards = append(d.Rewards, EncodeAction(a))
	}
	for _, t := range q.Triggers {
		d.Triggers = append(d.Triggers, EncodeTrigger(t))
	}
	npcs := make([]int, 0, len(q.NPCs))
	for id := range q.NPCs {
		npcs = append(npcs, id)
	}
	sort.Ints(npcs)
	for _, id := range npcs {
		d.NPCs = append(d.NPCs, NPCBindingDocument{NPC: id, Shown: q.NPCs[id]})
	}
	stands := make([]string, 0, len(q.ArmorStands))
	for id := range q.ArmorStands {
		stands = append(stands, id.String())
	}
	sort.Strings(stands)
	for _, s := range stands {
		d.ArmorStands = append(d.ArmorStands, StandBindingDoc{ArmorStand: s, Shown: q.ArmorStands[uuid.MustParse(s)]})
	}
	return d
}

// EncodeObjective converts o to its storage form.
func EncodeObjective(o *Objective) ObjectiveDocument {
	d := ObjectiveDocument{
		ID:             o.ID,
		Type:           o.Spec.Kind(),
		ProgressNeeded: o.ProgressNeeded,
		DisplayName:    o.DisplayName,
		Description:    o.Description,
		CompletionNPC:  o.CompletionNPC,
		DependsOn:      append([]int(nil), o.DependsOn...),
	}
	if o.CompletionArmorStand != uuid.Nil {
		d.CompletionArmorStand = o.CompletionArmorStand.String()
	}
	for _, c := range o.Conditions {
		d.Conditions = append(d.Conditions, EncodeCondition(c))
	}
	switch s := o.Spec.(type) {
	case KillMobs:
		d.Mob, d.NameTagEquals, d.NameTagContainsAny = s.Mob, s.NameTagEquals, s.NameTagContainsAny
	case CollectItems:
		d.Item, d.Deduct = stackPtr(s.Item), boolPtr(s.DeductOnDrop)
	case ConsumeItems:
		d.Item = stackPtr(s.Item)
	case DeliverItems:
		d.Item, d.NPC = stackPtr(s.Item), s.RecipientNPC
	case TalkToNPC:
		d.NPC = s.NPC
	case EscortNPC:
		d.NPC, d.DestinationNPC = s.NPC, s.DestinationNPC
	case BreakBlocks:
		d.Block, d.Deduct = s.Block, boolPtr(s.DeductIfPlaced)
	case PlaceBlocks:
		d.Block, d.Deduct = s.Block, boolPtr(s.DeductIfBroken)
	case TriggerCommand:
		d.Name = s.Name
	}
	return d
}

// EncodeTrigger converts t to its storage form.
func EncodeTrigger(t *Trigger) TriggerDocument {
	d := TriggerDocument{
		ID:           t.ID,
		Type:         t.Spec.Kind(),
		AmountNeeded: t.AmountNeeded,
		ApplyOn:      t.ApplyOn,
		World:        t.WorldName,
		Action:       EncodeAction(t.Action),
	}
	if n, ok := t.Spec.(NPCDeath); ok {
		d.NPC = n.NPC
	}
	return d
}

// EncodeAction converts a to its storage form.
func EncodeAction(a Action) ActionDocument {
	d := ActionDocument{Type: a.Kind()}
	switch v := a.(type) {
	case SendMessage:
		d.Message = v.Message
	case GiveItem:
		d.Item = stackPtr(v.Item)
	case ConsoleCommand:
		d.Command = v.Command
	case GiveQuest:
		d.Quest = v.Quest
	case FailQuest:
		d.Quest = v.Quest
	case CompleteObjective:
		d.ObjectiveID = v.ObjectiveID
	}
	return d
}

// EncodeCondition converts c to its storage form.
func EncodeCondition(c Condition) ConditionDocument {
	d := ConditionDocument{Type: c.Kind()}
	switch v := c.(type) {
	case HasCompleted:
		d.Quest, d.MinTimes = v.Quest, v.MinTimes
	case ReachedMaxAccepts:
		d.Quest, d.Negate = v.Quest, v.Negate
	case InWorld:
		d.World = v.World
	case HasItem:
		d.Item, d.Amount = stackPtr(v.Item), v.Amount
	case Script:
		d.Source = v.Source
	}
	return d
}

// ---- player state ----

// PlayerDocument is the storage form of a QuestPlayer.
type PlayerDocument struct {
	UUID         string                `json:"uuid"`
	Active       []ActiveQuestDocument `json:"active,omitempty"`
	Completed    []CompletedQuest      `json:"completed,omitempty"`
	LastAccepted map[string]time.Time  `json:"last_accepted,omitempty"`
}

// ActiveQuestDocument is the storage form of an ActiveQuest.
type ActiveQuestDocument struct {
	Quest      string                    `json:"quest"`
	AcceptedAt time.Time                 `json:"accepted_at"`
	Objectives []ActiveObjectiveDocument `json:"objectives"`
	Triggers   []ActiveTriggerDocument   `json:"triggers,omitempty"`
}

// ActiveObjectiveDocument is the storage form of an ActiveObjective.
type ActiveObjectiveDocument struct {
	ID                int   `json:"id"`
	Progress          int64 `json:"progress"`
	Unlocked          bool  `json:"unlocked"`
	CompletionReached bool  `json:"completion_reached,omitempty"`
}

// ActiveTriggerDocument is the storage form of an ActiveTrigger.
type ActiveTriggerDocument struct {
	ID    int   `json:"id"`
	Count int64 `json:"count"`
}

// RenameQuest rewrites every reference to from and reports whether any
// was found.
func (d *PlayerDocument) RenameQuest(from, to string) bool {
	changed := false
	for i := range d.Active {
		if sameQuest(d.Active[i].Quest, from) {
			d.Active[i].Quest = to
			changed = true
		}
	}
	for i := range d.Completed {
		if sameQuest(d.Completed[i].Quest, from) {
			d.Completed[i].Quest = to
			changed = true
		}
	}
	for k, v := range d.LastAccepted {
		if sameQuest(k, from) {
			delete(d.LastAccepted, k)
			d.LastAccepted[foldName(to)] = v
			changed = true
		}
	}
	return changed
}

// EncodePlayer snapshots qp. The caller must hold the player's lock.
func EncodePlayer(qp *QuestPlayer) PlayerDocument {
	d := PlayerDocument{
		UUID:         qp.UUID.String(),
		Completed:    append([]CompletedQuest(nil), qp.Completed...),
		LastAccepted: make(map[string]time.Time, len(qp.LastAccepted)),
	}
	for k, v := range qp.LastAccepted {
		d.LastAccepted[k] = v
	}
	for _, aq := range qp.Active {
		ad := ActiveQuestDocument{Quest: aq.QuestName, AcceptedAt: aq.AcceptedAt}
		for _, ao := range aq.Objectives {
			ad.Objectives = append(ad.Objectives, ActiveObjectiveDocument{
				ID:                ao.ObjectiveID,
				Progress:          ao.Progress,
				Unlocked:          ao.Unlocked,
				CompletionReached: ao.CompletionReached,
			})
		}
		for _, at := range aq.Triggers {
			ad.Triggers = append(ad.Triggers, ActiveTriggerDocument{ID: at.TriggerID, Count: at.Count})
		}
		d.Active = append(d.Active, ad)
	}
	return d
}

// DecodePlayer rebuilds a QuestPlayer. Active quests whose definition no
// longer exists are dropped and returned in dropped; objectives and triggers
// missing from the definition are skipped.
func DecodePlayer(d PlayerDocument, reg *Registry) (qp *QuestPlayer, dropped []string, err error) {
	id, err := uuid.Parse(d.UUID)
	if err != nil {
		return nil, nil, validationf("invalid player uuid %q", d.UUID)
	}
	qp = NewQuestPlayer(id)
	qp.Completed = append(qp.Completed, d.Completed...)
	for k, v := range d.LastAccepted {
		qp.LastAccepted[foldName(k)] = v
	}
	for _, ad := range d.Active {
		q, ok := reg.Get(ad.Quest)
		if !ok {
			dropped = append(dropped, ad.Quest)
			continue
		}
		aq := &ActiveQuest{QuestName: q.Name, AcceptedAt: ad.AcceptedAt}
		for _, od := range ad.Objectives {
			if q.Objective(od.ID) == nil {
				continue
			}
			aq.Objectives = append(aq.Objectives, &ActiveObjective{
				ObjectiveID:       od.ID,
				Progress:          max(od.Progress, 0),
				Unlocked:          od.Unlocked,
				CompletionReached: od.CompletionReached,
			})
		}
		for _, td := range ad.Triggers {
			if q.Trigger(td.ID) == nil {
				continue
			}
			aq.Triggers = append(aq.Triggers, &ActiveTrigger{TriggerID: td.ID, Count: td.Count})
		}
		qp.Active = append(qp.Active, aq)
	}
	return qp, dropped, nil
}
