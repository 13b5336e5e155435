package quest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/plugin/hook"
	"go.uber.org/zap"
)

// Journal records quest lifecycle changes for auditing.
type Journal interface {
	Record(entry JournalEntry)
}

// JournalEntry is one journal line.
type JournalEntry struct {
	TraceID string
	Player  uuid.UUID
	Quest   string
	Action  string
	Detail  string
}

type traceKey struct{}

// WithTraceID tags ctx so journal entries written under it carry id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the id set by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Notification kinds.
const (
	NotifyAccepted           = "accepted"
	NotifyObjectiveCompleted = "objective_completed"
	NotifyCompleted          = "completed"
	NotifyFailed             = "failed"
	NotifyAborted            = "aborted"
	NotifyTriggerFired       = "trigger_fired"
)

// Notification is pushed to a player's web clients.
type Notification struct {
	Kind        string    `json:"kind"`
	Quest       string    `json:"quest"`
	ObjectiveID int       `json:"objective_id,omitempty"`
	TriggerID   int       `json:"trigger_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier delivers notifications. It must not block.
type Notifier interface {
	Notify(ctx context.Context, player uuid.UUID, n Notification)
}

// Gate decides whether an objective of an active quest is unlocked. It runs
// after acceptance and after every cascade. Without a gate every objective
// stays unlocked.
type Gate interface {
	Unlocked(q *Quest, aq *ActiveQuest, obj *Objective) bool
}

// DependencyGate unlocks an objective once every objective it depends on has
// completed.
type DependencyGate struct{}

func (DependencyGate) Unlocked(_ *Quest, aq *ActiveQuest, obj *Objective) bool {
	for _, dep := range obj.DependsOn {
		if aq.Objective(dep) != nil {
			return false
		}
	}
	return true
}

// HookData is passed to quest lifecycle hooks.
type HookData struct {
	Player      uuid.UUID
	Quest       string
	ObjectiveID int
	TriggerID   int
}

// Option configures a Service.
type Option func(*Service)

// WithHooks publishes lifecycle hooks on hc.
func WithHooks(hc *hook.HookCenter) Option { return func(s *Service) { s.hooks = hc } }

// WithJournal records lifecycle changes to j.
func WithJournal(j Journal) Option { return func(s *Service) { s.journal = j } }

// WithNotifier pushes notifications through n.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithGate enables objective unlock gating.
func WithGate(g Gate) Option { return func(s *Service) { s.gate = g } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service is the quest engine: it owns the registry of definitions and the
// directory of loaded players, reduces game events into progress and runs
// the quest lifecycle.
type Service struct {
	registry *Registry
	players  *Directory
	store    Store
	writer   *Writer
	host     *Host
	hooks    *hook.HookCenter
	journal  Journal
	notifier Notifier
	gate     Gate
	now      func() time.Time
	logger   *zap.Logger

	editMu sync.Mutex // serializes definition edits
}

// NewService creates a quest Service and starts its persistence writer.
func NewService(store Store, host *Host, logger *zap.Logger, opts ...Option) *Service {
	if host == nil {
		host = &Host{}
	}
	svc := &Service{
		registry: NewRegistry(),
		store:    store,
		host:     host,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(svc)
	}
	svc.writer = NewWriter(store, logger)
	svc.players = NewDirectory(svc.loadPlayer, logger)
	return svc
}

// Registry returns the quest definitions.
func (svc *Service) Registry() *Registry { return svc.registry }

// Players returns the loaded player directory.
func (svc *Service) Players() *Directory { return svc.players }

// Load reads every quest definition from the store. Malformed definitions
// are logged and skipped.
func (svc *Service) Load(ctx context.Context) error {
	docs, err := svc.store.LoadQuests(ctx)
	if err != nil {
		return fmt.Errorf("load quests: %w", err)
	}
	for _, d := range docs {
		q, err := d.Decode()
		if err != nil {
			svc.logger.Error("skipping invalid quest", zap.String("quest", d.Name), zap.Error(err))
			continue
		}
		svc.registry.Put(q)
	}
	svc.logger.Info("quests loaded", zap.Int("count", svc.registry.Count()))
	return nil
}

func (svc *Service) loadPlayer(ctx context.Context, id uuid.UUID) (*QuestPlayer, error) {
	// A snapshot queued by a recent Leave must land before the read.
	if err := svc.writer.Flush(ctx); err != nil {
		svc.logger.Warn("flush before player load failed", zap.String("player", id.String()), zap.Error(err))
	}
	doc, err := svc.store.LoadPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	qp, dropped, err := DecodePlayer(*doc, svc.registry)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		svc.logger.Warn("dropped active quests without definition",
			zap.String("player", id.String()), zap.Strings("quests", dropped))
		svc.writer.Enqueue(EncodePlayer(qp))
	}
	return qp, nil
}

// Close snapshots every loaded player, stops the writer and clears memory.
func (svc *Service) Close(ctx context.Context) {
	svc.players.Each(func(qp *QuestPlayer) {
		svc.writer.Enqueue(EncodePlayer(qp))
	})
	svc.writer.Stop(ctx)
	svc.players.Clear()
}

// Flush writes every queued player snapshot.
func (svc *Service) Flush(ctx context.Context) error {
	return svc.writer.Flush(ctx)
}

// Join loads a player's quest state.
func (svc *Service) Join(ctx context.Context, id uuid.UUID) error {
	_, err := svc.players.GetOrLoad(ctx, id)
	return err
}

// Leave snapshots a player and drops it from memory. The snapshot is queued
// before the player leaves the directory, so a reload sees it.
func (svc *Service) Leave(_ context.Context, id uuid.UUID) {
	svc.evict(id)
}

func (svc *Service) evict(id uuid.UUID) bool {
	return svc.players.Evict(id, func(qp *QuestPlayer) {
		svc.writer.Enqueue(EncodePlayer(qp))
	}) != nil
}

// EvictOffline drops loaded players the host no longer reports online and
// returns how many were evicted.
func (svc *Service) EvictOffline(_ context.Context) int {
	if svc.host.Players == nil {
		return 0
	}
	n := 0
	for _, qp := range svc.players.All() {
		if _, ok := svc.host.Players.Online(qp.UUID); ok {
			continue
		}
		if svc.evict(qp.UUID) {
			n++
		}
	}
	return n
}

// Handle reduces one game event. Players that are not loaded are ignored;
// broadcast events visit every loaded player. Handle never returns an error:
// problems with single entries are logged and skipped.
func (svc *Service) Handle(ctx context.Context, ev Event) {
	if isBroadcast(ev) {
		for _, qp := range svc.players.All() {
			svc.reduce(ctx, qp, ev)
		}
		return
	}
	qp := svc.players.Get(ev.base().Player)
	if qp == nil {
		return
	}
	svc.reduce(ctx, qp, ev)
}

func (svc *Service) reduce(ctx context.Context, qp *QuestPlayer, ev Event) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.evicted {
		return
	}
	p := svc.newPass(ctx, qp)
	p.dispatch(ev)
	p.settle()
}

// update runs fn as a pass with exclusive access to the player.
func (svc *Service) update(ctx context.Context, id uuid.UUID, fn func(p *pass) error) error {
	return svc.players.Update(ctx, id, func(qp *QuestPlayer) error {
		p := svc.newPass(ctx, qp)
		err := fn(p)
		p.settle()
		return err
	})
}

// Attach subscribes the service to game events published on hc.
func (svc *Service) Attach(hc *hook.HookCenter) {
	hc.Register(hook.OnGameEvent, 100, "quest", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		if ev, ok := data.(Event); ok {
			svc.Handle(ctx, ev)
		}
		return data, nil
	})
}

// Detach removes the handlers registered by Attach.
func (svc *Service) Detach(hc *hook.HookCenter) {
	hc.UnregisterAll("quest")
}

func (svc *Service) trigger(ctx context.Context, event string, data HookData) error {
	if svc.hooks == nil {
		return nil
	}
	_, err := svc.hooks.Trigger(ctx, event, data)
	if errors.Is(err, hook.ErrInterrupt) {
		return err
	}
	return nil
}

func (svc *Service) record(ctx context.Context, player uuid.UUID, quest, action, detail string) {
	if svc.journal == nil {
		return
	}
	svc.journal.Record(JournalEntry{
		TraceID: TraceID(ctx),
		Player:  player,
		Quest:   quest,
		Action:  action,
		Detail:  detail,
	})
}

func (svc *Service) notify(ctx context.Context, player uuid.UUID, n Notification) {
	if svc.notifier == nil {
		return
	}
	n.At = svc.now()
	svc.notifier.Notify(ctx, player, n)
}
