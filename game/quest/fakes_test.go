package quest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/item"
	"github.com/kasuganosora/questforge/game/world"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---- store ----

type memStore struct {
	mu      sync.Mutex
	quests  map[string]QuestDocument
	players map[string]PlayerDocument
	fail    error
}

func newMemStore() *memStore {
	return &memStore{
		quests:  make(map[string]QuestDocument),
		players: make(map[string]PlayerDocument),
	}
}

func (m *memStore) LoadQuests(context.Context) ([]QuestDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QuestDocument, 0, len(m.quests))
	for _, d := range m.quests {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) SaveQuest(_ context.Context, doc QuestDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.quests[foldName(doc.Name)] = doc
	return nil
}

func (m *memStore) DeleteQuest(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quests, foldName(name))
	return nil
}

func (m *memStore) RenameQuest(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.quests[foldName(from)]
	if !ok {
		return errors.New("missing")
	}
	delete(m.quests, foldName(from))
	d.Name = to
	m.quests[foldName(to)] = d
	return nil
}

func (m *memStore) LoadPlayer(_ context.Context, id uuid.UUID) (*PlayerDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.players[id.String()]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memStore) SavePlayers(_ context.Context, docs []PlayerDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for _, d := range docs {
		m.players[d.UUID] = d
	}
	return nil
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *memStore) player(id uuid.UUID) (PlayerDocument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.players[id.String()]
	return d, ok
}

// ---- host ----

type fakePlayer struct {
	id   uuid.UUID
	name string
	loc  world.Location
	inv  *item.Inventory
}

func (p *fakePlayer) UUID() uuid.UUID            { return p.id }
func (p *fakePlayer) Name() string               { return p.name }
func (p *fakePlayer) Location() world.Location   { return p.loc }
func (p *fakePlayer) Inventory() *item.Inventory { return p.inv }

type fakeHost struct {
	mu       sync.Mutex
	players  map[uuid.UUID]*fakePlayer
	messages map[uuid.UUID][]string
	commands []string
	npcs     map[int]*fakeNPC
}

type fakeNPC struct {
	name    string
	spawned bool
	loc     world.Location
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		players:  make(map[uuid.UUID]*fakePlayer),
		messages: make(map[uuid.UUID][]string),
		npcs:     make(map[int]*fakeNPC),
	}
}

func (h *fakeHost) Host() *Host {
	return &Host{Players: h, Messages: h, NPCs: h, Commands: h}
}

func (h *fakeHost) join(name string, w string) *fakePlayer {
	p := &fakePlayer{
		id:   uuid.New(),
		name: name,
		loc:  world.Location{World: w},
		inv:  item.NewInventory(item.DefaultSlots),
	}
	h.mu.Lock()
	h.players[p.id] = p
	h.mu.Unlock()
	return p
}

func (h *fakeHost) Online(id uuid.UUID) (Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return nil, false
	}
	return p, true
}

func (h *fakeHost) SendMessage(id uuid.UUID, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[id] = append(h.messages[id], msg)
}

func (h *fakeHost) Console(string) {}

func (h *fakeHost) received(id uuid.UUID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages[id]...)
}

func (h *fakeHost) RunCommand(_ context.Context, cmd string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
	return nil
}

func (h *fakeHost) Exists(id int) bool { _, ok := h.npcs[id]; return ok }

func (h *fakeHost) Name(id int) string {
	if n, ok := h.npcs[id]; ok {
		return n.name
	}
	return ""
}

func (h *fakeHost) Spawned(id int) bool { n, ok := h.npcs[id]; return ok && n.spawned }

func (h *fakeHost) Location(id int) (world.Location, bool) {
	n, ok := h.npcs[id]
	if !ok {
		return world.Location{}, false
	}
	return n.loc, true
}

func (h *fakeHost) Despawn(id int) error {
	if n, ok := h.npcs[id]; ok {
		n.spawned = false
	}
	return nil
}

// ---- fixtures ----

type fixture struct {
	svc   *Service
	store *memStore
	host  *fakeHost
	clock *time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := fixedTime
	f := &fixture{store: newMemStore(), host: newFakeHost(), clock: &now}
	opts = append([]Option{WithClock(func() time.Time { return *f.clock })}, opts...)
	f.svc = NewService(f.store, f.host.Host(), nopLogger(), opts...)
	t.Cleanup(func() { f.svc.Close(context.Background()) })
	return f
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

// put commits q and fails the test on error.
func (f *fixture) put(t *testing.T, q *Quest) {
	t.Helper()
	_, err := f.svc.PutQuest(context.Background(), EncodeQuest(q))
	require.NoError(t, err)
}

// online joins a player on the host and loads its quest state.
func (f *fixture) online(t *testing.T, name, w string) *fakePlayer {
	t.Helper()
	p := f.host.join(name, w)
	require.NoError(t, f.svc.Join(context.Background(), p.id))
	return p
}

func mustQuest(t *testing.T, name string, objs ...*Objective) *Quest {
	t.Helper()
	q, err := NewQuest(name)
	require.NoError(t, err)
	for _, o := range objs {
		_, err := q.AddObjective(o)
		require.NoError(t, err)
	}
	return q
}

func killObjective(mob string, n int64) *Objective {
	return &Objective{ProgressNeeded: n, Spec: KillMobs{Mob: mob}}
}

func (f *fixture) active(t *testing.T, id uuid.UUID) []ActiveQuestStatus {
	t.Helper()
	out, err := f.svc.ActiveQuests(context.Background(), id)
	require.NoError(t, err)
	return out
}

func (f *fixture) completed(t *testing.T, id uuid.UUID) []CompletedQuest {
	t.Helper()
	out, err := f.svc.CompletedQuests(context.Background(), id)
	require.NoError(t, err)
	return out
}
