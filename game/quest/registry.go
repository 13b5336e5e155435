package quest

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

var nameFold = cases.Fold()

func foldName(name string) string { return nameFold.String(name) }

// FoldName is the case-insensitive key a quest name is stored under.
func FoldName(name string) string { return foldName(name) }

// sameQuest compares quest names case-insensitively.
func sameQuest(a, b string) bool { return foldName(a) == foldName(b) }

// Registry holds quest definitions keyed by case-folded name.
// Stored quests are never mutated; edits replace them with a new value.
type Registry struct {
	mu     sync.RWMutex
	quests map[string]*Quest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{quests: make(map[string]*Quest)}
}

// Get returns the quest named name.
func (r *Registry) Get(name string) (*Quest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quests[foldName(name)]
	return q, ok
}

// Put stores q, replacing any quest with the same name.
func (r *Registry) Put(q *Quest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quests[foldName(q.Name)] = q
}

// Delete removes the quest named name and reports whether it existed.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := foldName(name)
	if _, ok := r.quests[key]; !ok {
		return false
	}
	delete(r.quests, key)
	return true
}

// Count returns the number of quests.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quests)
}

// All returns every quest sorted by name.
func (r *Registry) All() []*Quest {
	r.mu.RLock()
	out := make([]*Quest, 0, len(r.quests))
	for _, q := range r.quests {
		out = append(out, q)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return foldName(out[i].Name) < foldName(out[j].Name) })
	return out
}

// ForNPC returns the quests bound to npc. Hidden bindings are included only
// when includeHidden is set.
func (r *Registry) ForNPC(npc int, includeHidden bool) []*Quest {
	var out []*Quest
	for _, q := range r.All() {
		if shown, ok := q.NPCs[npc]; ok && (shown || includeHidden) {
			out = append(out, q)
		}
	}
	return out
}

// ForArmorStand returns the quests bound to an armor stand.
func (r *Registry) ForArmorStand(stand uuid.UUID, includeHidden bool) []*Quest {
	var out []*Quest
	for _, q := range r.All() {
		if shown, ok := q.ArmorStands[stand]; ok && (shown || includeHidden) {
			out = append(out, q)
		}
	}
	return out
}
