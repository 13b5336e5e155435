package quest

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CompletedQuest is a finished quest instance.
type CompletedQuest struct {
	Quest       string    `json:"quest"`
	AcceptedAt  time.Time `json:"accepted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// QuestPlayer is the quest state of one player. All access goes through the
// Directory's per-player lock.
type QuestPlayer struct {
	mu      sync.Mutex
	evicted bool // set under mu once the Directory dropped this record

	UUID         uuid.UUID
	Active       []*ActiveQuest
	Completed    []CompletedQuest
	LastAccepted map[string]time.Time // folded quest name -> last acceptance
}

// NewQuestPlayer creates an empty player record.
func NewQuestPlayer(id uuid.UUID) *QuestPlayer {
	return &QuestPlayer{UUID: id, LastAccepted: make(map[string]time.Time)}
}

// CompletionCount returns how often the player completed the named quest.
func (qp *QuestPlayer) CompletionCount(name string) int {
	n := 0
	for _, c := range qp.Completed {
		if sameQuest(c.Quest, name) {
			n++
		}
	}
	return n
}

func (qp *QuestPlayer) activeByName(name string) (*ActiveQuest, bool) {
	for _, aq := range qp.Active {
		if sameQuest(aq.QuestName, name) {
			return aq, true
		}
	}
	return nil, false
}

func (qp *QuestPlayer) removeActive(aq *ActiveQuest) {
	qp.Active = slices.DeleteFunc(qp.Active, func(e *ActiveQuest) bool { return e == aq })
}

// renameQuest rewrites references to a renamed quest.
func (qp *QuestPlayer) renameQuest(from, to string) bool {
	changed := false
	for _, aq := range qp.Active {
		if sameQuest(aq.QuestName, from) {
			aq.QuestName = to
			changed = true
		}
	}
	for i := range qp.Completed {
		if sameQuest(qp.Completed[i].Quest, from) {
			qp.Completed[i].Quest = to
			changed = true
		}
	}
	if t, ok := qp.LastAccepted[foldName(from)]; ok {
		delete(qp.LastAccepted, foldName(from))
		qp.LastAccepted[foldName(to)] = t
		changed = true
	}
	return changed
}

// dropQuest removes active instances of a deleted quest.
func (qp *QuestPlayer) dropQuest(name string) bool {
	n := len(qp.Active)
	qp.Active = slices.DeleteFunc(qp.Active, func(aq *ActiveQuest) bool {
		return sameQuest(aq.QuestName, name)
	})
	return len(qp.Active) != n
}
