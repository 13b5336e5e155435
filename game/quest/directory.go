package quest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoadFunc fetches a player's persisted state. It returns (nil, nil) when
// nothing is stored.
type LoadFunc func(ctx context.Context, id uuid.UUID) (*QuestPlayer, error)

// Directory owns every loaded QuestPlayer. Players are loaded on first
// reference and removed on Evict or Clear. At most one load per player runs
// at a time.
type Directory struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*QuestPlayer
	loading map[uuid.UUID]*pendingLoad
	load    LoadFunc
	logger  *zap.Logger
}

type pendingLoad struct {
	done chan struct{}
	err  error
}

// NewDirectory creates a Directory backed by load.
func NewDirectory(load LoadFunc, logger *zap.Logger) *Directory {
	return &Directory{
		players: make(map[uuid.UUID]*QuestPlayer),
		loading: make(map[uuid.UUID]*pendingLoad),
		load:    load,
		logger:  logger,
	}
}

// Get returns the loaded player, or nil. It never touches the store.
func (d *Directory) Get(id uuid.UUID) *QuestPlayer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.players[id]
}

// GetOrLoad returns the loaded player, loading it or creating an empty
// record on first reference. Concurrent callers for the same player share
// one load.
func (d *Directory) GetOrLoad(ctx context.Context, id uuid.UUID) (*QuestPlayer, error) {
	for {
		d.mu.Lock()
		if qp, ok := d.players[id]; ok {
			d.mu.Unlock()
			return qp, nil
		}
		if pl, ok := d.loading[id]; ok {
			d.mu.Unlock()
			select {
			case <-pl.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if pl.err != nil {
				return nil, pl.err
			}
			continue
		}
		pl := &pendingLoad{done: make(chan struct{})}
		d.loading[id] = pl
		d.mu.Unlock()

		loaded, err := d.loadOne(ctx, id)

		d.mu.Lock()
		delete(d.loading, id)
		if err == nil {
			d.players[id] = loaded
		}
		pl.err = err
		d.mu.Unlock()
		close(pl.done)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("quest player loaded",
			zap.String("player", id.String()),
			zap.Int("active", len(loaded.Active)))
		return loaded, nil
	}
}

func (d *Directory) loadOne(ctx context.Context, id uuid.UUID) (*QuestPlayer, error) {
	if d.load != nil {
		loaded, err := d.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			return loaded, nil
		}
	}
	return NewQuestPlayer(id), nil
}

// Update runs fn with exclusive access to the player's state. A player
// evicted while fn waited for the lock is reloaded and fn runs on the
// fresh record.
func (d *Directory) Update(ctx context.Context, id uuid.UUID, fn func(qp *QuestPlayer) error) error {
	for {
		qp, err := d.GetOrLoad(ctx, id)
		if err != nil {
			return err
		}
		qp.mu.Lock()
		if qp.evicted {
			qp.mu.Unlock()
			continue
		}
		err = fn(qp)
		qp.mu.Unlock()
		return err
	}
}

// Each runs fn on every loaded player under its lock. Players evicted in
// the meantime are skipped.
func (d *Directory) Each(fn func(qp *QuestPlayer)) {
	for _, qp := range d.All() {
		qp.mu.Lock()
		if !qp.evicted {
			fn(qp)
		}
		qp.mu.Unlock()
	}
}

// Evict removes a player from memory and returns it, or nil. final, when
// set, runs under the player's lock before the player leaves the map, so a
// later load observes whatever final persisted.
func (d *Directory) Evict(id uuid.UUID, final func(qp *QuestPlayer)) *QuestPlayer {
	qp := d.Get(id)
	if qp == nil {
		return nil
	}
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.evicted {
		return nil
	}
	if final != nil {
		final(qp)
	}
	qp.evicted = true
	d.mu.Lock()
	if d.players[id] == qp {
		delete(d.players, id)
	}
	d.mu.Unlock()
	return qp
}

// Count returns the number of loaded players.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.players)
}

// All returns a snapshot slice of all loaded players.
func (d *Directory) All() []*QuestPlayer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*QuestPlayer, 0, len(d.players))
	for _, qp := range d.players {
		out = append(out, qp)
	}
	return out
}

// Clear drops every loaded player.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.players)
}
