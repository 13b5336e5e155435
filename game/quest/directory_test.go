package quest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_ConcurrentLoadsShareOneRecord(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	d := NewDirectory(func(ctx context.Context, id uuid.UUID) (*QuestPlayer, error) {
		loads.Add(1)
		<-release
		return NewQuestPlayer(id), nil
	}, nopLogger())
	id := uuid.New()

	const n = 8
	got := make([]*QuestPlayer, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qp, err := d.GetOrLoad(context.Background(), id)
			assert.NoError(t, err)
			got[i] = qp
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, qp := range got {
		assert.Same(t, got[0], qp)
	}
}

func TestDirectory_UpdateAfterEvictReloads(t *testing.T) {
	var loads atomic.Int32
	d := NewDirectory(func(ctx context.Context, id uuid.UUID) (*QuestPlayer, error) {
		loads.Add(1)
		return NewQuestPlayer(id), nil
	}, nopLogger())
	ctx := context.Background()
	id := uuid.New()
	first, err := d.GetOrLoad(ctx, id)
	require.NoError(t, err)

	first.mu.Lock()
	done := make(chan *QuestPlayer)
	go func() {
		_ = d.Update(ctx, id, func(qp *QuestPlayer) error {
			done <- qp
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)
	// The update holds a reference to first and waits for its lock.
	first.evicted = true
	d.mu.Lock()
	delete(d.players, id)
	d.mu.Unlock()
	first.mu.Unlock()

	updated := <-done
	assert.NotSame(t, first, updated)
	assert.Equal(t, int32(2), loads.Load())
}

func TestLeave_ConcurrentAcceptIsNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, mustQuest(t, "zombies", killObjective("ZOMBIE", 3)))
	f.put(t, mustQuest(t, "other", killObjective("SPIDER", 3)))
	p := f.online(t, "Steve", "world")
	require.NoError(t, f.svc.Accept(ctx, p.id, "zombies", AcceptOptions{}))

	// Hold the player as an in-flight pass would.
	qp := f.svc.Players().Get(p.id)
	require.NotNil(t, qp)
	qp.mu.Lock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.svc.Leave(ctx, p.id)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.svc.Accept(ctx, p.id, "other", AcceptOptions{}))
	}()
	time.Sleep(20 * time.Millisecond)
	qp.mu.Unlock()
	wg.Wait()

	require.NoError(t, f.svc.Flush(ctx))
	names := func(doc PlayerDocument) []string {
		out := make([]string, 0, len(doc.Active))
		for _, a := range doc.Active {
			out = append(out, a.Quest)
		}
		return out
	}
	if loaded := f.svc.Players().Get(p.id); loaded != nil {
		f.svc.Leave(ctx, p.id)
		require.NoError(t, f.svc.Flush(ctx))
	}
	doc, ok := f.store.player(p.id)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"zombies", "other"}, names(doc))
}
