package quest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	writerQueueSize = 1024
	writerBatchSize = 100
	writerInterval  = 2 * time.Second
	// writerAttempts bounds how often one batch is retried before its
	// snapshots are dropped.
	writerAttempts = 5
)

type flushReq struct {
	done chan error
}

// Writer persists player snapshots on a background worker. Snapshots are
// written in enqueue order; within a batch only the latest snapshot of each
// player is kept. A batch the store rejects stays queued and is retried with
// the next flush, merged with newer snapshots.
type Writer struct {
	store   Store
	ch      chan PlayerDocument
	flushCh chan flushReq
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewWriter creates a Writer and starts its worker.
func NewWriter(store Store, logger *zap.Logger) *Writer {
	w := &Writer{
		store:   store,
		ch:      make(chan PlayerDocument, writerQueueSize),
		flushCh: make(chan flushReq),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	w.wg.Add(1)
	go w.worker()
	return w
}

// Enqueue queues a snapshot. When the queue is full it blocks rather than
// drop state.
func (w *Writer) Enqueue(doc PlayerDocument) {
	select {
	case w.ch <- doc:
		return
	case <-w.stopCh:
		w.logger.Warn("quest writer stopped, dropping snapshot", zap.String("player", doc.UUID))
		return
	default:
	}
	w.logger.Warn("quest writer queue full, blocking", zap.String("player", doc.UUID))
	select {
	case w.ch <- doc:
	case <-w.stopCh:
		w.logger.Warn("quest writer stopped, dropping snapshot", zap.String("player", doc.UUID))
	}
}

// Flush writes everything queued so far and returns the store error, if any.
func (w *Writer) Flush(ctx context.Context) error {
	req := flushReq{done: make(chan error, 1)}
	select {
	case w.flushCh <- req:
	case <-w.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queue and shuts down the worker.
func (w *Writer) Stop(_ context.Context) {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Writer) worker() {
	defer w.wg.Done()
	ticker := time.NewTicker(writerInterval)
	defer ticker.Stop()

	batch := make([]PlayerDocument, 0, writerBatchSize)
	index := make(map[string]int, writerBatchSize)

	add := func(doc PlayerDocument) {
		if i, ok := index[doc.UUID]; ok {
			batch[i] = doc
			return
		}
		index[doc.UUID] = len(batch)
		batch = append(batch, doc)
	}
	failures := 0
	reset := func() {
		batch = batch[:0]
		clear(index)
		failures = 0
	}
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := w.store.SavePlayers(ctx, batch)
		if err == nil {
			reset()
			return nil
		}
		failures++
		if failures < writerAttempts {
			w.logger.Warn("quest player batch write failed, keeping it for retry",
				zap.Int("players", len(batch)), zap.Int("attempt", failures), zap.Error(err))
			return err
		}
		ids := make([]string, len(batch))
		for i, d := range batch {
			ids[i] = d.UUID
		}
		w.logger.Error("quest player batch write failed, dropping snapshots",
			zap.Strings("players", ids), zap.Int("attempts", failures), zap.Error(err))
		reset()
		return err
	}
	drain := func() {
		for {
			select {
			case doc := <-w.ch:
				add(doc)
			default:
				return
			}
		}
	}

	for {
		select {
		case doc := <-w.ch:
			add(doc)
			if len(batch) >= writerBatchSize && failures == 0 {
				flush()
			}
		case req := <-w.flushCh:
			drain()
			req.done <- flush()
		case <-ticker.C:
			flush()
		case <-w.stopCh:
			drain()
			for len(batch) > 0 {
				if flush() == nil {
					break
				}
			}
			return
		}
	}
}
