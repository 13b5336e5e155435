package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service writes the quest journal asynchronously in batches. It implements
// quest.Journal.
type Service struct {
	db       *gorm.DB
	ch       chan *model.QuestJournal
	flushCh  chan chan error
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a new journal Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:      db,
		ch:      make(chan *model.QuestJournal, 1024),
		flushCh: make(chan chan error),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Record enqueues a journal entry for async DB write. It never blocks; when
// the queue is full the entry is dropped with a warning.
func (svc *Service) Record(entry quest.JournalEntry) {
	record := &model.QuestJournal{
		TraceID:    entry.TraceID,
		PlayerUUID: entry.Player.String(),
		Quest:      entry.Quest,
		Action:     entry.Action,
		Detail:     entry.Detail,
	}
	select {
	case <-svc.stopCh:
		svc.logger.Warn("journal stopped, dropping entry", zap.String("action", entry.Action))
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("journal channel full, dropping entry",
			zap.String("action", entry.Action),
			zap.String("quest", entry.Quest))
	}
}

// Flush writes every entry recorded so far.
func (svc *Service) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case svc.flushCh <- done:
	case <-svc.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the newest journal rows of a player, newest first. Entries
// still queued are written first.
func (svc *Service) History(ctx context.Context, player uuid.UUID, limit int) ([]model.QuestJournal, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if err := svc.Flush(ctx); err != nil {
		svc.logger.Warn("journal flush before read failed", zap.Error(err))
	}
	var rows []model.QuestJournal
	err := svc.db.WithContext(ctx).
		Where("player_uuid = ?", player.String()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("journal history: %w", err)
	}
	return rows, nil
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.QuestJournal, 0, 100)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := svc.db.Create(&batch).Error
		if err != nil {
			svc.logger.Error("journal batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		return err
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case done := <-svc.flushCh:
			for drained := false; !drained; {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					drained = true
				}
			}
			done <- flush()
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
