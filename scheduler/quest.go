package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task names registered by AddQuestTasks.
const (
	TaskQuestFlush = "quest_flush"
	TaskQuestEvict = "quest_evict"
)

// QuestEngine is the part of the quest service the periodic tasks drive.
type QuestEngine interface {
	Flush(ctx context.Context) error
	EvictOffline(ctx context.Context) int
}

// AddQuestTasks registers the periodic persistence flush and the eviction of
// players that went offline without a leave event. A zero interval skips
// the task.
func (s *Scheduler) AddQuestTasks(engine QuestEngine, flushEvery, evictEvery time.Duration) {
	if flushEvery > 0 {
		s.AddTicker(TaskQuestFlush, flushEvery, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, flushEvery)
			defer cancel()
			if err := engine.Flush(ctx); err != nil {
				s.logger.Warn("quest flush failed", zap.Error(err))
			}
		})
	}
	if evictEvery > 0 {
		s.AddTicker(TaskQuestEvict, evictEvery, func(ctx context.Context) {
			if n := engine.EvictOffline(ctx); n > 0 {
				s.logger.Info("evicted offline quest players", zap.Int("count", n))
			}
		})
	}
}
