package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/game/quest"
	"go.uber.org/zap"
)

const (
	notifyQueueSize = 1024
	publishTimeout  = 2 * time.Second
)

type outbound struct {
	channel string
	payload string
}

// Notifier publishes quest notifications on each player's pubsub channel.
// It implements quest.Notifier: Notify queues and returns, a background
// worker publishes.
type Notifier struct {
	pubsub   cache.PubSub
	ch       chan outbound
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewNotifier starts the publish worker.
func NewNotifier(pubsub cache.PubSub, logger *zap.Logger) *Notifier {
	n := &Notifier{
		pubsub: pubsub,
		ch:     make(chan outbound, notifyQueueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	n.wg.Add(1)
	go n.worker()
	return n
}

// Notify queues n for player. Notifications are dropped when the queue is
// full or the notifier is stopped.
func (n *Notifier) Notify(_ context.Context, player uuid.UUID, note quest.Notification) {
	data, err := json.Marshal(note)
	if err != nil {
		n.logger.Error("encode notification", zap.Error(err))
		return
	}
	select {
	case <-n.stopCh:
		return
	default:
	}
	select {
	case n.ch <- outbound{channel: PlayerChannel(player), payload: string(data)}:
	default:
		n.logger.Warn("notification queue full, dropping",
			zap.String("player", player.String()), zap.String("kind", note.Kind))
	}
}

// Stop publishes what is queued and stops the worker.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case o := <-n.ch:
			n.publish(o)
		case <-n.stopCh:
			for {
				select {
				case o := <-n.ch:
					n.publish(o)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) publish(o outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.pubsub.Publish(ctx, o.channel, o.payload); err != nil {
		n.logger.Warn("publish notification failed", zap.String("channel", o.channel), zap.Error(err))
	}
}
