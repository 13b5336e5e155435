package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded packet payload.
type HandlerFunc func(ctx context.Context, conn *Conn, payload json.RawMessage) error

// Router dispatches incoming packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given packet type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate
// handler. Handler errors are reported back to the host as error packets.
func (r *Router) Dispatch(c *Conn, raw []byte) {
	var pkt player.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.String("conn", c.ID), zap.Error(err))
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= c.lastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("conn", c.ID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", c.lastSeq))
		return
	}
	if pkt.Seq != 0 {
		c.lastSeq = pkt.Seq
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled packet type", zap.String("type", pkt.Type), zap.String("conn", c.ID))
		return
	}

	traceID := uuid.NewString()
	ctx := quest.WithTraceID(context.Background(), traceID)
	if err := r.safeCall(ctx, fn, c, pkt); err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.String("conn", c.ID),
			zap.String("trace_id", traceID),
			zap.Error(err))
		_ = c.Reply(PacketError, ErrorPayload{
			Seq:     pkt.Seq,
			Type:    pkt.Type,
			Code:    string(quest.CodeOf(err)),
			Message: err.Error(),
		})
	}
}

func (r *Router) safeCall(ctx context.Context, fn HandlerFunc, c *Conn, pkt player.Packet) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in ws handler", zap.String("type", pkt.Type), zap.Any("recover", rec))
			err = errPanic
		}
	}()
	return fn(ctx, c, pkt.Payload)
}
