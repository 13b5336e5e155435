package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/world"
	"github.com/kasuganosora/questforge/plugin/hook"
	"go.uber.org/zap"
)

func (h *Handler) routes() {
	r := h.router
	r.On(PacketPing, func(_ context.Context, c *Conn, _ json.RawMessage) error {
		return c.Reply(PacketPong, struct{}{})
	})
	r.On(PacketPlayerJoin, h.handleJoin)
	r.On(PacketPlayerLeave, h.handleLeave)
	r.On(PacketPlayerMove, h.handleMove)
	r.On(PacketInventorySync, h.handleInventory)
	r.On(PacketGameEvent, h.handleGameEvent)
	r.On(PacketNPCSync, h.handleNPCSync)
	r.On(PacketNPCUpdate, h.handleNPCUpdate)
	r.On(PacketNPCRemove, h.handleNPCRemove)
	r.On(PacketTriggerObjective, h.handleTriggerObjective)
	r.On(PacketStartQuest, h.handleStartQuest)
	r.On(PacketFailQuest, h.handleFailQuest)
	r.On(PacketAbortQuest, h.handleAbortQuest)
}

// publish hands ev to the game event hook, or straight to the engine when
// no hook center is wired. An interrupt from another subscriber cancels
// the event.
func (h *Handler) publish(ctx context.Context, ev quest.Event) error {
	if h.hooks == nil {
		h.svc.Handle(ctx, ev)
		return nil
	}
	if _, err := h.hooks.Trigger(ctx, hook.OnGameEvent, ev); err != nil && !errors.Is(err, hook.ErrInterrupt) {
		return err
	}
	return nil
}

func (h *Handler) handleJoin(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[PlayerJoinPayload](raw)
	if err != nil {
		return err
	}
	id, err := parsePlayer(p.Player)
	if err != nil {
		return err
	}
	h.players.Join(id, p.Name, p.Location, p.Inventory)
	if err := h.svc.Join(ctx, id); err != nil {
		return err
	}
	if h.hooks != nil {
		_, _ = h.hooks.Trigger(ctx, hook.OnPlayerLogin, id)
	}
	return nil
}

func (h *Handler) handleLeave(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[PlayerRefPayload](raw)
	if err != nil {
		return err
	}
	id, err := parsePlayer(p.Player)
	if err != nil {
		return err
	}
	pl := h.players.Get(id)
	if pl == nil {
		return nil
	}
	// Disconnect triggers still see the player online.
	if err := h.publish(ctx, quest.PlayerDisconnected{
		Base: quest.Base{Player: id, World: pl.Location().World},
	}); err != nil {
		h.logger.Warn("disconnect event failed", zap.String("player", id.String()), zap.Error(err))
	}
	h.svc.Leave(ctx, id)
	h.players.Leave(id)
	if h.hooks != nil {
		_, _ = h.hooks.Trigger(ctx, hook.OnPlayerLogout, id)
	}
	return nil
}

func (h *Handler) handleMove(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[PlayerMovePayload](raw)
	if err != nil {
		return err
	}
	id, err := parsePlayer(p.Player)
	if err != nil {
		return err
	}
	pl := h.players.Get(id)
	if pl == nil {
		return fmt.Errorf("player %s is not online: %w", id, quest.ErrNotFound)
	}
	from := pl.Location().World
	pl.SetLocation(p.Location)
	if p.Location.World == "" || world.SameName(from, p.Location.World) {
		return nil
	}
	return h.publish(ctx, quest.WorldChanged{
		Base: quest.Base{Player: id, World: p.Location.World},
		From: from,
	})
}

func (h *Handler) handleInventory(_ context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[InventorySyncPayload](raw)
	if err != nil {
		return err
	}
	id, err := parsePlayer(p.Player)
	if err != nil {
		return err
	}
	if !h.players.SyncInventory(id, p.Inventory) {
		return fmt.Errorf("player %s is not online: %w", id, quest.ErrNotFound)
	}
	return nil
}

func (h *Handler) handleGameEvent(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[GameEventPayload](raw)
	if err != nil {
		return err
	}
	id := uuid.Nil
	current := ""
	if p.Kind != EventNPCDied {
		if id, err = parsePlayer(p.Player); err != nil {
			return err
		}
		pl := h.players.Get(id)
		if pl == nil {
			h.logger.Debug("game event for offline player", zap.String("player", p.Player), zap.String("kind", p.Kind))
			return nil
		}
		current = pl.Location().World
		if p.Inventory != nil {
			h.players.SyncInventory(id, p.Inventory)
		}
	}
	ev, err := p.Event(id, current)
	if err != nil {
		return err
	}
	return h.publish(ctx, ev)
}

func (h *Handler) handleNPCSync(_ context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[NPCSyncPayload](raw)
	if err != nil {
		return err
	}
	h.npcs.Sync(p.NPCs)
	return nil
}

func (h *Handler) handleNPCUpdate(_ context.Context, _ *Conn, raw json.RawMessage) error {
	n, err := decode[npc.NPC](raw)
	if err != nil {
		return err
	}
	if n.ID <= 0 {
		return fmt.Errorf("npc id must be positive: %w", quest.ErrValidation)
	}
	h.npcs.Upsert(n)
	return nil
}

func (h *Handler) handleNPCRemove(_ context.Context, _ *Conn, raw json.RawMessage) error {
	p, err := decode[NPCRemovePayload](raw)
	if err != nil {
		return err
	}
	h.npcs.Remove(p.ID)
	return nil
}

func (h *Handler) questCommand(raw json.RawMessage) (QuestCommandPayload, uuid.UUID, error) {
	p, err := decode[QuestCommandPayload](raw)
	if err != nil {
		return p, uuid.Nil, err
	}
	id, err := parsePlayer(p.Player)
	return p, id, err
}

func (h *Handler) handleTriggerObjective(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, id, err := h.questCommand(raw)
	if err != nil {
		return err
	}
	return h.svc.TriggerObjective(ctx, id, p.Quest, p.Name)
}

func (h *Handler) handleStartQuest(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, id, err := h.questCommand(raw)
	if err != nil {
		return err
	}
	return h.svc.StartQuest(ctx, id, p.Quest, p.Force, p.Silent, p.NoTriggers)
}

func (h *Handler) handleFailQuest(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, id, err := h.questCommand(raw)
	if err != nil {
		return err
	}
	return h.svc.Fail(ctx, id, p.Quest)
}

func (h *Handler) handleAbortQuest(ctx context.Context, _ *Conn, raw json.RawMessage) error {
	p, id, err := h.questCommand(raw)
	if err != nil {
		return err
	}
	return h.svc.Abort(ctx, id, p.Quest)
}
