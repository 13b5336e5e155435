package player

import (
	"encoding/json"

	"github.com/kasuganosora/questforge/game/item"
)

// Packet is the envelope exchanged with the host game server.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound packet types.
const (
	PacketMessage   = "message"
	PacketConsole   = "console"
	PacketCommand   = "command"
	PacketInventory = "inventory_change"
)

// NewPacket encodes payload into a packet of type typ.
func NewPacket(typ string, payload any) (*Packet, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Packet{Type: typ, Payload: raw}, nil
}

// Link carries packets to the host game server.
type Link interface {
	Send(pkt *Packet) error
}

// MessagePayload is the payload of a message packet.
type MessagePayload struct {
	Player string `json:"player"`
	Text   string `json:"text"`
}

// CommandPayload is the payload of a command packet.
type CommandPayload struct {
	Command string `json:"command"`
}

// InventoryPayload tells the host to add (delta > 0) or remove items.
type InventoryPayload struct {
	Player string     `json:"player"`
	Item   item.Stack `json:"item"`
	Delta  int        `json:"delta"`
}
