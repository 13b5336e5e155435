package item

import (
	"maps"
	"slices"
	"strings"
)

// MaxStackSize is the largest amount a single inventory slot holds.
const MaxStackSize = 64

// Meta is the identifying metadata of an item beyond its material.
type Meta struct {
	DisplayName     string         `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Lore            []string       `json:"lore,omitempty" yaml:"lore,omitempty"`
	CustomModelData int            `json:"custom_model_data,omitempty" yaml:"custom_model_data,omitempty"`
	Enchantments    map[string]int `json:"enchantments,omitempty" yaml:"enchantments,omitempty"`
}

// Equal reports whether two metas describe the same item variant.
func (m Meta) Equal(o Meta) bool {
	return m.DisplayName == o.DisplayName &&
		m.CustomModelData == o.CustomModelData &&
		slices.Equal(m.Lore, o.Lore) &&
		maps.Equal(m.Enchantments, o.Enchantments)
}

// Stack is an amount of one item variant.
type Stack struct {
	Material string `json:"material" yaml:"material"`
	Amount   int    `json:"amount" yaml:"amount"`
	Meta     Meta   `json:"meta,omitzero" yaml:"meta,omitempty"`
}

// NormalizeMaterial upper-cases a material name the way the host reports it.
func NormalizeMaterial(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}

// Similar reports whether s and o are the same item variant, ignoring amount.
func (s Stack) Similar(o Stack) bool {
	return s.Material == o.Material && s.Meta.Equal(o.Meta)
}

// IsZero reports whether the stack holds nothing.
func (s Stack) IsZero() bool {
	return s.Material == "" || s.Amount <= 0
}

// Clone returns a deep copy of s.
func (s Stack) Clone() Stack {
	c := s
	c.Meta.Lore = slices.Clone(s.Meta.Lore)
	c.Meta.Enchantments = maps.Clone(s.Meta.Enchantments)
	return c
}

// Label renders the stack for player-facing messages.
func (s Stack) Label() string {
	if s.Meta.DisplayName != "" {
		return s.Meta.DisplayName
	}
	return strings.ToLower(s.Material)
}
