package world

import (
	"math"

	"golang.org/x/text/cases"
)

// AllWorlds is the world filter that matches every world.
const AllWorlds = "ALL"

var fold = cases.Fold()

// SameName compares two world names case-insensitively.
func SameName(a, b string) bool {
	return fold.String(a) == fold.String(b)
}

// MatchesFilter reports whether world passes filter ("ALL" or a world name).
func MatchesFilter(filter, world string) bool {
	if filter == "" || SameName(filter, AllWorlds) {
		return true
	}
	return SameName(filter, world)
}

// Location is a position inside a named world.
type Location struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Distance returns the euclidean distance between two locations, or +Inf
// when they are in different worlds.
func (l Location) Distance(o Location) float64 {
	if !SameName(l.World, o.World) {
		return math.Inf(1)
	}
	dx, dy, dz := l.X-o.X, l.Y-o.Y, l.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// BlockX returns the block coordinate containing X.
func (l Location) BlockX() int { return int(math.Floor(l.X)) }

// BlockY returns the block coordinate containing Y.
func (l Location) BlockY() int { return int(math.Floor(l.Y)) }

// BlockZ returns the block coordinate containing Z.
func (l Location) BlockZ() int { return int(math.Floor(l.Z)) }
