package quest

import (
	"context"

	"github.com/google/uuid"
)

// Store persists quest definitions and player state as documents.
type Store interface {
	LoadQuests(ctx context.Context) ([]QuestDocument, error)
	SaveQuest(ctx context.Context, doc QuestDocument) error
	DeleteQuest(ctx context.Context, name string) error
	// RenameQuest moves a definition and rewrites stored player documents
	// that reference it.
	RenameQuest(ctx context.Context, from, to string) error

	// LoadPlayer returns (nil, nil) when nothing is stored for id.
	LoadPlayer(ctx context.Context, id uuid.UUID) (*PlayerDocument, error)
	SavePlayers(ctx context.Context, docs []PlayerDocument) error
}
