package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/game/quest"
)

// Cache keys.
const (
	KeyQuestDefs    = "quest:defs"    // hash: folded name -> definition JSON
	KeyQuestPlayers = "quest:players" // set of player uuids with stored state
	keyPlayerPrefix = "quest:player:"
)

func playerKey(id string) string { return keyPlayerPrefix + id }

// CacheStore keeps documents in a cache.Cache. With a Redis backend this
// gives a shared store for several engine instances.
type CacheStore struct {
	c cache.Cache
}

// NewCacheStore creates a CacheStore over c.
func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{c: c}
}

func (s *CacheStore) LoadQuests(ctx context.Context) ([]quest.QuestDocument, error) {
	all, err := s.c.HGetAll(ctx, KeyQuestDefs)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	docs := make([]quest.QuestDocument, 0, len(keys))
	for _, k := range keys {
		var d quest.QuestDocument
		if err := json.Unmarshal([]byte(all[k]), &d); err != nil {
			return nil, fmt.Errorf("decode quest %s: %w", k, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *CacheStore) SaveQuest(ctx context.Context, doc quest.QuestDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.c.HSet(ctx, KeyQuestDefs, quest.FoldName(doc.Name), string(data))
}

func (s *CacheStore) DeleteQuest(ctx context.Context, name string) error {
	return s.c.HDel(ctx, KeyQuestDefs, quest.FoldName(name))
}

// RenameQuest is not atomic: the definition moves first, then each stored
// player document is rewritten.
func (s *CacheStore) RenameQuest(ctx context.Context, from, to string) error {
	raw, err := s.c.HGet(ctx, KeyQuestDefs, quest.FoldName(from))
	if err != nil {
		if cache.IsNotFound(err) {
			return fmt.Errorf("quest %s is not stored", from)
		}
		return err
	}
	var d quest.QuestDocument
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return fmt.Errorf("decode quest %s: %w", from, err)
	}
	d.Name = to
	if err := s.c.HDel(ctx, KeyQuestDefs, quest.FoldName(from)); err != nil {
		return err
	}
	if err := s.SaveQuest(ctx, d); err != nil {
		return err
	}

	ids, err := s.c.SMembers(ctx, KeyQuestPlayers)
	if err != nil && !cache.IsNotFound(err) {
		return err
	}
	for _, id := range ids {
		pd, err := s.loadPlayer(ctx, id)
		if err != nil {
			return err
		}
		if pd == nil || !pd.RenameQuest(from, to) {
			continue
		}
		if err := s.savePlayer(ctx, *pd); err != nil {
			return err
		}
	}
	return nil
}

func (s *CacheStore) LoadPlayer(ctx context.Context, id uuid.UUID) (*quest.PlayerDocument, error) {
	return s.loadPlayer(ctx, id.String())
}

func (s *CacheStore) loadPlayer(ctx context.Context, id string) (*quest.PlayerDocument, error) {
	raw, err := s.c.Get(ctx, playerKey(id))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var d quest.PlayerDocument
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	return &d, nil
}

func (s *CacheStore) SavePlayers(ctx context.Context, docs []quest.PlayerDocument) error {
	for _, d := range docs {
		if err := s.savePlayer(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *CacheStore) savePlayer(ctx context.Context, d quest.PlayerDocument) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.c.Set(ctx, playerKey(d.UUID), string(data), 0); err != nil {
		return err
	}
	return s.c.SAdd(ctx, KeyQuestPlayers, d.UUID)
}
