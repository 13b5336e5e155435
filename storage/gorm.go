// Package storage persists quest definitions and player quest state.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const renameBatch = 200

// GormStore keeps quest and player documents as JSON columns.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore. The tables must already be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) LoadQuests(ctx context.Context) ([]quest.QuestDocument, error) {
	var rows []model.QuestRecord
	if err := s.db.WithContext(ctx).Order("`key`").Find(&rows).Error; err != nil {
		return nil, err
	}
	docs := make([]quest.QuestDocument, 0, len(rows))
	for _, r := range rows {
		var d quest.QuestDocument
		if err := json.Unmarshal(r.Definition, &d); err != nil {
			return nil, fmt.Errorf("decode quest %s: %w", r.Name, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *GormStore) SaveQuest(ctx context.Context, doc quest.QuestDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoUpdates: clause.AssignmentColumns([]string{"name", "definition", "updated_at"}),
	}).Create(&model.QuestRecord{
		Key:        quest.FoldName(doc.Name),
		Name:       doc.Name,
		Definition: datatypes.JSON(data),
	}).Error
}

func (s *GormStore) DeleteQuest(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).
		Where("`key` = ?", quest.FoldName(name)).
		Delete(&model.QuestRecord{}).Error
}

// RenameQuest moves the definition and rewrites every stored player
// document in one transaction.
func (s *GormStore) RenameQuest(ctx context.Context, from, to string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec model.QuestRecord
		if err := tx.Where("`key` = ?", quest.FoldName(from)).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("quest %s is not stored", from)
			}
			return err
		}
		var d quest.QuestDocument
		if err := json.Unmarshal(rec.Definition, &d); err != nil {
			return fmt.Errorf("decode quest %s: %w", from, err)
		}
		d.Name = to
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if err := tx.Delete(&rec).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.QuestRecord{
			Key:        quest.FoldName(to),
			Name:       to,
			Definition: datatypes.JSON(data),
			CreatedAt:  rec.CreatedAt,
		}).Error; err != nil {
			return err
		}

		var batch []model.PlayerRecord
		return tx.FindInBatches(&batch, renameBatch, func(btx *gorm.DB, _ int) error {
			for _, p := range batch {
				var pd quest.PlayerDocument
				if err := json.Unmarshal(p.State, &pd); err != nil {
					return fmt.Errorf("decode player %s: %w", p.UUID, err)
				}
				if !pd.RenameQuest(from, to) {
					continue
				}
				state, err := json.Marshal(pd)
				if err != nil {
					return err
				}
				if err := tx.Model(&model.PlayerRecord{}).
					Where("uuid = ?", p.UUID).
					Update("state", datatypes.JSON(state)).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
	})
}

func (s *GormStore) LoadPlayer(ctx context.Context, id uuid.UUID) (*quest.PlayerDocument, error) {
	var rec model.PlayerRecord
	err := s.db.WithContext(ctx).Where("uuid = ?", id.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d quest.PlayerDocument
	if err := json.Unmarshal(rec.State, &d); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	return &d, nil
}

func (s *GormStore) SavePlayers(ctx context.Context, docs []quest.PlayerDocument) error {
	if len(docs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range docs {
			data, err := json.Marshal(d)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{
				DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
			}).Create(&model.PlayerRecord{UUID: d.UUID, State: datatypes.JSON(data)}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
