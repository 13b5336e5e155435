package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestRecord stores one quest definition as a JSON document.
type QuestRecord struct {
	// Key is the case-folded quest name.
	Key        string         `gorm:"primaryKey;size:64" json:"key"`
	Name       string         `gorm:"size:64;not null" json:"name"`
	Definition datatypes.JSON `gorm:"not null" json:"definition"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// PlayerRecord stores a player's quest state as a JSON document.
type PlayerRecord struct {
	UUID      string         `gorm:"primaryKey;size:36" json:"uuid"`
	State     datatypes.JSON `gorm:"not null" json:"state"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuestJournal records quest lifecycle changes.
type QuestJournal struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string    `gorm:"index:idx_journal_trace;size:36;not null" json:"trace_id"`
	PlayerUUID string    `gorm:"index:idx_journal_player;size:36;not null" json:"player_uuid"`
	Quest      string    `gorm:"index:idx_journal_quest;size:64;not null" json:"quest"`
	Action     string    `gorm:"size:32;not null" json:"action"`
	Detail     string    `gorm:"type:text" json:"detail"`
	CreatedAt  time.Time `gorm:"index:idx_journal_created;autoCreateTime:milli" json:"created_at"`
}
