package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/model"
	"github.com/kasuganosora/questforge/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

var _ quest.Journal = (*Service)(nil)

func TestNew_StartsWorker(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	require.NotNil(t, svc)
	svc.Stop(context.Background())
}

func TestRecord_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	player := uuid.New()

	svc.Record(quest.JournalEntry{
		TraceID: "trace-123",
		Player:  player,
		Quest:   "wolves",
		Action:  "accepted",
		Detail:  "forced",
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.QuestJournal
	db.Find(&logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, player.String(), logs[0].PlayerUUID)
	assert.Equal(t, "wolves", logs[0].Quest)
	assert.Equal(t, "accepted", logs[0].Action)
	assert.Equal(t, "forced", logs[0].Detail)
}

func TestRecord_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())

	for i := 0; i < 100; i++ {
		svc.Record(quest.JournalEntry{Player: uuid.New(), Quest: "q", Action: "batch"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.QuestJournal{}).Count(&count)
	assert.Equal(t, int64(100), count)
}

func TestRecord_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })

	svc.Record(quest.JournalEntry{Player: uuid.New(), Quest: "q", Action: "timer"})

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.QuestJournal{}).Count(&count)
		return count == 1
	}, 5*time.Second, 100*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	svc.Stop(context.Background())
	svc.Stop(context.Background()) // must not panic
	svc.Record(quest.JournalEntry{Action: "late"})
}

func TestHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	player := uuid.New()
	for _, a := range []string{"accepted", "objective_completed", "completed"} {
		svc.Record(quest.JournalEntry{Player: player, Quest: "wolves", Action: a})
	}
	svc.Record(quest.JournalEntry{Player: uuid.New(), Quest: "wolves", Action: "accepted"})
	svc.Stop(context.Background())

	rows, err := svc.History(context.Background(), player, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "completed", rows[0].Action)
	assert.Equal(t, "objective_completed", rows[1].Action)
}

func TestRecord_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	for i := 0; i < 1030; i++ {
		svc.Record(quest.JournalEntry{Action: "flood"})
	}
	svc.Stop(context.Background())
}

func TestFlush_WritesPendingEntries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })
	player := uuid.New()

	svc.Record(quest.JournalEntry{Player: player, Quest: "wolves", Action: "accepted"})
	svc.Record(quest.JournalEntry{Player: player, Quest: "wolves", Action: "completed"})
	require.NoError(t, svc.Flush(context.Background()))

	var count int64
	db.Model(&model.QuestJournal{}).Where("player_uuid = ?", player.String()).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestHistory_IncludesQueuedEntries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	t.Cleanup(func() { svc.Stop(context.Background()) })
	player := uuid.New()

	svc.Record(quest.JournalEntry{Player: player, Quest: "wolves", Action: "accepted"})
	rows, err := svc.History(context.Background(), player, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "accepted", rows[0].Action)
}

func TestFlush_AfterStopReturns(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, nop())
	svc.Stop(context.Background())
	assert.NoError(t, svc.Flush(context.Background()))
}
