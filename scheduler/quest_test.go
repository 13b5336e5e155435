package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeEngine struct {
	flushes, evictions int32
	err                error
}

func (f *fakeEngine) Flush(context.Context) error {
	atomic.AddInt32(&f.flushes, 1)
	return f.err
}

func (f *fakeEngine) EvictOffline(context.Context) int {
	atomic.AddInt32(&f.evictions, 1)
	return 2
}

func TestAddQuestTasks(t *testing.T) {
	s := New(newNop())
	defer s.Stop()
	e := &fakeEngine{err: errors.New("store down")}

	s.AddQuestTasks(e, 20*time.Millisecond, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{TaskQuestFlush, TaskQuestEvict}, s.ListTickers())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&e.flushes) >= 2 && atomic.LoadInt32(&e.evictions) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestAddQuestTasks_ZeroIntervalSkips(t *testing.T) {
	s := New(newNop())
	defer s.Stop()
	s.AddQuestTasks(&fakeEngine{}, 0, time.Hour)
	assert.Equal(t, []string{TaskQuestEvict}, s.ListTickers())
}
