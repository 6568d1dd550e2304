package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

func TestSchedulerFiresOnce(t *testing.T) {
	s := NewDelayScheduler()
	defer s.Close()

	fired := make(chan struct{})
	_, err := s.Schedule(10*time.Millisecond, PriorityNormal, func() {
		fired <- struct{}{}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}

	// 一次性任务不会重复触发。
	select {
	case <-fired:
		t.Fatal("task fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedulerPriorityTieBreak(t *testing.T) {
	s := NewDelayScheduler()
	defer s.Close()

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			wg.Done()
		}
	}

	// 相同延时下，高优先级任务先执行。
	wg.Add(3)
	delay := 50 * time.Millisecond
	_, err := s.Schedule(delay, PriorityLow, record("low"))
	require.NoError(t, err)
	_, err = s.Schedule(delay, PriorityUrgent, record("urgent"))
	require.NoError(t, err)
	_, err = s.Schedule(delay, PriorityNormal, record("normal"))
	require.NoError(t, err)

	wg.Wait()
	assert.Equal(t, []string{"urgent", "normal", "low"}, order)
}

func TestSchedulerCancel(t *testing.T) {
	s := NewDelayScheduler()
	defer s.Close()

	fired := false
	task, err := s.Schedule(50*time.Millisecond, PriorityNormal, func() {
		fired = true
	})
	require.NoError(t, err)

	task.Cancel()
	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired, "cancelled task must not run")
}

func TestSchedulerDoesNotBlockCaller(t *testing.T) {
	s := NewDelayScheduler()
	defer s.Close()

	start := time.Now()
	_, err := s.Schedule(time.Hour, PriorityNormal, func() {})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	s := NewDelayScheduler()
	defer s.Close()

	_, err := s.Schedule(time.Millisecond, PriorityNormal, func() {
		panic("boom")
	})
	require.NoError(t, err)

	fired := make(chan struct{})
	_, err = s.Schedule(20*time.Millisecond, PriorityNormal, func() {
		close(fired)
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduler stopped after a panicking callback")
	}
}

func TestSchedulerClosed(t *testing.T) {
	s := NewDelayScheduler()
	s.Close()

	_, err := s.Schedule(time.Millisecond, PriorityNormal, func() {})
	assert.ErrorIs(t, err, merr.ErrSchedulerStopped)

	// Close 幂等。
	s.Close()
}
