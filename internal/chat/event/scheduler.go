package event

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// DelayedTask 表示一次性的延时回调。
// 创建后只会变为到期一次，执行或取消后即被丢弃，不会重复。
type DelayedTask struct {
	due      time.Time
	priority Priority
	seq      uint64
	fn       func()

	cancelled atomic.Bool
}

// Cancel 取消尚未到期的任务。
// 已经开始执行的任务不受影响；取消后的任务到期时被直接丢弃，不会调用回调。
func (t *DelayedTask) Cancel() {
	t.cancelled.Store(true)
}

// taskHeap 按 (到期时间, 优先级降序, 注册序号) 排序的最小堆。
// 优先级只用于多个任务在同一时刻到期时的平局裁决。
type taskHeap []*DelayedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*DelayedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

// DelayScheduler 调度一次性的延时回调。
//
// 实现：单个分发协程守着一个最小堆，堆顶到期前通过 timer 休眠；
// Schedule 只入堆并唤醒分发协程，绝不阻塞调用方。
// 回调内的 panic 被捕获并记录，调度器继续运行。
type DelayScheduler struct {
	mu     sync.Mutex
	tasks  taskHeap
	seq    uint64
	closed bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewDelayScheduler 创建并启动一个延时调度器。
func NewDelayScheduler() *DelayScheduler {
	s := &DelayScheduler{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	heap.Init(&s.tasks)
	go s.run()
	return s
}

// Schedule 注册一个在 delay 之后执行一次的回调。
//
// priority 只在多个任务于同一时刻到期时决定执行先后。
// 返回的 DelayedTask 可用于在到期前取消。
func (s *DelayScheduler) Schedule(delay time.Duration, priority Priority, fn func()) (*DelayedTask, error) {
	if fn == nil {
		return nil, merr.WrapErrListenerInvalid("delayed", "missing callback")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, merr.ErrSchedulerStopped
	}
	s.seq++
	task := &DelayedTask{
		due:      time.Now().Add(delay),
		priority: priority,
		seq:      s.seq,
		fn:       fn,
	}
	heap.Push(&s.tasks, task)
	s.mu.Unlock()

	// 非阻塞唤醒：分发协程随后会重新计算最近的到期时间。
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return task, nil
}

// Close 停止调度器。尚未到期的任务被丢弃，不会再被执行。
func (s *DelayScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// run 为调度器的唯一分发协程。
func (s *DelayScheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		hasTask := len(s.tasks) > 0
		var wait time.Duration
		if hasTask {
			wait = time.Until(s.tasks[0].due)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !hasTask {
			// 堆为空，等待新任务或停止信号。
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
			s.fireDue()
		case <-s.wake:
			// 有新任务入堆，重新计算最近到期时间。
		case <-s.stop:
			return
		}
	}
}

// fireDue 弹出并执行所有已到期的任务。
// 堆序保证同一时刻到期的任务按优先级降序执行。
func (s *DelayScheduler) fireDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 || s.tasks[0].due.After(now) {
			s.mu.Unlock()
			return
		}
		task := heap.Pop(&s.tasks).(*DelayedTask)
		s.mu.Unlock()

		if task.cancelled.Load() {
			continue
		}
		s.invoke(task)
	}
}

// invoke 执行单个任务回调，吸收其中的 panic。
func (s *DelayScheduler) invoke(task *DelayedTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("delayed task panicked",
				zap.Uint64("seq", task.seq),
				zap.Any("panic", r))
		}
	}()
	task.fn()
}
