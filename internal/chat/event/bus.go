package event

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/metrics"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/conc"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// Priority 表示监听器的分发优先级。
// 数值越大越先被调用；相同优先级按注册顺序稳定排序。
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ListenerFunc 为监听器回调签名。
// 回调返回的 error 只用于日志记录，不影响后续分发。
type ListenerFunc func(ev Event) error

// Registration 是监听器注册时必须提供的全部元数据。
// 不使用任何运行期反射：Kind/Priority/Async 全部在此显式声明。
type Registration struct {
	// Name 为监听器标识，Unregister 按该名称移除。
	Name string
	// Kind 为监听器声明关心的事件种类（可为父种类）。
	Kind Kind
	// Priority 为分发优先级。
	Priority Priority
	// Async 为 true 时，回调被提交到异步池执行，Trigger 不等待其完成。
	Async bool
	// Fn 为监听器回调。
	Fn ListenerFunc
}

// listenerEntry 是注册表内部条目，seq 用于同优先级的稳定排序。
type listenerEntry struct {
	Registration
	seq uint64
}

// Bus 是进程内事件总线。
//
// 设计要点：
//   - 监听器列表使用写时复制：注册/注销在锁内重建切片并原子替换快照，
//     Trigger 只读取快照，永远不会因并发修改而漏发或重复；
//   - 同步监听器在触发方协程内按优先级降序串行执行，因而可以通过
//     SetCancelled 阻断排在其后的监听器；
//   - 异步监听器提交到独立的 conc.Pool，慢监听器不会拖住连接 I/O 协程。
type Bus struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]listenerEntry]
	pool      *conc.Pool
	seq       atomic.Uint64
}

// NewBus 创建一个事件总线。
// pool 为异步监听器使用的协程池，不可为 nil。
func NewBus(pool *conc.Pool) *Bus {
	b := &Bus{pool: pool}
	empty := make([]listenerEntry, 0)
	b.listeners.Store(&empty)
	return b
}

// Register 注册一个监听器。
//
// 元数据不完整（缺回调、名称为空、未知 Kind）时返回
// merr.ErrListenerInvalid，监听器被跳过，总线继续使用既有监听器工作。
func (b *Bus) Register(reg Registration) error {
	if reg.Fn == nil {
		return merr.WrapErrListenerInvalid(reg.Name, "missing callback")
	}
	if reg.Name == "" {
		return merr.WrapErrListenerInvalid(reg.Name, "missing name")
	}
	if !reg.Kind.Known() {
		return merr.WrapErrListenerInvalid(reg.Name, fmt.Sprintf("unknown event kind %q", reg.Kind))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := append([]listenerEntry{}, *b.listeners.Load()...)
	next = append(next, listenerEntry{Registration: reg, seq: b.seq.Inc()})
	sortListeners(next)
	b.listeners.Store(&next)

	log.Debug("listener registered",
		zap.String("listener", reg.Name),
		zap.String("kind", string(reg.Kind)),
		zap.Stringer("priority", reg.Priority),
		zap.Bool("async", reg.Async))
	return nil
}

// Unregister 移除全部名称匹配的监听器。
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.listeners.Load()
	next := make([]listenerEntry, 0, len(cur))
	for _, entry := range cur {
		if entry.Name != name {
			next = append(next, entry)
		}
	}
	sortListeners(next)
	b.listeners.Store(&next)
}

// Trigger 将事件分发给所有匹配的监听器。
//
// 行为：
//   - 按优先级降序遍历快照；事件一旦被取消，立即停止调用剩余监听器；
//   - 同步监听器在当前协程内执行；异步监听器提交到池后继续遍历，不等待；
//   - 回调 panic 或返回 error 只记录日志，绝不向触发方传播。
func (b *Bus) Trigger(ev Event) {
	start := time.Now()
	kind := string(ev.Kind())
	metrics.EventsTriggered.WithLabelValues(kind).Inc()

	snapshot := *b.listeners.Load()
	for i := range snapshot {
		if ev.Cancelled() {
			metrics.EventsCancelled.WithLabelValues(kind).Inc()
			break
		}

		entry := snapshot[i]
		if !ev.Kind().Matches(entry.Kind) {
			continue
		}

		if entry.Async {
			fn, name := entry.Fn, entry.Name
			if err := b.pool.Submit(func() {
				b.invoke(name, fn, ev)
			}); err != nil {
				log.Warn("async listener submit failed",
					zap.String("listener", name),
					zap.String("event", ev.Name()),
					zap.Error(err))
			}
			continue
		}

		b.invoke(entry.Name, entry.Fn, ev)
	}

	metrics.EventDispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// invoke 执行单个监听器回调，并吸收其中的 panic 与错误。
func (b *Bus) invoke(name string, fn ListenerFunc, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked",
				zap.String("listener", name),
				zap.String("event", ev.Name()),
				zap.Any("panic", r))
		}
	}()

	if err := fn(ev); err != nil {
		log.Warn("listener returned error",
			zap.String("listener", name),
			zap.String("event", ev.Name()),
			zap.Error(err))
	}
}

// sortListeners 按优先级降序排序，同优先级按注册序号升序保持稳定。
func sortListeners(entries []listenerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].seq < entries[j].seq
	})
}
