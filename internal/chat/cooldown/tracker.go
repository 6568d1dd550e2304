package cooldown

import (
	"sync"
	"time"
)

// Tracker 记录一组键的冷却到期时刻。
//
// 典型用法是以 "用户名:命令名" 为键限制命令触发频率，
// 但 Tracker 本身不关心键的语义。
// 所有方法并发安全；过期条目在读取时惰性清理。
type Tracker struct {
	mu       sync.RWMutex
	expireAt map[string]time.Time

	duration time.Duration
	now      func() time.Time
}

// Option 调整 Tracker 的构造参数。
type Option func(t *Tracker)

// WithClock 注入时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker 创建一个冷却跟踪器，duration 为 Set 使用的默认冷却时长。
func NewTracker(duration time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		expireAt: make(map[string]time.Time),
		duration: duration,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsOnCooldown 返回键当前是否处于冷却中。
func (t *Tracker) IsOnCooldown(key string) bool {
	return t.Remaining(key) > 0
}

// Remaining 返回键的剩余冷却时长，未冷却时返回 0。
func (t *Tracker) Remaining(key string) time.Duration {
	t.mu.RLock()
	deadline, ok := t.expireAt[key]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	remaining := deadline.Sub(t.now())
	if remaining <= 0 {
		// 已过期，顺手清掉。
		t.mu.Lock()
		if cur, ok := t.expireAt[key]; ok && !cur.After(deadline) {
			delete(t.expireAt, key)
		}
		t.mu.Unlock()
		return 0
	}
	return remaining
}

// Set 以默认时长开启键的冷却。
func (t *Tracker) Set(key string) {
	t.SetFor(key, t.duration)
}

// SetFor 以指定时长开启键的冷却，覆盖既有的到期时刻。
// duration 不为正时等同于 Remove。
func (t *Tracker) SetFor(key string, duration time.Duration) {
	if duration <= 0 {
		t.Remove(key)
		return
	}
	deadline := t.now().Add(duration)
	t.mu.Lock()
	t.expireAt[key] = deadline
	t.mu.Unlock()
}

// Remove 立即清除键的冷却。对不存在的键调用无副作用。
func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	delete(t.expireAt, key)
	t.mu.Unlock()
}

// Len 返回当前登记的键数量（含尚未惰性清理的过期键），测试与指标用。
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.expireAt)
}
