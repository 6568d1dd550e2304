package server

import "sync"

// 未显式配置时保留的回放条数。
const defaultRecentCapacity = 32

// RecentHistory 是一个固定容量的环形缓冲，保留最近广播过的聊天行。
// 新会话上线时回放这些行，让加入者看到上下文。
//
// 写满后新行覆盖最旧的行，Snapshot 始终按时间先后返回。
type RecentHistory struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRecentHistory 创建保留 capacity 条记录的回放缓冲。
// capacity 不为正时使用默认容量。
func NewRecentHistory(capacity int) *RecentHistory {
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &RecentHistory{lines: make([]string, capacity)}
}

// Append 记录一条广播行，必要时覆盖最旧的行。
func (r *RecentHistory) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

// Snapshot 按从旧到新的顺序返回当前保留的行。
func (r *RecentHistory) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Len 返回当前保留的行数。
func (r *RecentHistory) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.lines)
	}
	return r.next
}
