package server

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/command"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/metrics"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// SessionRegistry 维护在线用户名到会话的映射。
//
// 特性：
//   - 读写锁保证并发安全；
//   - 同一用户名同一时刻至多在线一次，重复 Add 返回错误而不是覆盖旧会话；
//   - Remove 幂等；Range 在遍历前复制快照，避免持锁执行回调。
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	bans store.BanStore
}

// 确保 SessionRegistry 满足管理命令需要的在线视图。
var _ command.OnlineRegistry = (*SessionRegistry)(nil)

// NewSessionRegistry 创建一个空的在线注册表。
func NewSessionRegistry(bans store.BanStore) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		bans:     bans,
	}
}

// Add 将认证完成的会话登记为在线。
//
// 行为：
//   - 封禁用户拒绝登记，返回 merr.ErrUserBanned；
//   - 用户名已在线返回 merr.ErrUserAlreadyOnline，旧会话不受影响。
func (r *SessionRegistry) Add(sess *Session) error {
	profile := sess.Profile()
	if profile == nil {
		return merr.WrapErrSessionNotFound("", "session has no profile")
	}

	banned, err := r.bans.IsBanned(profile.Username)
	if err != nil {
		return err
	}
	if banned {
		return merr.WrapErrUserBanned(profile.Username)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[profile.Username]; exists {
		return merr.WrapErrUserAlreadyOnline(profile.Username)
	}
	r.sessions[profile.Username] = sess
	metrics.OnlineSessions.Set(float64(len(r.sessions)))
	return nil
}

// Remove 将用户移出在线表。幂等，不关闭会话本身。
func (r *SessionRegistry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
	metrics.OnlineSessions.Set(float64(len(r.sessions)))
}

// Get 实现 command.OnlineRegistry。
func (r *SessionRegistry) Get(username string) (chat.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[username]
	if !ok {
		return nil, false
	}
	return sess, true
}

// Session 按用户名取在线会话本体。
func (r *SessionRegistry) Session(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[username]
	return sess, ok
}

// ListOnline 实现 command.OnlineRegistry，返回按字典序排列的在线用户名。
func (r *SessionRegistry) ListOnline() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Kick 实现 command.OnlineRegistry：通知并断开指定用户。
func (r *SessionRegistry) Kick(username, reason string) error {
	sess, ok := r.Session(username)
	if !ok {
		return merr.WrapErrSessionNotFound(username)
	}

	_ = sess.SendMessage(chat.ColorError("disconnected: " + reason))
	if err := sess.Close(); err != nil {
		log.Warn("kick close failed",
			zap.String("user", username),
			zap.Error(err))
	}
	return nil
}

// Rename 实现 command.OnlineRegistry：迁移在线表的注册键。
// 目标不在线时无副作用。
func (r *SessionRegistry) Rename(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[oldName]; ok {
		delete(r.sessions, oldName)
		r.sessions[newName] = sess
	}
}

// Range 以快照遍历全部在线会话，回调返回 false 时提前终止。
func (r *SessionRegistry) Range(fn func(sess *Session) bool) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snapshot = append(snapshot, sess)
	}
	r.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

// Broadcast 向全部在线会话发送一行文本。
func (r *SessionRegistry) Broadcast(line string) {
	r.Range(func(sess *Session) bool {
		if err := sess.SendMessage(line); err != nil {
			log.Debug("broadcast line dropped",
				zap.Uint64("session", sess.ID()),
				zap.Error(err))
		}
		return true
	})
}

// Count 返回在线会话数。
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
