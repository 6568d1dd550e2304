// Package store 提供封禁、禁言、权限与凭据的持久化契约及其内存/文件两种实现。
//
// 所有实现并发安全。文件实现使用原子改写（临时文件 + rename）保证
// 读取方不会看到半写状态，并通过 fsnotify 监听外部编辑后重新加载。
package store

import (
	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/typeutil"
)

// Credential 是凭据存储中的一条账号记录。
// Hash 为 bcrypt 摘要，绝不存储明文口令。
type Credential struct {
	ID       uint64    `json:"id"`
	Username string    `json:"username"`
	Hash     string    `json:"hash"`
	Role     chat.Role `json:"role"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	Active   bool      `json:"active"`
}

// BanStore 记录被封禁的用户名。封禁的用户无法通过登录进入在线状态。
type BanStore interface {
	IsBanned(username string) (bool, error)
	// Ban 封禁用户。重复封禁无副作用。
	Ban(username string) error
	// Unban 解除封禁。对未封禁的用户调用无副作用。
	Unban(username string) error
	// ListBanned 返回全部被封禁的用户名，按字典序排列。
	ListBanned() ([]string, error)
}

// MuteStore 记录被禁言的用户名。禁言的用户可以在线但其聊天事件会被拦截。
type MuteStore interface {
	IsMuted(username string) (bool, error)
	Mute(username string) error
	Unmute(username string) error
	ListMuted() ([]string, error)
}

// PermissionStore 记录个别用户在角色基础集合之外的权限增删。
//
// 语义：有效权限 = 角色基础集合 ∪ Granted − Revoked。
// Grant 与 Revoke 互斥：授予会移除同权限码的撤销记录，反之亦然。
// 重复授予/撤销均幂等。
type PermissionStore interface {
	Grant(username string, perm int) error
	Revoke(username string, perm int) error
	Granted(username string) (typeutil.Set[int], error)
	Revoked(username string) (typeutil.Set[int], error)
}

// CredentialStore 按用户名存取账号记录。
type CredentialStore interface {
	// Save 写入记录（按用户名覆盖）。ID 为零时由存储分配。
	Save(cred Credential) (Credential, error)
	// Lookup 按用户名查找，不存在时返回 merr.ErrUserNotFound。
	Lookup(username string) (Credential, error)
	Exists(username string) (bool, error)
	// Rename 将记录迁移到新用户名。
	// 原名不存在返回 merr.ErrUserNotFound，新名已占用返回 merr.ErrUserAlreadyExists。
	Rename(oldName, newName string) error
}
