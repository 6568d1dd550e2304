// Package auth 提供账号注册与登录能力。
//
// 认证实现以显式的变体注册表组织：每个变体以名称注册一个构造函数，
// 服务器按配置名实例化。新增认证方式只需注册新变体，无需修改既有代码。
package auth

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// RegisterRequest 是一次注册尝试的全部输入。
type RegisterRequest struct {
	Username string
	Password string
	Email    string
	Phone    string
	// Remote 为对端地址，写入生成的用户档案。
	Remote string
}

// LoginRequest 是一次登录尝试的全部输入。
type LoginRequest struct {
	Username string
	Password string
	Remote   string
}

// Authenticator 是认证能力契约。
//
// 两个方法只负责凭据校验与档案构建，不触碰在线注册表；
// 同名用户重复在线由注册表在 Add 时拒绝。
type Authenticator interface {
	// Register 创建新账号并返回其档案。
	// 用户名已存在返回 merr.ErrUserAlreadyExists，字段非法返回 merr.ErrCredentialInvalid。
	Register(ctx context.Context, req RegisterRequest) (*chat.UserProfile, error)

	// Login 校验既有账号并返回其档案。
	//
	// 被封禁的账号在口令校验之前即被拒绝（merr.ErrUserBanned），
	// 停用账号返回 merr.ErrUserInactive，口令不符返回 merr.ErrCredentialMismatch。
	Login(ctx context.Context, req LoginRequest) (*chat.UserProfile, error)
}

// Deps 是认证变体构造所需的协作方。
type Deps struct {
	Credentials store.CredentialStore
	Bans        store.BanStore
}

// Constructor 按依赖构造一个认证变体实例。
type Constructor func(deps Deps) (Authenticator, error)

var (
	variantsMu sync.RWMutex
	variants   = make(map[string]Constructor)
)

// RegisterVariant 注册一个认证变体。重名注册返回错误。
func RegisterVariant(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return merr.WrapErrAuthVariantUnknown(name, "empty name or nil constructor")
	}

	variantsMu.Lock()
	defer variantsMu.Unlock()
	if _, exists := variants[name]; exists {
		return merr.WrapErrAuthVariantUnknown(name, "variant already registered")
	}
	variants[name] = ctor
	return nil
}

// New 按变体名实例化认证器。未注册的名称返回 merr.ErrAuthVariantUnknown。
func New(name string, deps Deps) (Authenticator, error) {
	variantsMu.RLock()
	ctor, ok := variants[name]
	variantsMu.RUnlock()
	if !ok {
		return nil, merr.WrapErrAuthVariantUnknown(name)
	}
	return ctor(deps)
}

// Variants 返回全部已注册的变体名，按字典序排列。
func Variants() []string {
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	names := lo.Keys(variants)
	slices.Sort(names)
	return names
}
