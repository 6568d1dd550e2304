package auth

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// DefaultVariant 是默认启用的口令认证变体名。
const DefaultVariant = "credential"

func init() {
	// 默认变体在包装载时注册，保证任何使用方都能以名称实例化。
	if err := RegisterVariant(DefaultVariant, newCredentialAuthenticator); err != nil {
		panic(err)
	}
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,32}$`)

const minPasswordLen = 6

// credentialAuthenticator 以 bcrypt 口令摘要实现认证。
type credentialAuthenticator struct {
	creds store.CredentialStore
	bans  store.BanStore
}

var _ Authenticator = (*credentialAuthenticator)(nil)

func newCredentialAuthenticator(deps Deps) (Authenticator, error) {
	if deps.Credentials == nil || deps.Bans == nil {
		return nil, merr.WrapErrAuthVariantUnknown(DefaultVariant, "missing credential or ban store")
	}
	return &credentialAuthenticator{creds: deps.Credentials, bans: deps.Bans}, nil
}

func (a *credentialAuthenticator) Register(ctx context.Context, req RegisterRequest) (*chat.UserProfile, error) {
	if err := validateRegister(req); err != nil {
		return nil, err
	}

	exists, err := a.creds.Exists(req.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, merr.WrapErrUserAlreadyExists(req.Username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, merr.WrapErrSecretMalformed(err)
	}

	cred, err := a.creds.Save(store.Credential{
		Username: req.Username,
		Hash:     string(hash),
		Role:     chat.RoleDefault,
		Email:    req.Email,
		Phone:    req.Phone,
		Active:   true,
	})
	if err != nil {
		return nil, err
	}

	log.Info("account registered",
		zap.String("user", cred.Username),
		zap.String("remote", req.Remote))
	return profileOf(cred, req.Remote), nil
}

func (a *credentialAuthenticator) Login(ctx context.Context, req LoginRequest) (*chat.UserProfile, error) {
	cred, err := a.creds.Lookup(req.Username)
	if err != nil {
		return nil, err
	}

	// 封禁校验先于口令校验：封禁的账号连口令尝试都不接受。
	banned, err := a.bans.IsBanned(req.Username)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, merr.WrapErrUserBanned(req.Username)
	}
	if !cred.Active {
		return nil, merr.ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.Hash), []byte(req.Password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return nil, merr.ErrCredentialMismatch
		}
		return nil, merr.WrapErrSecretMalformed(err)
	}

	return profileOf(cred, req.Remote), nil
}

func profileOf(cred store.Credential, remote string) *chat.UserProfile {
	return &chat.UserProfile{
		ID:       cred.ID,
		IP:       remoteHost(remote),
		Username: cred.Username,
		Role:     cred.Role,
		Email:    cred.Email,
		Phone:    cred.Phone,
		Active:   cred.Active,
	}
}

// remoteHost 去掉对端地址中的端口部分。
func remoteHost(remote string) string {
	if idx := strings.LastIndex(remote, ":"); idx > 0 {
		return remote[:idx]
	}
	return remote
}

func validateRegister(req RegisterRequest) error {
	if !usernamePattern.MatchString(req.Username) {
		return merr.WrapErrCredentialInvalid("username", "2-32 letters, digits or underscores")
	}
	if len(req.Password) < minPasswordLen {
		return merr.WrapErrCredentialInvalid("password", "too short")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return merr.WrapErrCredentialInvalid("email", "missing @")
	}
	if req.Phone != "" && strings.IndexFunc(req.Phone, func(r rune) bool {
		return (r < '0' || r > '9') && r != '+' && r != '-'
	}) >= 0 {
		return merr.WrapErrCredentialInvalid("phone", "digits only")
	}
	return nil
}
