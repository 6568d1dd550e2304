package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

type CredentialAuthSuite struct {
	suite.Suite

	creds *store.MemoryCredentialStore
	bans  *store.MemoryBanStore
	auth  Authenticator
}

func (s *CredentialAuthSuite) SetupTest() {
	s.creds = store.NewMemoryCredentialStore()
	s.bans = store.NewMemoryBanStore()

	a, err := New(DefaultVariant, Deps{Credentials: s.creds, Bans: s.bans})
	s.Require().NoError(err)
	s.auth = a
}

func (s *CredentialAuthSuite) register(username, password string) *chat.UserProfile {
	profile, err := s.auth.Register(context.Background(), RegisterRequest{
		Username: username,
		Password: password,
		Email:    username + "@example.com",
		Remote:   "192.0.2.10:55000",
	})
	s.Require().NoError(err)
	return profile
}

func (s *CredentialAuthSuite) TestRegisterThenLogin() {
	profile := s.register("alice", "sekrit99")
	s.Equal("alice", profile.Username)
	s.Equal(chat.RoleDefault, profile.Role)
	s.Equal("192.0.2.10", profile.IP)
	s.True(profile.Active)
	s.NotZero(profile.ID)

	got, err := s.auth.Login(context.Background(), LoginRequest{
		Username: "alice", Password: "sekrit99", Remote: "192.0.2.11:55001",
	})
	s.NoError(err)
	s.Equal(profile.ID, got.ID)
	s.Equal("192.0.2.11", got.IP)

	// 明文口令绝不落盘。
	cred, err := s.creds.Lookup("alice")
	s.Require().NoError(err)
	s.NotContains(cred.Hash, "sekrit99")
}

func (s *CredentialAuthSuite) TestRegisterValidation() {
	_, err := s.auth.Register(context.Background(), RegisterRequest{Username: "a", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrCredentialInvalid)

	_, err = s.auth.Register(context.Background(), RegisterRequest{Username: "has space", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrCredentialInvalid)

	_, err = s.auth.Register(context.Background(), RegisterRequest{Username: "alice", Password: "short"})
	s.ErrorIs(err, merr.ErrCredentialInvalid)

	_, err = s.auth.Register(context.Background(), RegisterRequest{Username: "alice", Password: "sekrit99", Email: "nope"})
	s.ErrorIs(err, merr.ErrCredentialInvalid)
}

func (s *CredentialAuthSuite) TestRegisterDuplicate() {
	s.register("alice", "sekrit99")
	_, err := s.auth.Register(context.Background(), RegisterRequest{Username: "alice", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrUserAlreadyExists)
}

func (s *CredentialAuthSuite) TestLoginWrongPassword() {
	s.register("alice", "sekrit99")
	_, err := s.auth.Login(context.Background(), LoginRequest{Username: "alice", Password: "wrong99"})
	s.ErrorIs(err, merr.ErrCredentialMismatch)
}

func (s *CredentialAuthSuite) TestLoginUnknownUser() {
	_, err := s.auth.Login(context.Background(), LoginRequest{Username: "ghost", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrUserNotFound)
}

func (s *CredentialAuthSuite) TestBannedRefusedBeforePassword() {
	s.register("alice", "sekrit99")
	s.Require().NoError(s.bans.Ban("alice"))

	// 口令正确与否都不影响封禁拒绝。
	_, err := s.auth.Login(context.Background(), LoginRequest{Username: "alice", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrUserBanned)
	_, err = s.auth.Login(context.Background(), LoginRequest{Username: "alice", Password: "wrong99"})
	s.ErrorIs(err, merr.ErrUserBanned)

	// 解封后恢复可登录。
	s.Require().NoError(s.bans.Unban("alice"))
	_, err = s.auth.Login(context.Background(), LoginRequest{Username: "alice", Password: "sekrit99"})
	s.NoError(err)
}

func (s *CredentialAuthSuite) TestInactiveRefused() {
	profile := s.register("alice", "sekrit99")

	cred, err := s.creds.Lookup(profile.Username)
	s.Require().NoError(err)
	cred.Active = false
	_, err = s.creds.Save(cred)
	s.Require().NoError(err)

	_, err = s.auth.Login(context.Background(), LoginRequest{Username: "alice", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrUserInactive)
}

func (s *CredentialAuthSuite) TestCorruptHashSurfaces() {
	s.register("alice", "sekrit99")
	cred, err := s.creds.Lookup("alice")
	s.Require().NoError(err)
	cred.Hash = "not-a-bcrypt-hash"
	_, err = s.creds.Save(cred)
	s.Require().NoError(err)

	_, err = s.auth.Login(context.Background(), LoginRequest{Username: "alice", Password: "sekrit99"})
	s.ErrorIs(err, merr.ErrSecretMalformed)
}

func TestCredentialAuth(t *testing.T) {
	suite.Run(t, new(CredentialAuthSuite))
}

func TestVariantRegistry(t *testing.T) {
	assert.Error(t, RegisterVariant("", nil))
	assert.Error(t, RegisterVariant(DefaultVariant, newCredentialAuthenticator))

	_, err := New("no-such-variant", Deps{})
	assert.ErrorIs(t, err, merr.ErrAuthVariantUnknown)

	assert.Contains(t, Variants(), DefaultVariant)
}
