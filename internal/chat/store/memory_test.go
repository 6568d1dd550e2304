package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

type MemoryStoreSuite struct {
	suite.Suite
}

func (s *MemoryStoreSuite) TestBanRoundTrip() {
	bans := NewMemoryBanStore()

	banned, err := bans.IsBanned("alice")
	s.NoError(err)
	s.False(banned)

	s.NoError(bans.Ban("alice"))
	s.NoError(bans.Ban("alice")) // 幂等
	s.NoError(bans.Ban("bob"))

	banned, err = bans.IsBanned("alice")
	s.NoError(err)
	s.True(banned)

	names, err := bans.ListBanned()
	s.NoError(err)
	s.Equal([]string{"alice", "bob"}, names)

	s.NoError(bans.Unban("alice"))
	s.NoError(bans.Unban("alice")) // 幂等
	banned, err = bans.IsBanned("alice")
	s.NoError(err)
	s.False(banned)
}

func (s *MemoryStoreSuite) TestMuteRoundTrip() {
	mutes := NewMemoryMuteStore()

	s.NoError(mutes.Mute("carol"))
	muted, err := mutes.IsMuted("carol")
	s.NoError(err)
	s.True(muted)

	s.NoError(mutes.Unmute("carol"))
	muted, err = mutes.IsMuted("carol")
	s.NoError(err)
	s.False(muted)
}

func (s *MemoryStoreSuite) TestGrantRevokeExclusive() {
	perms := NewMemoryPermissionStore()

	s.NoError(perms.Grant("alice", chat.PermKick))
	s.NoError(perms.Grant("alice", chat.PermKick)) // 幂等

	granted, err := perms.Granted("alice")
	s.NoError(err)
	s.True(granted.Contain(chat.PermKick))

	// 撤销会同时移除授予记录。
	s.NoError(perms.Revoke("alice", chat.PermKick))
	granted, err = perms.Granted("alice")
	s.NoError(err)
	s.False(granted.Contain(chat.PermKick))
	revoked, err := perms.Revoked("alice")
	s.NoError(err)
	s.True(revoked.Contain(chat.PermKick))

	// 再次授予会清掉撤销记录。
	s.NoError(perms.Grant("alice", chat.PermKick))
	revoked, err = perms.Revoked("alice")
	s.NoError(err)
	s.False(revoked.Contain(chat.PermKick))
}

func (s *MemoryStoreSuite) TestCredentialSaveLookup() {
	creds := NewMemoryCredentialStore()

	_, err := creds.Lookup("alice")
	s.ErrorIs(err, merr.ErrUserNotFound)

	saved, err := creds.Save(Credential{Username: "alice", Hash: "x", Role: chat.RoleModerator, Active: true})
	s.NoError(err)
	s.Equal(uint64(1), saved.ID)

	got, err := creds.Lookup("alice")
	s.NoError(err)
	s.Equal(saved, got)

	exists, err := creds.Exists("alice")
	s.NoError(err)
	s.True(exists)

	// 按用户名覆盖，而非新增。
	saved.Role = chat.RoleOperator
	again, err := creds.Save(saved)
	s.NoError(err)
	s.Equal(uint64(1), again.ID)

	other, err := creds.Save(Credential{Username: "bob", Hash: "y", Active: true})
	s.NoError(err)
	s.Equal(uint64(2), other.ID)
}

func (s *MemoryStoreSuite) TestCredentialRename() {
	creds := NewMemoryCredentialStore()
	_, err := creds.Save(Credential{Username: "alice", Hash: "x", Active: true})
	s.Require().NoError(err)
	_, err = creds.Save(Credential{Username: "bob", Hash: "y", Active: true})
	s.Require().NoError(err)

	s.ErrorIs(creds.Rename("missing", "carol"), merr.ErrUserNotFound)
	s.ErrorIs(creds.Rename("alice", "bob"), merr.ErrUserAlreadyExists)

	s.NoError(creds.Rename("alice", "carol"))
	_, err = creds.Lookup("alice")
	s.ErrorIs(err, merr.ErrUserNotFound)
	got, err := creds.Lookup("carol")
	s.NoError(err)
	s.Equal("carol", got.Username)
	s.Equal("x", got.Hash)
}

func TestMemoryStores(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func TestPermRecordSorted(t *testing.T) {
	rec := permRecord{}.grant(chat.PermBan).grant(chat.PermChat).grant(chat.PermKick)
	assert.Equal(t, []int{chat.PermChat, chat.PermKick, chat.PermBan}, rec.Granted)
	require.Empty(t, rec.Revoked)
}
