package command

import (
	"time"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
)

func (s *RouterSuite) TestWhoListsOnline() {
	s.registry.online["bob"] = userSender("bob", chat.RoleDefault)
	s.registry.online["alice"] = userSender("alice", chat.RoleDefault)

	sender := consoleSender()
	s.NoError(s.router.Dispatch(sender, "/who"))
	s.Require().Len(sender.lines, 1)
	s.Contains(sender.lines[0], "online (2): alice, bob")
}

func (s *RouterSuite) TestHelpListsAllCommands() {
	sender := consoleSender()
	s.NoError(s.router.Dispatch(sender, "/help"))
	s.Equal(len(s.router.List()), len(sender.lines))
}

func (s *RouterSuite) TestBanKicksOnlineTarget() {
	s.registry.online["bob"] = userSender("bob", chat.RoleDefault)
	operator := userSender("op", chat.RoleOperator)

	s.NoError(s.router.Dispatch(operator, "/ban bob spamming"))

	banned, err := s.bans.IsBanned("bob")
	s.Require().NoError(err)
	s.True(banned)
	s.Equal([]string{"bob"}, s.registry.kicked)
}

func (s *RouterSuite) TestBanOfflineTargetStillRecorded() {
	operator := userSender("op", chat.RoleOperator)
	s.NoError(s.router.Dispatch(operator, "/ban ghost"))

	banned, err := s.bans.IsBanned("ghost")
	s.Require().NoError(err)
	s.True(banned)
	s.Empty(s.registry.kicked)
}

func (s *RouterSuite) TestUnban() {
	s.Require().NoError(s.bans.Ban("bob"))
	operator := userSender("op", chat.RoleOperator)

	s.NoError(s.router.Dispatch(operator, "/unban bob"))
	banned, err := s.bans.IsBanned("bob")
	s.Require().NoError(err)
	s.False(banned)
}

func (s *RouterSuite) TestMuteUnmuteNotifiesTarget() {
	bob := userSender("bob", chat.RoleDefault)
	s.registry.online["bob"] = bob
	mod := userSender("mod", chat.RoleModerator)

	s.NoError(s.router.Dispatch(mod, "/mute bob"))
	muted, err := s.mutes.IsMuted("bob")
	s.Require().NoError(err)
	s.True(muted)
	s.Require().Len(bob.lines, 1)
	s.Contains(bob.lines[0], "muted")

	s.NoError(s.router.Dispatch(mod, "/unmute bob"))
	muted, err = s.mutes.IsMuted("bob")
	s.Require().NoError(err)
	s.False(muted)
}

func (s *RouterSuite) TestTimedMuteExpires() {
	scheduler := event.NewDelayScheduler()
	defer scheduler.Close()

	router := NewRouter(s.roles, s.perms, s.cooldowns, nil)
	s.Require().NoError(RegisterBuiltins(router, BuiltinDeps{
		Registry: s.registry, Bans: s.bans, Mutes: s.mutes,
		Perms: s.perms, Creds: s.creds, Scheduler: scheduler,
	}))

	bob := userSender("bob", chat.RoleDefault)
	s.registry.online["bob"] = bob
	mod := userSender("mod", chat.RoleModerator)

	s.NoError(router.Dispatch(mod, "/mute bob 30ms"))
	muted, err := s.mutes.IsMuted("bob")
	s.Require().NoError(err)
	s.True(muted)

	// 到期后自动解除。
	s.Eventually(func() bool {
		muted, err := s.mutes.IsMuted("bob")
		return err == nil && !muted
	}, 3*time.Second, 10*time.Millisecond)
}

func (s *RouterSuite) TestTimedMuteRejectedWithoutScheduler() {
	mod := userSender("mod", chat.RoleModerator)

	// 默认套件未接入调度器。
	s.Error(s.router.Dispatch(mod, "/mute bob 5m"))
	muted, err := s.mutes.IsMuted("bob")
	s.Require().NoError(err)
	s.False(muted)

	s.Error(s.router.Dispatch(mod, "/mute bob nonsense"))
}

func (s *RouterSuite) TestWhisper() {
	bob := userSender("bob", chat.RoleDefault)
	s.registry.online["bob"] = bob
	alice := userSender("alice", chat.RoleDefault)

	s.NoError(s.router.Dispatch(alice, "/whisper bob psst hello"))
	s.Require().Len(bob.lines, 1)
	s.Contains(bob.lines[0], "alice")
	s.Contains(bob.lines[0], "psst hello")
	// 发起方收到回显。
	s.Require().Len(alice.lines, 1)
	s.Contains(alice.lines[0], "whisper to bob")
}

func (s *RouterSuite) TestRoleChangeTakesEffectOnline() {
	s.seedCredential("bob", chat.RoleDefault)
	bob := userSender("bob", chat.RoleDefault)
	s.registry.online["bob"] = bob
	admin := userSender("admin", chat.RoleAdministrator)

	s.NoError(s.router.Dispatch(admin, "/role bob moderator"))

	cred, err := s.creds.Lookup("bob")
	s.Require().NoError(err)
	s.Equal(chat.RoleModerator, cred.Role)
	// 在线档案同步更新。
	s.Equal(chat.RoleModerator, bob.profile.Role)
}

func (s *RouterSuite) TestRoleUnknownName() {
	admin := userSender("admin", chat.RoleAdministrator)
	s.Error(s.router.Dispatch(admin, "/role bob emperor"))
}

func (s *RouterSuite) TestNicknameRenames() {
	s.seedCredential("alice", chat.RoleDefault)
	alice := userSender("alice", chat.RoleDefault)
	s.registry.online["alice"] = alice

	s.NoError(s.router.Dispatch(alice, "/nickname wonderland"))

	s.Equal("wonderland", alice.profile.Username)
	_, online := s.registry.Get("wonderland")
	s.True(online)
	_, online = s.registry.Get("alice")
	s.False(online)

	exists, err := s.creds.Exists("wonderland")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *RouterSuite) TestNicknameTakenName() {
	s.seedCredential("alice", chat.RoleDefault)
	s.seedCredential("bob", chat.RoleDefault)
	alice := userSender("alice", chat.RoleDefault)

	s.Error(s.router.Dispatch(alice, "/nickname bob"))
	s.Equal("alice", alice.profile.Username)
}

func (s *RouterSuite) TestGrantRevokeCommands() {
	super := userSender("root", chat.RoleSuperAdministrator)

	s.NoError(s.router.Dispatch(super, "/grant bob kick"))
	granted, err := s.perms.Granted("bob")
	s.Require().NoError(err)
	s.True(granted.Contain(chat.PermKick))

	s.NoError(s.router.Dispatch(super, "/revoke bob kick"))
	revoked, err := s.perms.Revoked("bob")
	s.Require().NoError(err)
	s.True(revoked.Contain(chat.PermKick))
}

func (s *RouterSuite) seedCredential(name string, role chat.Role) {
	_, err := s.creds.Save(store.Credential{Username: name, Role: role, Active: true})
	s.Require().NoError(err)
}
