package command

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/cooldown"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/conc"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// fakeSender 记录收到的反馈行。
type fakeSender struct {
	profile *chat.UserProfile
	console bool
	lines   []string
}

func (f *fakeSender) SendMessage(line string) error {
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeSender) IsConsole() bool            { return f.console }
func (f *fakeSender) Profile() *chat.UserProfile { return f.profile }

func (f *fakeSender) UpdateProfile(fn func(profile *chat.UserProfile)) {
	if f.profile != nil {
		fn(f.profile)
	}
}

func userSender(name string, role chat.Role) *fakeSender {
	return &fakeSender{profile: &chat.UserProfile{ID: 1, Username: name, Role: role, Active: true}}
}

func consoleSender() *fakeSender {
	return &fakeSender{console: true}
}

// fakeRegistry 实现 OnlineRegistry。
type fakeRegistry struct {
	online map[string]chat.Sender
	kicked []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{online: make(map[string]chat.Sender)}
}

func (f *fakeRegistry) Get(username string) (chat.Sender, bool) {
	s, ok := f.online[username]
	return s, ok
}

func (f *fakeRegistry) ListOnline() []string {
	out := lo.Keys(f.online)
	slices.Sort(out)
	return out
}

func (f *fakeRegistry) Kick(username, reason string) error {
	if _, ok := f.online[username]; !ok {
		return merr.WrapErrSessionNotFound(username)
	}
	delete(f.online, username)
	f.kicked = append(f.kicked, username)
	return nil
}

func (f *fakeRegistry) Rename(oldName, newName string) {
	if s, ok := f.online[oldName]; ok {
		delete(f.online, oldName)
		f.online[newName] = s
	}
}

type RouterSuite struct {
	suite.Suite

	clock     *fakeClock
	roles     *store.RoleTable
	perms     *store.MemoryPermissionStore
	bans      *store.MemoryBanStore
	mutes     *store.MemoryMuteStore
	creds     *store.MemoryCredentialStore
	registry  *fakeRegistry
	cooldowns *cooldown.Tracker
	router    *Router
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (s *RouterSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.roles = store.DefaultRoleTable()
	s.perms = store.NewMemoryPermissionStore()
	s.bans = store.NewMemoryBanStore()
	s.mutes = store.NewMemoryMuteStore()
	s.creds = store.NewMemoryCredentialStore()
	s.registry = newFakeRegistry()
	s.cooldowns = cooldown.NewTracker(time.Minute, cooldown.WithClock(s.clock.Now))
	s.router = NewRouter(s.roles, s.perms, s.cooldowns, nil)

	s.Require().NoError(RegisterBuiltins(s.router, BuiltinDeps{
		Registry: s.registry,
		Bans:     s.bans,
		Mutes:    s.mutes,
		Perms:    s.perms,
		Creds:    s.creds,
	}))
}

func (s *RouterSuite) TestParse() {
	name, args, ok := Parse("/kick alice being rude")
	s.True(ok)
	s.Equal("kick", name)
	s.Equal([]string{"alice", "being", "rude"}, args)

	_, _, ok = Parse("hello world")
	s.False(ok)
	_, _, ok = Parse("/   ")
	s.False(ok)
}

func (s *RouterSuite) TestRegisterDuplicate() {
	err := s.router.Register(Command{Name: "who", Handler: func(chat.Sender, []string) error { return nil }})
	s.ErrorIs(err, merr.ErrCommandDuplicate)
}

func (s *RouterSuite) TestUnknownCommand() {
	sender := userSender("alice", chat.RoleDefault)
	err := s.router.Dispatch(sender, "/teleport home")
	s.ErrorIs(err, merr.ErrCommandNotFound)
	s.Require().Len(sender.lines, 1)
	s.Contains(sender.lines[0], "unknown command")
}

func (s *RouterSuite) TestPermissionDenied() {
	sender := userSender("alice", chat.RoleDefault)
	err := s.router.Dispatch(sender, "/kick bob")
	s.ErrorIs(err, merr.ErrPermissionDenied)
	s.Require().Len(sender.lines, 1)
	s.Contains(sender.lines[0], "permission")
}

func (s *RouterSuite) TestGrantOverridesRoleBase() {
	sender := userSender("alice", chat.RoleDefault)
	s.registry.online["bob"] = userSender("bob", chat.RoleDefault)

	// 单独授予后，默认角色也可以踢人。
	s.Require().NoError(s.perms.Grant("alice", chat.PermKick))
	s.NoError(s.router.Dispatch(sender, "/kick bob"))
	s.Equal([]string{"bob"}, s.registry.kicked)
}

func (s *RouterSuite) TestRevocationOverridesRoleBase() {
	sender := userSender("mod", chat.RoleModerator)
	s.registry.online["bob"] = userSender("bob", chat.RoleDefault)

	// 单独撤销压过角色基础集合。
	s.Require().NoError(s.perms.Revoke("mod", chat.PermKick))
	err := s.router.Dispatch(sender, "/kick bob")
	s.ErrorIs(err, merr.ErrPermissionDenied)
}

func (s *RouterSuite) TestConsoleBypassesPermissions() {
	sender := consoleSender()
	s.registry.online["bob"] = userSender("bob", chat.RoleDefault)
	s.NoError(s.router.Dispatch(sender, "/kick bob"))
}

func (s *RouterSuite) TestCooldown() {
	s.Require().NoError(s.router.Register(Command{
		Name:     "slow",
		Usage:    "/slow",
		Cooldown: 10 * time.Second,
		Handler:  func(chat.Sender, []string) error { return nil },
	}))
	sender := userSender("alice", chat.RoleDefault)

	s.NoError(s.router.Dispatch(sender, "/slow"))
	err := s.router.Dispatch(sender, "/slow")
	s.ErrorIs(err, merr.ErrCommandCooldown)

	// 冷却过期后恢复可用。
	s.clock.Advance(11 * time.Second)
	s.NoError(s.router.Dispatch(sender, "/slow"))

	// 冷却按用户独立。
	other := userSender("bob", chat.RoleDefault)
	s.NoError(s.router.Dispatch(other, "/slow"))
}

func (s *RouterSuite) TestFailedCommandDoesNotConsumeCooldown() {
	fail := true
	s.Require().NoError(s.router.Register(Command{
		Name:     "flaky",
		Cooldown: 10 * time.Second,
		Handler: func(chat.Sender, []string) error {
			if fail {
				return errors.New("boom")
			}
			return nil
		},
	}))
	sender := userSender("alice", chat.RoleDefault)

	err := s.router.Dispatch(sender, "/flaky")
	s.ErrorIs(err, merr.ErrCommandFailed)

	fail = false
	s.NoError(s.router.Dispatch(sender, "/flaky"))
}

func (s *RouterSuite) TestHandlerPanicRecovered() {
	s.Require().NoError(s.router.Register(Command{
		Name:    "bomb",
		Handler: func(chat.Sender, []string) error { panic("boom") },
	}))
	sender := userSender("alice", chat.RoleDefault)

	s.NotPanics(func() {
		err := s.router.Dispatch(sender, "/bomb")
		s.ErrorIs(err, merr.ErrCommandFailed)
	})
}

func (s *RouterSuite) TestBadArgsSurfacedToSender() {
	sender := consoleSender()
	err := s.router.Dispatch(sender, "/kick")
	s.ErrorIs(err, merr.ErrCommandFailed)
	s.Require().NotEmpty(sender.lines)
	s.Contains(sender.lines[0], "usage: /kick")
}

func (s *RouterSuite) TestCommandEventPublished() {
	pool := conc.NewPool(2)
	defer pool.Release()
	bus := event.NewBus(pool)

	var seen []*event.CommandExecutedEvent
	s.Require().NoError(bus.Register(event.Registration{
		Name: "audit", Kind: event.KindCommand, Priority: event.PriorityNormal,
		Fn: func(ev event.Event) error {
			seen = append(seen, ev.(*event.CommandExecutedEvent))
			return nil
		},
	}))

	router := NewRouter(s.roles, s.perms, s.cooldowns, bus)
	s.Require().NoError(RegisterBuiltins(router, BuiltinDeps{
		Registry: s.registry, Bans: s.bans, Mutes: s.mutes, Perms: s.perms, Creds: s.creds,
	}))

	s.NoError(router.Dispatch(consoleSender(), "/who"))
	s.Require().Len(seen, 1)
	s.Equal("who", seen[0].Command)
	s.NoError(seen[0].Err)
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
