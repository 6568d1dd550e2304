package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/conc"
)

type ListenersSuite struct {
	suite.Suite

	pool     *conc.Pool
	bus      *event.Bus
	bans     *store.MemoryBanStore
	mutes    *store.MemoryMuteStore
	registry *SessionRegistry
	history  *ChatHistory
	histPath string
}

func (s *ListenersSuite) SetupTest() {
	s.pool = conc.NewPool(4)
	s.bus = event.NewBus(s.pool)
	s.bans = store.NewMemoryBanStore()
	s.mutes = store.NewMemoryMuteStore()
	s.registry = NewSessionRegistry(s.bans)

	s.histPath = filepath.Join(s.T().TempDir(), "history.log")
	history, err := NewChatHistory(s.histPath)
	s.Require().NoError(err)
	s.history = history

	s.Require().NoError(RegisterCoreListeners(s.bus, ListenerDeps{
		Registry: s.registry,
		Mutes:    s.mutes,
		History:  s.history,
	}))
}

func (s *ListenersSuite) TearDownTest() {
	s.history.Close()
	s.pool.Release()
}

func (s *ListenersSuite) online(id uint64, name string) (*Session, <-chan string) {
	sess, client := pipeSession(s.T(), id, name, chat.RoleDefault)
	s.Require().NoError(s.registry.Add(sess))
	return sess, lineStream(client)
}

func (s *ListenersSuite) TestChatBroadcastToAllOnline() {
	alice, aliceLines := s.online(1, "alice")
	_, bobLines := s.online(2, "bob")

	s.bus.Trigger(event.NewChatMessageEvent(alice, "hello there"))

	// 广播对全员可见，发送者也收到回显。
	expectLine(s.T(), bobLines, "alice: hello there")
	expectLine(s.T(), aliceLines, "alice: hello there")
}

func (s *ListenersSuite) TestMuteGateCancelsChat() {
	alice, aliceLines := s.online(1, "alice")
	_, bobLines := s.online(2, "bob")
	s.Require().NoError(s.mutes.Mute("alice"))

	ev := event.NewChatMessageEvent(alice, "you cannot hear me")
	s.bus.Trigger(ev)

	s.True(ev.Cancelled())
	expectLine(s.T(), aliceLines, "you are muted")

	// 解除禁言后恢复广播。
	s.Require().NoError(s.mutes.Unmute("alice"))
	s.bus.Trigger(event.NewChatMessageEvent(alice, "back again"))
	expectLine(s.T(), bobLines, "alice: back again")
}

func (s *ListenersSuite) TestConsoleChatBypassesMuteGate() {
	_, bobLines := s.online(1, "bob")
	console := NewConsoleSender(os.Stderr)

	s.bus.Trigger(event.NewConsoleChatEvent(console, "maintenance at noon"))
	expectLine(s.T(), bobLines, "[server]: maintenance at noon")
}

func (s *ListenersSuite) TestJoinLeaveAnnouncements() {
	_, bobLines := s.online(1, "bob")

	s.bus.Trigger(event.NewUserJoinEvent(chat.UserProfile{Username: "alice"}))
	expectLine(s.T(), bobLines, "alice joined the chat")

	s.bus.Trigger(event.NewUserLeaveEvent(chat.UserProfile{Username: "alice"}, "disconnected"))
	expectLine(s.T(), bobLines, "alice left the chat (disconnected)")
}

func (s *ListenersSuite) TestHistoryAppendedAsync() {
	alice, aliceLines := s.online(1, "alice")

	s.bus.Trigger(event.NewChatMessageEvent(alice, "for the record"))
	expectLine(s.T(), aliceLines, "for the record")

	// 历史落盘是异步监听器，轮询等待写入完成。
	s.Eventually(func() bool {
		data, err := os.ReadFile(s.histPath)
		return err == nil && len(data) > 0
	}, 3*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(s.histPath)
	s.Require().NoError(err)
	s.Contains(string(data), "alice: for the record")
}

func TestListeners(t *testing.T) {
	suite.Run(t, new(ListenersSuite))
}
