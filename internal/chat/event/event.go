package event

import (
	"go.uber.org/atomic"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
)

// Event 是总线上流转的事件契约。
//
// 约定：
//   - 事件负载由触发方在创建时填充，分发期间除 cancelled 标志（以及聊天
//     事件的 Message 字段）外视为只读；
//   - 事件不持久化，生命周期仅覆盖一次 Trigger 调用。
type Event interface {
	// Name 返回事件名，用于日志与指标。
	Name() string

	// Kind 返回事件的种类标签，分发匹配依据。
	Kind() Kind

	// Cancelled 返回事件是否已被取消。
	Cancelled() bool

	// SetCancelled 设置取消标志。
	//
	// 同步监听器在分发期间设置该标志后，排在其后的监听器不会再被调用；
	// 已经提交到异步池的调用不会被撤回。
	SetCancelled(v bool)
}

// BaseEvent 提供 Event 接口的基础实现，供具体事件内嵌。
type BaseEvent struct {
	name      string
	kind      Kind
	cancelled atomic.Bool
}

// NewBaseEvent 创建一个基础事件。
func NewBaseEvent(name string, kind Kind) BaseEvent {
	return BaseEvent{name: name, kind: kind}
}

func (e *BaseEvent) Name() string {
	return e.name
}

func (e *BaseEvent) Kind() Kind {
	return e.kind
}

func (e *BaseEvent) Cancelled() bool {
	return e.cancelled.Load()
}

func (e *BaseEvent) SetCancelled(v bool) {
	e.cancelled.Store(v)
}

// ChatMessageEvent 表示一条来自网络会话的聊天消息。
//
// Message 字段在分发前由触发方填充，同步监听器可以改写它
// （例如过滤敏感词），改写对后续监听器可见。
type ChatMessageEvent struct {
	BaseEvent

	Sender  chat.Sender
	Message string
}

// NewChatMessageEvent 创建一条聊天消息事件。
func NewChatMessageEvent(sender chat.Sender, message string) *ChatMessageEvent {
	return &ChatMessageEvent{
		BaseEvent: NewBaseEvent("chat_message", KindChat),
		Sender:    sender,
		Message:   message,
	}
}

// ConsoleChatEvent 表示一条来自服务器控制台的聊天消息。
// 它是 ChatMessageEvent 的子种类，声明 KindChat 的监听器同样会收到它。
type ConsoleChatEvent struct {
	BaseEvent

	Sender  chat.Sender
	Message string
}

// NewConsoleChatEvent 创建一条控制台聊天事件。
func NewConsoleChatEvent(sender chat.Sender, message string) *ConsoleChatEvent {
	return &ConsoleChatEvent{
		BaseEvent: NewBaseEvent("console_chat", KindConsoleChat),
		Sender:    sender,
		Message:   message,
	}
}

// UserJoinEvent 表示一个用户完成认证并进入在线状态。
type UserJoinEvent struct {
	BaseEvent

	Profile chat.UserProfile
}

// NewUserJoinEvent 创建一条用户加入事件。
func NewUserJoinEvent(profile chat.UserProfile) *UserJoinEvent {
	return &UserJoinEvent{
		BaseEvent: NewBaseEvent("user_join", KindUserJoin),
		Profile:   profile,
	}
}

// UserLeaveEvent 表示一个用户会话结束。
type UserLeaveEvent struct {
	BaseEvent

	Profile chat.UserProfile
	Reason  string
}

// NewUserLeaveEvent 创建一条用户离开事件。
func NewUserLeaveEvent(profile chat.UserProfile, reason string) *UserLeaveEvent {
	return &UserLeaveEvent{
		BaseEvent: NewBaseEvent("user_leave", KindUserLeave),
		Profile:   profile,
		Reason:    reason,
	}
}

// CommandExecutedEvent 表示一条命令完成了一次分发（无论结果如何）。
type CommandExecutedEvent struct {
	BaseEvent

	Sender  chat.Sender
	Command string
	Args    []string
	Err     error
}

// NewCommandExecutedEvent 创建一条命令执行事件。
func NewCommandExecutedEvent(sender chat.Sender, command string, args []string, err error) *CommandExecutedEvent {
	return &CommandExecutedEvent{
		BaseEvent: NewBaseEvent("command_executed", KindCommand),
		Sender:    sender,
		Command:   command,
		Args:      args,
		Err:       err,
	}
}

// AuthEvent 表示一次认证尝试的结果。
type AuthEvent struct {
	BaseEvent

	Username string
	Remote   string
	Success  bool
	Err      error
}

// NewAuthEvent 创建一条认证结果事件。
func NewAuthEvent(username, remote string, success bool, err error) *AuthEvent {
	return &AuthEvent{
		BaseEvent: NewBaseEvent("auth_outcome", KindAuth),
		Username:  username,
		Remote:    remote,
		Success:   success,
		Err:       err,
	}
}
