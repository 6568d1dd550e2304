package server

import (
	"fmt"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/metrics"
)

// ListenerDeps 是核心监听器的协作方集合。
type ListenerDeps struct {
	Registry *SessionRegistry
	Mutes    store.MuteStore
	// History 可为 nil，表示不落历史。
	History *ChatHistory
	// Recent 可为 nil，表示不保留上线回放。
	Recent *RecentHistory
}

// RegisterCoreListeners 注册服务器的核心事件监听器。
//
// 优先级编排：
//   - 禁言闸门以 HIGH 同步运行，赶在广播之前取消被禁言用户的聊天事件；
//   - 广播与进出场通告以 NORMAL 同步运行；
//   - 历史落盘与指标以 LOW 异步运行，不拖累分发路径。
func RegisterCoreListeners(bus *event.Bus, deps ListenerDeps) error {
	regs := []event.Registration{
		{
			Name: "mute-gate", Kind: event.KindChat, Priority: event.PriorityHigh,
			Fn: func(ev event.Event) error {
				msg, ok := ev.(*event.ChatMessageEvent)
				if !ok {
					// 控制台聊天不受禁言约束。
					return nil
				}
				profile := msg.Sender.Profile()
				if profile == nil {
					return nil
				}
				muted, err := deps.Mutes.IsMuted(profile.Username)
				if err != nil {
					return err
				}
				if muted {
					ev.SetCancelled(true)
					_ = msg.Sender.SendMessage(chat.ColorError("you are muted"))
				}
				return nil
			},
		},
		{
			Name: "broadcast", Kind: event.KindChat, Priority: event.PriorityNormal,
			Fn: func(ev event.Event) error {
				name, text := chatPayload(ev)
				line := fmt.Sprintf("%s: %s", name, text)
				if deps.Recent != nil {
					deps.Recent.Append(line)
				}
				deps.Registry.Broadcast(line)
				return nil
			},
		},
		{
			Name: "announce-join", Kind: event.KindUserJoin, Priority: event.PriorityNormal,
			Fn: func(ev event.Event) error {
				join := ev.(*event.UserJoinEvent)
				deps.Registry.Broadcast(chat.ColorSystem(join.Profile.Username + " joined the chat"))
				return nil
			},
		},
		{
			Name: "announce-leave", Kind: event.KindUserLeave, Priority: event.PriorityNormal,
			Fn: func(ev event.Event) error {
				leave := ev.(*event.UserLeaveEvent)
				deps.Registry.Broadcast(chat.ColorSystem(
					fmt.Sprintf("%s left the chat (%s)", leave.Profile.Username, leave.Reason)))
				return nil
			},
		},
		{
			Name: "history", Kind: event.KindChat, Priority: event.PriorityLow, Async: true,
			Fn: func(ev event.Event) error {
				if deps.History == nil {
					return nil
				}
				name, text := chatPayload(ev)
				return deps.History.Append(name, text)
			},
		},
		{
			Name: "chat-metrics", Kind: event.KindChat, Priority: event.PriorityLow, Async: true,
			Fn: func(event.Event) error {
				metrics.ChatMessages.Inc()
				return nil
			},
		},
	}

	for _, reg := range regs {
		if err := bus.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// chatPayload 取出聊天类事件的展示名与文本。
func chatPayload(ev event.Event) (name, text string) {
	switch msg := ev.(type) {
	case *event.ChatMessageEvent:
		if p := msg.Sender.Profile(); p != nil {
			return p.Username, msg.Message
		}
		return "unknown", msg.Message
	case *event.ConsoleChatEvent:
		return "[server]", msg.Message
	default:
		return "unknown", ""
	}
}
