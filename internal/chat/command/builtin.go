package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// OnlineRegistry 是管理命令需要的在线会话视图。
// 由 server.SessionRegistry 实现；收窄为接口避免包间环依赖。
type OnlineRegistry interface {
	// Get 按用户名取在线会话的发送能力。
	Get(username string) (chat.Sender, bool)
	// ListOnline 返回全部在线用户名，按字典序排列。
	ListOnline() []string
	// Kick 断开指定用户的会话。不在线返回 merr.ErrSessionNotFound。
	Kick(username, reason string) error
	// Rename 变更在线用户的注册键。目标不在线时无副作用。
	Rename(oldName, newName string)
}

// BuiltinDeps 是内置命令的协作方集合。
// Scheduler 可以为 nil，此时 /mute 不支持限时禁言。
type BuiltinDeps struct {
	Registry  OnlineRegistry
	Bans      store.BanStore
	Mutes     store.MuteStore
	Perms     store.PermissionStore
	Creds     store.CredentialStore
	Scheduler *event.DelayScheduler
}

// 昵称变更的冷却间隔。
const nicknameCooldown = 30 * time.Second

// RegisterBuiltins 注册全部内置命令。
func RegisterBuiltins(r *Router, deps BuiltinDeps) error {
	builtins := []Command{
		{
			Name:  "help",
			Usage: "/help - list available commands",
			Handler: func(sender chat.Sender, _ []string) error {
				for _, cmd := range r.List() {
					if err := sender.SendMessage(chat.ColorSystem(cmd.Usage)); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:  "who",
			Usage: "/who - list online users",
			Handler: func(sender chat.Sender, _ []string) error {
				online := deps.Registry.ListOnline()
				if len(online) == 0 {
					return sender.SendMessage(chat.ColorSystem("nobody is online"))
				}
				return sender.SendMessage(chat.ColorSystem(
					fmt.Sprintf("online (%d): %s", len(online), strings.Join(online, ", "))))
			},
		},
		{
			Name:       "whisper",
			Usage:      "/whisper <user> <message> - send a private message",
			Permission: chat.PermWhisper,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) < 2 {
					return merr.WrapErrCommandBadArgs("whisper", "usage: /whisper <user> <message>")
				}
				target, online := deps.Registry.Get(args[0])
				if !online {
					return sender.SendMessage(chat.ColorError(args[0] + " is not online"))
				}
				text := strings.Join(args[1:], " ")
				if err := target.SendMessage(chat.ColorNotice(
					fmt.Sprintf("[whisper] %s: %s", senderName(sender), text))); err != nil {
					return err
				}
				return sender.SendMessage(chat.ColorNotice(
					fmt.Sprintf("[whisper to %s] %s", args[0], text)))
			},
		},
		{
			Name:       "nickname",
			Usage:      "/nickname <name> - change your username",
			Permission: chat.PermNickname,
			Cooldown:   nicknameCooldown,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) != 1 {
					return merr.WrapErrCommandBadArgs("nickname", "usage: /nickname <name>")
				}
				profile := sender.Profile()
				if profile == nil {
					return merr.WrapErrCommandBadArgs("nickname", "console has no nickname")
				}
				newName := args[0]
				oldName := profile.Username
				return r.WithModeration(func() error {
					if err := deps.Creds.Rename(oldName, newName); err != nil {
						return err
					}
					deps.Registry.Rename(oldName, newName)
					if updater, ok := sender.(chat.ProfileUpdater); ok {
						updater.UpdateProfile(func(p *chat.UserProfile) {
							p.Username = newName
						})
					}
					return sender.SendMessage(chat.ColorOK("you are now known as " + newName))
				})
			},
		},
		{
			Name:       "kick",
			Usage:      "/kick <user> [reason] - disconnect a user",
			Permission: chat.PermKick,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) < 1 {
					return merr.WrapErrCommandBadArgs("kick", "usage: /kick <user> [reason]")
				}
				reason := "kicked by " + senderName(sender)
				if len(args) > 1 {
					reason = strings.Join(args[1:], " ")
				}
				if err := deps.Registry.Kick(args[0], reason); err != nil {
					return sender.SendMessage(chat.ColorError(args[0] + " is not online"))
				}
				return sender.SendMessage(chat.ColorOK(args[0] + " kicked"))
			},
		},
		{
			Name:       "mute",
			Usage:      "/mute <user> [duration] - suppress a user's chat, optionally for a limited time",
			Permission: chat.PermMute,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) < 1 || len(args) > 2 {
					return merr.WrapErrCommandBadArgs("mute", "usage: /mute <user> [duration]")
				}
				target := args[0]
				var duration time.Duration
				if len(args) == 2 {
					if deps.Scheduler == nil {
						return merr.WrapErrCommandBadArgs("mute", "timed mutes are not enabled")
					}
					d, err := time.ParseDuration(args[1])
					if err != nil || d <= 0 {
						return merr.WrapErrCommandBadArgs("mute", "bad duration "+args[1])
					}
					duration = d
				}
				if err := deps.Mutes.Mute(target); err != nil {
					return err
				}
				if duration > 0 {
					if _, err := deps.Scheduler.Schedule(duration, event.PriorityNormal, func() {
						if err := deps.Mutes.Unmute(target); err != nil {
							return
						}
						notifyTarget(deps.Registry, target, chat.ColorNotice("your mute has expired"))
					}); err != nil {
						return err
					}
					notifyTarget(deps.Registry, target,
						chat.ColorNotice("you have been muted for "+duration.String()))
					return sender.SendMessage(chat.ColorOK(
						fmt.Sprintf("%s muted for %s", target, duration)))
				}
				notifyTarget(deps.Registry, target, chat.ColorNotice("you have been muted"))
				return sender.SendMessage(chat.ColorOK(target + " muted"))
			},
		},
		{
			Name:       "unmute",
			Usage:      "/unmute <user> - restore a user's chat",
			Permission: chat.PermMute,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) != 1 {
					return merr.WrapErrCommandBadArgs("unmute", "usage: /unmute <user>")
				}
				if err := deps.Mutes.Unmute(args[0]); err != nil {
					return err
				}
				notifyTarget(deps.Registry, args[0], chat.ColorNotice("you have been unmuted"))
				return sender.SendMessage(chat.ColorOK(args[0] + " unmuted"))
			},
		},
		{
			Name:       "ban",
			Usage:      "/ban <user> [reason] - ban a user and disconnect them",
			Permission: chat.PermBan,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) < 1 {
					return merr.WrapErrCommandBadArgs("ban", "usage: /ban <user> [reason]")
				}
				target := args[0]
				reason := "banned by " + senderName(sender)
				if len(args) > 1 {
					reason = strings.Join(args[1:], " ")
				}
				return r.WithModeration(func() error {
					if err := deps.Bans.Ban(target); err != nil {
						return err
					}
					// 在线则立即断开；不在线也要保留封禁记录。
					_ = deps.Registry.Kick(target, reason)
					return sender.SendMessage(chat.ColorOK(target + " banned"))
				})
			},
		},
		{
			Name:       "unban",
			Usage:      "/unban <user> - lift a ban",
			Permission: chat.PermBan,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) != 1 {
					return merr.WrapErrCommandBadArgs("unban", "usage: /unban <user>")
				}
				return r.WithModeration(func() error {
					if err := deps.Bans.Unban(args[0]); err != nil {
						return err
					}
					return sender.SendMessage(chat.ColorOK(args[0] + " unbanned"))
				})
			},
		},
		{
			Name:       "role",
			Usage:      "/role <user> <role> - change a user's role",
			Permission: chat.PermRole,
			Handler: func(sender chat.Sender, args []string) error {
				if len(args) != 2 {
					return merr.WrapErrCommandBadArgs("role", "usage: /role <user> <role>")
				}
				role, err := chat.ParseRole(args[1])
				if err != nil {
					return merr.WrapErrCommandBadArgs("role", "unknown role "+args[1])
				}
				return r.WithModeration(func() error {
					cred, err := deps.Creds.Lookup(args[0])
					if err != nil {
						return err
					}
					cred.Role = role
					if _, err := deps.Creds.Save(cred); err != nil {
						return err
					}
					// 在线用户立即生效。写入走 ProfileUpdater，
					// 与权限检查等并发读互不踩踏。
					if target, online := deps.Registry.Get(args[0]); online {
						if updater, ok := target.(chat.ProfileUpdater); ok {
							updater.UpdateProfile(func(p *chat.UserProfile) {
								p.Role = role
							})
						}
					}
					notifyTarget(deps.Registry, args[0], chat.ColorNotice("your role is now "+role.String()))
					return sender.SendMessage(chat.ColorOK(
						fmt.Sprintf("%s is now %s", args[0], role)))
				})
			},
		},
		{
			Name:       "grant",
			Usage:      "/grant <user> <permission> - grant an extra permission",
			Permission: chat.PermGrant,
			Handler:    permissionEdit(deps, "grant"),
		},
		{
			Name:       "revoke",
			Usage:      "/revoke <user> <permission> - revoke a permission",
			Permission: chat.PermGrant,
			Handler:    permissionEdit(deps, "revoke"),
		},
	}

	for _, cmd := range builtins {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// permissionEdit 生成 /grant 与 /revoke 共用的处理器。
func permissionEdit(deps BuiltinDeps, verb string) HandlerFunc {
	return func(sender chat.Sender, args []string) error {
		if len(args) != 2 {
			return merr.WrapErrCommandBadArgs(verb, fmt.Sprintf("usage: /%s <user> <permission>", verb))
		}
		perm, err := chat.ParsePermission(args[1])
		if err != nil {
			return merr.WrapErrCommandBadArgs(verb, "unknown permission "+args[1])
		}
		if verb == "grant" {
			err = deps.Perms.Grant(args[0], perm)
		} else {
			err = deps.Perms.Revoke(args[0], perm)
		}
		if err != nil {
			return err
		}
		past := "granted to"
		if verb == "revoke" {
			past = "revoked from"
		}
		return sender.SendMessage(chat.ColorOK(
			fmt.Sprintf("%s %s %s", args[1], past, args[0])))
	}
}

func senderName(sender chat.Sender) string {
	if p := sender.Profile(); p != nil {
		return p.Username
	}
	return "console"
}

func notifyTarget(registry OnlineRegistry, username, line string) {
	if target, online := registry.Get(username); online {
		_ = target.SendMessage(line)
	}
}
