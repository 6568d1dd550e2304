// Package command 实现斜杠命令的注册与分发。
//
// 分发路径：解析 → 权限检查 → 冷却检查 → 执行。命令处理器内的 panic
// 与 error 被吸收，发起方只会收到简短的人类可读反馈，细节进日志。
package command

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/cooldown"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/metrics"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// HandlerFunc 是命令处理器签名。
// 返回的 error 被路由器吸收：发起方收到统一的失败提示，细节进日志。
type HandlerFunc func(sender chat.Sender, args []string) error

// Command 是一条命令的完整注册信息。
type Command struct {
	// Name 为命令名，不含前导斜杠。
	Name string
	// Usage 为 /help 展示的用法行。
	Usage string
	// Permission 为执行所需权限码，0 表示无需权限。
	Permission int
	// Cooldown 为同一用户两次成功执行之间的最短间隔，0 表示无冷却。
	Cooldown time.Duration
	// Handler 为命令处理器。
	Handler HandlerFunc
}

// Router 维护命令表并执行分发。
type Router struct {
	mu       sync.RWMutex
	commands map[string]Command

	// moderation 串行化"读取后写入"式的管理操作，
	// 避免两个管理员并发操作同一目标时写入交错。
	moderation sync.Mutex

	perms     store.PermissionStore
	roles     *store.RoleTable
	cooldowns *cooldown.Tracker
	bus       *event.Bus
}

// NewRouter 创建命令路由器。
// bus 可为 nil（不发布命令执行事件），其余协作方必须提供。
func NewRouter(roles *store.RoleTable, perms store.PermissionStore, cooldowns *cooldown.Tracker, bus *event.Bus) *Router {
	return &Router{
		commands:  make(map[string]Command),
		perms:     perms,
		roles:     roles,
		cooldowns: cooldowns,
		bus:       bus,
	}
}

// Register 注册一条命令。重名注册返回 merr.ErrCommandDuplicate。
func (r *Router) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Handler == nil {
		return merr.WrapErrCommandBadArgs(cmd.Name, "missing name or handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return merr.WrapErrCommandDuplicate(cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// List 返回全部已注册命令，按命令名字典序排列。
func (r *Router) List() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Command) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Parse 将一行输入拆为命令名与参数。
// 返回 ok=false 表示该行不是命令（无斜杠前缀或斜杠后为空）。
func Parse(line string) (name string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// Dispatch 解析并执行一行命令输入。
//
// 所有失败路径都已向发起方反馈；返回值供调用方与测试检视分类结果，
// 成功时为 nil。
func (r *Router) Dispatch(sender chat.Sender, line string) error {
	name, args, ok := Parse(line)
	if !ok {
		r.reply(sender, chat.ColorError("unknown command, try /help"))
		metrics.CommandsDispatched.WithLabelValues("", metrics.CommandResultUnknown).Inc()
		return merr.WrapErrCommandNotFound(line)
	}

	r.mu.RLock()
	cmd, found := r.commands[name]
	r.mu.RUnlock()
	if !found {
		r.reply(sender, chat.ColorError(fmt.Sprintf("unknown command %q, try /help", name)))
		metrics.CommandsDispatched.WithLabelValues(name, metrics.CommandResultUnknown).Inc()
		return merr.WrapErrCommandNotFound(name)
	}

	err := r.dispatch(sender, cmd, args)
	if r.bus != nil {
		r.bus.Trigger(event.NewCommandExecutedEvent(sender, name, args, err))
	}
	return err
}

func (r *Router) dispatch(sender chat.Sender, cmd Command, args []string) error {
	// 控制台跳过权限与冷却，但仍走相同的执行与反馈路径。
	if !sender.IsConsole() {
		profile := sender.Profile()
		if cmd.Permission != 0 {
			allowed, err := r.HasPermission(profile, cmd.Permission)
			if err != nil {
				return r.fail(sender, cmd.Name, err)
			}
			if !allowed {
				r.reply(sender, chat.ColorError("you do not have permission to do that"))
				metrics.CommandsDispatched.WithLabelValues(cmd.Name, metrics.CommandResultDenied).Inc()
				return merr.WrapErrPermissionDenied(profile.Username, cmd.Permission)
			}
		}

		if cmd.Cooldown > 0 {
			key := cooldownKey(profile.Username, cmd.Name)
			if remaining := r.cooldowns.Remaining(key); remaining > 0 {
				r.reply(sender, chat.ColorNotice(
					fmt.Sprintf("/%s is on cooldown, retry in %s", cmd.Name, remaining.Round(time.Second))))
				metrics.CommandsDispatched.WithLabelValues(cmd.Name, metrics.CommandResultCooldown).Inc()
				return merr.WrapErrCommandCooldown(cmd.Name, remaining)
			}
		}
	}

	if err := r.invoke(sender, cmd, args); err != nil {
		return r.fail(sender, cmd.Name, err)
	}

	// 成功才消耗冷却，失败的尝试可以立即重试。
	if cmd.Cooldown > 0 && !sender.IsConsole() {
		r.cooldowns.SetFor(cooldownKey(sender.Profile().Username, cmd.Name), cmd.Cooldown)
	}
	metrics.CommandsDispatched.WithLabelValues(cmd.Name, metrics.CommandResultOK).Inc()
	return nil
}

// invoke 执行处理器并吸收其中的 panic。
func (r *Router) invoke(sender chat.Sender, cmd Command, args []string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("command handler panicked",
				zap.String("command", cmd.Name),
				zap.Any("panic", rec))
			err = merr.WrapErrCommandFailed(cmd.Name, fmt.Errorf("panic: %v", rec))
		}
	}()
	return cmd.Handler(sender, args)
}

func (r *Router) fail(sender chat.Sender, name string, err error) error {
	// 参数类错误直接把原因反馈给发起方，其余失败只给统一提示。
	if errors.Is(err, merr.ErrCommandBadArgs) {
		r.reply(sender, chat.ColorError(merr.Message(err)))
	} else {
		r.reply(sender, chat.ColorError(fmt.Sprintf("/%s failed, see server log", name)))
	}
	log.Warn("command failed",
		zap.String("command", name),
		zap.Error(err))
	metrics.CommandsDispatched.WithLabelValues(name, metrics.CommandResultFailed).Inc()
	return merr.WrapErrCommandFailed(name, err)
}

func (r *Router) reply(sender chat.Sender, line string) {
	if err := sender.SendMessage(line); err != nil {
		log.Debug("command reply dropped", zap.Error(err))
	}
}

// HasPermission 计算用户对单个权限码的有效授权。
// 有效权限 = 角色基础集合 ∪ 单独授予 − 单独撤销。
func (r *Router) HasPermission(profile *chat.UserProfile, perm int) (bool, error) {
	if profile == nil {
		return false, nil
	}

	revoked, err := r.perms.Revoked(profile.Username)
	if err != nil {
		return false, err
	}
	if revoked.Contain(perm) {
		return false, nil
	}

	if r.roles.Base(profile.Role).Contain(perm) {
		return true, nil
	}

	granted, err := r.perms.Granted(profile.Username)
	if err != nil {
		return false, err
	}
	return granted.Contain(perm), nil
}

// WithModeration 在管理操作互斥锁内执行 fn。
// 管理命令的"读取后写入"序列必须经由此处，避免并发交错。
func (r *Router) WithModeration(fn func() error) error {
	r.moderation.Lock()
	defer r.moderation.Unlock()
	return fn()
}

func cooldownKey(username, command string) string {
	return username + ":" + command
}
