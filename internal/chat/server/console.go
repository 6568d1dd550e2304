package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/command"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
)

// ConsoleSender 是服务器本地控制台的发送方实现。
// 控制台没有用户档案，天然拥有全部权限。
type ConsoleSender struct {
	mu  sync.Mutex
	out io.Writer
}

var _ chat.Sender = (*ConsoleSender)(nil)

// NewConsoleSender 创建控制台发送方，输出写到 out（通常是标准输出）。
func NewConsoleSender(out io.Writer) *ConsoleSender {
	return &ConsoleSender{out: out}
}

// SendMessage 实现 chat.Sender。
func (c *ConsoleSender) SendMessage(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// IsConsole 实现 chat.Sender。
func (c *ConsoleSender) IsConsole() bool {
	return true
}

// Profile 实现 chat.Sender。控制台没有用户档案。
func (c *ConsoleSender) Profile() *chat.UserProfile {
	return nil
}

// RunConsole 消费控制台输入直到 in 耗尽或 ctx 取消。
//
// 斜杠前缀的行走命令分发（跳过权限检查），
// 其余非空行作为控制台聊天广播给全部在线用户。
func RunConsole(ctx context.Context, in io.Reader, sender *ConsoleSender, router *command.Router, bus *event.Bus) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			_ = router.Dispatch(sender, line)
			continue
		}
		bus.Trigger(event.NewConsoleChatEvent(sender, line))
	}
	return scanner.Err()
}
