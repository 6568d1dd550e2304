package server

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// ChatHistory 将聊天记录按行追加到本地文件。
// 写入由异步监听器驱动，互斥锁保证行不交叉。
type ChatHistory struct {
	mu sync.Mutex
	f  *os.File
}

// NewChatHistory 打开（必要时创建）历史文件。
func NewChatHistory(path string) (*ChatHistory, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, merr.WrapErrStoreIO(path, err)
	}
	return &ChatHistory{f: f}, nil
}

// Append 追加一条聊天记录。
func (h *ChatHistory) Append(username, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	line := fmt.Sprintf("%s %s: %s\n", time.Now().Format(time.RFC3339), username, message)
	if _, err := h.f.WriteString(line); err != nil {
		return merr.WrapErrStoreIO(h.f.Name(), err)
	}
	return nil
}

// Close 关闭历史文件。
func (h *ChatHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}
