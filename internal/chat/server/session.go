package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// 每个会话的发送队列容量。
const defaultSendQueueSize = 256

// 单行输入的最大长度，超出视为协议违例。
const maxLineLen = 4096

// Session 封装一条已接入的客户端连接。
//
// 设计目标：
//   - 封装最小但完整的会话能力：ID、Context、地址信息、按行收发与关闭；
//   - 所有出站写集中在专职发送协程，避免多协程并发写 conn 导致行交叉；
//   - Close 幂等，可从读协程、发送协程、管理命令等多处安全触发。
type Session struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn   net.Conn
	reader *bufio.Reader

	// profile 在认证成功后由接入流程填充，之前为 nil。
	// 改名、改角色等管理命令会在会话运行期间修改它，
	// 读写都必须经过 profileMu。
	profileMu sync.RWMutex
	profile   *chat.UserProfile

	// sendQueue 为待发送行的队列。
	// SendMessage 仅负责投递，专职发送协程按顺序写出。
	sendQueue chan string

	// closing 通知发送协程进入排空；drained 由发送协程退出时关闭。
	closing chan struct{}
	drained chan struct{}

	running   *atomic.Bool
	closeOnce sync.Once
}

// 确保 Session 满足命令与事件侧需要的发送与资料变更能力。
var (
	_ chat.Sender         = (*Session)(nil)
	_ chat.ProfileUpdater = (*Session)(nil)
)

// NewSession 创建一个基于 net.Conn 的会话实例并启动其发送协程。
// parent 为上层上下文（通常是服务器的 Serve ctx）；nil 时退化为 Background。
func NewSession(parent context.Context, id uint64, conn net.Conn) *Session {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		reader:    bufio.NewReaderSize(conn, maxLineLen),
		sendQueue: make(chan string, defaultSendQueueSize),
		closing:   make(chan struct{}),
		drained:   make(chan struct{}),
		running:   atomic.NewBool(true),
	}
	go s.sendLoop()
	return s
}

// ID 返回会话 ID。
func (s *Session) ID() uint64 {
	return s.id
}

// Context 返回会话上下文，会话关闭时被取消。
func (s *Session) Context() context.Context {
	return s.ctx
}

// RemoteAddr 返回对端地址。
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Running 返回会话是否仍在服务中。
func (s *Session) Running() bool {
	return s.running.Load()
}

// Profile 实现 chat.Sender。认证完成前返回 nil。
//
// 返回的是当前资料的快照副本，调用方持有期间不受后续变更影响，
// 也不会与管理命令的写入相互踩踏。
func (s *Session) Profile() *chat.UserProfile {
	s.profileMu.RLock()
	defer s.profileMu.RUnlock()
	if s.profile == nil {
		return nil
	}
	snapshot := *s.profile
	return &snapshot
}

// IsConsole 实现 chat.Sender。
func (s *Session) IsConsole() bool {
	return false
}

// SetProfile 在认证成功后绑定用户档案。
func (s *Session) SetProfile(profile *chat.UserProfile) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	s.profile = profile
}

// UpdateProfile 实现 chat.ProfileUpdater，在锁保护下应用 fn。
func (s *Session) UpdateProfile(fn func(profile *chat.UserProfile)) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	if s.profile == nil {
		return
	}
	fn(s.profile)
}

// SendMessage 实现 chat.Sender。
//
// 行为：
//   - 仅将行投递到会话级发送队列，由专职发送协程顺序写出；
//   - 会话已关闭时返回 merr.ErrSessionClosed；
//   - 队列打满说明对端长期不读，同样按会话异常处理。
func (s *Session) SendMessage(line string) error {
	if !s.running.Load() {
		return merr.ErrSessionClosed
	}
	select {
	case <-s.ctx.Done():
		return merr.ErrSessionClosed
	case s.sendQueue <- line:
		return nil
	default:
		log.Warn("session send queue full, dropping line",
			zap.Uint64("session", s.id),
			zap.String("remote", s.conn.RemoteAddr().String()))
		return merr.ErrSessionClosed
	}
}

// ReadLine 阻塞读取一行输入并去掉行尾结束符。
//
// 超长行返回 merr.ErrProtocolViolation；对端断开返回底层 I/O 错误。
// 累计长度一旦越界立即失败，不会为迟迟不发换行的对端继续囤积内存。
func (s *Session) ReadLine() (string, error) {
	line := make([]byte, 0, 64)
	for {
		frag, err := s.reader.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > maxLineLen {
			return "", merr.WrapErrProtocolViolation("line too long")
		}
		if err == nil {
			return strings.TrimRight(string(line), "\r\n"), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
}

// 关闭前等待发送队列排空的时间窗口。
const closeDrainWindow = 200 * time.Millisecond

// Close 关闭会话。幂等，可并发调用。
//
// 已入队未写出的行有一个排空阶段（告别语、踢出原因等）：
// 通知发送协程排空队列并等待其回执，对端长期不读时窗口耗尽后仍会被丢弃。
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.running.Store(false)
		close(s.closing)

		// 排空完成或窗口耗尽，以先到者为准。
		select {
		case <-s.drained:
		case <-time.After(closeDrainWindow):
		}

		// 先取消上下文，再关闭连接，让两个方向的阻塞调用都尽快返回。
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 发送路径仅在此协程中执行；写失败视为会话异常，取消上下文以触发上层清理。
// 收到 closing 信号后把已入队的行全部写出再退出，退出时关闭 drained 回执。
func (s *Session) sendLoop() {
	defer close(s.drained)

	writer := bufio.NewWriter(s.conn)
	write := func(line string) bool {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			s.cancel()
			return false
		}
		if err := writer.Flush(); err != nil {
			s.cancel()
			return false
		}
		return true
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case line := <-s.sendQueue:
			if !write(line) {
				return
			}
		case <-s.closing:
			for {
				select {
				case line := <-s.sendQueue:
					if !write(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}
