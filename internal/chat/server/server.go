// Package server 实现 TLS 聊天服务器的接入与会话生命周期管理。
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/auth"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/command"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/cooldown"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/metrics"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/conc"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// Config 是服务器的接入配置。
type Config struct {
	// Listen 为 TLS 监听地址，例如 ":7777"。
	Listen string `mapstructure:"listen"`
	// CertFile/KeyFile 为服务端证书与私钥路径。
	CertFile string `mapstructure:"cert-file"`
	KeyFile  string `mapstructure:"key-file"`
	// MaxSessions 为并发会话上限（连接工作池容量）。0 表示按 CPU 数推导。
	MaxSessions int `mapstructure:"max-sessions"`
	// ShutdownGrace 为优雅退出时等待在途会话的时限。
	ShutdownGrace time.Duration `mapstructure:"shutdown-grace"`
	// ChatCooldown 为同一用户两条聊天消息之间的最短间隔（刷屏限制），0 表示不限制。
	ChatCooldown time.Duration `mapstructure:"chat-cooldown"`
}

// 并发会话上限的 CPU 倍数（未显式配置时）。
const sessionsPerCPU = 64

// Deps 是服务器运行所需的协作方集合。
type Deps struct {
	Registry      *SessionRegistry
	Router        *command.Router
	Bus           *event.Bus
	Auth          auth.Authenticator
	ChatCooldowns *cooldown.Tracker
	// Recent 可为 nil，表示新会话上线时不回放最近的聊天。
	Recent *RecentHistory
}

// Server 监听 TLS 端口，按会话驱动认证与聊天循环。
//
// 并发模型：
//   - Accept 循环运行在 Serve 的调用协程中；
//   - 每条连接被提交到有界工作池，池满即拒绝新连接（显式背压），
//     绝不无界起协程；
//   - 会话内：当前协程做读循环，专职发送协程做写。
type Server struct {
	cfg       Config
	tlsConfig *tls.Config

	deps Deps
	pool *conc.Pool

	// mu 保护 ln 与 closed：Serve 发布监听器、Stop 读取并关闭，
	// 两者可能竞争（例如启动刚开始就被要求停机）。
	mu     sync.Mutex
	ln     net.Listener
	closed bool

	nextID    atomic.Uint64
	closeOnce sync.Once
}

// NewServer 创建服务器并装载 TLS 证书。
// 证书或私钥不可用属于致命配置错误，直接返回失败。
func NewServer(cfg Config, deps Deps) (*Server, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, merr.WrapErrSecretMalformed(err, "loading TLS key material")
	}

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = runtime.GOMAXPROCS(0) * sessionsPerCPU
	}

	return &Server{
		cfg:       cfg,
		tlsConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		deps:      deps,
		pool:      conc.NewPool(cfg.MaxSessions, conc.WithNonBlocking(true)),
	}, nil
}

// Serve 开始监听并接受连接，阻塞直到监听器关闭或 ctx 取消。
func (s *Server) Serve(ctx context.Context) error {
	ln, err := tls.Listen("tcp", s.cfg.Listen, s.tlsConfig)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		// Stop 抢在监听器发布之前执行，按已停机处理。
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	log.Info("chat server listening", zap.String("addr", s.cfg.Listen))

	for {
		conn, err := ln.Accept()
		if err != nil {
			// 上层已取消时视为正常退出。
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		metrics.AcceptedConnections.Inc()
		if err := s.pool.Submit(func() {
			s.handleConn(ctx, conn)
		}); err != nil {
			// 工作池打满：礼貌告知后立即断开，不排队。
			metrics.RejectedConnections.WithLabelValues("saturated").Inc()
			_, _ = conn.Write([]byte(chat.ColorError("server is full, try again later") + "\n"))
			_ = conn.Close()
			log.Warn("connection rejected, worker pool saturated",
				zap.String("remote", conn.RemoteAddr().String()))
		}
	}
}

// Stop 优雅停机。
//
// 流程：关闭监听器停止接入 → 在时限内等待在途会话收尾 → 强制关闭残余会话。
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		ln := s.ln
		s.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
		if err := s.pool.ReleaseTimeout(s.cfg.ShutdownGrace); err != nil {
			log.Warn("worker pool did not drain in time, forcing session close", zap.Error(err))
		}
		s.deps.Registry.Range(func(sess *Session) bool {
			_ = sess.SendMessage(chat.ColorSystem("server is shutting down"))
			_ = sess.Close()
			return true
		})
	})
}

// handleConn 驱动单条连接的完整生命周期：握手认证 → 登记在线 → 行循环 → 收尾。
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	sess := NewSession(ctx, s.nextID.Inc(), conn)

	profile, err := s.handshake(ctx, sess)
	if err != nil {
		// 握手失败只断开这一条连接，错误详情进日志，对端收到简短提示。
		_ = sess.SendMessage(chat.ColorError(merr.Message(err)))
		_ = sess.Close()
		log.Info("handshake failed",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err))
		return
	}

	sess.SetProfile(profile)
	if err := s.deps.Registry.Add(sess); err != nil {
		_ = sess.SendMessage(chat.ColorError(merr.Message(err)))
		_ = sess.Close()
		return
	}

	log.Info("user online",
		zap.String("user", profile.Username),
		zap.String("remote", conn.RemoteAddr().String()))

	// 回放最近的聊天，让加入者看到上下文。
	if s.deps.Recent != nil {
		for _, line := range s.deps.Recent.Snapshot() {
			_ = sess.SendMessage(line)
		}
	}
	s.deps.Bus.Trigger(event.NewUserJoinEvent(*profile))

	reason := s.lineLoop(ctx, sess)

	// 收尾：移出在线表 → 尽力广播离开事件 → 幂等关闭。
	s.deps.Registry.Remove(sess.Profile().Username)
	s.deps.Bus.Trigger(event.NewUserLeaveEvent(*sess.Profile(), reason))
	_ = sess.Close()
	log.Info("user offline",
		zap.String("user", sess.Profile().Username),
		zap.String("reason", reason))
}

// handshake 执行认证握手。
//
// 协议：首行必须是精确的 "register" 或 "login"（区分大小写），
// 之后按提示逐行提交字段。任何偏离都按协议违例处理：提示后断开。
func (s *Server) handshake(ctx context.Context, sess *Session) (*chat.UserProfile, error) {
	_ = sess.SendMessage(chat.ColorSystem("welcome, type register or login"))

	mode, err := sess.ReadLine()
	if err != nil {
		return nil, merr.WrapErrProtocolViolation("missing handshake line")
	}

	switch mode {
	case "register":
		return s.doRegister(ctx, sess)
	case "login":
		return s.doLogin(ctx, sess)
	default:
		return nil, merr.WrapErrProtocolViolation("expected register or login")
	}
}

func (s *Server) doRegister(ctx context.Context, sess *Session) (*chat.UserProfile, error) {
	fields, err := s.prompt(sess, "username", "password", "email", "phone")
	if err != nil {
		return nil, err
	}
	profile, err := s.deps.Auth.Register(ctx, auth.RegisterRequest{
		Username: fields[0],
		Password: fields[1],
		Email:    fields[2],
		Phone:    fields[3],
		Remote:   sess.RemoteAddr().String(),
	})
	s.deps.Bus.Trigger(event.NewAuthEvent(fields[0], sess.RemoteAddr().String(), err == nil, err))
	if err != nil {
		return nil, err
	}
	_ = sess.SendMessage(chat.ColorOK("registered, welcome " + profile.Username))
	return profile, nil
}

func (s *Server) doLogin(ctx context.Context, sess *Session) (*chat.UserProfile, error) {
	fields, err := s.prompt(sess, "username", "password")
	if err != nil {
		return nil, err
	}
	profile, err := s.deps.Auth.Login(ctx, auth.LoginRequest{
		Username: fields[0],
		Password: fields[1],
		Remote:   sess.RemoteAddr().String(),
	})
	s.deps.Bus.Trigger(event.NewAuthEvent(fields[0], sess.RemoteAddr().String(), err == nil, err))
	if err != nil {
		return nil, err
	}
	_ = sess.SendMessage(chat.ColorOK("welcome back " + profile.Username))
	return profile, nil
}

// prompt 逐个字段提示并读取应答。
func (s *Server) prompt(sess *Session, names ...string) ([]string, error) {
	fields := make([]string, 0, len(names))
	for _, name := range names {
		_ = sess.SendMessage(chat.ColorSystem(name + ":"))
		value, err := sess.ReadLine()
		if err != nil {
			return nil, merr.WrapErrProtocolViolation("connection lost during " + name + " prompt")
		}
		fields = append(fields, strings.TrimSpace(value))
	}
	return fields, nil
}

// lineLoop 消费认证后的输入行，返回会话结束原因。
func (s *Server) lineLoop(ctx context.Context, sess *Session) string {
	for {
		select {
		case <-ctx.Done():
			return "server shutdown"
		case <-sess.Context().Done():
			return "connection closed"
		default:
		}

		line, err := sess.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return "disconnected"
			}
			if errors.Is(err, merr.ErrProtocolViolation) {
				_ = sess.SendMessage(chat.ColorError("line too long"))
				return "protocol violation"
			}
			return "read error"
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			// 分发结果已在路由器内反馈给发起方。
			_ = s.deps.Router.Dispatch(sess, line)
			continue
		}

		s.handleChat(sess, line)
	}
}

// handleChat 对一条聊天输入做刷屏限制后触发聊天事件。
func (s *Server) handleChat(sess *Session, line string) {
	username := sess.Profile().Username
	if s.cfg.ChatCooldown > 0 {
		if remaining := s.deps.ChatCooldowns.Remaining(username); remaining > 0 {
			_ = sess.SendMessage(chat.ColorNotice("slow down, wait " + remaining.Round(time.Second).String()))
			return
		}
		s.deps.ChatCooldowns.SetFor(username, s.cfg.ChatCooldown)
	}
	s.deps.Bus.Trigger(event.NewChatMessageEvent(sess, line))
}
