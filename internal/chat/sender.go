package chat

// Sender 抽象了一个可以接收文本反馈的命令发起方。
//
// 两个具体实现：
//   - 网络会话（server.Session）：反馈写回客户端连接；
//   - 服务器控制台（server.ConsoleSender）：反馈写到本地标准输出，且天然拥有全部权限。
type Sender interface {
	// SendMessage 向发起方回写一行文本。
	//
	// 说明：
	//   - 对网络会话，失败（例如连接已断开）返回 error，调用方通常只记录日志；
	//   - 文本可携带 ANSI 颜色码，仅用于显示效果。
	SendMessage(line string) error

	// IsConsole 返回发起方是否为服务器本地控制台。
	//
	// 控制台发起的命令跳过权限检查，但仍然走相同的解析与执行路径。
	IsConsole() bool

	// Profile 返回发起方关联的用户资料。
	//
	// 控制台没有用户资料，返回 nil。
	// 实现方返回的资料对调用方只读；在线资料的变更走 ProfileUpdater。
	Profile() *UserProfile
}

// ProfileUpdater 由支持在线变更用户资料的发送方实现（网络会话）。
//
// 管理命令（改名、改角色）通过它修改在线资料，
// 使写入与其他协程对 Profile 的读取互不踩踏。
type ProfileUpdater interface {
	// UpdateProfile 在实现方内部的锁保护下应用 fn。
	// 尚未绑定资料（认证未完成）时 fn 不会被调用。
	UpdateProfile(fn func(profile *UserProfile))
}
