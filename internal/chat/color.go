package chat

// ANSI 颜色码，仅用于客户端显示效果，不属于协议契约。
const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// ColorError 将文本渲染为红色。
func ColorError(text string) string {
	return ansiRed + text + ansiReset
}

// ColorOK 将文本渲染为绿色。
func ColorOK(text string) string {
	return ansiGreen + text + ansiReset
}

// ColorNotice 将文本渲染为黄色。
func ColorNotice(text string) string {
	return ansiYellow + text + ansiReset
}

// ColorSystem 将文本渲染为青色。
func ColorSystem(text string) string {
	return ansiCyan + text + ansiReset
}
