package chat

import (
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// 内置权限码。权限码是小整数，角色到权限码集合的映射来自静态配置，
// 个别用户可以在角色基础集合之上被单独授予或撤销权限（见 store.PermissionStore）。
const (
	PermChat     = 1
	PermWhisper  = 2
	PermNickname = 3
	PermKick     = 4
	PermMute     = 5
	PermBan      = 6
	PermRole     = 7
	PermGrant    = 8
)

var permNames = map[int]string{
	PermChat:     "chat",
	PermWhisper:  "whisper",
	PermNickname: "nickname",
	PermKick:     "kick",
	PermMute:     "mute",
	PermBan:      "ban",
	PermRole:     "role",
	PermGrant:    "grant",
}

var permsByName = map[string]int{
	"chat":     PermChat,
	"whisper":  PermWhisper,
	"nickname": PermNickname,
	"kick":     PermKick,
	"mute":     PermMute,
	"ban":      PermBan,
	"role":     PermRole,
	"grant":    PermGrant,
}

// PermissionName 返回权限码的配置名，未知权限码返回 "unknown"。
func PermissionName(perm int) string {
	if name, ok := permNames[perm]; ok {
		return name
	}
	return "unknown"
}

// ParsePermission 将配置名解析为权限码。
func ParsePermission(name string) (int, error) {
	if perm, ok := permsByName[name]; ok {
		return perm, nil
	}
	return 0, merr.WrapErrPermissionUnknown(name)
}
