package chat

import (
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

// Role 表示用户在服务器内的角色等级。
//
// 约定：
//   - 角色是一个全序集合，数值越大权限层级越高；
//   - 角色本身不携带权限码，角色到权限码集合的映射由外部配置提供（见 store.RoleTable）。
type Role int

const (
	RoleDefault Role = iota
	RoleModerator
	RoleOperator
	RoleAdministrator
	RoleSuperAdministrator
)

var roleNames = map[Role]string{
	RoleDefault:            "default",
	RoleModerator:          "moderator",
	RoleOperator:           "operator",
	RoleAdministrator:      "administrator",
	RoleSuperAdministrator: "super-administrator",
}

var rolesByName = map[string]Role{
	"default":             RoleDefault,
	"moderator":           RoleModerator,
	"operator":            RoleOperator,
	"administrator":       RoleAdministrator,
	"super-administrator": RoleSuperAdministrator,
}

// String 返回角色的配置名。
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// AtLeast 判断当前角色层级是否不低于 other。
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// ParseRole 将配置名解析为 Role。
// 未知名称返回 merr.ErrRoleUnknown。
func ParseRole(name string) (Role, error) {
	if role, ok := rolesByName[name]; ok {
		return role, nil
	}
	return RoleDefault, merr.WrapErrRoleUnknown(name)
}

// Roles 返回全部角色，按层级从低到高排列。
func Roles() []Role {
	return []Role{
		RoleDefault,
		RoleModerator,
		RoleOperator,
		RoleAdministrator,
		RoleSuperAdministrator,
	}
}
