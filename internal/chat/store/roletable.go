package store

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/typeutil"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/viper"
)

// RoleTable 保存角色到基础权限码集合的映射。
// 映射在启动时装载一次，运行期只读。
type RoleTable struct {
	perms map[chat.Role]typeutil.Set[int]
}

// Base 返回角色的基础权限码集合的拷贝。
// 未配置的角色返回空集合。
func (t *RoleTable) Base(role chat.Role) typeutil.Set[int] {
	if set, ok := t.perms[role]; ok {
		return set.Clone()
	}
	log.Warn("role has no configured permissions", zap.Stringer("role", role))
	return typeutil.NewSet[int]()
}

// DefaultRoleTable 返回内置的角色权限映射。
// 高层级角色在低层级角色的权限之上累加。
func DefaultRoleTable() *RoleTable {
	base := typeutil.NewSet(chat.PermChat, chat.PermWhisper, chat.PermNickname)
	moderator := base.Union(typeutil.NewSet(chat.PermKick, chat.PermMute))
	operator := moderator.Union(typeutil.NewSet(chat.PermBan))
	administrator := operator.Union(typeutil.NewSet(chat.PermRole))
	super := administrator.Union(typeutil.NewSet(chat.PermGrant))

	return &RoleTable{perms: map[chat.Role]typeutil.Set[int]{
		chat.RoleDefault:            base,
		chat.RoleModerator:          moderator,
		chat.RoleOperator:           operator,
		chat.RoleAdministrator:      administrator,
		chat.RoleSuperAdministrator: super,
	}}
}

// LoadRoleTable 从配置的 roles 键装载角色权限映射。
//
// 配置形如：
//
//	roles:
//	  default: [chat, whisper]
//	  moderator: [chat, whisper, kick, mute]
//
// 键缺失时退回内置映射；未知角色名或权限名记录告警后跳过。
func LoadRoleTable(cfg *viper.Config) *RoleTable {
	if !cfg.IsSet("roles") {
		return DefaultRoleTable()
	}

	raw := make(map[string][]string)
	if err := cfg.UnmarshalKey("roles", &raw); err != nil {
		log.Warn("malformed roles config, falling back to defaults", zap.Error(err))
		return DefaultRoleTable()
	}

	perms := make(map[chat.Role]typeutil.Set[int], len(raw))
	for name, permNames := range raw {
		role, err := chat.ParseRole(name)
		if err != nil {
			log.Warn("skipping unknown role in config", zap.String("role", name))
			continue
		}

		codes := lo.FilterMap(permNames, func(permName string, _ int) (int, bool) {
			code, perr := chat.ParsePermission(permName)
			if perr != nil {
				log.Warn("skipping unknown permission in config",
					zap.String("role", name),
					zap.String("permission", permName))
				return 0, false
			}
			return code, true
		})
		perms[role] = typeutil.NewSet(codes...)
	}
	return &RoleTable{perms: perms}
}
