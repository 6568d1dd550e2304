package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/viper"
)

func loadConfig(t *testing.T, yaml string) *viper.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	cfg := viper.New()
	require.NoError(t, cfg.LoadFile(path))
	return cfg
}

func TestDefaultRoleTableCumulative(t *testing.T) {
	table := DefaultRoleTable()

	assert.True(t, table.Base(chat.RoleDefault).Contain(chat.PermChat))
	assert.False(t, table.Base(chat.RoleDefault).Contain(chat.PermKick))
	assert.True(t, table.Base(chat.RoleModerator).Contain(chat.PermChat, chat.PermKick, chat.PermMute))
	assert.True(t, table.Base(chat.RoleOperator).Contain(chat.PermBan))
	assert.True(t, table.Base(chat.RoleSuperAdministrator).Contain(chat.PermGrant))
}

func TestLoadRoleTableFromConfig(t *testing.T) {
	cfg := loadConfig(t, `
roles:
  default: [chat]
  moderator: [chat, kick, mute]
`)
	table := LoadRoleTable(cfg)

	assert.True(t, table.Base(chat.RoleDefault).Contain(chat.PermChat))
	assert.False(t, table.Base(chat.RoleDefault).Contain(chat.PermWhisper))
	assert.True(t, table.Base(chat.RoleModerator).Contain(chat.PermKick))
	// 未配置的角色得到空集合。
	assert.Zero(t, table.Base(chat.RoleOperator).Len())
}

func TestLoadRoleTableSkipsUnknownNames(t *testing.T) {
	cfg := loadConfig(t, `
roles:
  default: [chat, teleport]
  archmage: [chat]
`)
	table := LoadRoleTable(cfg)

	assert.True(t, table.Base(chat.RoleDefault).Contain(chat.PermChat))
	assert.Equal(t, 1, table.Base(chat.RoleDefault).Len())
}

func TestLoadRoleTableFallsBackToDefaults(t *testing.T) {
	cfg := loadConfig(t, `listen: ":7777"`)
	table := LoadRoleTable(cfg)
	assert.True(t, table.Base(chat.RoleModerator).Contain(chat.PermKick))
}

func TestBaseReturnsClone(t *testing.T) {
	table := DefaultRoleTable()
	set := table.Base(chat.RoleDefault)
	set.Insert(chat.PermGrant)
	assert.False(t, table.Base(chat.RoleDefault).Contain(chat.PermGrant))
}
