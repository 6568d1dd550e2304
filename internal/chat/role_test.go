package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
)

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleSuperAdministrator.AtLeast(RoleAdministrator))
	assert.True(t, RoleModerator.AtLeast(RoleDefault))
	assert.False(t, RoleDefault.AtLeast(RoleModerator))
}

func TestParseRole(t *testing.T) {
	for _, role := range Roles() {
		parsed, err := ParseRole(role.String())
		assert.NoError(t, err)
		assert.Equal(t, role, parsed)
	}

	_, err := ParseRole("emperor")
	assert.ErrorIs(t, err, merr.ErrRoleUnknown)
}

func TestProfileEqual(t *testing.T) {
	a := UserProfile{ID: 1, Username: "alice", Role: RoleDefault, Active: true}
	b := a
	assert.True(t, a.Equal(b))

	b.Role = RoleModerator
	assert.False(t, a.Equal(b))
}
