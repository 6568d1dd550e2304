package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chat-harbor-go/internal/chat"
)

func TestFileBanStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")

	first, err := NewFileBanStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Ban("alice"))
	require.NoError(t, first.Ban("bob"))
	require.NoError(t, first.Unban("bob"))
	first.Close()

	// 重新打开后状态仍在。
	second, err := NewFileBanStore(path)
	require.NoError(t, err)
	defer second.Close()

	names, err := second.ListBanned()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}

func TestFileBanStoreReloadsOnExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")

	s, err := NewFileBanStore(path)
	require.NoError(t, err)
	defer s.Close()

	// 模拟外部编辑：直接改写文件内容。
	data, err := json.Marshal([]string{"mallory"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	assert.Eventually(t, func() bool {
		banned, berr := s.IsBanned("mallory")
		return berr == nil && banned
	}, 3*time.Second, 20*time.Millisecond)
}

func TestFileBanStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bans.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileBanStore(path)
	assert.Error(t, err)
}

func TestFileMuteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mutes.json")

	first, err := NewFileMuteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Mute("carol"))
	first.Close()

	second, err := NewFileMuteStore(path)
	require.NoError(t, err)
	defer second.Close()

	muted, err := second.IsMuted("carol")
	require.NoError(t, err)
	assert.True(t, muted)
}

func TestFilePermissionStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perms.json")

	first, err := NewFilePermissionStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Grant("alice", chat.PermKick))
	require.NoError(t, first.Revoke("alice", chat.PermChat))
	first.Close()

	second, err := NewFilePermissionStore(path)
	require.NoError(t, err)
	defer second.Close()

	granted, err := second.Granted("alice")
	require.NoError(t, err)
	assert.True(t, granted.Contain(chat.PermKick))
	revoked, err := second.Revoked("alice")
	require.NoError(t, err)
	assert.True(t, revoked.Contain(chat.PermChat))
}

func TestFileCredentialStorePersistsAndKeepsIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	first, err := NewFileCredentialStore(path)
	require.NoError(t, err)
	alice, err := first.Save(Credential{Username: "alice", Hash: "x", Active: true})
	require.NoError(t, err)
	require.Equal(t, uint64(1), alice.ID)
	first.Close()

	// 重新打开后 ID 分配从既有最大值之后继续。
	second, err := NewFileCredentialStore(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	bob, err := second.Save(Credential{Username: "bob", Hash: "y", Active: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bob.ID)
}

func TestFileCredentialStoreRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")

	s, err := NewFileCredentialStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Save(Credential{Username: "alice", Hash: "x", Active: true})
	require.NoError(t, err)
	require.NoError(t, s.Rename("alice", "carol"))

	got, err := s.Lookup("carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", got.Username)
}
