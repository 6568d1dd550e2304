package store

import (
	"sync"

	"golang.org/x/exp/slices"

	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/typeutil"
)

// memoryNames 是封禁/禁言共用的并发安全用户名集合。
type memoryNames struct {
	mu    sync.RWMutex
	names typeutil.Set[string]
}

func newMemoryNames() memoryNames {
	return memoryNames{names: typeutil.NewSet[string]()}
}

func (m *memoryNames) has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names.Contain(name)
}

func (m *memoryNames) add(name string) {
	m.mu.Lock()
	m.names.Insert(name)
	m.mu.Unlock()
}

func (m *memoryNames) remove(name string) {
	m.mu.Lock()
	m.names.Remove(name)
	m.mu.Unlock()
}

func (m *memoryNames) list() []string {
	m.mu.RLock()
	names := m.names.Collect()
	m.mu.RUnlock()
	slices.Sort(names)
	return names
}

// MemoryBanStore 是进程内的封禁存储，进程退出后状态丢失。
type MemoryBanStore struct {
	memoryNames
}

var _ BanStore = (*MemoryBanStore)(nil)

func NewMemoryBanStore() *MemoryBanStore {
	return &MemoryBanStore{memoryNames: newMemoryNames()}
}

func (s *MemoryBanStore) IsBanned(username string) (bool, error) { return s.has(username), nil }
func (s *MemoryBanStore) Ban(username string) error              { s.add(username); return nil }
func (s *MemoryBanStore) Unban(username string) error            { s.remove(username); return nil }
func (s *MemoryBanStore) ListBanned() ([]string, error)          { return s.list(), nil }

// MemoryMuteStore 是进程内的禁言存储。
type MemoryMuteStore struct {
	memoryNames
}

var _ MuteStore = (*MemoryMuteStore)(nil)

func NewMemoryMuteStore() *MemoryMuteStore {
	return &MemoryMuteStore{memoryNames: newMemoryNames()}
}

func (s *MemoryMuteStore) IsMuted(username string) (bool, error) { return s.has(username), nil }
func (s *MemoryMuteStore) Mute(username string) error            { s.add(username); return nil }
func (s *MemoryMuteStore) Unmute(username string) error          { s.remove(username); return nil }
func (s *MemoryMuteStore) ListMuted() ([]string, error)          { return s.list(), nil }

// permRecord 是单个用户的权限增删记录。
type permRecord struct {
	Granted []int `json:"granted"`
	Revoked []int `json:"revoked"`
}

func (r permRecord) grantedSet() typeutil.Set[int] { return typeutil.NewSet(r.Granted...) }
func (r permRecord) revokedSet() typeutil.Set[int] { return typeutil.NewSet(r.Revoked...) }

// grant 返回应用一次授予之后的记录。
func (r permRecord) grant(perm int) permRecord {
	granted := r.grantedSet()
	granted.Insert(perm)
	revoked := r.revokedSet()
	revoked.Remove(perm)
	return permRecord{Granted: sortedInts(granted), Revoked: sortedInts(revoked)}
}

// revoke 返回应用一次撤销之后的记录。
func (r permRecord) revoke(perm int) permRecord {
	granted := r.grantedSet()
	granted.Remove(perm)
	revoked := r.revokedSet()
	revoked.Insert(perm)
	return permRecord{Granted: sortedInts(granted), Revoked: sortedInts(revoked)}
}

func sortedInts(set typeutil.Set[int]) []int {
	out := set.Collect()
	slices.Sort(out)
	return out
}

// MemoryPermissionStore 是进程内的权限增删存储。
type MemoryPermissionStore struct {
	mu      sync.RWMutex
	records map[string]permRecord
}

var _ PermissionStore = (*MemoryPermissionStore)(nil)

func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{records: make(map[string]permRecord)}
}

func (s *MemoryPermissionStore) Grant(username string, perm int) error {
	s.mu.Lock()
	s.records[username] = s.records[username].grant(perm)
	s.mu.Unlock()
	return nil
}

func (s *MemoryPermissionStore) Revoke(username string, perm int) error {
	s.mu.Lock()
	s.records[username] = s.records[username].revoke(perm)
	s.mu.Unlock()
	return nil
}

func (s *MemoryPermissionStore) Granted(username string) (typeutil.Set[int], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[username].grantedSet(), nil
}

func (s *MemoryPermissionStore) Revoked(username string) (typeutil.Set[int], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[username].revokedSet(), nil
}

// MemoryCredentialStore 是进程内的凭据存储。
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	creds  map[string]Credential
	nextID uint64
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]Credential), nextID: 1}
}

func (s *MemoryCredentialStore) Save(cred Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.ID == 0 {
		cred.ID = s.nextID
		s.nextID++
	} else if cred.ID >= s.nextID {
		s.nextID = cred.ID + 1
	}
	s.creds[cred.Username] = cred
	return cred, nil
}

func (s *MemoryCredentialStore) Lookup(username string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[username]
	if !ok {
		return Credential{}, merr.WrapErrUserNotFound(username)
	}
	return cred, nil
}

func (s *MemoryCredentialStore) Exists(username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[username]
	return ok, nil
}

func (s *MemoryCredentialStore) Rename(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[oldName]
	if !ok {
		return merr.WrapErrUserNotFound(oldName)
	}
	if _, taken := s.creds[newName]; taken {
		return merr.WrapErrUserAlreadyExists(newName)
	}
	delete(s.creds, oldName)
	cred.Username = newName
	s.creds[newName] = cred
	return nil
}
