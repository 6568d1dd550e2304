package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/merr"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/retry"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/typeutil"
)

// atomicWriteJSON 先写临时文件再 rename，保证读取方看不到半写状态。
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return merr.WrapErrStoreIO(path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return merr.WrapErrStoreIO(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return merr.WrapErrStoreIO(path, err)
	}
	return nil
}

// readJSON 读取并反序列化文件。文件不存在或为空视为零值，不算错误。
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return merr.WrapErrStoreIO(path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return merr.WrapErrStoreCorrupted(path, err)
	}
	return nil
}

// watchFile 监听文件的外部改写，事件到达时调用 reload，返回停止函数。
// 监听目录而非文件本身，rename 式的原子替换也能触发。
// 外部写入方可能非原子落盘，reload 失败时做有限次退避重试。
func watchFile(path string, reload func() error) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, merr.WrapErrStoreIO(path, err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, merr.WrapErrStoreIO(path, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := retry.Do(context.Background(), reload,
					retry.Attempts(3), retry.Sleep(50*time.Millisecond)); err != nil {
					log.Warn("store reload failed", zap.String("path", path), zap.Error(err))
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("store watcher error", zap.String("path", path), zap.Error(werr))
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
	}, nil
}

// fileNames 是封禁/禁言共用的文件化用户名集合。
// 磁盘格式为 JSON 字符串数组，按字典序排列。
type fileNames struct {
	mu    sync.RWMutex
	path  string
	names typeutil.Set[string]
	stop  func()
}

func newFileNames(path string) (*fileNames, error) {
	f := &fileNames{path: path, names: typeutil.NewSet[string]()}
	if err := f.reload(); err != nil {
		return nil, err
	}

	stop, err := watchFile(path, f.reload)
	if err != nil {
		return nil, err
	}
	f.stop = stop
	return f, nil
}

func (f *fileNames) reload() error {
	var names []string
	if err := readJSON(f.path, &names); err != nil {
		return err
	}
	f.mu.Lock()
	f.names = typeutil.NewSet(names...)
	f.mu.Unlock()
	return nil
}

func (f *fileNames) has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.names.Contain(name)
}

func (f *fileNames) add(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names.Contain(name) {
		return nil
	}
	f.names.Insert(name)
	return f.persistLocked()
}

func (f *fileNames) remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.names.Contain(name) {
		return nil
	}
	f.names.Remove(name)
	return f.persistLocked()
}

func (f *fileNames) list() []string {
	f.mu.RLock()
	names := f.names.Collect()
	f.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (f *fileNames) persistLocked() error {
	names := f.names.Collect()
	slices.Sort(names)
	return atomicWriteJSON(f.path, names)
}

func (f *fileNames) close() {
	if f.stop != nil {
		f.stop()
	}
}

// FileBanStore 将封禁名单持久化到单个 JSON 文件。
type FileBanStore struct {
	inner *fileNames
}

var _ BanStore = (*FileBanStore)(nil)

func NewFileBanStore(path string) (*FileBanStore, error) {
	inner, err := newFileNames(path)
	if err != nil {
		return nil, err
	}
	return &FileBanStore{inner: inner}, nil
}

func (s *FileBanStore) IsBanned(username string) (bool, error) { return s.inner.has(username), nil }
func (s *FileBanStore) Ban(username string) error              { return s.inner.add(username) }
func (s *FileBanStore) Unban(username string) error            { return s.inner.remove(username) }
func (s *FileBanStore) ListBanned() ([]string, error)          { return s.inner.list(), nil }
func (s *FileBanStore) Close()                                 { s.inner.close() }

// FileMuteStore 将禁言名单持久化到单个 JSON 文件。
type FileMuteStore struct {
	inner *fileNames
}

var _ MuteStore = (*FileMuteStore)(nil)

func NewFileMuteStore(path string) (*FileMuteStore, error) {
	inner, err := newFileNames(path)
	if err != nil {
		return nil, err
	}
	return &FileMuteStore{inner: inner}, nil
}

func (s *FileMuteStore) IsMuted(username string) (bool, error) { return s.inner.has(username), nil }
func (s *FileMuteStore) Mute(username string) error            { return s.inner.add(username) }
func (s *FileMuteStore) Unmute(username string) error          { return s.inner.remove(username) }
func (s *FileMuteStore) ListMuted() ([]string, error)          { return s.inner.list(), nil }
func (s *FileMuteStore) Close()                                { s.inner.close() }

// FilePermissionStore 将权限增删记录持久化到单个 JSON 文件。
// 磁盘格式为 用户名 → {granted, revoked} 的 JSON 对象。
type FilePermissionStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]permRecord
	stop    func()
}

var _ PermissionStore = (*FilePermissionStore)(nil)

func NewFilePermissionStore(path string) (*FilePermissionStore, error) {
	s := &FilePermissionStore{path: path, records: make(map[string]permRecord)}
	if err := s.reload(); err != nil {
		return nil, err
	}

	stop, err := watchFile(path, s.reload)
	if err != nil {
		return nil, err
	}
	s.stop = stop
	return s, nil
}

func (s *FilePermissionStore) reload() error {
	records := make(map[string]permRecord)
	if err := readJSON(s.path, &records); err != nil {
		return err
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

func (s *FilePermissionStore) Grant(username string, perm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[username] = s.records[username].grant(perm)
	return atomicWriteJSON(s.path, s.records)
}

func (s *FilePermissionStore) Revoke(username string, perm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[username] = s.records[username].revoke(perm)
	return atomicWriteJSON(s.path, s.records)
}

func (s *FilePermissionStore) Granted(username string) (typeutil.Set[int], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[username].grantedSet(), nil
}

func (s *FilePermissionStore) Revoked(username string) (typeutil.Set[int], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[username].revokedSet(), nil
}

func (s *FilePermissionStore) Close() {
	if s.stop != nil {
		s.stop()
	}
}

// FileCredentialStore 将账号记录持久化到单个 JSON 文件。
// 磁盘格式为 用户名 → Credential 的 JSON 对象。
type FileCredentialStore struct {
	mu     sync.RWMutex
	path   string
	creds  map[string]Credential
	nextID uint64
	stop   func()
}

var _ CredentialStore = (*FileCredentialStore)(nil)

func NewFileCredentialStore(path string) (*FileCredentialStore, error) {
	s := &FileCredentialStore{path: path, creds: make(map[string]Credential), nextID: 1}
	if err := s.reload(); err != nil {
		return nil, err
	}

	stop, err := watchFile(path, s.reload)
	if err != nil {
		return nil, err
	}
	s.stop = stop
	return s, nil
}

func (s *FileCredentialStore) reload() error {
	creds := make(map[string]Credential)
	if err := readJSON(s.path, &creds); err != nil {
		return err
	}
	s.mu.Lock()
	s.creds = creds
	for _, cred := range creds {
		if cred.ID >= s.nextID {
			s.nextID = cred.ID + 1
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *FileCredentialStore) Save(cred Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.ID == 0 {
		cred.ID = s.nextID
		s.nextID++
	} else if cred.ID >= s.nextID {
		s.nextID = cred.ID + 1
	}
	s.creds[cred.Username] = cred
	if err := atomicWriteJSON(s.path, s.creds); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (s *FileCredentialStore) Lookup(username string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[username]
	if !ok {
		return Credential{}, merr.WrapErrUserNotFound(username)
	}
	return cred, nil
}

func (s *FileCredentialStore) Exists(username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[username]
	return ok, nil
}

func (s *FileCredentialStore) Rename(oldName, newName string) error {
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
	return atomicWriteJSON(s.path, s.creds)
}

func (s *FileCredentialStore) Close() {
	if s.stop != nil {
		s.stop()
	}
}
