package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	xerrors "SolTradeBot/internal/errors"
)

const usersFileName = "users.json"

// MemoryStore keeps credentials in memory and mirrors them to a JSON file
// under the data directory, so a restart does not lose custodial keys.
// Intended for single-node deployments; the MySQL store covers the rest.
type MemoryStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]storedUser
}

type storedUser struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"wallet_address"`
}

// NewMemoryStore loads any previously persisted credentials from dataDir.
func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	store := &MemoryStore{
		path:  filepath.Join(dataDir, usersFileName),
		users: make(map[string]storedUser),
	}
	content, err := os.ReadFile(store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("读取钱包文件失败: %w", err)
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &store.users); err != nil {
			return nil, fmt.Errorf("解析钱包文件失败: %w", err)
		}
	}
	return store, nil
}

// GetCredential implements Store.
func (s *MemoryStore) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	s.mu.RLock()
	entry, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok || entry.PrivateKey == "" {
		return nil, ErrNotFound
	}
	cred, err := FromBase58(userID, entry.PrivateKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "钱包数据损坏")
	}
	return cred, nil
}

// GetAddress implements Store.
func (s *MemoryStore) GetAddress(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	entry, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok || entry.Address == "" {
		return "", ErrNotFound
	}
	return entry.Address, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.UserID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "凭证不完整")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[cred.UserID] = storedUser{
		PrivateKey: cred.PrivateKey.String(),
		Address:    cred.Address,
	}
	return s.persistLocked()
}

// persistLocked writes the full map atomically via a temp file rename.
func (s *MemoryStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	content, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化钱包数据失败")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入钱包文件失败")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "替换钱包文件失败")
	}
	return nil
}
