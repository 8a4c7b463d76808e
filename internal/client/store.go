package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// TokenKey はアクセストークンを保存するキー。
const TokenKey = "baasproxy.access_token"

// TokenStore はアクセストークン1件を永続化するストア。
// 未保存の場合、Getは空文字列を返す。
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// MemoryTokenStore はプロセス内メモリにトークンを保持するTokenStore。
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore はMemoryTokenStoreを生成する。
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Get は保存されているトークンを返す。未保存の場合は空文字列。
func (m *MemoryTokenStore) Get() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

// Set はトークンを保存する。
func (m *MemoryTokenStore) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// Delete は保存されているトークンを削除する。
func (m *MemoryTokenStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// FileTokenStore はキーと値のJSONファイルにトークンを保存するTokenStore。
// ファイル内の他のキーは保持したまま、TokenKeyのみを読み書きする。
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore はpathを保存先とするFileTokenStoreを生成する。
// ファイルは最初の書き込み時に作成される。
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Get は保存されているトークンを返す。未保存の場合は空文字列。
func (f *FileTokenStore) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	return values[TokenKey], nil
}

// Set はトークンを保存する。
func (f *FileTokenStore) Set(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[TokenKey] = token
	return f.save(values)
}

// Delete は保存されているトークンを削除する。
func (f *FileTokenStore) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[TokenKey]; !ok {
		return nil
	}
	delete(values, TokenKey)
	return f.save(values)
}

func (f *FileTokenStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token store: %w", err)
	}

	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse token store %s: %w", f.path, err)
	}
	return values, nil
}

// save は一時ファイルに書き込んでからリネームする。
func (f *FileTokenStore) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode token store: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token store: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token store permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token store: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace token store: %w", err)
	}
	return nil
}
