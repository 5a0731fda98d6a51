package apiexec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var _ CredentialStore = (*MemoryCredentialStore)(nil)

// MemoryCredentialStore keeps the session in process memory.
type MemoryCredentialStore struct {
	mu        sync.RWMutex
	session   AuthSession
	persisted bool
}

func NewMemoryCredentialStore(initial AuthSession) *MemoryCredentialStore {
	return &MemoryCredentialStore{session: initial, persisted: !initial.Empty()}
}

func (m *MemoryCredentialStore) Get() (AuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, nil
}

func (m *MemoryCredentialStore) Set(s AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.persisted = true
	return nil
}

// Clear drops the tokens but remembers that a session existed.
func (m *MemoryCredentialStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = AuthSession{}
	return nil
}

func (m *MemoryCredentialStore) Persisted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persisted
}

var _ CredentialStore = (*FileCredentialStore)(nil)

type credentialFile struct {
	Session   AuthSession `json:"session"`
	Persisted bool        `json:"persisted"`
}

// FileCredentialStore persists the session as JSON in a 0600 file.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// DefaultCredentialPath returns $HOME/.consolectl/credentials.json.
func DefaultCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".consolectl", "credentials.json"), nil
}

func (f *FileCredentialStore) Path() string {
	return f.path
}

func (f *FileCredentialStore) load() (credentialFile, error) {
	var cf credentialFile
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cf, nil
		}
		return cf, fmt.Errorf("reading credential file '%s': %w", f.path, err)
	}
	if err := json.Unmarshal(data, &cf); err != nil {
		return cf, fmt.Errorf("decoding credential file '%s': %w", f.path, err)
	}
	return cf, nil
}

func (f *FileCredentialStore) save(cf credentialFile) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credential directory '%s': %w", dir, err)
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	// write then rename so a crash never leaves a truncated file behind
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing credential file '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing credential file '%s': %w", f.path, err)
	}
	return nil
}

func (f *FileCredentialStore) Get() (AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cf, err := f.load()
	if err != nil {
		return AuthSession{}, err
	}
	return cf.Session, nil
}

func (f *FileCredentialStore) Set(s AuthSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(credentialFile{Session: s, Persisted: true})
}

func (f *FileCredentialStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cf, err := f.load()
	if err != nil {
		return err
	}
	if !cf.Persisted {
		return nil
	}
	return f.save(credentialFile{Persisted: true})
}

func (f *FileCredentialStore) Persisted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cf, err := f.load()
	return err == nil && cf.Persisted
}
