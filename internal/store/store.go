package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Keys of the persisted client stores. Each holds one JSON snapshot.
const (
	AuthKey  = "auth-storage"
	UIKey    = "ui-storage"
	TableKey = "table-storage"
)

// AllKeys lists every store key cleared on sign-out.
var AllKeys = []string{AuthKey, UIKey, TableKey}

var (
	ErrNotFound      = errors.New("storage key not found")
	ErrUnknownScheme = errors.New("unknown storage scheme")
)

// Storage persists one opaque blob per key. Set replaces the whole value at once.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open picks a backend from the URI scheme: file://dir, memory://, postgres://..., redis://...
func Open(ctx context.Context, uri string) (Storage, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse storage uri: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewFileStorage(u.Host + u.Path)
	case "memory":
		return NewMemory(), nil
	case "postgres", "postgresql":
		var db Database
		if err := db.NewStorage(ctx, uri); err != nil {
			return nil, err
		}
		return &db, nil
	case "redis", "rediss":
		return NewRedisStorage(ctx, uri)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
}

// LoadJSON decodes the snapshot stored under key into v.
func LoadJSON(ctx context.Context, s Storage, key string, v any) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SaveJSON encodes v fully before writing so a failed encode never touches the stored value.
func SaveJSON(ctx context.Context, s Storage, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, b)
}

type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Keys returns the stored keys, for tests and diagnostics.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}
