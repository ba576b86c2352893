// Package storage is the durable key/value store the client keeps its session
// markers and read-through hints in.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNotFound = errors.New("key does not exist")

// Storage is implemented by redis_utils.RedisHandler and by Memory.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SetJSON serializes value and stores it under key.
func SetJSON(ctx context.Context, s Storage, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize value: %w", err)
	}
	return s.Set(ctx, key, string(data), expiration)
}

// GetJSON reads key and deserializes it into result.
func GetJSON(ctx context.Context, s Storage, key string, result interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), result); err != nil {
		return fmt.Errorf("failed to deserialize value: %w", err)
	}
	return nil
}

type item struct {
	value     string
	expiresAt time.Time
}

// Memory keeps everything in process; nothing survives a restart.
type Memory struct {
	items map[string]item
	mutex sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]item)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	it, ok := m.items[key]
	if !ok || (!it.expiresAt.IsZero() && time.Now().After(it.expiresAt)) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return it.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, expiration time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	it := item{value: value}
	if expiration > 0 {
		it.expiresAt = time.Now().Add(expiration)
	}
	m.items[key] = it
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.items)
}
