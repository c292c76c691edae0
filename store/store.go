// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists the device configuration in a flat YAML file.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ZaparooProject/go-flowbird"
	"github.com/ZaparooProject/go-flowbird/internal/syncutil"
)

// DefaultWatchInterval is how often Watch polls the file
const DefaultWatchInterval = time.Second

type observer struct {
	fn func(key, value string)
	id uint64
}

// FileStore is a flowbird.ConfigStore backed by a YAML document mapping keys
// to string values. Observers run after the change is on disk, outside the
// store lock.
type FileStore struct {
	modTime   time.Time
	values    map[string]string
	observers map[string][]observer
	path      string
	nextID    uint64
	mu        syncutil.Mutex
}

var _ flowbird.ConfigStore = (*FileStore)(nil)

// Open loads path. A missing file yields an empty store that is created on
// the first Set.
func Open(path string) (*FileStore, error) {
	values, modTime, err := load(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:      path,
		values:    values,
		modTime:   modTime,
		observers: make(map[string][]observer),
	}, nil
}

func load(path string) (map[string]string, time.Time, error) {
	values := make(map[string]string)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat config %s: %w", path, err)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return values, info.ModTime(), nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// Keys returns the sorted keys with a value
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Get returns the value of key, empty when unset
func (s *FileStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set writes value to disk and notifies the observers of key. The value is
// left unchanged when the file cannot be written.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	previous, had := s.values[key]
	s.values[key] = value
	if err := s.saveLocked(); err != nil {
		if had {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		s.mu.Unlock()
		return err
	}
	obs := slices.Clone(s.observers[key])
	s.mu.Unlock()

	for _, o := range obs {
		o.fn(key, value)
	}
	return nil
}

// Observe registers fn for changes of key, either through Set or Reload
func (s *FileStore) Observe(key string, fn func(key, value string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers[key] = append(s.observers[key], observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers[key] = slices.DeleteFunc(s.observers[key], func(o observer) bool {
			return o.id == id
		})
	}
}

// Reload rereads the file and notifies the observers of every key whose
// value changed. It returns the changed keys in order.
func (s *FileStore) Reload() ([]string, error) {
	values, modTime, err := load(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var changed []string
	for key, value := range values {
		if current, ok := s.values[key]; !ok || current != value {
			changed = append(changed, key)
		}
	}
	for key := range s.values {
		if _, ok := values[key]; !ok {
			changed = append(changed, key)
		}
	}
	slices.Sort(changed)
	s.values = values
	s.modTime = modTime

	type notification struct {
		key, value string
		obs        []observer
	}
	pending := make([]notification, 0, len(changed))
	for _, key := range changed {
		pending = append(pending, notification{key: key, value: values[key], obs: slices.Clone(s.observers[key])})
	}
	s.mu.Unlock()

	for _, n := range pending {
		for _, o := range n.obs {
			o.fn(n.key, n.value)
		}
	}
	if len(changed) > 0 {
		flowbird.Debugf("store: %s reloaded, changed %v", s.path, changed)
	}
	return changed, nil
}

// Watch polls the file until ctx is done and reloads it when its
// modification time moves. External writers such as the hunter poll script
// are picked up this way.
func (s *FileStore) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := os.Stat(s.path)
			if err != nil {
				continue
			}
			s.mu.Lock()
			stale := !info.ModTime().Equal(s.modTime)
			s.mu.Unlock()
			if !stale {
				continue
			}
			if _, err := s.Reload(); err != nil {
				flowbird.Debugf("store: reload %s: %v", s.path, err)
			}
		}
	}
}

// saveLocked replaces the file atomically
func (s *FileStore) saveLocked() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace config %s: %w", s.path, err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}
