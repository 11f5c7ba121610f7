// Copyright 2026 The texcore authors. All Rights Reserved.
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

package enginefs

import (
	"context"
	"sync"
)

// MemFS is an in-memory FS, used by tests and by the conformance CLI's demo
// mode, which never shells out to a real TeX sandbox.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemFS returns an empty MemFS.
func NewMemFS() *MemFS {
	return &MemFS{files: map[string][]byte{}}
}

func (m *MemFS) Write(_ context.Context, canonicalPath string, data []byte) error {
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[canonicalPath] = cp
	return nil
}

func (m *MemFS) Read(_ context.Context, canonicalPath string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[canonicalPath]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemFS) Exists(_ context.Context, canonicalPath string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[canonicalPath]
	return ok, nil
}

func (m *MemFS) Unlink(_ context.Context, canonicalPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, canonicalPath)
	return nil
}

func (m *MemFS) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	return out, nil
}
