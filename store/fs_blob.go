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

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FSBlobStore is a BlobStore backed by a local filesystem directory tree.
// Canonical paths are mapped onto the tree relative to root; the reserved
// "bundle:<name>" pseudo-path is mapped into a sibling ".bundles" directory
// so it can never collide with a real canonical path.
//
// Writes are made atomic with a temp-file-then-rename, exactly as the
// origin-private-filesystem semantics the data model requires: readers
// either see the old content or the new content, never a torn value.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore creates a filesystem-backed blob store rooted at root.
// root is created if it does not already exist.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create blob store root %q: %w", root, err)
	}
	return &FSBlobStore{root: root}, nil
}

func (s *FSBlobStore) diskPath(key string) string {
	if rest, ok := strings.CutPrefix(key, "bundle:"); ok {
		return filepath.Join(s.root, ".bundles", rest)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

// Write atomically stores data at path, creating any intermediate
// directories that don't yet exist.
func (s *FSBlobStore) Write(_ context.Context, path string, data []byte) error {
	p := s.diskPath(path)
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return fmt.Errorf("mkdir for %q: %w", path, err)
	}
	// Each writer gets its own temp file, so concurrent writers to the same
	// path never truncate or rename each other's half-written data.
	f, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", path, err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr, os.Chmod(tmp, filePerm)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file for %q: %w", path, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file into place for %q: %w", path, err)
	}
	return nil
}

// Read returns the bytes stored at path, or (nil, false, nil) if nothing is
// stored there.
func (s *FSBlobStore) Read(_ context.Context, path string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.diskPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		klog.Warningf("blob read %q: %v", path, err)
		return nil, false, err
	}
	return data, true, nil
}

// Exists reports whether a blob is stored at path.
func (s *FSBlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(s.diskPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the blob stored at path, if any.
func (s *FSBlobStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(s.diskPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
