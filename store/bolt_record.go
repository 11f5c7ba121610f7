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
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltRecordStore is a RecordStore backed by a single bbolt file. All
// records live in one bucket, keyed by their RecordStore key directly;
// ListKeys does a bucket cursor scan filtering by prefix.
type BoltRecordStore struct {
	db *bolt.DB
}

// NewBoltRecordStore opens (creating if necessary) a bbolt database at path.
func NewBoltRecordStore(path string) (*BoltRecordStore, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create records bucket: %w", err)
	}
	return &BoltRecordStore{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (s *BoltRecordStore) Close() error {
	return s.db.Close()
}

// GetRecord looks up key and, if present, unmarshals its JSON value into out.
func (s *BoltRecordStore) GetRecord(_ context.Context, key string, out any) (bool, error) {
	var raw []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...) // bbolt values are only valid within the transaction.
		}
		return nil
	}); err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal record %q: %w", key, err)
	}
	return true, nil
}

// PutRecord marshals v as JSON and stores it under key.
func (s *BoltRecordStore) PutRecord(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record %q: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), raw)
	})
}

// DeleteRecord removes key, if present.
func (s *BoltRecordStore) DeleteRecord(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
}

// ListKeys returns every key with the given prefix.
func (s *BoltRecordStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	if err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
