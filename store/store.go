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

// Package store implements the Persistent Store: a byte-oriented BlobStore
// keyed by canonical path, and a structured RecordStore for small JSON-
// shaped records. Every I/O error from either store is soft: callers fall
// back to network resolution rather than propagating a fatal error.
package store

import "context"

// BlobStore keys are canonical paths (or the reserved "bundle:<name>"
// pseudo-path). Writes create intermediate directories as needed.
// Concurrent writes to the same key are idempotent: the last writer wins,
// and readers never observe a torn value.
type BlobStore interface {
	Write(ctx context.Context, path string, data []byte) error
	// Read returns (data, true, nil) on a hit, (nil, false, nil) on a clean
	// miss, and (nil, false, err) only for a genuine I/O error.
	Read(ctx context.Context, path string) ([]byte, bool, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// RecordStore holds JSON-shaped records under namespaced keys such as
// "pkg:<name>", "stats:<fingerprint>", "flag:<fingerprint>:<name>" and
// "aliases". PutRecord marshals v; GetRecord unmarshals into out and
// reports whether a record was found.
type RecordStore interface {
	GetRecord(ctx context.Context, key string, out any) (bool, error)
	PutRecord(ctx context.Context, key string, v any) error
	DeleteRecord(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Store bundles a BlobStore and RecordStore; most of the system only ever
// needs to hold one of these.
type Store struct {
	Blobs   BlobStore
	Records RecordStore
}
