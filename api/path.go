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

// Package api holds the wire and data-model types shared across the store,
// bundle, fetcher and engine packages: canonical paths, bundle metadata,
// registry manifests, the CTAN proxy JSON contract, and persisted records.
package api

import "strings"

// CanonicalRoot is the path prefix every file mounted into the engine's
// virtual filesystem must live under.
const CanonicalRoot = "/texlive/"

// ValidCanonicalPath reports whether p is safe to mount: it must be
// non-empty and rooted at CanonicalRoot. This is the path-safety invariant:
// any metadata entry violating it is rejected at load time.
func ValidCanonicalPath(p string) bool {
	return strings.HasPrefix(p, CanonicalRoot) && p != CanonicalRoot
}

// CurrentCacheVersion is compared against a PackageRecord's CacheVersion on
// read; a mismatch is treated as if the record were absent. Bumping this is
// a deliberate, reviewed act, never computed from build metadata.
const CurrentCacheVersion = 1
