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

// Package enginefs defines the filesystem capability the Compilation
// Orchestrator mounts bundles and fetched files into, and that the sandboxed
// TeX engine compiles against. It exists so the rest of texcore never
// depends on a concrete sandbox implementation.
package enginefs

import "context"

// FS is the virtual filesystem surface exposed to a single compile's working
// directory. Implementations are expected to be scoped to one compile: a new
// FS per CompileRequest, discarded (or reset) once the compile is done.
type FS interface {
	// Write creates or overwrites the file at canonicalPath with data.
	// canonicalPath is rooted at api.CanonicalRoot for bundle and package
	// files; the compile's main source file is written at its own MainFile
	// path, which need not be.
	Write(ctx context.Context, canonicalPath string, data []byte) error

	// Read returns the contents previously Written at canonicalPath, or
	// ok=false if no such file has been mounted.
	Read(ctx context.Context, canonicalPath string) (data []byte, ok bool, err error)

	// Exists reports whether canonicalPath has been mounted, without
	// reading its contents.
	Exists(ctx context.Context, canonicalPath string) (bool, error)

	// Unlink removes a previously mounted file, if present.
	Unlink(ctx context.Context, canonicalPath string) error

	// List returns every canonical path currently mounted, for diagnostics
	// and for the conformance CLI's inspection mode.
	List(ctx context.Context) ([]string, error)
}
