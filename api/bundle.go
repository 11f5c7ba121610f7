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

package api

import "fmt"

// FileExtent describes one file's location within a bundle's decompressed
// payload.
type FileExtent struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// CanonicalPath returns the identity of this file across every tier of the
// system.
func (f FileExtent) CanonicalPath() string {
	return f.Path + "/" + f.Name
}

// BundleMeta is the decoded form of a `<name>.meta.json` manifest.
type BundleMeta struct {
	Name      string       `json:"name"`
	Files     []FileExtent `json:"files"`
	TotalSize int64        `json:"totalSize"`
}

// Validate checks the bundle invariants from the data model: extents must
// be non-overlapping, sorted by start, end must not exceed TotalSize, and
// every canonical path must be rooted under CanonicalRoot. It returns a
// descriptive error the caller should treat as Malformed (log and skip)
// rather than Fatal.
func (m BundleMeta) Validate() error {
	var prevEnd int64
	for i, f := range m.Files {
		if f.Start < 0 || f.End < f.Start {
			return fmt.Errorf("file %d (%s): invalid extent [%d,%d)", i, f.CanonicalPath(), f.Start, f.End)
		}
		if f.Start < prevEnd {
			return fmt.Errorf("file %d (%s): extent starts at %d, before previous end %d", i, f.CanonicalPath(), f.Start, prevEnd)
		}
		if f.End > m.TotalSize {
			return fmt.Errorf("file %d (%s): extent end %d exceeds totalSize %d", i, f.CanonicalPath(), f.End, m.TotalSize)
		}
		if !ValidCanonicalPath(f.CanonicalPath()) {
			return fmt.Errorf("file %d: canonical path %q is not rooted at %s", i, f.CanonicalPath(), CanonicalRoot)
		}
		prevEnd = f.End
	}
	return nil
}

// Extract returns the slice of payload corresponding to f. Callers must have
// already validated the bundle the extent came from.
func (f FileExtent) Extract(payload []byte) ([]byte, error) {
	if f.End > int64(len(payload)) {
		return nil, fmt.Errorf("extent [%d,%d) out of range for payload of length %d", f.Start, f.End, len(payload))
	}
	return payload[f.Start:f.End], nil
}
