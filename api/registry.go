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

// FileManifestEntry is one value of file-manifest.json: the bundle holding
// a given canonical path, and the path's extent within it.
type FileManifestEntry struct {
	Bundle string `json:"bundle"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
}

// Registry is the decoded, in-process form of the five registry manifests
// served from a single base URL. It is read-only after LoadRegistry
// populates it.
type Registry struct {
	// Bundles is the set of existing bundle names (registry.json).
	Bundles []string
	// PackageMap maps a package name to the bundle that provides it
	// (package-map.json).
	PackageMap map[string]string
	// FileManifest maps a canonical path to its bundle and extent
	// (file-manifest.json).
	FileManifest map[string]FileManifestEntry
	// BundleDeps maps a bundle name to the bundles it depends on
	// (bundle-deps.json).
	BundleDeps map[string][]string
	// PackageDeps optionally maps a package name to the package names it
	// depends on (package-deps.json).
	PackageDeps map[string][]string
}

// HasBundle reports whether name is a known bundle.
func (r *Registry) HasBundle(name string) bool {
	if r == nil {
		return false
	}
	for _, b := range r.Bundles {
		if b == name {
			return true
		}
	}
	return false
}
