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

package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/texweb/texcore/api"
	"github.com/texweb/texcore/store"
	"k8s.io/klog/v2"
)

// Result is the outcome of successfully resolving one package name.
type Result struct {
	Files        map[string][]byte
	Dependencies []string
}

// Fetcher is the Package Fetcher: it resolves a package name missing from
// the mounted closure to its files via the persistent store, falling back
// to the CTAN proxy, with negative caching and alias learning.
type Fetcher struct {
	store   *store.Store
	proxy   *ProxyClient
	version int

	sf singleflight.Group

	mu      sync.Mutex
	mounted map[string]bool
}

// New creates a Fetcher. cacheVersion must match api.PackageRecord's
// CacheVersion for a cached record to be considered valid; bump it whenever
// the on-disk record shape changes incompatibly.
func New(s *store.Store, proxy *ProxyClient, cacheVersion int) *Fetcher {
	return &Fetcher{
		store:   s,
		proxy:   proxy,
		version: cacheVersion,
		mounted: map[string]bool{},
	}
}

// FetchPackage resolves name to its files, consulting the persistent record
// cache before the network. A nil, nil result means the package does not
// exist (recorded for next time when the proxy reported it missing) or that
// name is not a valid fetch candidate (nothing recorded); a non-nil error means a
// transient failure that was deliberately left uncached so a later retry
// can succeed.
func (f *Fetcher) FetchPackage(ctx context.Context, name string) (*Result, error) {
	norm, ok := NormalizePackageName(name)
	if !ok {
		return nil, nil
	}

	v, err, _ := f.sf.Do(norm, func() (any, error) {
		return f.fetchPackageUncached(ctx, norm)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*Result), nil
}

func (f *Fetcher) fetchPackageUncached(ctx context.Context, name string) (*Result, error) {
	// The record cache is consulted under the requested name before any
	// network call, including alias resolution, so a negatively-cached
	// lookup never touches the network again within the same cache
	// version (invariant: negative cache honoured).
	if rec, ok := f.cachedRecord(ctx, name); ok {
		if rec.NotFound {
			return nil, nil
		}
		if files, complete := f.readCachedFiles(ctx, rec); complete {
			f.markMounted(rec.CanonicalPaths)
			return &Result{Files: files, Dependencies: rec.Dependencies}, nil
		}
		klog.V(1).Infof("package %q: cached record incomplete in blob store, refetching", name)
	}

	canonical := f.resolveAlias(ctx, name)
	if canonical != name {
		if rec, ok := f.cachedRecord(ctx, canonical); ok {
			if rec.NotFound {
				return nil, nil
			}
			if files, complete := f.readCachedFiles(ctx, rec); complete {
				f.markMounted(rec.CanonicalPaths)
				return &Result{Files: files, Dependencies: rec.Dependencies}, nil
			}
		}
	}

	fr, err := f.proxy.fetch(ctx, canonical)
	if err != nil {
		// Transient: persist nothing so the next attempt retries the network.
		return nil, fmt.Errorf("fetch package %q: %w", canonical, err)
	}
	if fr.negative {
		// Persisted under the originally requested name: a future call
		// consults the record cache for name before ever resolving an
		// alias, so the negative result must be reachable under that key.
		f.persistNotFound(ctx, name)
		return nil, nil
	}
	res := fr.resp

	files := make(map[string][]byte, len(res.Files))
	paths := make([]string, 0, len(res.Files))
	for _, pf := range res.Files {
		data, err := decodeProxyFile(pf)
		if err != nil {
			klog.Warningf("package %q: skipping undecodable file %q: %v", canonical, pf.Path, err)
			continue
		}
		files[pf.Path] = data
		paths = append(paths, pf.Path)
		f.persistFile(ctx, pf.Path, data)
	}

	rec := api.PackageRecord{
		Name:           canonical,
		CanonicalPaths: paths,
		Dependencies:   res.Dependencies,
		CacheVersion:   f.version,
	}
	if err := f.store.Records.PutRecord(ctx, "pkg:"+canonical, rec); err != nil {
		klog.Warningf("package %q: failed to persist record: %v", canonical, err)
	}
	f.markMounted(paths)

	return &Result{Files: files, Dependencies: res.Dependencies}, nil
}

func decodeProxyFile(pf api.ProxyFile) ([]byte, error) {
	if pf.Encoding == "base64" {
		return base64.StdEncoding.DecodeString(pf.Content)
	}
	return []byte(pf.Content), nil
}

// resolveAlias consults the persisted alias table, then (if absent) asks the
// proxy's package-metadata endpoint and learns a new alias when the
// upstream names a different canonical package.
func (f *Fetcher) resolveAlias(ctx context.Context, name string) string {
	var table api.AliasTable
	if ok, err := f.store.Records.GetRecord(ctx, "aliases", &table); err == nil && ok {
		if canonical, ok := table[name]; ok {
			return canonical
		}
	}

	meta, found, err := f.proxy.pkgMeta(ctx, name)
	if err != nil || !found {
		return name
	}
	canonical := name
	switch {
	case meta.Texlive != "" && meta.Texlive != name:
		canonical = meta.Texlive
	case meta.Miktex != "" && meta.Miktex != name:
		canonical = meta.Miktex
	}
	if canonical == name {
		return name
	}

	if table == nil {
		table = api.AliasTable{}
	}
	table[name] = canonical
	if err := f.store.Records.PutRecord(ctx, "aliases", table); err != nil {
		klog.Warningf("failed to persist learned alias %q -> %q: %v", name, canonical, err)
	} else {
		klog.V(1).Infof("learned alias %q -> %q", name, canonical)
	}
	return canonical
}

func (f *Fetcher) cachedRecord(ctx context.Context, name string) (api.PackageRecord, bool) {
	var rec api.PackageRecord
	ok, err := f.store.Records.GetRecord(ctx, "pkg:"+name, &rec)
	if err != nil || !ok {
		return api.PackageRecord{}, false
	}
	if rec.Stale(f.version) {
		return api.PackageRecord{}, false
	}
	return rec, true
}

func (f *Fetcher) readCachedFiles(ctx context.Context, rec api.PackageRecord) (map[string][]byte, bool) {
	files := make(map[string][]byte, len(rec.CanonicalPaths))
	for _, p := range rec.CanonicalPaths {
		data, ok, err := f.store.Blobs.Read(ctx, p)
		if err != nil || !ok {
			return nil, false
		}
		files[p] = data
	}
	return files, true
}

func (f *Fetcher) persistFile(ctx context.Context, path string, data []byte) {
	if err := f.store.Blobs.Write(ctx, path, data); err != nil {
		klog.Warningf("failed to persist fetched file %q: %v", path, err)
	}
}

func (f *Fetcher) persistNotFound(ctx context.Context, name string) {
	rec := api.PackageRecord{Name: name, NotFound: true, CacheVersion: f.version}
	if err := f.store.Records.PutRecord(ctx, "pkg:"+name, rec); err != nil {
		klog.Warningf("failed to persist not-found record for %q: %v", name, err)
	}
}

func (f *Fetcher) markMounted(paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		f.mounted[p] = true
	}
}

// GetMountedFiles returns every canonical path fetched (from cache or
// network) during this Fetcher's lifetime.
func (f *Fetcher) GetMountedFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.mounted))
	for p := range f.mounted {
		out = append(out, p)
	}
	return out
}

// FetchWithDependencies resolves name and its transitive dependency closure,
// guarding against cycles with a visited set, and returns the union of
// every package's files.
func (f *Fetcher) FetchWithDependencies(ctx context.Context, name string) (map[string][]byte, error) {
	out := map[string][]byte{}
	visited := map[string]bool{}

	var visit func(n string) error
	visit = func(n string) error {
		norm, ok := NormalizePackageName(n)
		if !ok || visited[norm] {
			return nil
		}
		visited[norm] = true

		res, err := f.FetchPackage(ctx, norm)
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		for p, data := range res.Files {
			out[p] = data
		}

		deps := res.Dependencies
		if len(deps) == 0 {
			if d, err := f.proxy.deps(ctx, norm); err == nil {
				deps = d
			}
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}
	return out, nil
}
