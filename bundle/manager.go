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

package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/texweb/texcore/api"
	"github.com/texweb/texcore/enginefs"
	"github.com/texweb/texcore/store"
	"k8s.io/klog/v2"
)

// ErrMalformed is returned (wrapped) when a bundle's metadata or payload
// fails validation. Callers should log and skip the bundle, continuing
// with the rest of the closure, rather than treating this as fatal.
var ErrMalformed = errors.New("malformed bundle")

// PayloadFetcher retrieves the raw gzip-compressed bytes and parsed
// metadata for a named bundle from the network tier. The HTTP
// implementation GETs "<baseURL>/<name>.data.gz" and "<baseURL>/<name>.meta.json".
type PayloadFetcher func(ctx context.Context, name string) (meta api.BundleMeta, gz []byte, err error)

// HTTPPayloadFetcher returns a PayloadFetcher backed by baseURL.
func HTTPPayloadFetcher(client *http.Client, baseURL string) PayloadFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	get := func(ctx context.Context, path string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/"+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s/%s: status %d", baseURL, path, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return func(ctx context.Context, name string) (api.BundleMeta, []byte, error) {
		var meta api.BundleMeta
		rawMeta, err := get(ctx, name+".meta.json")
		if err != nil {
			return meta, nil, fmt.Errorf("fetch %s.meta.json: %w", name, err)
		}
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return meta, nil, fmt.Errorf("%w: parse %s.meta.json: %v", ErrMalformed, name, err)
		}
		gz, err := get(ctx, name+".data.gz")
		if err != nil {
			return meta, nil, fmt.Errorf("fetch %s.data.gz: %w", name, err)
		}
		return meta, gz, nil
	}
}

// Manager is the Bundle Manager: it turns a (package set, engine) pair into
// a mounted working set of files, loading bundle payloads from an
// in-process cache, then the persistent store, then the network.
type Manager struct {
	store   *store.Store
	payload PayloadFetcher

	mu       sync.RWMutex
	registry *api.Registry
	cache    *lru.Cache[string, cachedBundle]

	sf singleflight.Group
}

type cachedBundle struct {
	meta    api.BundleMeta
	payload []byte
}

// New creates a Manager. cacheSize bounds the number of decompressed bundle
// payloads held in the in-process LRU cache.
func New(s *store.Store, payload PayloadFetcher, cacheSize int) (*Manager, error) {
	c, err := lru.New[string, cachedBundle](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("lru.New(%d): %w", cacheSize, err)
	}
	return &Manager{store: s, payload: payload, cache: c}, nil
}

// LoadRegistry fetches the registry manifests via f exactly once; repeat
// calls are no-ops once the registry is populated.
func (m *Manager) LoadRegistry(ctx context.Context, f RegistryFetcher) error {
	m.mu.RLock()
	loaded := m.registry != nil
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	reg, err := loadRegistryFrom(ctx, f)
	if err != nil {
		return fmt.Errorf("loadRegistry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registry == nil {
		m.registry = reg
	}
	return nil
}

// Registry returns the loaded registry, or nil if LoadRegistry hasn't
// completed yet.
func (m *Manager) Registry() *api.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry
}

// ResolveBundles is the pure closure function over the loaded registry; see
// the package-level ResolveBundles for the algorithm.
func (m *Manager) ResolveBundles(packages []string, engine Engine) []string {
	return ResolveBundles(m.Registry(), packages, engine)
}

// ResolveFile looks up name, a bare filename as reported by an engine's
// "file not found" diagnostic, against the loaded file-manifest, returning
// the bundle already known to provide it. This lets a caller recover a
// missing file that belongs to a bundle outside the current closure without
// falling back to the Package Fetcher's network round trip.
func (m *Manager) ResolveFile(name string) (bundleName string, ok bool) {
	reg := m.Registry()
	if reg == nil {
		return "", false
	}
	for path, entry := range reg.FileManifest {
		if path == name || strings.HasSuffix(path, "/"+name) {
			return entry.Bundle, true
		}
	}
	return "", false
}

// LoadBundle returns the decompressed payload and metadata for name,
// consulting the in-process cache, then the blob store, then the network,
// in that order. Concurrent callers for the same name share a single
// in-flight fetch via singleflight, so the network (or decompression) work
// happens at most once.
func (m *Manager) LoadBundle(ctx context.Context, name string) (api.BundleMeta, []byte, error) {
	m.mu.RLock()
	if c, ok := m.cache.Get(name); ok {
		m.mu.RUnlock()
		return c.meta, c.payload, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.sf.Do(name, func() (any, error) {
		return m.loadBundleUncached(ctx, name)
	})
	if err != nil {
		return api.BundleMeta{}, nil, err
	}
	c := v.(cachedBundle)
	return c.meta, c.payload, nil
}

func (m *Manager) loadBundleUncached(ctx context.Context, name string) (cachedBundle, error) {
	// Re-check the cache: another goroutine may have populated it while we
	// were waiting to enter the singleflight group.
	if c, ok := m.cache.Get(name); ok {
		return c, nil
	}

	if raw, ok, err := m.store.Blobs.Read(ctx, "bundle:"+name); err == nil && ok {
		meta, err := m.readPersistedMeta(ctx, name)
		if err == nil {
			c := cachedBundle{meta: meta, payload: raw}
			m.cache.Add(name, c)
			return c, nil
		}
		klog.Warningf("bundle %q: persisted payload present but metadata missing/invalid, refetching: %v", name, err)
	}

	meta, gz, err := m.payload(ctx, name)
	if err != nil {
		return cachedBundle{}, fmt.Errorf("fetch bundle %q: %w", name, err)
	}
	if err := meta.Validate(); err != nil {
		return cachedBundle{}, fmt.Errorf("%w: bundle %q: %v", ErrMalformed, name, err)
	}

	payload, err := decompressGzip(gz)
	if err != nil {
		return cachedBundle{}, fmt.Errorf("%w: decompress bundle %q: %v", ErrMalformed, name, err)
	}
	if int64(len(payload)) != meta.TotalSize {
		return cachedBundle{}, fmt.Errorf("%w: bundle %q: decompressed %d bytes, metadata declares totalSize %d", ErrMalformed, name, len(payload), meta.TotalSize)
	}

	// Persist fire-and-forget: a compile may proceed before the blob is
	// durable. A crash between fetch and durability loses cache, never
	// correctness.
	go func() {
		bg := context.Background()
		if err := m.store.Blobs.Write(bg, "bundle:"+name, payload); err != nil {
			klog.Warningf("failed to persist bundle %q payload: %v", name, err)
			return
		}
		if err := m.store.Records.PutRecord(bg, "bundlemeta:"+name, meta); err != nil {
			klog.Warningf("failed to persist bundle %q metadata: %v", name, err)
		}
	}()

	c := cachedBundle{meta: meta, payload: payload}
	m.cache.Add(name, c)
	return c, nil
}

func (m *Manager) readPersistedMeta(ctx context.Context, name string) (api.BundleMeta, error) {
	var meta api.BundleMeta
	ok, err := m.store.Records.GetRecord(ctx, "bundlemeta:"+name, &meta)
	if err != nil {
		return meta, err
	}
	if !ok {
		return meta, fmt.Errorf("no persisted metadata for bundle %q", name)
	}
	if err := meta.Validate(); err != nil {
		return meta, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return meta, nil
}

// decompressGzip uses klauspost/compress's gzip reader, a faster drop-in
// for compress/gzip already depended on elsewhere in the ecosystem for
// exactly this job.
func decompressGzip(gz []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(gz))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// MountBundle loads the named bundle via LoadBundle (served from the cache
// when already loaded) and writes every file extent to fs at its canonical
// path. Per-file errors are logged and skipped, not
// fatal: the rest of the closure still gets mounted.
func (m *Manager) MountBundle(ctx context.Context, name string, fs enginefs.FS) error {
	meta, payload, err := m.LoadBundle(ctx, name)
	if err != nil {
		return err
	}
	for _, f := range meta.Files {
		data, err := f.Extract(payload)
		if err != nil {
			klog.Warningf("bundle %q: skipping file %q: %v", name, f.CanonicalPath(), err)
			continue
		}
		if err := fs.Write(ctx, f.CanonicalPath(), data); err != nil {
			klog.Warningf("bundle %q: failed to mount %q: %v", name, f.CanonicalPath(), err)
		}
	}
	return nil
}

// LoadBundles loads (but does not mount) every named bundle in parallel,
// returning a map of name to decompressed payload. Each individual bundle's
// load-decompress step is atomic from the caller's point of view via
// LoadBundle's singleflight dedup.
func (m *Manager) LoadBundles(ctx context.Context, names []string) (map[string][]byte, error) {
	var mu sync.Mutex
	out := make(map[string][]byte, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			_, payload, err := m.LoadBundle(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = payload
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MountBundles loads and mounts every named bundle in parallel.
func (m *Manager) MountBundles(ctx context.Context, names []string, fs enginefs.FS) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return m.MountBundle(gctx, name, fs)
		})
	}
	return g.Wait()
}
