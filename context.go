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

package texcore

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/texweb/texcore/api"
	"github.com/texweb/texcore/bundle"
	"github.com/texweb/texcore/engine"
	"github.com/texweb/texcore/enginefs"
	"github.com/texweb/texcore/fetcher"
	"github.com/texweb/texcore/store"
	"k8s.io/klog/v2"
)

// RunResult is one invocation of the sandboxed TeX engine.
type RunResult struct {
	ExitCode int
	Log      string
	// Artifact is the compiled output (typically a PDF), or nil if the
	// engine produced none.
	Artifact []byte
}

// EngineRunner is the out-of-scope collaborator: the sandboxed TeX engine
// binary, exposing only argv invocation over an already-mounted
// enginefs.FS. texcore never implements this itself.
type EngineRunner interface {
	Run(ctx context.Context, argv []string, fs enginefs.FS) (RunResult, error)
}

// Config bundles everything needed to construct a Context.
type Config struct {
	BlobStore   store.BlobStore
	RecordStore store.RecordStore

	RegistryBaseURL string
	BundleBaseURL   string
	ProxyBaseURL    string
	HTTPClient      *http.Client

	Engine EngineRunner

	// BundleCacheSize bounds the Bundle Manager's in-process LRU cache
	// entry count; 0 selects a default.
	BundleCacheSize int
	// PackageCacheVersion is compared against persisted pkg:<name>
	// records; bump it whenever the record shape changes incompatibly.
	// 0 selects api.CurrentCacheVersion.
	PackageCacheVersion int
	// RetryBound caps the Orchestrator's recovery-loop iterations per
	// compile; 0 selects a default of 3.
	RetryBound int
}

// Context is the top-level, process-wide (but not statically global) owner
// of every texcore component: the Store, Bundle Manager, Package Fetcher
// and Engine Selector. One Context typically lives for the worker's whole
// lifetime; Close releases its persistent-store handle.
type Context struct {
	store    *store.Store
	manager  *bundle.Manager
	fetcher  *fetcher.Fetcher
	selector *engine.Selector
	runner   EngineRunner

	retryBound int

	mu         sync.Mutex
	cancelPrev context.CancelFunc
}

// NewContext wires up a Context from cfg. It does not itself load the
// bundle registry, and Compile does not load it either: Compile fails with
// ErrRegistryUnavailable until LoadRegistry has been called, typically
// during worker startup.
func NewContext(cfg Config) (*Context, error) {
	if cfg.BlobStore == nil || cfg.RecordStore == nil {
		return nil, fmt.Errorf("texcore: NewContext requires both a BlobStore and RecordStore: %w", ErrFatal)
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("texcore: NewContext requires an EngineRunner: %w", ErrFatal)
	}

	cacheSize := cfg.BundleCacheSize
	if cacheSize <= 0 {
		cacheSize = 64
	}
	retryBound := cfg.RetryBound
	if retryBound <= 0 {
		retryBound = 3
	}
	cacheVersion := cfg.PackageCacheVersion
	if cacheVersion <= 0 {
		cacheVersion = api.CurrentCacheVersion
	}

	st := &store.Store{Blobs: cfg.BlobStore, Records: cfg.RecordStore}

	payload := bundle.HTTPPayloadFetcher(cfg.HTTPClient, cfg.BundleBaseURL)
	mgr, err := bundle.New(st, payload, cacheSize)
	if err != nil {
		return nil, fmt.Errorf("texcore: %w: %v", ErrFatal, err)
	}

	proxy := fetcher.NewProxyClient(cfg.HTTPClient, cfg.ProxyBaseURL, 0)
	ftch := fetcher.New(st, proxy, cacheVersion)

	sel := engine.New(st)

	return &Context{
		store:      st,
		manager:    mgr,
		fetcher:    ftch,
		selector:   sel,
		runner:     cfg.Engine,
		retryBound: retryBound,
	}, nil
}

// LoadRegistry fetches the Bundle Manager's registry manifests from
// registryBaseURL, failing fast (ErrFatal) if the core manifests are
// unreachable or malformed. Safe to call multiple times; only the first
// completes the load.
func (c *Context) LoadRegistry(ctx context.Context, registryBaseURL string, httpClient *http.Client) error {
	f := bundle.HTTPRegistryFetcher(httpClient, registryBaseURL)
	if err := c.manager.LoadRegistry(ctx, f); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return nil
}

// cancelPreviousCompile cancels any outstanding compile's context at the
// next suspension point and installs cancel as the new one to supersede.
// In-flight fetches are deliberately not tied to this cancellation: their
// completion still populates the cache for future use.
func (c *Context) cancelPreviousCompile(cancel context.CancelFunc) {
	c.mu.Lock()
	prev := c.cancelPrev
	c.cancelPrev = cancel
	c.mu.Unlock()
	if prev != nil {
		klog.V(1).Infof("cancelling previous outstanding compile")
		prev()
	}
}

// Close releases resources held by the Context's persistent store, if its
// backing implementation requires it (e.g. a bbolt database handle).
func (c *Context) Close() error {
	type closer interface{ Close() error }
	if cl, ok := c.store.Records.(closer); ok {
		return cl.Close()
	}
	return nil
}
