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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/texweb/texcore/api"
	"k8s.io/klog/v2"
)

// RegistryFetcher knows how to retrieve the raw bytes of a registry
// manifest file by name (e.g. "registry.json"). The HTTP implementation
// GETs <baseURL>/<name>; tests can supply an in-memory one.
type RegistryFetcher func(ctx context.Context, name string) ([]byte, error)

// HTTPRegistryFetcher returns a RegistryFetcher that retrieves manifests
// from baseURL over HTTP(S).
func HTTPRegistryFetcher(client *http.Client, baseURL string) RegistryFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, name string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/"+name, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s/%s: %w", baseURL, name, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s/%s: status %d", baseURL, name, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}

// loadRegistryFrom fetches and decodes the required and optional registry
// manifests via f. The two dependency graphs (bundle-deps.json,
// package-deps.json) are optional; their absence (a transient fetch error)
// is tolerated and simply leaves those maps nil.
func loadRegistryFrom(ctx context.Context, f RegistryFetcher) (*api.Registry, error) {
	reg := &api.Registry{}

	raw, err := f(ctx, "registry.json")
	if err != nil {
		return nil, fmt.Errorf("fetch registry.json: %w", err)
	}
	if err := json.Unmarshal(raw, &reg.Bundles); err != nil {
		return nil, fmt.Errorf("parse registry.json: %w", err)
	}

	raw, err = f(ctx, "package-map.json")
	if err != nil {
		return nil, fmt.Errorf("fetch package-map.json: %w", err)
	}
	if err := json.Unmarshal(raw, &reg.PackageMap); err != nil {
		return nil, fmt.Errorf("parse package-map.json: %w", err)
	}

	raw, err = f(ctx, "file-manifest.json")
	if err != nil {
		return nil, fmt.Errorf("fetch file-manifest.json: %w", err)
	}
	if err := json.Unmarshal(raw, &reg.FileManifest); err != nil {
		return nil, fmt.Errorf("parse file-manifest.json: %w", err)
	}

	if raw, err := f(ctx, "bundle-deps.json"); err != nil {
		klog.V(1).Infof("bundle-deps.json unavailable (optional): %v", err)
	} else if err := json.Unmarshal(raw, &reg.BundleDeps); err != nil {
		klog.Warningf("bundle-deps.json malformed, ignoring: %v", err)
	}

	if raw, err := f(ctx, "package-deps.json"); err != nil {
		klog.V(1).Infof("package-deps.json unavailable (optional): %v", err)
	} else if err := json.Unmarshal(raw, &reg.PackageDeps); err != nil {
		klog.Warningf("package-deps.json malformed, ignoring: %v", err)
	}

	return reg, nil
}
