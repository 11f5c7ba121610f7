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

package fetcher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/texweb/texcore/api"
	"github.com/texweb/texcore/fetcher"
	"github.com/texweb/texcore/store"
)

func newTestStore() *store.Store {
	return &store.Store{Blobs: store.NewMemBlobStore(), Records: store.NewMemRecordStore()}
}

func TestFetchPackageNegativeCache(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := newTestStore()
	proxy := fetcher.NewProxyClient(srv.Client(), srv.URL, 1)
	f := fetcher.New(s, proxy, 1)
	ctx := context.Background()

	res, err := f.FetchPackage(ctx, "definitely-not-a-package")
	if err != nil || res != nil {
		t.Fatalf("first FetchPackage = (%v, %v), want (nil, nil)", res, err)
	}
	hitsAfterFirst := atomic.LoadInt64(&hits)
	if hitsAfterFirst == 0 {
		t.Fatalf("network hits after first fetch = %d, want at least 1", hitsAfterFirst)
	}

	res, err = f.FetchPackage(ctx, "definitely-not-a-package")
	if err != nil || res != nil {
		t.Fatalf("second FetchPackage = (%v, %v), want (nil, nil)", res, err)
	}
	if got := atomic.LoadInt64(&hits); got != hitsAfterFirst {
		t.Errorf("network hits grew from %d to %d on second fetch (negative cache not honoured)", hitsAfterFirst, got)
	}
}

func TestFetchPackageSuccessDecodesBase64AndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := api.FetchResponse{
			Name: "lingmacros",
			Files: map[string]api.ProxyFile{
				"/texlive/texmf-dist/tex/latex/lingmacros/lingmacros.sty": {
					Path:    "/texlive/texmf-dist/tex/latex/lingmacros/lingmacros.sty",
					Content: "\\ProvidesPackage{lingmacros}",
				},
				"/texlive/texmf-dist/fonts/lingmacros.pfb": {
					Path:     "/texlive/texmf-dist/fonts/lingmacros.pfb",
					Content:  "AQIDBA==", // base64 of 0x01 0x02 0x03 0x04
					Encoding: "base64",
				},
			},
			Dependencies: nil,
			TotalFiles:   2,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := newTestStore()
	proxy := fetcher.NewProxyClient(srv.Client(), srv.URL, 1)
	f := fetcher.New(s, proxy, 1)
	ctx := context.Background()

	res, err := f.FetchPackage(ctx, "lingmacros")
	if err != nil {
		t.Fatalf("FetchPackage: %v", err)
	}
	if res == nil {
		t.Fatal("FetchPackage returned nil, want a result")
	}
	if len(res.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(res.Files))
	}
	sty := res.Files["/texlive/texmf-dist/tex/latex/lingmacros/lingmacros.sty"]
	if string(sty) != "\\ProvidesPackage{lingmacros}" {
		t.Errorf("text file decoded = %q", sty)
	}
	bin := res.Files["/texlive/texmf-dist/fonts/lingmacros.pfb"]
	if len(bin) != 4 || bin[0] != 1 || bin[3] != 4 {
		t.Errorf("base64 file decoded = %v, want [1 2 3 4]", bin)
	}

	// A second fetch must be served from the persisted record/blob cache
	// without hitting the network again.
	res2, err := f.FetchPackage(ctx, "lingmacros")
	if err != nil || res2 == nil || len(res2.Files) != 2 {
		t.Fatalf("cached FetchPackage = (%v, %v)", res2, err)
	}
}

func TestFetchPackageAliasLearning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/pkg/etex":
			_ = json.NewEncoder(w).Encode(api.PkgMetaResponse{Name: "etex", Texlive: "etex-pkg"})
		case r.URL.Path == "/api/fetch/etex-pkg":
			_ = json.NewEncoder(w).Encode(api.FetchResponse{
				Name: "etex-pkg",
				Files: map[string]api.ProxyFile{
					"/texlive/texmf-dist/tex/etex-pkg.sty": {
						Path:    "/texlive/texmf-dist/tex/etex-pkg.sty",
						Content: "\\ProvidesPackage{etex-pkg}",
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := newTestStore()
	proxy := fetcher.NewProxyClient(srv.Client(), srv.URL, 1)
	f := fetcher.New(s, proxy, 1)
	ctx := context.Background()

	res, err := f.FetchPackage(ctx, "etex")
	if err != nil {
		t.Fatalf("FetchPackage: %v", err)
	}
	if res == nil || len(res.Files) != 1 {
		t.Fatalf("FetchPackage(etex) = %v, want one file via learned alias", res)
	}

	var table api.AliasTable
	ok, err := s.Records.GetRecord(ctx, "aliases", &table)
	if err != nil || !ok || table["etex"] != "etex-pkg" {
		t.Errorf("alias table = (%v, %v, %v), want etex -> etex-pkg persisted", table, ok, err)
	}
}

func TestFetchWithDependenciesCycleSafe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/fetch/") {
			// resolveAlias probes /api/pkg/<name> first; there is no alias
			// table entry for these packages, so it's a plain miss.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		name := r.URL.Path[len("/api/fetch/"):]
		var deps []string
		switch name {
		case "a":
			deps = []string{"b"}
		case "b":
			deps = []string{"a"} // cycle back to a.
		}
		_ = json.NewEncoder(w).Encode(api.FetchResponse{
			Name: name,
			Files: map[string]api.ProxyFile{
				"/texlive/texmf-dist/tex/" + name + ".sty": {
					Path:    "/texlive/texmf-dist/tex/" + name + ".sty",
					Content: "\\ProvidesPackage{" + name + "}",
				},
			},
			Dependencies: deps,
		})
	}))
	defer srv.Close()

	s := newTestStore()
	proxy := fetcher.NewProxyClient(srv.Client(), srv.URL, 1)
	f := fetcher.New(s, proxy, 1)

	files, err := f.FetchWithDependencies(context.Background(), "a")
	if err != nil {
		t.Fatalf("FetchWithDependencies: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2 (a.sty and b.sty, cycle terminated)", len(files))
	}
}
