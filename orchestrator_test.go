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

package texcore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/texweb/texcore"
	"github.com/texweb/texcore/api"
	"github.com/texweb/texcore/bundle"
	"github.com/texweb/texcore/engine"
	"github.com/texweb/texcore/enginefs"
	"github.com/texweb/texcore/store"
)

// pdflatexClosure is the fixed closure ResolveBundles produces for a
// packages-free document compiled with pdflatex: the engine-agnostic core
// bundles plus the pdflatex format bundles.
var pdflatexClosure = []string{"core", "latex-base", "l3", "graphics", "tools", "fmt-pdflatex", "fonts-cm", "amsfonts"}

func gzipOf(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// newBundleServer serves <name>.meta.json / <name>.data.gz for every name in
// names, each bundle holding a single marker file whose content is the
// bundle's own name, so tests can assert on which bundles got mounted.
func newBundleServer(t *testing.T, names []string) *httptest.Server {
	t.Helper()
	files := make(map[string]string, len(names))
	for _, name := range names {
		files[name] = "marker.tex"
	}
	return newBundleServerWithFiles(t, files)
}

// newBundleServerWithFiles is newBundleServer with an explicit file name per
// bundle, for tests that need a recoverable file to have a specific name.
func newBundleServerWithFiles(t *testing.T, fileNameByBundle map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for name, fileName := range fileNameByBundle {
		name, fileName := name, fileName
		payload := []byte(name)
		meta := api.BundleMeta{
			Name: name,
			Files: []api.FileExtent{
				{Path: "/texlive/" + name, Name: fileName, Start: 0, End: int64(len(payload))},
			},
			TotalSize: int64(len(payload)),
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			t.Fatalf("marshal meta for %q: %v", name, err)
		}
		gz := gzipOf(t, payload)
		mux.HandleFunc("/"+name+".meta.json", func(w http.ResponseWriter, r *http.Request) {
			w.Write(rawMeta)
		})
		mux.HandleFunc("/"+name+".data.gz", func(w http.ResponseWriter, r *http.Request) {
			w.Write(gz)
		})
	}
	return httptest.NewServer(mux)
}

// newRegistryServer serves the (mostly empty) registry manifests needed to
// unblock LoadRegistry; the bundle closure itself comes from the engine's
// fixed core/format bundle sets, not from these manifests.
func newRegistryServer(t *testing.T, bundles []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/registry.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bundles)
	})
	mux.HandleFunc("/package-map.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})
	mux.HandleFunc("/file-manifest.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]api.FileManifestEntry{})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

// alwaysSucceedsRunner simulates an engine that succeeds as soon as the core
// bundles are mounted, without ever consulting argv.
type alwaysSucceedsRunner struct {
	calls atomic.Int64
}

func (r *alwaysSucceedsRunner) Run(ctx context.Context, argv []string, fs enginefs.FS) (texcore.RunResult, error) {
	r.calls.Add(1)
	if ok, err := fs.Exists(ctx, "/texlive/core/marker.tex"); err != nil || !ok {
		return texcore.RunResult{Log: "! LaTeX Error: File `core' not found"}, nil
	}
	return texcore.RunResult{ExitCode: 0, Artifact: []byte("%PDF-fake")}, nil
}

func newContext(t *testing.T, registryURL, bundleURL string, runner texcore.EngineRunner) *texcore.Context {
	t.Helper()
	cfg := texcore.Config{
		BlobStore:       store.NewMemBlobStore(),
		RecordStore:     store.NewMemRecordStore(),
		RegistryBaseURL: registryURL,
		BundleBaseURL:   bundleURL,
		ProxyBaseURL:    "http://proxy.invalid",
		HTTPClient:      http.DefaultClient,
		Engine:          runner,
	}
	c, err := texcore.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if err := c.LoadRegistry(context.Background(), registryURL, http.DefaultClient); err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	return c
}

func TestCompileSucceedsOnFirstPass(t *testing.T) {
	regSrv := newRegistryServer(t, pdflatexClosure)
	defer regSrv.Close()
	bundleSrv := newBundleServer(t, pdflatexClosure)
	defer bundleSrv.Close()

	runner := &alwaysSucceedsRunner{}
	c := newContext(t, regSrv.URL, bundleSrv.URL, runner)
	defer c.Close()

	res, err := c.Compile(context.Background(), texcore.CompileRequest{
		Source:   `\documentclass{article}\begin{document}Hello\end{document}`,
		MainFile: "/work/main.tex",
		Engine:   engine.PDFLaTeX,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK || len(res.PDF) == 0 {
		t.Fatalf("Compile result = %+v, want OK with a non-empty PDF", res)
	}
	if res.Stats.BundlesLoaded != len(pdflatexClosure) {
		t.Errorf("BundlesLoaded = %d, want %d", res.Stats.BundlesLoaded, len(pdflatexClosure))
	}
	if runner.calls.Load() != 1 {
		t.Errorf("engine invoked %d times, want exactly 1 (no recovery needed)", runner.calls.Load())
	}
}

// recoveringRunner fails the first invocation reporting a missing package,
// then succeeds once that package's file has been mounted.
type recoveringRunner struct {
	calls atomic.Int64
}

func (r *recoveringRunner) Run(ctx context.Context, argv []string, fs enginefs.FS) (texcore.RunResult, error) {
	n := r.calls.Add(1)
	if n == 1 {
		return texcore.RunResult{Log: "! LaTeX Error: File `extra.sty' not found"}, nil
	}
	if ok, _ := fs.Exists(ctx, "/texlive/texmf-dist/tex/extra.sty"); !ok {
		return texcore.RunResult{Log: "still missing"}, nil
	}
	return texcore.RunResult{ExitCode: 0, Artifact: []byte("%PDF-recovered")}, nil
}

func TestCompileRecoversMissingPackageViaFetcher(t *testing.T) {
	regSrv := newRegistryServer(t, pdflatexClosure)
	defer regSrv.Close()
	bundleSrv := newBundleServer(t, pdflatexClosure)
	defer bundleSrv.Close()

	proxyMux := http.NewServeMux()
	proxyMux.HandleFunc("/api/fetch/extra", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.FetchResponse{
			Name: "extra",
			Files: map[string]api.ProxyFile{
				"/texlive/texmf-dist/tex/extra.sty": {
					Path:    "/texlive/texmf-dist/tex/extra.sty",
					Content: "\\ProvidesPackage{extra}",
				},
			},
		})
	})
	proxyMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	proxySrv := httptest.NewServer(proxyMux)
	defer proxySrv.Close()

	runner := &recoveringRunner{}
	cfg := texcore.Config{
		BlobStore:       store.NewMemBlobStore(),
		RecordStore:     store.NewMemRecordStore(),
		RegistryBaseURL: regSrv.URL,
		BundleBaseURL:   bundleSrv.URL,
		ProxyBaseURL:    proxySrv.URL,
		HTTPClient:      http.DefaultClient,
		Engine:          runner,
	}
	c, err := texcore.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer c.Close()
	if err := c.LoadRegistry(context.Background(), regSrv.URL, http.DefaultClient); err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	res, err := c.Compile(context.Background(), texcore.CompileRequest{
		Source:   `\documentclass{article}\usepackage{extra}\begin{document}Hi\end{document}`,
		MainFile: "/work/main.tex",
		Engine:   engine.PDFLaTeX,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK {
		t.Fatalf("Compile result = %+v, want OK after recovery", res)
	}
	if res.Stats.PackagesFetched != 1 {
		t.Errorf("PackagesFetched = %d, want 1", res.Stats.PackagesFetched)
	}
	if res.Stats.Retries != 1 {
		t.Errorf("Retries = %d, want 1", res.Stats.Retries)
	}
	if runner.calls.Load() != 2 {
		t.Errorf("engine invoked %d times, want exactly 2", runner.calls.Load())
	}
}

// stuckRunner always reports the same missing file, never resolvable,
// exercising the "no progress" recovery-loop termination path.
type stuckRunner struct{ calls atomic.Int64 }

func (r *stuckRunner) Run(ctx context.Context, argv []string, fs enginefs.FS) (texcore.RunResult, error) {
	r.calls.Add(1)
	return texcore.RunResult{Log: "! LaTeX Error: File `nonexistent-pkg.sty' not found"}, nil
}

func TestCompileGivesUpWhenRecoveryMakesNoProgress(t *testing.T) {
	regSrv := newRegistryServer(t, pdflatexClosure)
	defer regSrv.Close()
	bundleSrv := newBundleServer(t, pdflatexClosure)
	defer bundleSrv.Close()

	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer proxySrv.Close()

	runner := &stuckRunner{}
	cfg := texcore.Config{
		BlobStore:       store.NewMemBlobStore(),
		RecordStore:     store.NewMemRecordStore(),
		RegistryBaseURL: regSrv.URL,
		BundleBaseURL:   bundleSrv.URL,
		ProxyBaseURL:    proxySrv.URL,
		HTTPClient:      http.DefaultClient,
		Engine:          runner,
	}
	c, err := texcore.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer c.Close()
	if err := c.LoadRegistry(context.Background(), regSrv.URL, http.DefaultClient); err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	res, err := c.Compile(context.Background(), texcore.CompileRequest{
		Source:   `\documentclass{article}\begin{document}Hi\end{document}`,
		MainFile: "/work/main.tex",
		Engine:   engine.PDFLaTeX,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.OK {
		t.Fatalf("Compile result = %+v, want failure (package never resolvable)", res)
	}
	// The recovery attempt fetches nothing (negative cache), so the
	// orchestrator stops after the single initial run without looping back.
	if runner.calls.Load() != 1 {
		t.Errorf("engine invoked %d times, want exactly 1", runner.calls.Load())
	}
}

func TestCompileRequiresRegistryLoaded(t *testing.T) {
	cfg := texcore.Config{
		BlobStore:       store.NewMemBlobStore(),
		RecordStore:     store.NewMemRecordStore(),
		RegistryBaseURL: "http://unused.invalid",
		BundleBaseURL:   "http://unused.invalid",
		ProxyBaseURL:    "http://unused.invalid",
		HTTPClient:      http.DefaultClient,
		Engine:          &alwaysSucceedsRunner{},
	}
	c, err := texcore.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer c.Close()

	_, err = c.Compile(context.Background(), texcore.CompileRequest{
		Source:   `\documentclass{article}\begin{document}Hi\end{document}`,
		MainFile: "/work/main.tex",
		Engine:   engine.PDFLaTeX,
	})
	if err == nil {
		t.Fatal("Compile before LoadRegistry should fail")
	}
}

// TestFontspecTriggersXeLaTeXClosureAndReason is the E2 scenario: a document
// requesting fontspec must select xelatex, with a reason naming fontspec,
// and resolve the fmt-xelatex/fontspec/unicode-math closure on top of core.
func TestFontspecTriggersXeLaTeXClosureAndReason(t *testing.T) {
	packages := []string{"article", "fontspec"}
	src := `\documentclass{article}\usepackage{fontspec}\begin{document}Unicode\end{document}`

	sel := engine.New(&store.Store{Blobs: store.NewMemBlobStore(), Records: store.NewMemRecordStore()})
	decision, err := sel.Select(context.Background(), src, packages)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if decision.Engine != engine.XeLaTeX {
		t.Fatalf("Select engine = %s, want xelatex", decision.Engine)
	}
	if !strings.Contains(decision.Reason, "fontspec") {
		t.Errorf("Select reason = %q, want it to mention fontspec", decision.Reason)
	}

	closure := bundle.ResolveBundles(nil, packages, bundle.Engine(decision.Engine))
	want := []string{"core", "latex-base", "l3", "graphics", "tools", "fmt-xelatex", "fontspec", "unicode-math"}
	if diff := cmp.Diff(want, closure); diff != "" {
		t.Errorf("ResolveBundles closure mismatch (-want +got):\n%s", diff)
	}
}

// fileManifestRunner fails once reporting a file that belongs to a bundle
// outside the initial closure, then succeeds once that file is mounted.
type fileManifestRunner struct {
	calls atomic.Int64
}

func (r *fileManifestRunner) Run(ctx context.Context, argv []string, fs enginefs.FS) (texcore.RunResult, error) {
	n := r.calls.Add(1)
	if n == 1 {
		return texcore.RunResult{Log: "! LaTeX Error: File `extra2.sty' not found"}, nil
	}
	if ok, _ := fs.Exists(ctx, "/texlive/extra-bundle/extra2.sty"); !ok {
		return texcore.RunResult{Log: "still missing"}, nil
	}
	return texcore.RunResult{ExitCode: 0, Artifact: []byte("%PDF-recovered")}, nil
}

// TestCompileRecoversViaFileManifest exercises the S4 recovery path that
// resolves a missing file against the registry's file-manifest and mounts
// the owning bundle directly, without a Package Fetcher network round trip.
func TestCompileRecoversViaFileManifest(t *testing.T) {
	allBundles := append(append([]string{}, pdflatexClosure...), "extra-bundle")

	regMux := http.NewServeMux()
	regMux.HandleFunc("/registry.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(allBundles)
	})
	regMux.HandleFunc("/package-map.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})
	regMux.HandleFunc("/file-manifest.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]api.FileManifestEntry{
			"/texlive/extra-bundle/extra2.sty": {Bundle: "extra-bundle", Start: 0, End: 11},
		})
	})
	regMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	regSrv := httptest.NewServer(regMux)
	defer regSrv.Close()

	fileNameByBundle := make(map[string]string, len(allBundles))
	for _, name := range allBundles {
		fileNameByBundle[name] = "marker.tex"
	}
	fileNameByBundle["extra-bundle"] = "extra2.sty"
	bundleSrv := newBundleServerWithFiles(t, fileNameByBundle)
	defer bundleSrv.Close()

	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fatal-family calls are unsafe off the test goroutine; Errorf plus a
		// 404 lets the recovery loop observe "no progress" if this is ever hit.
		t.Errorf("unexpected network fetch for %s: the file-manifest should have resolved this recovery", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer proxySrv.Close()

	runner := &fileManifestRunner{}
	cfg := texcore.Config{
		BlobStore:       store.NewMemBlobStore(),
		RecordStore:     store.NewMemRecordStore(),
		RegistryBaseURL: regSrv.URL,
		BundleBaseURL:   bundleSrv.URL,
		ProxyBaseURL:    proxySrv.URL,
		HTTPClient:      http.DefaultClient,
		Engine:          runner,
	}
	c, err := texcore.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer c.Close()
	if err := c.LoadRegistry(context.Background(), regSrv.URL, http.DefaultClient); err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	res, err := c.Compile(context.Background(), texcore.CompileRequest{
		Source:   `\documentclass{article}\usepackage{extra2}\begin{document}Hi\end{document}`,
		MainFile: "/work/main.tex",
		Engine:   engine.PDFLaTeX,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK {
		t.Fatalf("Compile result = %+v, want OK after file-manifest recovery", res)
	}
	if res.Stats.PackagesFetched != 0 {
		t.Errorf("PackagesFetched = %d, want 0 (recovered from the file-manifest, not the network)", res.Stats.PackagesFetched)
	}
	if res.Stats.BundlesLoaded != len(pdflatexClosure)+1 {
		t.Errorf("BundlesLoaded = %d, want %d (initial closure plus the recovered bundle)", res.Stats.BundlesLoaded, len(pdflatexClosure)+1)
	}
}
