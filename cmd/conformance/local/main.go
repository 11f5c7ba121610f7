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

// local drives one texcore compile end to end against a filesystem-backed
// registry/bundle directory and a local stand-in package proxy, to allow
// conformance/compliance/demo testing without a browser or a real sandboxed
// TeX engine binary.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/texweb/texcore"
	"github.com/texweb/texcore/enginefs"
	"github.com/texweb/texcore/store"
	"k8s.io/klog/v2"
)

var (
	storageDir  = flag.String("storage_dir", "", "Root directory for the persistent blob store and record database.")
	registryDir = flag.String("registry_dir", "", "Directory serving registry.json, package-map.json, file-manifest.json and bundle *.meta.json/*.data.gz payloads.")
	sourceFile  = flag.String("source", "", "Path to a .tex file to compile. If unset, a built-in hello-world document is used.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx := context.Background()

	if *storageDir == "" {
		klog.Exit("Supply a storage directory using --storage_dir")
	}
	if *registryDir == "" {
		klog.Exit("Supply a registry directory using --registry_dir")
	}

	source := helloWorldSource
	if *sourceFile != "" {
		b, err := os.ReadFile(*sourceFile)
		if err != nil {
			klog.Exitf("Failed to read --source %q: %v", *sourceFile, err)
		}
		source = string(b)
	}

	blobs, err := store.NewFSBlobStore(filepath.Join(*storageDir, "blobs"))
	if err != nil {
		klog.Exitf("Failed to construct blob store: %v", err)
	}
	records, err := store.NewBoltRecordStore(filepath.Join(*storageDir, "records.db"))
	if err != nil {
		klog.Exitf("Failed to construct record store: %v", err)
	}
	defer records.Close()

	// Registry manifests and bundle payloads are served as plain files; the
	// proxy stand-in always reports packages unresolvable, which is enough
	// to drive the cold-cache, no-recovery-needed scenario end to end. A
	// real deployment points RegistryBaseURL/BundleBaseURL/ProxyBaseURL at
	// the production CTAN-proxy and bundle-build CDN instead.
	registryURL, stopRegistry := serveLocal(http.FileServer(http.Dir(*registryDir)))
	defer stopRegistry()
	proxyURL, stopProxy := serveLocal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer stopProxy()

	cfg := texcore.Config{
		BlobStore:       blobs,
		RecordStore:     records,
		RegistryBaseURL: registryURL,
		BundleBaseURL:   registryURL,
		ProxyBaseURL:    proxyURL,
		Engine:          demoEngineRunner{},
	}
	tc, err := texcore.NewContext(cfg)
	if err != nil {
		klog.Exitf("Failed to construct texcore.Context: %v", err)
	}
	defer tc.Close()

	if err := tc.LoadRegistry(ctx, registryURL, nil); err != nil {
		klog.Exitf("Failed to load registry: %v", err)
	}

	result, err := tc.Compile(ctx, texcore.CompileRequest{
		Source:   source,
		MainFile: "/work/main.tex",
	})
	if err != nil {
		klog.Exitf("Compile failed: %v", err)
	}

	klog.Infof("compile ok=%v bundlesLoaded=%d bytesDownloaded=%d retries=%d packagesFetched=%d pdfBytes=%d",
		result.OK, result.Stats.BundlesLoaded, result.Stats.BytesDownloaded, result.Stats.Retries,
		result.Stats.PackagesFetched, len(result.PDF))
	if !result.OK {
		klog.Infof("compile log:\n%s", result.Log)
		os.Exit(1)
	}
}

// serveLocal starts h on an OS-assigned loopback port and returns its base
// URL and a shutdown function.
func serveLocal(h http.Handler) (baseURL string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		klog.Exitf("Failed to listen on a local port: %v", err)
	}
	srv := &http.Server{Handler: h}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			klog.Warningf("local server on %s stopped: %v", ln.Addr(), err)
		}
	}()
	return "http://" + ln.Addr().String(), func() { _ = srv.Close() }
}

const helloWorldSource = `\documentclass{article}
\begin{document}
Hello, world.
\end{document}
`

// demoEngineRunner stands in for the out-of-scope sandboxed TeX engine
// binary: it treats a compile as successful when fs holds any path under a
// "/core/" directory or any path ending in "main.tex", and otherwise emits a
// "core.sty not found" log line the Orchestrator's missing-file regexes can
// recover from. It does not check the rest of the closure; since Compile
// writes the main file before every run, a MainFile ending in "main.tex"
// always satisfies the check. It never shells out to a real
// pdflatex/xelatex/lualatex.
type demoEngineRunner struct{}

func (demoEngineRunner) Run(ctx context.Context, argv []string, fs enginefs.FS) (texcore.RunResult, error) {
	paths, err := fs.List(ctx)
	if err != nil {
		return texcore.RunResult{}, err
	}
	hasCore := false
	for _, p := range paths {
		if strings.Contains(p, "/core/") || strings.HasSuffix(p, "main.tex") {
			hasCore = true
		}
	}
	if !hasCore {
		return texcore.RunResult{
			ExitCode: 1,
			Log:      "! LaTeX Error: File `core.sty' not found.\n",
		}, nil
	}
	return texcore.RunResult{
		ExitCode: 0,
		Log:      "Output written on main.pdf.\n",
		Artifact: []byte("%PDF-1.5\n% texcore demo artifact\n"),
	}, nil
}
