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
	"regexp"
	"strings"
	"time"

	"github.com/texweb/texcore/bundle"
	goengine "github.com/texweb/texcore/engine"
	"github.com/texweb/texcore/enginefs"
	"k8s.io/klog/v2"
)

// CompileRequest is one document compilation request.
type CompileRequest struct {
	// Source is the full TeX source of the main file.
	Source string
	// MainFile is the absolute path the source is written to in the engine
	// filesystem and that the engine is invoked against, e.g.
	// "/work/main.tex"; it need not lie under the canonical root.
	MainFile string
	// Engine, if non-empty, overrides the Engine Selector's decision.
	Engine goengine.Engine
}

// CompileStats composes per-compile outcome statistics.
type CompileStats struct {
	BundlesLoaded   int
	BytesDownloaded int64
	Retries         int
	PackagesFetched int
}

// CompileResult is the Orchestrator's composed outcome for one compile.
type CompileResult struct {
	OK    bool
	PDF   []byte
	Log   string
	Stats CompileStats
}

var (
	missingFileLaTeXRe   = regexp.MustCompile("! LaTeX Error: File `([^']+)' not found")
	missingFilePackageRe = regexp.MustCompile(`! Package .* Error: .*file (\S+)`)
)

// legacyFontExpansionToken is the log substring the Orchestrator watches
// for to report triggeredLegacyFontExpansion to the Selector. pdfTeX emits
// this diagnostic when it falls back to font expansion for a font lacking
// native support, a known pdflatex-specific failure mode that the Selector
// learns to route around.
const legacyFontExpansionToken = "Font expansion"

// Compile drives the Compilation Orchestrator's state machine: S0 init, S1
// mount, S2 run, S3 inspect, S4 recover (looping back to S2), S_done.
func (c *Context) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelPreviousCompile(cancel)

	start := time.Now()

	// S0: init.
	packages := bundle.ScanPackages(req.Source)
	eng, reason, err := c.selectEngine(ctx, req)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("compile: selected engine %s (%s)", eng, reason)

	if c.manager.Registry() == nil {
		return nil, fmt.Errorf("%w: registry not loaded; call Context.LoadRegistry before Compile", ErrRegistryUnavailable)
	}
	closure := c.manager.ResolveBundles(packages, bundle.Engine(eng))

	fs := enginefs.NewMemFS()
	if err := fs.Write(ctx, req.MainFile, []byte(req.Source)); err != nil {
		return nil, fmt.Errorf("%w: writing main file: %v", ErrFatal, err)
	}

	stats := CompileStats{}
	attempted := map[string]bool{}

	// S1: mount.
	if err := c.manager.MountBundles(ctx, closure, fs); err != nil {
		klog.Warningf("compile: bundle mount reported an error (continuing best-effort): %v", err)
	}
	stats.BundlesLoaded = len(closure)

	var result RunResult
	triggeredLegacyFontExpansion := false

	for {
		// S2: run.
		argv := engineArgv(eng, req.MainFile)
		result, err = c.runner.Run(ctx, argv, fs)
		if err != nil {
			return nil, fmt.Errorf("%w: engine invocation failed: %v", ErrFatal, err)
		}
		if strings.Contains(result.Log, legacyFontExpansionToken) {
			triggeredLegacyFontExpansion = true
		}

		// S3: inspect.
		if len(result.Artifact) > 0 {
			break // S_done(success)
		}

		missing := extractMissingFiles(result.Log)
		newMissing := missing[:0:0]
		for _, name := range missing {
			if !attempted[name] {
				newMissing = append(newMissing, name)
			}
		}
		if len(newMissing) == 0 || stats.Retries >= c.retryBound {
			break // S_done(failure): no extractable missing file, or bound exceeded.
		}

		// S4: recover. GetMountedFiles gives the Fetcher's own record of
		// what it has mounted this session; comparing its count before and
		// after this pass is the authoritative progress signal, per the
		// mounted-file-set-must-grow-or-terminate guarantee.
		beforeMounted := len(c.fetcher.GetMountedFiles())
		mountedBundle := false
		for _, name := range newMissing {
			attempted[name] = true

			if bundleName, ok := c.manager.ResolveFile(name); ok {
				if err := c.manager.MountBundle(ctx, bundleName, fs); err != nil {
					klog.Warningf("compile: failed to mount bundle %q for missing file %q: %v", bundleName, name, err)
				} else {
					stats.BundlesLoaded++
					mountedBundle = true
					continue
				}
			}

			res, ferr := c.fetcher.FetchWithDependencies(ctx, name)
			if ferr != nil {
				klog.Warningf("compile: fetch %q failed: %v", name, ferr)
				continue
			}
			if len(res) == 0 {
				continue
			}
			stats.PackagesFetched++
			for path, data := range res {
				stats.BytesDownloaded += int64(len(data))
				if err := fs.Write(ctx, path, data); err != nil {
					klog.Warningf("compile: failed to mount fetched file %q: %v", path, err)
				}
			}
		}
		if !mountedBundle && len(c.fetcher.GetMountedFiles()) <= beforeMounted {
			break // S_done(failure): retry made no progress.
		}
		stats.Retries++
	}

	ok := len(result.Artifact) > 0

	// S_done: always record the outcome.
	fp := goengine.Fingerprint(req.Source)
	elapsedMs := time.Since(start).Milliseconds()
	if rerr := c.selector.RecordResult(ctx, fp, eng, ok, elapsedMs, triggeredLegacyFontExpansion); rerr != nil {
		klog.Warningf("compile: failed to record selector result: %v", rerr)
	}

	return &CompileResult{OK: ok, PDF: result.Artifact, Log: result.Log, Stats: stats}, nil
}

func (c *Context) selectEngine(ctx context.Context, req CompileRequest) (goengine.Engine, string, error) {
	if req.Engine != "" {
		return req.Engine, "caller override", nil
	}
	packages := bundle.ScanPackages(req.Source)
	decision, err := c.selector.Select(ctx, req.Source, packages)
	if err != nil {
		return "", "", fmt.Errorf("select engine: %w", err)
	}
	return decision.Engine, decision.Reason, nil
}

// extractMissingFiles tokenises eng's log for "file not found" signals,
// deduplicated within this single S3 pass.
func extractMissingFiles(log string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, line := range strings.Split(log, "\n") {
		if m := missingFileLaTeXRe.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := missingFilePackageRe.FindStringSubmatch(line); m != nil {
			add(m[1])
		}
	}
	return out
}

// engineArgv builds the engine invocation argv per the external-interfaces
// contract: [engineName, "-interaction=nonstopmode", "-halt-on-error",
// ...engineSpecificFlags, mainFile].
func engineArgv(eng goengine.Engine, mainFile string) []string {
	argv := []string{string(eng), "-interaction=nonstopmode", "-halt-on-error"}
	return append(argv, mainFile)
}
