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

package engine

import (
	"context"
	"fmt"

	"github.com/texweb/texcore/api"
	"github.com/texweb/texcore/store"
	"k8s.io/klog/v2"
)

// Decision is the Engine Selector's output for one source document.
type Decision struct {
	Engine     Engine
	Reason     string
	Confidence Confidence
}

// Selector implements the Engine Selector component.
type Selector struct {
	store *store.Store
}

// New returns a Selector backed by s for persisted statistics and flags.
func New(s *store.Store) *Selector {
	return &Selector{store: s}
}

// Select chooses an engine for source, consulting hard requirements first,
// then learned statistics for the source's preamble fingerprint, in the
// decision order fixed by the component design.
func (s *Selector) Select(ctx context.Context, source string, packages []string) (Decision, error) {
	if eng, matched, ok := hardRequirement(source, packages); ok {
		return Decision{Engine: eng, Reason: "hard requirement: " + matched, Confidence: High}, nil
	}

	fp := Fingerprint(source)
	stats, err := s.loadStats(ctx, fp)
	if err != nil {
		return Decision{}, fmt.Errorf("load engine stats for %s: %w", fp, err)
	}

	if best, ok := historicalBest(stats); ok {
		return Decision{Engine: best, Reason: "historical best", Confidence: High}, nil
	}

	if eng, ok := avoidance(stats); ok {
		return Decision{Engine: eng, Reason: "avoidance", Confidence: Medium}, nil
	}

	flagged, err := s.legacyFontExpansionFlag(ctx, fp)
	if err != nil {
		klog.Warningf("failed to load legacy-font-expansion flag for %s: %v", fp, err)
	} else if flagged {
		return Decision{Engine: XeLaTeX, Reason: "learned legacy-font-expansion flag", Confidence: High}, nil
	}

	if softPreference(packages) {
		return Decision{Engine: XeLaTeX, Reason: "soft preference", Confidence: Medium}, nil
	}

	return Decision{Engine: PDFLaTeX, Reason: "default", Confidence: Low}, nil
}

// historicalBest picks, among engines with compileCount >= 2 and
// successRate > 0.5, the one with the lowest running average compile time.
func historicalBest(stats api.EngineStats) (Engine, bool) {
	var best *api.EngineStat
	for i := range stats {
		st := &stats[i]
		if st.CompileCount < 2 || st.RunningSuccessRate <= 0.5 {
			continue
		}
		if best == nil || st.RunningAvgMs < best.RunningAvgMs {
			best = st
		}
	}
	if best == nil {
		return "", false
	}
	return Engine(best.Engine), true
}

// avoidance applies when every recorded engine has a low success rate:
// pick any engine not in that failed set.
func avoidance(stats api.EngineStats) (Engine, bool) {
	if len(stats) == 0 {
		return "", false
	}
	failed := map[Engine]bool{}
	for _, st := range stats {
		if st.CompileCount >= 2 && st.RunningSuccessRate <= 0.5 {
			failed[Engine(st.Engine)] = true
		}
	}
	if len(failed) == 0 || len(failed) != len(stats) {
		return "", false
	}
	for _, candidate := range []Engine{PDFLaTeX, XeLaTeX, LuaLaTeX} {
		if !failed[candidate] {
			return candidate, true
		}
	}
	return "", false
}

func (s *Selector) loadStats(ctx context.Context, fingerprint string) (api.EngineStats, error) {
	var stats api.EngineStats
	ok, err := s.store.Records.GetRecord(ctx, "stats:"+fingerprint, &stats)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return stats, nil
}

func (s *Selector) legacyFontExpansionFlag(ctx context.Context, fingerprint string) (bool, error) {
	var flagged bool
	ok, err := s.store.Records.GetRecord(ctx, "flag:"+fingerprint+":triggers-legacy-font-expansion", &flagged)
	if err != nil || !ok {
		return false, err
	}
	return flagged, nil
}

// RecordResult updates the persisted statistics and learned flags for
// fingerprint after a compile attempt with the given engine, success,
// elapsed time and whether legacy font expansion was triggered.
func (s *Selector) RecordResult(ctx context.Context, fingerprint string, eng Engine, success bool, timeMs int64, triggeredLegacyFontExpansion bool) error {
	stats, err := s.loadStats(ctx, fingerprint)
	if err != nil {
		return fmt.Errorf("load engine stats for %s: %w", fingerprint, err)
	}

	idx := -1
	for i, st := range stats {
		if Engine(st.Engine) == eng {
			idx = i
			break
		}
	}
	if idx < 0 {
		stats = append(stats, api.EngineStat{Engine: string(eng)})
		idx = len(stats) - 1
	}

	st := &stats[idx]
	n := st.CompileCount
	st.RunningAvgMs = incrementalMean(st.RunningAvgMs, float64(timeMs), n)
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	st.RunningSuccessRate = incrementalMean(st.RunningSuccessRate, successVal, n)
	st.CompileCount = n + 1
	st.LastUsedMs = timeMs

	if err := s.store.Records.PutRecord(ctx, "stats:"+fingerprint, stats); err != nil {
		return fmt.Errorf("persist engine stats for %s: %w", fingerprint, err)
	}

	if triggeredLegacyFontExpansion && eng == PDFLaTeX {
		if err := s.store.Records.PutRecord(ctx, "flag:"+fingerprint+":triggers-legacy-font-expansion", true); err != nil {
			return fmt.Errorf("persist legacy-font-expansion flag for %s: %w", fingerprint, err)
		}
	}
	return nil
}

// incrementalMean folds in one new sample into a running mean computed over
// n prior samples.
func incrementalMean(mean, sample float64, n uint64) float64 {
	return mean + (sample-mean)/float64(n+1)
}
