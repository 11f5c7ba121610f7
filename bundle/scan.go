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

// Package bundle implements the Bundle Manager: resolving a document's
// packages and target engine into a closure of bundle names, and loading,
// decompressing and mounting those bundles.
package bundle

import (
	"regexp"
	"strings"
)

var (
	usepackageRe     = regexp.MustCompile(`\\usepackage(?:\[[^]]*\])?\{([^}]*)\}`)
	requirepackageRe = regexp.MustCompile(`\\RequirePackage(?:\[[^]]*\])?\{([^}]*)\}`)
	documentclassRe  = regexp.MustCompile(`\\documentclass(?:\[[^]]*\])?\{([^}]*)\}`)
)

// ScanPackages extracts every package (and the document class, treated as a
// package) referenced by a \usepackage, \RequirePackage or \documentclass
// command in src.
func ScanPackages(src string) []string {
	var names []string
	for _, re := range []*regexp.Regexp{usepackageRe, requirepackageRe, documentclassRe} {
		for _, m := range re.FindAllStringSubmatch(src, -1) {
			for _, p := range strings.Split(m[1], ",") {
				if p = strings.TrimSpace(p); p != "" {
					names = append(names, p)
				}
			}
		}
	}
	return names
}

// Engine auto-detection (fontspec/unicode-math/\setmainfont/\setsansfont/
// \setmonofont forcing a Unicode-capable engine) lives solely in
// engine.hardRequirement, which subsumes this rule alongside its wider
// xelatex/lualatex tables; see DESIGN.md.
