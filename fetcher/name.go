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

// Package fetcher implements the Package Fetcher: resolving a single
// missing package name to its files and dependency closure via the CTAN
// proxy, with negative caching and alias learning.
package fetcher

import (
	"regexp"
	"strings"
)

var stripExtensions = []string{".sty", ".cls", ".def", ".clo", ".fd", ".cfg", ".tex"}

// cmSuperRe matches the European Computer Modern / Text Companion font
// family naming convention (e.g. "ecrm1000", "tcrm1000"), all of which ship
// in the cm-super bundle under one package name.
var cmSuperRe = regexp.MustCompile(`^(ec|tc)[a-z]{2}[0-9]+$`)

var validNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{2,50}$`)

var skipNames = map[string]bool{
	"document": true, "texput": true, "null": true, "undefined": true, "NaN": true,
}

// NormalizePackageName strips a recognised TeX file extension, applies the
// cm-super font-family special case, and reports whether the resulting name
// is a legitimate fetch candidate.
func NormalizePackageName(raw string) (name string, ok bool) {
	name = raw
	for _, ext := range stripExtensions {
		if strings.HasSuffix(name, ext) {
			name = strings.TrimSuffix(name, ext)
			break
		}
	}
	if cmSuperRe.MatchString(name) {
		name = "cm-super"
	}
	if skipNames[name] {
		return "", false
	}
	if !validNameRe.MatchString(name) {
		return "", false
	}
	return name, true
}
