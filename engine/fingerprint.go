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

// Package engine implements the Engine Selector: choosing pdflatex,
// xelatex or lualatex from source features and learned per-fingerprint
// statistics.
package engine

import (
	"regexp"
	"strconv"
	"strings"
)

const preambleScanLimit = 2000

var lineCommentRe = regexp.MustCompile(`%[^\n]*`)
var whitespaceRunRe = regexp.MustCompile(`\s+`)

// Fingerprint computes the stable preamble fingerprint used to key learned
// engine statistics: the substring before \begin{document} (or the first
// preambleScanLimit characters if that marker is absent), with line
// comments stripped and whitespace runs collapsed, hashed with djb2 and
// emitted as a base36 string prefixed "p_".
func Fingerprint(src string) string {
	preamble := src
	if i := strings.Index(src, `\begin{document}`); i >= 0 {
		preamble = src[:i]
	} else if len(preamble) > preambleScanLimit {
		preamble = preamble[:preambleScanLimit]
	}

	normalized := lineCommentRe.ReplaceAllString(preamble, "")
	normalized = whitespaceRunRe.ReplaceAllString(normalized, " ")

	var h uint32
	for i := 0; i < len(normalized); i++ {
		h = (h << 5) + h + uint32(normalized[i])
	}
	return "p_" + strconv.FormatUint(uint64(h), 36)
}
