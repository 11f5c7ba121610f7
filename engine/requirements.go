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
	"regexp"
	"strings"
)

// Engine identifies a TeX engine binary.
type Engine string

const (
	PDFLaTeX Engine = "pdflatex"
	XeLaTeX  Engine = "xelatex"
	LuaLaTeX Engine = "lualatex"
)

// Confidence is the Engine Selector's reported confidence in a decision.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// requirement is one engine's hard-requirement table: packages, command
// names and Unicode script ranges that force this engine regardless of
// learned statistics. packageOrder fixes the match/reporting order.
type requirement struct {
	engine       Engine
	packageOrder []string
	commands     []string
	scripts      []scriptRange
}

type scriptRange struct {
	lo, hi rune
	name   string
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var hardRequirements = []requirement{
	{
		engine: XeLaTeX,
		packageOrder: []string{"fontspec", "unicode-math", "polyglossia", "xeCJK", "xunicode",
			"xltxtra", "mathspec", "realscripts", "metalogo", "xetex"},
		commands: []string{
			`\setmainfont`, `\setsansfont`, `\setmonofont`, `\newfontfamily`,
			`\setmathfont`, `\defaultfontfeatures`,
		},
		scripts: []scriptRange{
			{0x0600, 0x06FF, "arabic script"}, {0x0900, 0x097F, "devanagari script"},
			{0x0E00, 0x0E7F, "thai script"}, {0x3000, 0x9FFF, "cjk script"},
			{0xAC00, 0xD7AF, "hangul script"},
		},
	},
	{
		engine:       LuaLaTeX,
		packageOrder: []string{"luacode", "luatexbase", "luaotfload", "luamplib", "luatextra"},
		commands:     []string{`\directlua`, `\luaexec`, `\luadirect`},
	},
}

// softPreferencePackages lean xelatex when no hard requirement or learned
// statistic applies.
var softPreferencePackages = set(
	"geometry", "fancyhdr", "titlesec", "enumitem", "babel", "inputenc", "fontenc",
)

var lineCommentStrip = regexp.MustCompile(`%[^\n]*`)

// stripComments removes TeX line comments, matching the normalisation the
// hard-requirement command regexes are defined to run against.
func stripComments(src string) string {
	return lineCommentStrip.ReplaceAllString(src, "")
}

// hardRequirement returns the first engine (by requirement table order)
// whose packages, commands or script ranges match, the specific package,
// command or script name that matched (for surfacing in the Selector's
// Reason), and true if one did.
func hardRequirement(src string, packages []string) (eng Engine, matched string, ok bool) {
	sansComments := stripComments(src)

	pkgSet := make(map[string]bool, len(packages))
	for _, p := range packages {
		pkgSet[p] = true
	}

	for _, req := range hardRequirements {
		for _, p := range req.packageOrder {
			if pkgSet[p] {
				return req.engine, p, true
			}
		}
		for _, cmd := range req.commands {
			if strings.Contains(sansComments, cmd) {
				return req.engine, cmd, true
			}
		}
		for _, r := range req.scripts {
			for _, c := range sansComments {
				if c >= r.lo && c <= r.hi {
					return req.engine, r.name, true
				}
			}
		}
	}
	return "", "", false
}

// softPreference reports whether any requested package leans xelatex under
// the soft preference table.
func softPreference(packages []string) bool {
	for _, p := range packages {
		if softPreferencePackages[p] {
			return true
		}
	}
	return false
}
