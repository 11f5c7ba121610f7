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

import "github.com/texweb/texcore/api"

// Engine identifies a TeX engine, used to pick the engine-specific core
// bundle set.
type Engine string

const (
	PDFLaTeX Engine = "pdflatex"
	XeLaTeX  Engine = "xelatex"
	LuaLaTeX Engine = "lualatex"
)

// coreBundles is the fixed set seeded into every closure, regardless of
// requested packages or engine.
var coreBundles = []string{"core", "latex-base", "l3", "graphics", "tools"}

// engineBundles maps each engine to the additional bundles its format
// requires.
var engineBundles = map[Engine][]string{
	PDFLaTeX: {"fmt-pdflatex", "fonts-cm", "amsfonts"},
	XeLaTeX:  {"fmt-xelatex", "fontspec", "unicode-math"},
	LuaLaTeX: {"fmt-lualatex", "fontspec", "unicode-math"},
}

// ResolveBundles computes the closure of bundle names that must be mounted
// to compile a document requesting the given packages with the given
// engine. The result preserves dependencies-before-dependents ordering,
// ties broken by registry-declaration order; it is a pure function of the
// registry and its inputs, and is idempotent: resolving the same (or a
// subset) of packages never removes a bundle already in the closure.
func ResolveBundles(reg *api.Registry, packages []string, engine Engine) []string {
	order := newOrderedSet()
	for _, b := range coreBundles {
		order.add(b)
	}
	for _, b := range engineBundles[engine] {
		order.add(b)
	}

	visitedPkgs := map[string]bool{}
	var addPackage func(pkg string)
	addPackage = func(pkg string) {
		if visitedPkgs[pkg] {
			return
		}
		visitedPkgs[pkg] = true

		if reg == nil {
			return
		}
		b, ok := reg.PackageMap[pkg]
		if !ok || !reg.HasBundle(b) {
			// Left for the Package Fetcher to resolve at compile time.
			return
		}
		addBundle(order, reg, b)

		for _, dep := range reg.PackageDeps[pkg] {
			addPackage(dep)
		}
	}
	for _, pkg := range packages {
		addPackage(pkg)
	}

	return order.items
}

// addBundle adds name and its transitive bundle-deps closure to order,
// respecting registry-declaration order for ties and skipping bundles
// already present.
func addBundle(order *orderedSet, reg *api.Registry, name string) {
	if order.has(name) {
		return
	}
	// Dependencies are added first so the final order places them before
	// name, matching the dependencies-before-dependents guarantee.
	for _, dep := range reg.BundleDeps[name] {
		addBundle(order, reg, dep)
	}
	order.add(name)
}

// orderedSet preserves first-insertion order while supporting O(1)
// membership tests, used to build up the deduplicated closure.
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}}
}

func (s *orderedSet) has(v string) bool {
	return s.seen[v]
}

func (s *orderedSet) add(v string) {
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}
