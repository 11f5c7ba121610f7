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

package api

// ProxyFile is one entry of a FetchResponse's Files map.
type ProxyFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"` // "base64" for binary content, absent for text.
}

// FetchResponse is the body of a successful GET /api/fetch/<name>.
type FetchResponse struct {
	Name         string               `json:"name"`
	Files        map[string]ProxyFile `json:"files"`
	Dependencies []string             `json:"dependencies"`
	TotalFiles   int                  `json:"totalFiles"`
}

// ProxyError is the body of a negative GET /api/fetch/<name> response that
// isn't a plain HTTP 404.
type ProxyError struct {
	Error string `json:"error"`
}

// PkgMetaResponse is the body of GET /api/pkg/<name>: CTAN-style metadata.
// Miktex and Texlive, when present, name the parent package this one is
// actually served under: the alias signal.
type PkgMetaResponse struct {
	Name    string `json:"name"`
	Miktex  string `json:"miktex,omitempty"`
	Texlive string `json:"texlive,omitempty"`
}

// DepsResponse is the body of GET /api/deps/<name>.
type DepsResponse struct {
	Package      string   `json:"package"`
	Dependencies []string `json:"dependencies"`
}
