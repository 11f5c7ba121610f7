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

// Package texcore is the lazy-resolution engine: given document source and
// a target engine, it computes a required-bundle closure, materialises
// missing files under concurrent demand, mounts them into a sandboxed TeX
// engine's virtual filesystem, and recovers from "file not found" failures
// by resolving the missing package over the network and retrying.
package texcore

import (
	"errors"
	"fmt"
)

// ErrFatal marks an error that must surface to the user without retry:
// registry load impossible, or the worker could not initialise.
var ErrFatal = errors.New("texcore: fatal")

// ErrRegistryUnavailable wraps ErrFatal for the specific case of the Bundle
// Manager's registry failing to load at Context startup.
var ErrRegistryUnavailable = fmt.Errorf("texcore: registry unavailable: %w", ErrFatal)
