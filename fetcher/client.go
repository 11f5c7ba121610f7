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

package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/texweb/texcore/api"
)

// ProxyClient is the network tier of the Package Fetcher: a CTAN-proxy
// HTTP client. Transport errors are retried with bounded backoff; a well-
// formed 404 or error body is returned as-is to the caller, which treats it
// as a negative result rather than a retriable failure.
type ProxyClient struct {
	httpClient *http.Client
	baseURL    string
	attempts   uint
}

// NewProxyClient returns a ProxyClient against baseURL (e.g.
// "https://texproxy.example.com"). attempts bounds retry-go's retry count
// for transport-level failures; 0 selects a default of 3.
func NewProxyClient(httpClient *http.Client, baseURL string, attempts uint) *ProxyClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if attempts == 0 {
		attempts = 3
	}
	return &ProxyClient{httpClient: httpClient, baseURL: baseURL, attempts: attempts}
}

// fetchResult is the outcome of a GET /api/fetch/<name> call: exactly one of
// resp, negative or err is set.
type fetchResult struct {
	resp     *api.FetchResponse
	negative bool // true on a well-formed "not found" response (404 or {error}).
}

func (c *ProxyClient) fetch(ctx context.Context, name string) (fetchResult, error) {
	var out fetchResult
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/fetch/"+name, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err // transient: retry.
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			if resp.StatusCode == http.StatusNotFound {
				out = fetchResult{negative: true}
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("GET /api/fetch/%s: status %d", name, resp.StatusCode)
			}

			var perr api.ProxyError
			if err := json.Unmarshal(body, &perr); err == nil && perr.Error != "" {
				out = fetchResult{negative: true}
				return nil
			}

			var fr api.FetchResponse
			if err := json.Unmarshal(body, &fr); err != nil {
				return retry.Unrecoverable(fmt.Errorf("parse fetch response for %q: %w", name, err))
			}
			out = fetchResult{resp: &fr}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
	)
	return out, err
}

func (c *ProxyClient) pkgMeta(ctx context.Context, name string) (api.PkgMetaResponse, bool, error) {
	var out api.PkgMetaResponse
	found := false
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/pkg/"+name, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("GET /api/pkg/%s: status %d", name, resp.StatusCode)
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return retry.Unrecoverable(err)
			}
			found = true
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
	)
	return out, found, err
}

func (c *ProxyClient) deps(ctx context.Context, name string) ([]string, error) {
	var out api.DepsResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/deps/"+name, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("GET /api/deps/%s: status %d", name, resp.StatusCode)
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
	)
	return out.Dependencies, err
}
