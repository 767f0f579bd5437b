// Copyright 2021-2024 The Connect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connect

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServerCORSPreflightAllowsGETMethod(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+echoMethod().Procedure(), nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != corsAllowMethods {
		t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, corsAllowMethods)
	}
	if got := resp.Header.Get("Access-Control-Expose-Headers"); got != "Trailer-" {
		t.Errorf("Access-Control-Expose-Headers = %q, want %q", got, "Trailer-")
	}
}

func TestMethodsForExcludesGETWhenNotIdempotent(t *testing.T) {
	endpoint := &Endpoint{Method: &MethodInfo{IdempotencyLevel: IdempotencyIdempotent}}
	if got, want := methodsFor(endpoint), "POST, OPTIONS"; got != want {
		t.Errorf("methodsFor = %q, want %q", got, want)
	}
}

func TestMethodsForIncludesGETWhenSideEffectFree(t *testing.T) {
	endpoint := &Endpoint{Method: &MethodInfo{IdempotencyLevel: IdempotencyNoSideEffects}}
	if got, want := methodsFor(endpoint), corsAllowMethods; got != want {
		t.Errorf("methodsFor = %q, want %q", got, want)
	}
}

func TestWriteCORSPreflightDirect(t *testing.T) {
	endpoint := &Endpoint{Method: &MethodInfo{IdempotencyLevel: IdempotencyNoSideEffects}}
	rec := httptest.NewRecorder()
	writeCORSPreflight(rec, endpoint)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != corsMaxAge {
		t.Errorf("Access-Control-Max-Age = %q, want %q", got, corsMaxAge)
	}
}
