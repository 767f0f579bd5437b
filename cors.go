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

import "net/http"

// CORS preflight support, ported from the allowances connecpy/cors.py
// grants browser-based Connect clients (SPEC_FULL.md §4, "Supplemented
// features"). Registered procedures answer OPTIONS with the headers
// browsers require before sending the real POST/GET.
const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms, " +
		"Connect-Content-Encoding, Connect-Accept-Encoding, X-Grpc-Web, X-User-Agent"
	corsExposeHeaders = "Trailer-"
	corsMaxAge        = "7200"
)

func writeCORSPreflight(w http.ResponseWriter, endpoint *Endpoint) {
	h := w.Header()
	origin := "*"
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", methodsFor(endpoint))
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
	h.Set("Access-Control-Max-Age", corsMaxAge)
	w.WriteHeader(http.StatusNoContent)
}

func methodsFor(endpoint *Endpoint) string {
	if endpoint.Method.AllowsGET() {
		return corsAllowMethods
	}
	return "POST, OPTIONS"
}
