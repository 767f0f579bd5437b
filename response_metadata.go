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

import "strings"

// ResponseMetadata is a scoped, client-side sink for the headers and
// trailers of one in-flight call. Pass one to a call via WithResponseMetadata;
// while the call runs, the client routes observed response headers (other
// than trailer-*-prefixed ones) into Headers(), and trailer-*-prefixed
// headers (prefix stripped) plus any trailers parsed from a streaming
// end-of-stream frame into Trailers(). A call made without one discards
// this information (spec.md §4.12).
type ResponseMetadata struct {
	headers  *Headers
	trailers *Headers
}

// NewResponseMetadata returns an empty, ready-to-use ResponseMetadata.
func NewResponseMetadata() *ResponseMetadata {
	return &ResponseMetadata{headers: NewHeaders(), trailers: NewHeaders()}
}

// Headers returns the response headers observed for the call this
// ResponseMetadata was attached to.
func (m *ResponseMetadata) Headers() *Headers { return m.headers }

// Trailers returns the response trailers observed for the call.
func (m *ResponseMetadata) Trailers() *Headers { return m.trailers }

// captureUnaryHeaders splits HTTP response headers into the metadata sink's
// headers and trailers, peeling off the trailer-* prefix used to carry
// unary trailers over plain HTTP headers (spec.md §4.4, §6.1).
func (m *ResponseMetadata) captureUnaryHeaders(h *Headers) {
	if m == nil {
		return
	}
	h.AllItems(func(name, value string) bool {
		if strings.HasPrefix(name, trailerPrefix) {
			m.trailers.Add(strings.TrimPrefix(name, trailerPrefix), value)
		} else {
			m.headers.Add(name, value)
		}
		return true
	})
}

// captureStreamHeaders records the initial response headers of a streaming
// call (no trailer-* peeling needed; streaming trailers arrive separately
// via captureStreamTrailers).
func (m *ResponseMetadata) captureStreamHeaders(h *Headers) {
	if m == nil {
		return
	}
	h.AllItems(func(name, value string) bool {
		m.headers.Add(name, value)
		return true
	})
}

// captureStreamTrailers records the trailers parsed from a streaming
// end-of-stream frame.
func (m *ResponseMetadata) captureStreamTrailers(h *Headers) {
	if m == nil {
		return
	}
	h.AllItems(func(name, value string) bool {
		m.trailers.Add(name, value)
		return true
	})
}
