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

import "testing"

func TestResponseMetadataCaptureUnaryHeadersPeelsTrailerPrefix(t *testing.T) {
	m := NewResponseMetadata()
	raw := NewHeaders()
	raw.Set("content-type", "application/proto")
	raw.Set("trailer-x-request-id", "abc123")

	m.captureUnaryHeaders(raw)

	if got := m.Headers().Get("content-type"); got != "application/proto" {
		t.Errorf("Headers().Get(\"content-type\") = %q, want %q", got, "application/proto")
	}
	if m.Headers().Get("trailer-x-request-id") != "" {
		t.Error("trailer-prefixed headers should not appear in Headers()")
	}
	if got := m.Trailers().Get("x-request-id"); got != "abc123" {
		t.Errorf("Trailers().Get(\"x-request-id\") = %q, want %q", got, "abc123")
	}
}

func TestResponseMetadataCaptureStreamHeadersAndTrailers(t *testing.T) {
	m := NewResponseMetadata()
	headers := NewHeaders()
	headers.Set("x-server", "connect-demo")
	m.captureStreamHeaders(headers)

	trailers := NewHeaders()
	trailers.Set("x-total-items", "3")
	m.captureStreamTrailers(trailers)

	if m.Headers().Get("x-server") != "connect-demo" {
		t.Error("expected stream headers to be recorded without prefix peeling")
	}
	if m.Trailers().Get("x-total-items") != "3" {
		t.Error("expected stream trailers to be recorded directly")
	}
}

func TestResponseMetadataNilReceiverIsSafe(t *testing.T) {
	var m *ResponseMetadata
	m.captureUnaryHeaders(NewHeaders())
	m.captureStreamHeaders(NewHeaders())
	m.captureStreamTrailers(NewHeaders())
	// No panic means the nil-receiver guards work; a caller who didn't
	// attach a ResponseMetadata should be able to no-op all three.
}
