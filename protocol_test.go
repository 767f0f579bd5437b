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

func TestWireErrorRoundTrip(t *testing.T) {
	original := NewErrorf(CodeNotFound, "widget not found")
	body, err := marshalWireError(original)
	if err != nil {
		t.Fatalf("marshalWireError: %v", err)
	}
	parsed, err := unmarshalWireError(body)
	if err != nil {
		t.Fatalf("unmarshalWireError: %v", err)
	}
	if parsed.Code() != CodeNotFound {
		t.Errorf("Code() = %v, want CodeNotFound", parsed.Code())
	}
	if parsed.Message() != "widget not found" {
		t.Errorf("Message() = %q, want %q", parsed.Message(), "widget not found")
	}
}

func TestUnmarshalWireErrorRequiresCode(t *testing.T) {
	if _, err := unmarshalWireError([]byte(`{"message":"oops"}`)); err == nil {
		t.Error("unmarshalWireError should reject a body with no code")
	}
}

func TestUnmarshalWireErrorUnknownCodeFallsBackToUnknown(t *testing.T) {
	parsed, err := unmarshalWireError([]byte(`{"code":"made_up_code"}`))
	if err != nil {
		t.Fatalf("unmarshalWireError: %v", err)
	}
	if parsed.Code() != CodeUnknown {
		t.Errorf("Code() = %v, want CodeUnknown for an unrecognized wire code", parsed.Code())
	}
}

func TestEndStreamMessageRoundTrip(t *testing.T) {
	trailers := NewHeaders()
	trailers.Add("x-request-id", "abc")
	trailers.Add("x-request-id", "def")
	streamErr := NewErrorf(CodeAborted, "stream aborted")

	msg := newEndStreamMessage(trailers, streamErr)
	if msg.Error == nil {
		t.Fatal("expected Error to be populated")
	}

	gotTrailers := msg.trailers()
	if diff := gotTrailers.GetAll("x-request-id"); len(diff) != 2 {
		t.Errorf("trailers() round trip = %v, want 2 values", diff)
	}
	gotErr := msg.error()
	if gotErr.Code() != CodeAborted {
		t.Errorf("error().Code() = %v, want CodeAborted", gotErr.Code())
	}
}

func TestEndStreamMessageNoErrorNoTrailers(t *testing.T) {
	msg := newEndStreamMessage(nil, nil)
	if msg.Error != nil {
		t.Error("Error should be nil for a clean end of stream")
	}
	if msg.error() != nil {
		t.Error("error() should be nil for a clean end of stream")
	}
	if msg.trailers().Len() != 0 {
		t.Error("trailers() should be empty when none were carried")
	}
}

func TestParseUnaryContentType(t *testing.T) {
	cases := []struct {
		contentType string
		wantCodec   string
		wantOK      bool
	}{
		{"application/proto", "proto", true},
		{"application/json", "json", true},
		{"application/connect+proto", "", false}, // streaming, not unary
		{"text/plain", "", false},
	}
	for _, tc := range cases {
		codec, ok := parseUnaryContentType(tc.contentType)
		if ok != tc.wantOK || codec != tc.wantCodec {
			t.Errorf("parseUnaryContentType(%q) = (%q, %v), want (%q, %v)", tc.contentType, codec, ok, tc.wantCodec, tc.wantOK)
		}
	}
}

func TestParseStreamingContentType(t *testing.T) {
	codec, ok := parseStreamingContentType("application/connect+proto")
	if !ok || codec != "proto" {
		t.Errorf("parseStreamingContentType = (%q, %v), want (\"proto\", true)", codec, ok)
	}
	if _, ok := parseStreamingContentType("application/proto"); ok {
		t.Error("parseStreamingContentType should reject a unary content type")
	}
}

func TestParseTimeoutMs(t *testing.T) {
	ms, err := parseTimeoutMs("1500")
	if err != nil {
		t.Fatalf("parseTimeoutMs: %v", err)
	}
	if ms != 1500 {
		t.Errorf("ms = %d, want 1500", ms)
	}

	if _, err := parseTimeoutMs(""); err == nil {
		t.Error("parseTimeoutMs(\"\") should fail")
	}
	if _, err := parseTimeoutMs("12345678901"); err == nil {
		t.Error("parseTimeoutMs should reject more than 10 digits")
	}
	if _, err := parseTimeoutMs("not-a-number"); err == nil {
		t.Error("parseTimeoutMs should reject non-numeric input")
	}
}
