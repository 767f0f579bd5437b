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

func TestCodeMarshalText(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{CodeCanceled, "canceled"},
		{CodeResourceExhausted, "resource_exhausted"},
		{CodeUnauthenticated, "unauthenticated"},
	}
	for _, tc := range cases {
		got, err := tc.code.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", tc.code, err)
		}
		if string(got) != tc.want {
			t.Errorf("MarshalText(%v) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestCodeMarshalTextInvalid(t *testing.T) {
	if _, err := Code(0).MarshalText(); err == nil {
		t.Error("MarshalText(0) should fail: there is no \"ok\" code")
	}
	if _, err := Code(17).MarshalText(); err == nil {
		t.Error("MarshalText(17) should fail: out of range")
	}
}

func TestCodeUnmarshalText(t *testing.T) {
	var c Code
	if err := c.UnmarshalText([]byte("not_found")); err != nil {
		t.Fatalf("UnmarshalText(\"not_found\"): %v", err)
	}
	if c != CodeNotFound {
		t.Errorf("got %v, want CodeNotFound", c)
	}
	if err := c.UnmarshalText([]byte("12")); err != nil {
		t.Fatalf("UnmarshalText(\"12\"): %v", err)
	}
	if c != CodeUnimplemented {
		t.Errorf("got %v, want CodeUnimplemented", c)
	}
	if err := c.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(\"bogus\") should fail")
	}
	if err := c.UnmarshalText([]byte("0")); err == nil {
		t.Error("UnmarshalText(\"0\") should fail: no ok code")
	}
}

func TestCodeRoundTrip(t *testing.T) {
	for code := minCode; code <= maxCode; code++ {
		text, err := code.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", code, err)
		}
		var got Code
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if got != code {
			t.Errorf("round trip %d: got %v, want %v", code, got, code)
		}
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[Code]int{
		CodeCanceled:         499,
		CodeInvalidArgument:  400,
		CodeNotFound:         404,
		CodeUnimplemented:    501,
		CodeUnauthenticated:  401,
		CodeUnavailable:      503,
	}
	for code, want := range cases {
		if got := httpStatusFromCode(code); got != want {
			t.Errorf("httpStatusFromCode(%v) = %d, want %d", code, got, want)
		}
	}
}

func TestCodeFromHTTPStatus(t *testing.T) {
	cases := map[int]Code{
		400: CodeInternal,
		401: CodeUnauthenticated,
		404: CodeUnimplemented,
		429: CodeUnavailable,
		503: CodeUnavailable,
		418: CodeUnknown, // unmapped status normalizes to unknown
	}
	for status, want := range cases {
		if got := codeFromHTTPStatus(status); got != want {
			t.Errorf("codeFromHTTPStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
