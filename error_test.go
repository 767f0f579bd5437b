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
	"errors"
	"io"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestNewErrorWrapsCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewError(CodeUnavailable, cause)
	if err.Code() != CodeUnavailable {
		t.Errorf("Code() = %v, want CodeUnavailable", err.Code())
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should see through to the wrapped cause")
	}
}

func TestNewErrorPreservesExistingError(t *testing.T) {
	original := NewErrorf(CodeNotFound, "no such widget")
	wrapped := NewError(CodeInternal, original)
	if wrapped != original {
		t.Error("NewError should return the original *Error unchanged, not rewrap it")
	}
	if wrapped.Code() != CodeNotFound {
		t.Errorf("Code() = %v, want CodeNotFound (from the original error)", wrapped.Code())
	}
}

func TestErrorString(t *testing.T) {
	err := NewErrorf(CodeInvalidArgument, "bad size: %d", -1)
	if got, want := err.Error(), "invalid_argument: bad size: -1"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := NewError(CodeInternal, nil)
	if got, want := bare.Error(), "internal"; got != want {
		t.Errorf("Error() = %q, want %q (no message, no colon)", got, want)
	}
}

func TestErrorDetailsRoundTrip(t *testing.T) {
	err := NewErrorf(CodeInvalidArgument, "bad request")
	if addErr := err.AddDetail(wrapperspb.String("hint")); addErr != nil {
		t.Fatalf("AddDetail: %v", addErr)
	}
	details := err.Details()
	if len(details) != 1 {
		t.Fatalf("len(Details()) = %d, want 1", len(details))
	}
	var out wrapperspb.StringValue
	if err := details[0].Value(&out); err != nil {
		t.Fatalf("Value: %v", err)
	}
	if out.GetValue() != "hint" {
		t.Errorf("detail value = %q, want %q", out.GetValue(), "hint")
	}
	if got, want := details[0].TypeName(), "google.protobuf.StringValue"; got != want {
		t.Errorf("TypeName() = %q, want %q", got, want)
	}
}

func TestErrorToUnknown(t *testing.T) {
	if errorToUnknown(nil) != nil {
		t.Error("errorToUnknown(nil) should be nil")
	}

	plain := errors.New("boom")
	wrapped := errorToUnknown(plain)
	if wrapped.Code() != CodeUnknown {
		t.Errorf("Code() = %v, want CodeUnknown", wrapped.Code())
	}

	connectErr := NewErrorf(CodeNotFound, "missing")
	if got := errorToUnknown(connectErr); got != connectErr {
		t.Error("errorToUnknown should return an existing *Error unchanged")
	}
}

func TestErrorMetaNeverNil(t *testing.T) {
	err := NewError(CodeInternal, nil)
	meta := err.Meta()
	if meta == nil {
		t.Fatal("Meta() should never return nil")
	}
	meta.Set("x-retry-after", "5")
	if got := err.Meta().Get("x-retry-after"); got != "5" {
		t.Errorf("Meta().Get = %q, want %q", got, "5")
	}
}
