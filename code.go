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
	"fmt"
	"strconv"
)

// A Code is one of the canonical Connect error codes. There's no "ok" code:
// by convention, the absence of an error means the RPC succeeded.
type Code uint32

const (
	CodeCanceled           Code = 1
	CodeUnknown            Code = 2
	CodeInvalidArgument    Code = 3
	CodeDeadlineExceeded   Code = 4
	CodeNotFound           Code = 5
	CodeAlreadyExists      Code = 6
	CodePermissionDenied   Code = 7
	CodeResourceExhausted  Code = 8
	CodeFailedPrecondition Code = 9
	CodeAborted            Code = 10
	CodeOutOfRange         Code = 11
	CodeUnimplemented      Code = 12
	CodeInternal           Code = 13
	CodeUnavailable        Code = 14
	CodeDataLoss           Code = 15
	CodeUnauthenticated    Code = 16

	minCode = CodeCanceled
	maxCode = CodeUnauthenticated
)

var codeToString = map[Code]string{
	CodeCanceled:           "canceled",
	CodeUnknown:            "unknown",
	CodeInvalidArgument:    "invalid_argument",
	CodeDeadlineExceeded:   "deadline_exceeded",
	CodeNotFound:           "not_found",
	CodeAlreadyExists:      "already_exists",
	CodePermissionDenied:   "permission_denied",
	CodeResourceExhausted:  "resource_exhausted",
	CodeFailedPrecondition: "failed_precondition",
	CodeAborted:            "aborted",
	CodeOutOfRange:         "out_of_range",
	CodeUnimplemented:      "unimplemented",
	CodeInternal:           "internal",
	CodeUnavailable:        "unavailable",
	CodeDataLoss:           "data_loss",
	CodeUnauthenticated:    "unauthenticated",
}

var stringToCode = func() map[string]Code {
	m := make(map[string]Code, len(codeToString))
	for code, name := range codeToString {
		m[name] = code
	}
	return m
}()

// String implements fmt.Stringer, returning the wire token (e.g.
// "resource_exhausted") rather than a human title, since that's what
// appears in logs and error JSON.
func (c Code) String() string {
	if name, ok := codeToString[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", uint32(c))
}

// MarshalText implements encoding.TextMarshaler, emitting the wire token.
func (c Code) MarshalText() ([]byte, error) {
	if c < minCode || c > maxCode {
		return nil, fmt.Errorf("invalid code %d", uint32(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both the
// wire tokens (as produced by MarshalText) and their numeric values.
func (c *Code) UnmarshalText(data []byte) error {
	if code, ok := stringToCode[string(data)]; ok {
		*c = code
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid code %q", string(data))
	}
	code := Code(n)
	if code < minCode || code > maxCode {
		return fmt.Errorf("invalid code %d", n)
	}
	*c = code
	return nil
}

// codeFromHTTPStatus maps an HTTP status code to a canonical code, used when
// a server returned a non-200 response without a parseable Connect error
// body. Unknown statuses normalize to CodeUnknown for both sync and async
// clients (see spec.md §9, "Open questions").
func codeFromHTTPStatus(status int) Code {
	switch status {
	case 400:
		return CodeInternal
	case 401:
		return CodeUnauthenticated
	case 403:
		return CodePermissionDenied
	case 404:
		return CodeUnimplemented
	case 429:
		return CodeUnavailable
	case 502, 503, 504:
		return CodeUnavailable
	default:
		return CodeUnknown
	}
}

// httpStatusFromCode maps a canonical code to the HTTP status used for a
// unary error response, or the status implied by a streaming RPC's
// end-of-stream error (informational only there, since streams commit to
// HTTP 200 once headers are sent).
func httpStatusFromCode(code Code) int {
	switch code {
	case CodeCanceled:
		return 499
	case CodeUnknown:
		return 500
	case CodeInvalidArgument:
		return 400
	case CodeDeadlineExceeded:
		return 504
	case CodeNotFound:
		return 404
	case CodeAlreadyExists:
		return 409
	case CodePermissionDenied:
		return 403
	case CodeResourceExhausted:
		return 429
	case CodeFailedPrecondition:
		return 400
	case CodeAborted:
		return 409
	case CodeOutOfRange:
		return 400
	case CodeUnimplemented:
		return 501
	case CodeInternal:
		return 500
	case CodeUnavailable:
		return 503
	case CodeDataLoss:
		return 500
	case CodeUnauthenticated:
		return 401
	default:
		return 500
	}
}
