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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	headerContentType              = "content-type"
	headerContentEncoding          = "content-encoding"
	headerAcceptEncoding           = "accept-encoding"
	headerConnectProtocolVersion   = "connect-protocol-version"
	headerConnectTimeoutMs         = "connect-timeout-ms"
	headerConnectContentEncoding   = "connect-content-encoding"
	headerConnectAcceptEncoding    = "connect-accept-encoding"
	headerUserAgent                = "user-agent"
	headerAllow                    = "allow"
	headerAcceptPost               = "accept-post"
	trailerPrefix                  = "trailer-"

	connectProtocolVersion = "1"

	unaryContentTypePrefix     = "application/"
	streamingContentTypePrefix = "application/connect+"

	maxTimeoutDigits = 10
)

// wireError is the JSON projection of an *Error used both in a unary error
// response body and in a streaming end-of-stream frame's "error" field
// (spec.md §4.6, §6.3).
type wireError struct {
	Code    string            `json:"code"`
	Message string            `json:"message,omitempty"`
	Details []wireErrorDetail `json:"details,omitempty"`
}

type wireErrorDetail struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// newWireError projects an *Error into its wire JSON shape.
func newWireError(err *Error) *wireError {
	we := &wireError{Code: err.Code().String(), Message: err.Message()}
	for _, d := range err.Details() {
		we.Details = append(we.Details, wireErrorDetail{
			Type:  d.TypeName(),
			Value: base64.RawURLEncoding.EncodeToString(d.Bytes()),
		})
	}
	return we
}

// asError converts a wireError back into an *Error, used by clients
// decoding either a unary error body or a streaming end-of-stream error.
func (we *wireError) asError() *Error {
	var code Code
	if err := code.UnmarshalText([]byte(we.Code)); err != nil {
		code = CodeUnknown
	}
	err := &Error{code: code, message: we.Message}
	for _, d := range we.Details {
		value, decErr := base64.RawURLEncoding.DecodeString(d.Value)
		if decErr != nil {
			continue
		}
		err.details = append(err.details, &ErrorDetail{
			typeURL: typeURLPrefix + d.Type,
			value:   value,
		})
	}
	return err
}

// marshalWireError renders an *Error as the body of a unary error
// response.
func marshalWireError(err *Error) ([]byte, error) {
	return json.Marshal(newWireError(err))
}

// unmarshalWireError parses a unary error response body. If the body isn't
// valid wire-error JSON, the caller should fall back to deriving a code
// from the HTTP status (spec.md §4.4, §4.6).
func unmarshalWireError(data []byte) (*Error, error) {
	var we wireError
	if err := json.Unmarshal(data, &we); err != nil {
		return nil, err
	}
	if we.Code == "" {
		return nil, fmt.Errorf("missing code in error body")
	}
	return we.asError(), nil
}

// errorFromUnparseableUnaryResponse builds the *Error to surface when a
// unary response's non-200 body could not be parsed as wire-error JSON.
func errorFromUnparseableUnaryResponse(status int) *Error {
	return NewErrorf(codeFromHTTPStatus(status), "HTTP status %d", status)
}

// endStreamMessage is the JSON payload of a streaming end-of-stream frame
// (spec.md §4.5, §6.2).
type endStreamMessage struct {
	Metadata map[string][]string `json:"metadata,omitempty"`
	Error    *wireError          `json:"error,omitempty"`
}

func newEndStreamMessage(trailers *Headers, err *Error) *endStreamMessage {
	msg := &endStreamMessage{}
	if trailers != nil && trailers.Len() > 0 {
		msg.Metadata = make(map[string][]string, trailers.Len())
		for _, key := range trailers.Keys() {
			msg.Metadata[key] = trailers.GetAll(key)
		}
	}
	if err != nil {
		msg.Error = newWireError(err)
	}
	return msg
}

// trailers reconstructs a Headers from the end-stream metadata field.
func (m *endStreamMessage) trailers() *Headers {
	h := NewHeaders()
	for name, values := range m.Metadata {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return h
}

func (m *endStreamMessage) error() *Error {
	if m.Error == nil {
		return nil
	}
	return m.Error.asError()
}

// parseUnaryContentType splits "application/<codec>" into the codec name,
// tolerating the "json; charset=utf-8" alias (spec.md §4.2). Streaming
// content types ("application/connect+<codec>") share the same
// "application/" prefix, so they're explicitly excluded here; callers try
// parseStreamingContentType for those instead.
func parseUnaryContentType(contentType string) (codecName string, ok bool) {
	if !strings.HasPrefix(contentType, unaryContentTypePrefix) {
		return "", false
	}
	if strings.HasPrefix(contentType, streamingContentTypePrefix) {
		return "", false
	}
	return strings.TrimPrefix(contentType, unaryContentTypePrefix), true
}

// parseStreamingContentType splits "application/connect+<codec>" into the
// codec name.
func parseStreamingContentType(contentType string) (codecName string, ok bool) {
	if !strings.HasPrefix(contentType, streamingContentTypePrefix) {
		return "", false
	}
	return strings.TrimPrefix(contentType, streamingContentTypePrefix), true
}

func unaryContentType(codecName string) string {
	return unaryContentTypePrefix + codecName
}

func streamingContentType(codecName string) string {
	return streamingContentTypePrefix + codecName
}

// parseTimeoutMs validates and converts a connect-timeout-ms header value:
// a nonempty decimal string of at most maxTimeoutDigits digits (spec.md
// §4.4, §8).
func parseTimeoutMs(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty timeout")
	}
	if len(value) > maxTimeoutDigits {
		return 0, fmt.Errorf("timeout %q exceeds %d digits", value, maxTimeoutDigits)
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", value, err)
	}
	return ms, nil
}
