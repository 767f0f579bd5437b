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
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// typeURLPrefix is prepended to a detail message's full name to build its
// type URL, per spec.md §3 and §6.4.
const typeURLPrefix = "type.googleapis.com/"

// ErrorDetail carries one arbitrary typed payload attached to an Error. The
// wire representation is a type-URL/bytes pair. A detail is packed when it
// is created (NewErrorDetail, AddDetail), so packing errors surface there;
// constructing the Error itself never fails.
type ErrorDetail struct {
	typeURL string
	value   []byte
}

// NewErrorDetail packs a protobuf message into an ErrorDetail. If msg is
// already an *anypb.Any, its type URL and bytes are reused verbatim;
// otherwise the message is wrapped the same way anypb.New does it.
func NewErrorDetail(msg proto.Message) (*ErrorDetail, error) {
	if any, ok := msg.(*anypb.Any); ok {
		return &ErrorDetail{typeURL: any.GetTypeUrl(), value: any.GetValue()}, nil
	}
	any, err := anypb.New(msg)
	if err != nil {
		return nil, fmt.Errorf("pack error detail: %w", err)
	}
	return &ErrorDetail{typeURL: any.GetTypeUrl(), value: any.GetValue()}, nil
}

// TypeURL returns the fully-qualified "type.googleapis.com/<name>" URL for
// this detail's payload type.
func (d *ErrorDetail) TypeURL() string { return d.typeURL }

// Bytes returns the binary-serialized message bytes for this detail.
func (d *ErrorDetail) Bytes() []byte { return d.value }

// TypeName returns the detail's message name with the standard
// type.googleapis.com/ prefix stripped, matching the wire JSON's "type"
// field (spec.md §6.3, §6.4).
func (d *ErrorDetail) TypeName() string {
	const prefix = typeURLPrefix
	if len(d.typeURL) > len(prefix) && d.typeURL[:len(prefix)] == prefix {
		return d.typeURL[len(prefix):]
	}
	return d.typeURL
}

// Value unmarshals the detail's bytes into msg, which must match the
// detail's packed type.
func (d *ErrorDetail) Value(msg proto.Message) error {
	any := &anypb.Any{TypeUrl: d.typeURL, Value: d.value}
	return any.UnmarshalTo(msg)
}

// Error is the canonical error type for the Connect protocol: a code, a
// human-readable message, and an ordered list of typed details. Every
// failure path on both client and server converges on *Error.
type Error struct {
	code    Code
	message string
	details []*ErrorDetail
	meta    *Headers // trailers accompanying the error, when known
	wrapped error
}

// NewError constructs an *Error with the given code whose message is
// err.Error(). Pass nil for err to build an Error with an empty message. If
// err already is (or wraps) an *Error, that *Error is returned unchanged and
// code is ignored.
func NewError(code Code, err error) *Error {
	if err == nil {
		return &Error{code: code}
	}
	var connectErr *Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	return &Error{code: code, message: err.Error(), wrapped: err}
}

// NewErrorf builds an *Error with a formatted message, in the style of
// fmt.Errorf. The format string participates in %w-wrapping exactly as
// fmt.Errorf does.
func NewErrorf(code Code, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{code: code, message: err.Error(), wrapped: errors.Unwrap(err)}
}

func (e *Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code.String(), e.message)
}

// Unwrap lets callers use errors.Is/errors.As against the underlying cause,
// when one was supplied.
func (e *Error) Unwrap() error { return e.wrapped }

// Code returns the error's canonical code.
func (e *Error) Code() Code { return e.code }

// Message returns the error's message without the code prefix that
// Error() adds.
func (e *Error) Message() string { return e.message }

// Details returns the error's typed details, in the order they were added.
func (e *Error) Details() []*ErrorDetail {
	return e.details
}

// AddDetail packs msg and appends it to the error's detail list.
func (e *Error) AddDetail(msg proto.Message) error {
	detail, err := NewErrorDetail(msg)
	if err != nil {
		return err
	}
	e.details = append(e.details, detail)
	return nil
}

// Meta returns the trailers known to accompany this error, if any (for
// example, trailers a client observed alongside a streaming end-of-stream
// error). It is never nil.
func (e *Error) Meta() *Headers {
	if e.meta == nil {
		e.meta = NewHeaders()
	}
	return e.meta
}

// asError reports whether err is (or wraps) an *Error, returning it if so.
func asError(err error) (*Error, bool) {
	var connectErr *Error
	if errors.As(err, &connectErr) {
		return connectErr, true
	}
	return nil, false
}

// errorToUnknown maps an arbitrary error into a canonical *Error, preserving
// its code if it already is one and otherwise classifying it as
// CodeUnknown, per spec.md §7's handler-error taxonomy.
func errorToUnknown(err error) *Error {
	if err == nil {
		return nil
	}
	if connectErr, ok := asError(err); ok {
		return connectErr
	}
	return NewError(CodeUnknown, err)
}
