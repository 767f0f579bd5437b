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
	"time"
)

// RequestContext carries the per-RPC state threaded through an
// interceptor chain: the method being called, the headers and trailers
// flowing in each direction, and the deadline (spec.md §3). A
// RequestContext is created once per RPC and is not safe for concurrent
// mutation; its Headers are owned by it and must not be aliased beyond
// the RPC's lifetime.
type RequestContext struct {
	method      *MethodInfo
	httpMethod  string
	reqHeaders  *Headers
	resHeaders  *Headers
	resTrailers *Headers
	endTime     *time.Time

	// responseCommitted becomes true once the first response byte has been
	// emitted; after that, ResponseHeaders mutations are no longer
	// observable, only ResponseTrailers (spec.md §3, §5).
	responseCommitted bool
}

// NewRequestContext builds a RequestContext for one RPC invocation.
func NewRequestContext(method *MethodInfo, httpMethod string, requestHeaders *Headers, endTime *time.Time) *RequestContext {
	return &RequestContext{
		method:      method,
		httpMethod:  httpMethod,
		reqHeaders:  requestHeaders,
		resHeaders:  NewHeaders(),
		resTrailers: NewHeaders(),
		endTime:     endTime,
	}
}

// Method returns the MethodInfo this RPC invokes.
func (c *RequestContext) Method() *MethodInfo { return c.method }

// HTTPMethod returns "GET" or "POST".
func (c *RequestContext) HTTPMethod() string { return c.httpMethod }

// RequestHeaders returns the read-only view of the request's headers.
func (c *RequestContext) RequestHeaders() *Headers { return c.reqHeaders }

// ResponseHeaders returns the mutable response-header set. On the server,
// mutations are legal only before the first response byte is emitted; see
// CommitResponse.
func (c *RequestContext) ResponseHeaders() *Headers { return c.resHeaders }

// ResponseTrailers returns the mutable response-trailer set, legal to
// mutate until the final response frame.
func (c *RequestContext) ResponseTrailers() *Headers { return c.resTrailers }

// EndTime returns the absolute monotonic deadline for this RPC, or nil if
// none was set.
func (c *RequestContext) EndTime() *time.Time { return c.endTime }

// TimeoutMs returns the time remaining until EndTime in milliseconds, or
// nil if there is no deadline.
func (c *RequestContext) TimeoutMs() *int64 {
	if c.endTime == nil {
		return nil
	}
	remaining := time.Until(*c.endTime).Milliseconds()
	return &remaining
}

// CommitResponse marks the response as having begun transmission; after
// this call, ResponseHeaders mutations are no longer meaningful.
func (c *RequestContext) CommitResponse() {
	c.responseCommitted = true
}

// ResponseCommitted reports whether the response has begun transmission.
func (c *RequestContext) ResponseCommitted() bool {
	return c.responseCommitted
}

// httpHeaderFromHeaders copies a Headers into a net/http.Header, including
// duplicates.
func httpHeaderFromHeaders(h *Headers) http.Header {
	out := make(http.Header)
	h.AllItems(func(name, value string) bool {
		out.Add(name, value)
		return true
	})
	return out
}

// headersFromHTTPHeader copies a net/http.Header into a Headers,
// preserving duplicates.
func headersFromHTTPHeader(h http.Header) *Headers {
	out := NewHeaders()
	for name, values := range h {
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}
