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

import "context"

// UnaryFunc is the terminal or intermediate link in a unary interceptor
// chain.
type UnaryFunc func(ctx context.Context, rc *RequestContext, request any) (any, error)

// ClientStreamFunc drives a client-streaming call: it consumes messages
// from send and returns exactly one response.
type ClientStreamFunc func(ctx context.Context, rc *RequestContext, send func() (any, bool, error)) (any, error)

// ServerStreamFunc drives a server-streaming call: given the one request
// message, it pushes zero or more responses through emit.
type ServerStreamFunc func(ctx context.Context, rc *RequestContext, request any, emit func(any) error) error

// BidiStreamFunc drives a bidi-streaming call: it consumes messages from
// recv and pushes responses through emit; the two directions are
// independent (spec.md §4.5, §9).
type BidiStreamFunc func(ctx context.Context, rc *RequestContext, recv func() (any, bool, error), emit func(any) error) error

// UnaryInterceptor wraps unary calls.
type UnaryInterceptor interface {
	InterceptUnary(next UnaryFunc) UnaryFunc
}

// ClientStreamInterceptor wraps client-streaming calls.
type ClientStreamInterceptor interface {
	InterceptClientStream(next ClientStreamFunc) ClientStreamFunc
}

// ServerStreamInterceptor wraps server-streaming calls.
type ServerStreamInterceptor interface {
	InterceptServerStream(next ServerStreamFunc) ServerStreamFunc
}

// BidiStreamInterceptor wraps bidi-streaming calls.
type BidiStreamInterceptor interface {
	InterceptBidiStream(next BidiStreamFunc) BidiStreamFunc
}

// Interceptor is the union of the four shape-specific interceptor
// interfaces. Implementations need only implement the shapes they care
// about; a chain skips interceptors that don't implement a given shape's
// interface (spec.md §4.11).
type Interceptor interface{}

// UnaryInterceptorFunc adapts a plain function to UnaryInterceptor.
type UnaryInterceptorFunc func(UnaryFunc) UnaryFunc

func (f UnaryInterceptorFunc) InterceptUnary(next UnaryFunc) UnaryFunc { return f(next) }

// MetadataInterceptor provides lifecycle hooks uniform across all four RPC
// shapes: OnStart runs before the downstream call and OnEnd always runs
// after it, even on error or panic recovery upstream (spec.md §4.11).
// Embedding MetadataInterceptor into a type adapts it to all four shape
// interfaces.
type MetadataInterceptor struct {
	OnStartFunc func(ctx context.Context, rc *RequestContext) any
	OnEndFunc   func(token any, rc *RequestContext)
}

func (m *MetadataInterceptor) onStart(ctx context.Context, rc *RequestContext) any {
	if m.OnStartFunc == nil {
		return nil
	}
	return m.OnStartFunc(ctx, rc)
}

func (m *MetadataInterceptor) onEnd(token any, rc *RequestContext) {
	if m.OnEndFunc == nil {
		return
	}
	m.OnEndFunc(token, rc)
}

func (m *MetadataInterceptor) InterceptUnary(next UnaryFunc) UnaryFunc {
	return func(ctx context.Context, rc *RequestContext, request any) (any, error) {
		token := m.onStart(ctx, rc)
		defer m.onEnd(token, rc)
		return next(ctx, rc, request)
	}
}

func (m *MetadataInterceptor) InterceptClientStream(next ClientStreamFunc) ClientStreamFunc {
	return func(ctx context.Context, rc *RequestContext, send func() (any, bool, error)) (any, error) {
		token := m.onStart(ctx, rc)
		defer m.onEnd(token, rc)
		return next(ctx, rc, send)
	}
}

func (m *MetadataInterceptor) InterceptServerStream(next ServerStreamFunc) ServerStreamFunc {
	return func(ctx context.Context, rc *RequestContext, request any, emit func(any) error) error {
		token := m.onStart(ctx, rc)
		defer m.onEnd(token, rc)
		return next(ctx, rc, request, emit)
	}
}

func (m *MetadataInterceptor) InterceptBidiStream(next BidiStreamFunc) BidiStreamFunc {
	return func(ctx context.Context, rc *RequestContext, recv func() (any, bool, error), emit func(any) error) error {
		token := m.onStart(ctx, rc)
		defer m.onEnd(token, rc)
		return next(ctx, rc, recv, emit)
	}
}

// chain composes interceptors right-to-left so the first registered
// interceptor is outermost (spec.md §4.11). Interceptors not implementing
// a shape's interface are skipped for that shape; the same ordered slice
// is reused to build all four shapes, both client- and server-side.
type chain struct {
	interceptors []Interceptor
}

func newChain(interceptors []Interceptor) *chain {
	return &chain{interceptors: interceptors}
}

func (c *chain) unary(tail UnaryFunc) UnaryFunc {
	next := tail
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		if ic, ok := c.interceptors[i].(UnaryInterceptor); ok {
			next = ic.InterceptUnary(next)
		}
	}
	return next
}

func (c *chain) clientStream(tail ClientStreamFunc) ClientStreamFunc {
	next := tail
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		if ic, ok := c.interceptors[i].(ClientStreamInterceptor); ok {
			next = ic.InterceptClientStream(next)
		}
	}
	return next
}

func (c *chain) serverStream(tail ServerStreamFunc) ServerStreamFunc {
	next := tail
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		if ic, ok := c.interceptors[i].(ServerStreamInterceptor); ok {
			next = ic.InterceptServerStream(next)
		}
	}
	return next
}

func (c *chain) bidiStream(tail BidiStreamFunc) BidiStreamFunc {
	next := tail
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		if ic, ok := c.interceptors[i].(BidiStreamInterceptor); ok {
			next = ic.InterceptBidiStream(next)
		}
	}
	return next
}
