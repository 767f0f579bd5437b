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
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func markerInterceptor(name string, order *[]string) UnaryInterceptorFunc {
	return func(next UnaryFunc) UnaryFunc {
		return func(ctx context.Context, rc *RequestContext, request any) (any, error) {
			*order = append(*order, name+":before")
			resp, err := next(ctx, rc, request)
			*order = append(*order, name+":after")
			return resp, err
		}
	}
}

func TestChainUnaryOrderingOutermostFirst(t *testing.T) {
	var order []string
	tail := UnaryFunc(func(ctx context.Context, rc *RequestContext, request any) (any, error) {
		order = append(order, "handler")
		return "response", nil
	})

	chain := newChain([]Interceptor{
		markerInterceptor("outer", &order),
		markerInterceptor("inner", &order),
	})
	wrapped := chain.unary(tail)

	resp, err := wrapped(context.Background(), &RequestContext{}, "request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "response" {
		t.Errorf("response = %v, want %q", resp, "response")
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("interceptor order mismatch (-want +got):\n%s", diff)
	}
}

// onlyServerStream implements only ServerStreamInterceptor, exercising the
// chain's per-shape skip behavior.
type onlyServerStream struct {
	called *bool
}

func (o onlyServerStream) InterceptServerStream(next ServerStreamFunc) ServerStreamFunc {
	return func(ctx context.Context, rc *RequestContext, request any, emit func(any) error) error {
		*o.called = true
		return next(ctx, rc, request, emit)
	}
}

func TestChainSkipsInterceptorsNotImplementingShape(t *testing.T) {
	var called bool
	chain := newChain([]Interceptor{onlyServerStream{called: &called}})

	unaryCalled := false
	wrapped := chain.unary(func(ctx context.Context, rc *RequestContext, request any) (any, error) {
		unaryCalled = true
		return nil, nil
	})
	if _, err := wrapped(context.Background(), &RequestContext{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !unaryCalled {
		t.Error("the terminal unary handler should still run")
	}
	if called {
		t.Error("a ServerStreamInterceptor-only type must not run for the unary shape")
	}
}

func TestMetadataInterceptorRunsOnEndEvenOnError(t *testing.T) {
	var started, ended bool
	mi := &MetadataInterceptor{
		OnStartFunc: func(ctx context.Context, rc *RequestContext) any {
			started = true
			return "token"
		},
		OnEndFunc: func(token any, rc *RequestContext) {
			ended = true
			if token != "token" {
				t.Errorf("token = %v, want %q", token, "token")
			}
		},
	}
	chain := newChain([]Interceptor{mi})
	wrapped := chain.unary(func(ctx context.Context, rc *RequestContext, request any) (any, error) {
		return nil, NewErrorf(CodeInternal, "boom")
	})

	_, err := wrapped(context.Background(), &RequestContext{}, nil)
	if err == nil {
		t.Fatal("expected an error from the terminal handler")
	}
	if !started || !ended {
		t.Errorf("started=%v ended=%v, want both true", started, ended)
	}
}

func TestUnaryInterceptorFuncAdapts(t *testing.T) {
	var ran bool
	f := UnaryInterceptorFunc(func(next UnaryFunc) UnaryFunc {
		return func(ctx context.Context, rc *RequestContext, request any) (any, error) {
			ran = true
			return next(ctx, rc, request)
		}
	})
	var _ UnaryInterceptor = f // compile-time adaptation check
	wrapped := f.InterceptUnary(func(ctx context.Context, rc *RequestContext, request any) (any, error) {
		return nil, nil
	})
	if _, err := wrapped(context.Background(), &RequestContext{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("UnaryInterceptorFunc should invoke its wrapped function")
	}
}
