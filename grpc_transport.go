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
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCTransport is the second Transport backing implementation (spec.md
// §4.13): a thin adapter over a generated gRPC stub's connection,
// translating between the facade's shape-neutral calls and
// grpc.ClientConnInterface. Method accessors (NewStream descriptors) are
// cached per method path, the way generated gRPC stubs cache them. Of
// CallOptions it applies Headers, RetryPolicy and Producer; Timeout and
// Metadata are not applied, so a deadline comes only from ctx.
type GRPCTransport struct {
	conn      grpc.ClientConnInterface
	procedure string

	mu    sync.Mutex
	descs map[string]*grpc.StreamDesc
}

// NewGRPCTransport wraps conn for calls to procedure (e.g.
// "/acme.foo.v1.Foo/Bar").
func NewGRPCTransport(conn grpc.ClientConnInterface, procedure string) *GRPCTransport {
	return &GRPCTransport{conn: conn, procedure: procedure, descs: make(map[string]*grpc.StreamDesc)}
}

func grpcError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return NewError(CodeUnknown, err)
	}
	return NewError(Code(st.Code()), err)
}

func withGRPCHeaders(ctx context.Context, headers *Headers) context.Context {
	if headers == nil || headers.Len() == 0 {
		return ctx
	}
	md := metadata.MD{}
	headers.AllItems(func(name, value string) bool {
		md.Append(name, value)
		return true
	})
	return metadata.NewOutgoingContext(ctx, md)
}

func (t *GRPCTransport) CallUnary(ctx context.Context, request any, newResponse func() any, opts CallOptions) (any, error) {
	return withUnaryRetry(opts.RetryPolicy, func(int) (any, error) {
		ctx := withGRPCHeaders(ctx, opts.Headers)
		response := newResponse()
		if err := t.conn.Invoke(ctx, t.procedure, request, response); err != nil {
			return nil, grpcError(err)
		}
		return response, nil
	})
}

func (t *GRPCTransport) streamDesc(clientStreams, serverStreams bool) *grpc.StreamDesc {
	key := t.procedure
	t.mu.Lock()
	defer t.mu.Unlock()
	if desc, ok := t.descs[key]; ok {
		return desc
	}
	desc := &grpc.StreamDesc{
		StreamName:    t.procedure,
		ClientStreams: clientStreams,
		ServerStreams: serverStreams,
	}
	t.descs[key] = desc
	return desc
}

type grpcStreamCall struct {
	stream      grpc.ClientStream
	newResponse func() any
}

func (t *GRPCTransport) newStream(ctx context.Context, opts CallOptions, clientStreams, serverStreams bool) (grpc.ClientStream, error) {
	ctx = withGRPCHeaders(ctx, opts.Headers)
	return t.conn.NewStream(ctx, t.streamDesc(clientStreams, serverStreams), t.procedure)
}

func (t *GRPCTransport) CallClientStream(ctx context.Context, newResponse func() any, opts CallOptions) (ClientStreamCall, error) {
	result, err := withClientStreamRetry(opts.RetryPolicy, opts.Producer, func(int) (any, error) {
		stream, err := t.newStream(ctx, opts, true, false)
		if err != nil {
			return nil, grpcError(err)
		}
		return stream, nil
	})
	if err != nil {
		return nil, err
	}
	return &grpcClientStreamCall{grpcStreamCall{result.(grpc.ClientStream), newResponse}}, nil
}

func (t *GRPCTransport) CallServerStream(ctx context.Context, request any, newResponse func() any, opts CallOptions) (ServerStreamCall, error) {
	stream, err := t.newStream(ctx, opts, false, true)
	if err != nil {
		return nil, grpcError(err)
	}
	if err := stream.SendMsg(request); err != nil {
		return nil, grpcError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, grpcError(err)
	}
	return &grpcServerStreamCall{grpcStreamCall{stream, newResponse}}, nil
}

func (t *GRPCTransport) CallBidiStream(ctx context.Context, newResponse func() any, opts CallOptions) (BidiStreamCall, error) {
	stream, err := t.newStream(ctx, opts, true, true)
	if err != nil {
		return nil, grpcError(err)
	}
	return &grpcBidiStreamCall{grpcStreamCall{stream, newResponse}}, nil
}

type grpcClientStreamCall struct{ grpcStreamCall }

func (c *grpcClientStreamCall) Send(message any) error { return grpcError(c.stream.SendMsg(message)) }

func (c *grpcClientStreamCall) CloseAndReceive(response any) error {
	if err := c.stream.CloseSend(); err != nil {
		return grpcError(err)
	}
	return grpcError(c.stream.RecvMsg(response))
}

func (c *grpcClientStreamCall) Trailers() *Headers {
	return headersFromMD(c.stream.Trailer())
}

type grpcServerStreamCall struct{ grpcStreamCall }

func (c *grpcServerStreamCall) Receive(message any) error {
	err := c.stream.RecvMsg(message)
	if err == io.EOF {
		return io.EOF
	}
	return grpcError(err)
}

func (c *grpcServerStreamCall) Trailers() *Headers { return headersFromMD(c.stream.Trailer()) }
func (c *grpcServerStreamCall) Err() error          { return nil }

type grpcBidiStreamCall struct{ grpcStreamCall }

func (c *grpcBidiStreamCall) Send(message any) error { return grpcError(c.stream.SendMsg(message)) }
func (c *grpcBidiStreamCall) CloseSend() error       { return grpcError(c.stream.CloseSend()) }

func (c *grpcBidiStreamCall) Receive(message any) error {
	err := c.stream.RecvMsg(message)
	if err == io.EOF {
		return io.EOF
	}
	return grpcError(err)
}

func (c *grpcBidiStreamCall) Trailers() *Headers { return headersFromMD(c.stream.Trailer()) }
func (c *grpcBidiStreamCall) Err() error          { return nil }

func headersFromMD(md metadata.MD) *Headers {
	h := NewHeaders()
	for name, values := range md {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return h
}
