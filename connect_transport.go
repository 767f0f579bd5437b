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

// ConnectTransport adapts a *Client to the protocol-neutral Transport
// facade (spec.md §4.13's first backing implementation).
type ConnectTransport struct {
	client *Client
}

// NewConnectTransport wraps client as a Transport.
func NewConnectTransport(client *Client) *ConnectTransport {
	return &ConnectTransport{client: client}
}

func (t *ConnectTransport) callOpts(opts CallOptions) []CallOption {
	var out []CallOption
	if opts.Headers != nil {
		out = append(out, WithRequestHeaders(opts.Headers))
	}
	if opts.Metadata != nil {
		out = append(out, WithResponseMetadata(opts.Metadata))
	}
	if opts.Timeout > 0 {
		out = append(out, WithCallTimeout(opts.Timeout))
	}
	return out
}

func (t *ConnectTransport) CallUnary(ctx context.Context, request any, newResponse func() any, opts CallOptions) (any, error) {
	return withUnaryRetry(opts.RetryPolicy, func(int) (any, error) {
		return t.client.ExecuteUnary(ctx, request, newResponse, t.callOpts(opts)...)
	})
}

func (t *ConnectTransport) CallClientStream(ctx context.Context, newResponse func() any, opts CallOptions) (ClientStreamCall, error) {
	result, err := withClientStreamRetry(opts.RetryPolicy, opts.Producer, func(int) (any, error) {
		return t.client.ExecuteClientStream(ctx, newResponse, t.callOpts(opts)...)
	})
	if err != nil {
		return nil, err
	}
	return connectClientStreamCall{result.(*ClientStreamForClient)}, nil
}

func (t *ConnectTransport) CallServerStream(ctx context.Context, request any, newResponse func() any, opts CallOptions) (ServerStreamCall, error) {
	stream, err := t.client.ExecuteServerStream(ctx, request, newResponse, t.callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	return connectServerStreamCall{stream}, nil
}

func (t *ConnectTransport) CallBidiStream(ctx context.Context, newResponse func() any, opts CallOptions) (BidiStreamCall, error) {
	stream, err := t.client.ExecuteBidiStream(ctx, newResponse, t.callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	return connectBidiStreamCall{stream}, nil
}

type connectClientStreamCall struct{ s *ClientStreamForClient }

func (c connectClientStreamCall) Send(message any) error            { return c.s.Send(message) }
func (c connectClientStreamCall) CloseAndReceive(response any) error { return c.s.CloseAndReceive(response) }
func (c connectClientStreamCall) Trailers() *Headers                { return c.s.Trailers() }

type connectServerStreamCall struct{ s *ServerStreamForClient }

func (c connectServerStreamCall) Receive(message any) error { return c.s.Receive(message) }
func (c connectServerStreamCall) Trailers() *Headers        { return c.s.Trailers() }
func (c connectServerStreamCall) Err() error                { return c.s.Err() }

type connectBidiStreamCall struct{ s *BidiStreamForClient }

func (c connectBidiStreamCall) Send(message any) error    { return c.s.Send(message) }
func (c connectBidiStreamCall) CloseSend() error          { return c.s.CloseSend() }
func (c connectBidiStreamCall) Receive(message any) error { return c.s.Receive(message) }
func (c connectBidiStreamCall) Trailers() *Headers        { return c.s.Trailers() }
func (c connectBidiStreamCall) Err() error                { return c.s.Err() }
