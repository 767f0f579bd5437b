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
)

// ServerStreamForClient is the client-side handle for a server-streaming
// call: the client sends exactly one request message and receives zero or
// more responses (spec.md §4.9 step 5, implemented atop bidi-stream).
type ServerStreamForClient struct {
	bidi *BidiStreamForClient
}

// ExecuteServerStream opens a server-streaming call, sending request once
// and returning a handle to receive the response stream.
func (c *Client) ExecuteServerStream(ctx context.Context, request any, newResponse func() any, opts ...CallOption) (*ServerStreamForClient, error) {
	bidi, err := c.ExecuteBidiStream(ctx, newResponse, opts...)
	if err != nil {
		return nil, err
	}
	if err := bidi.Send(request); err != nil {
		bidi.Close()
		return nil, err
	}
	if err := bidi.CloseSend(); err != nil {
		bidi.Close()
		return nil, err
	}
	return &ServerStreamForClient{bidi: bidi}, nil
}

// Receive reads the next response message, returning io.EOF when the
// server has sent its final message.
func (s *ServerStreamForClient) Receive(message any) error { return s.bidi.Receive(message) }

// Trailers returns the end-of-stream trailers; valid after Receive
// returns io.EOF.
func (s *ServerStreamForClient) Trailers() *Headers { return s.bidi.Trailers() }

// Err returns the end-of-stream error, if any.
func (s *ServerStreamForClient) Err() error { return s.bidi.Err() }

// Close releases resources associated with the call.
func (s *ServerStreamForClient) Close() error { return s.bidi.Close() }

// ClientStreamForClient is the client-side handle for a client-streaming
// call: the client sends zero or more request messages and receives
// exactly one response (spec.md §4.9 step 5, implemented atop
// bidi-stream).
type ClientStreamForClient struct {
	bidi *BidiStreamForClient
}

// ExecuteClientStream opens a client-streaming call.
func (c *Client) ExecuteClientStream(ctx context.Context, newResponse func() any, opts ...CallOption) (*ClientStreamForClient, error) {
	bidi, err := c.ExecuteBidiStream(ctx, newResponse, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientStreamForClient{bidi: bidi}, nil
}

// Send writes one request message.
func (s *ClientStreamForClient) Send(message any) error { return s.bidi.Send(message) }

// CloseAndReceive closes the request stream and waits for the single
// response message. Receiving zero or more than one message is a protocol
// violation and surfaces CodeUnimplemented (spec.md §4.9 step 5).
func (s *ClientStreamForClient) CloseAndReceive(response any) error {
	if err := s.bidi.CloseSend(); err != nil {
		return err
	}
	if err := s.bidi.Receive(response); err != nil {
		if err == io.EOF {
			if streamErr := s.bidi.Err(); streamErr != nil {
				return streamErr
			}
			return NewErrorf(CodeUnimplemented, "unary response has zero messages")
		}
		return err
	}
	extra := s.bidi.newResponse()
	if err := s.bidi.Receive(extra); err != io.EOF {
		if err == nil {
			return NewErrorf(CodeUnimplemented, "unary response has more than one message")
		}
		return err
	}
	if streamErr := s.bidi.Err(); streamErr != nil {
		return streamErr
	}
	return nil
}

// Trailers returns the end-of-stream trailers.
func (s *ClientStreamForClient) Trailers() *Headers { return s.bidi.Trailers() }

// Close releases resources associated with the call.
func (s *ClientStreamForClient) Close() error { return s.bidi.Close() }
