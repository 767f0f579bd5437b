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
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BidiStreamForClient is the client-side handle for a bidi-streaming call:
// Send and Receive may be interleaved freely, since the two directions are
// independent (spec.md §4.5, §9).
type BidiStreamForClient struct {
	ctx          context.Context
	cancel       context.CancelFunc
	rc           *RequestContext
	call         *duplexHTTPCall
	writer       *envelopeWriter
	reader       *envelopeReader
	meta         *ResponseMetadata
	codecs       *codecMap
	compressions *compressionMap
	readMaxBytes int64

	newResponse func() any
}

// ExecuteBidiStream opens a bidi-streaming call and returns a handle for
// driving both directions (spec.md §4.9 step 4). newResponse must return a
// fresh, empty response-message instance on each call.
func (c *Client) ExecuteBidiStream(parent context.Context, newResponse func() any, opts ...CallOption) (*BidiStreamForClient, error) {
	cfg := c.resolveCallConfig(opts)
	ctx, cancel, rc := c.buildRequestContext(parent, cfg, http.MethodPost)

	codec, ok := c.codecs.byName(c.codecName)
	if !ok {
		cancel()
		return nil, NewErrorf(CodeInternal, "unknown codec %q", c.codecName)
	}
	sendCompression, _ := c.compressions.byName(c.sendCompressionName)

	headers := httpHeaderFromHeaders(rc.RequestHeaders())
	headers.Set(headerContentType, streamingContentType(codec.Name()))
	headers.Set(headerConnectProtocolVersion, connectProtocolVersion)
	if sendCompression != nil && !sendCompression.IsIdentity() {
		headers.Set(headerConnectContentEncoding, sendCompression.Name())
	}
	if accept := c.compressions.names(); len(accept) > 0 {
		headers.Set(headerConnectAcceptEncoding, strings.Join(append(accept, compressionIdentity), ","))
	}
	if timeout := rc.TimeoutMs(); timeout != nil {
		headers.Set(headerConnectTimeoutMs, fmt.Sprintf("%d", *timeout))
	}

	call := newDuplexHTTPCall(ctx, c.httpClient, http.MethodPost, c.procedureURL(), headers)
	call.Start()

	return &BidiStreamForClient{
		ctx:          ctx,
		cancel:       cancel,
		rc:           rc,
		call:         call,
		writer:       newEnvelopeWriter(call, codec, sendCompression),
		meta:         cfg.meta,
		codecs:       c.codecs,
		compressions: c.compressions,
		readMaxBytes: c.readMaxBytes,
		newResponse:  newResponse,
	}, nil
}

// Send marshals and writes one request message.
func (s *BidiStreamForClient) Send(message any) error {
	if err := s.writer.Write(message); err != nil {
		return translateTransportError(err)
	}
	return nil
}

// CloseSend signals that no more request messages will be sent.
func (s *BidiStreamForClient) CloseSend() error {
	return s.call.CloseWrite()
}

// Receive blocks for the next response message, returning io.EOF once the
// stream has ended (successfully or not; check Err afterward).
func (s *BidiStreamForClient) Receive(message any) error {
	if err := s.ensureReader(); err != nil {
		return err
	}
	err := s.reader.Next(message)
	if err == io.EOF {
		if s.meta != nil {
			// Record the end-of-stream trailers once; later calls see meta nil.
			s.meta.captureStreamTrailers(s.reader.Trailers())
			s.meta = nil
		}
		return io.EOF
	}
	if err != nil {
		return translateTransportError(err)
	}
	return nil
}

func (s *BidiStreamForClient) ensureReader() error {
	if s.reader != nil {
		return nil
	}
	resp, err := s.call.Response()
	if err != nil {
		return translateTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		connectErr, parseErr := unmarshalWireError(body)
		if parseErr != nil {
			return errorFromUnparseableUnaryResponse(resp.StatusCode)
		}
		return connectErr
	}
	respHeaders := headersFromHTTPHeader(resp.Header)
	if s.meta != nil {
		s.meta.captureStreamHeaders(respHeaders)
	}
	contentType := resp.Header.Get(headerContentType)
	codecName, _ := parseStreamingContentType(contentType)
	codec, ok := s.codecs.byName(codecName)
	if !ok {
		return NewErrorf(CodeInternal, "unrecognized streaming content-type %q", contentType)
	}
	var compression Compression
	if encoding := resp.Header.Get(headerConnectContentEncoding); encoding != "" {
		compression, ok = s.compressions.byName(encoding)
		if !ok {
			return NewErrorf(CodeUnimplemented, "unknown compression %q", encoding)
		}
	}
	s.reader = newEnvelopeReader(resp.Body, codec, compression, s.readMaxBytes)
	return nil
}

// Trailers returns the trailers carried by the end-of-stream frame; valid
// only after Receive has returned io.EOF.
func (s *BidiStreamForClient) Trailers() *Headers {
	if s.reader == nil {
		return NewHeaders()
	}
	return s.reader.Trailers()
}

// Err returns the error carried by the end-of-stream frame, if any.
func (s *BidiStreamForClient) Err() error {
	if s.reader == nil {
		return nil
	}
	if err := s.reader.EndError(); err != nil {
		return err
	}
	return nil
}

// Close releases resources associated with the call.
func (s *BidiStreamForClient) Close() error {
	defer s.cancel()
	return s.call.CloseWriteWithError(io.EOF)
}
