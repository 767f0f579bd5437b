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
	"net/http"
)

// flushWriter wraps an http.ResponseWriter, flushing after every frame so
// streamed messages reach the peer promptly instead of waiting for a full
// buffer (spec.md §5, "per-frame write" as a suspension point).
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}

// serveStreaming handles the client-stream, server-stream, and bidi-stream
// shapes (spec.md §4.5, §4.10 step 5). The server reads and writes
// envelope frames directly against the live HTTP connection: recv/emit
// closures do synchronous I/O in the handler's own goroutine, so the two
// directions interleave exactly as the underlying transport allows,
// without extra goroutines (spec.md §9, "Sequential coroutine bodies").
func serveStreaming(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint *Endpoint, rc *RequestContext, codec Codec) {
	var reqCompression Compression
	if name := r.Header.Get(headerConnectContentEncoding); name != "" {
		c, ok := endpoint.compressions.byName(name)
		if !ok {
			writeUnaryError(w, NewErrorf(CodeUnimplemented, "unknown compression %q: known algorithms are %v", name, endpoint.compressions.names()))
			return
		}
		reqCompression = c
	}
	sendCompressionName := endpoint.compressions.negotiate(r.Header.Get(headerConnectAcceptEncoding))
	sendCompression, _ := endpoint.compressions.byName(sendCompressionName)

	reader := newEnvelopeReader(r.Body, codec, reqCompression, endpoint.readMaxBytes)

	flusher, _ := w.(http.Flusher)
	fw := flushWriter{w: w, flusher: flusher}

	w.Header().Set(headerContentType, streamingContentType(codec.Name()))
	if sendCompressionName != compressionIdentity {
		w.Header().Set(headerConnectContentEncoding, sendCompressionName)
	}
	rc.ResponseHeaders().AllItems(func(name, value string) bool {
		w.Header().Add(name, value)
		return true
	})
	w.WriteHeader(http.StatusOK)
	rc.CommitResponse()

	writer := newEnvelopeWriter(fw, codec, sendCompression)

	recv := func() (any, bool, error) {
		msg := endpoint.NewRequest()
		err := reader.Next(msg)
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return msg, true, nil
	}

	var handlerErr error
	switch endpoint.ShapeType {
	case StreamTypeClient:
		var response any
		response, handlerErr = endpoint.ClientStream(ctx, rc, recv)
		if handlerErr == nil {
			if werr := writer.Write(response); werr != nil {
				handlerErr = werr
			}
		}
	case StreamTypeServer:
		request, ok, err := recv()
		if err != nil {
			handlerErr = err
			break
		}
		if !ok {
			handlerErr = NewErrorf(CodeInvalidArgument, "server-stream call received no request message")
			break
		}
		handlerErr = endpoint.ServerStream(ctx, rc, request, writer.Write)
	case StreamTypeBidi:
		handlerErr = endpoint.BidiStream(ctx, rc, recv, writer.Write)
	default:
		handlerErr = NewErrorf(CodeInternal, "endpoint %s has no streaming shape", endpoint.Method.Procedure())
	}

	var streamErr *Error
	if handlerErr != nil {
		streamErr = errorToUnknown(handlerErr)
	}
	_ = writer.End(rc.ResponseTrailers(), streamErr)
}
