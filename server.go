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
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"
)

// Mux routes incoming HTTP requests to registered Endpoints and drives the
// Connect wire protocol decode/dispatch/encode for all four RPC shapes
// (spec.md §4.10). It implements http.Handler directly, so it can be
// mounted on any net/http-compatible router (see the teacher's use of gin
// in repro/main.go for one such mounting).
type Mux struct {
	prefix    string
	endpoints map[string]*Endpoint
}

// NewMux builds an empty Mux. prefix, if non-empty, is stripped from the
// request path before routing (spec.md §4.10 step 1).
func NewMux(prefix string) *Mux {
	return &Mux{prefix: strings.TrimSuffix(prefix, "/"), endpoints: make(map[string]*Endpoint)}
}

// Register adds e to the routing table under its method's procedure path.
func (m *Mux) Register(e *Endpoint) {
	m.endpoints[e.Method.Procedure()] = e
}

func (m *Mux) lookup(path string) (*Endpoint, bool) {
	trimmed := strings.TrimPrefix(path, m.prefix)
	e, ok := m.endpoints[trimmed]
	return e, ok
}

func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := m.lookup(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodOptions {
		writeCORSPreflight(w, endpoint)
		return
	}

	if r.Method != http.MethodPost && !(r.Method == http.MethodGet && endpoint.Method.AllowsGET()) {
		w.Header().Set(headerAllow, allowedMethods(endpoint))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	reqHeaders := headersFromHTTPHeader(r.Header)
	endTime, protoErr := resolveDeadline(reqHeaders, r.Method, r.URL.Query().Get("connect"))
	if protoErr != nil {
		writeUnaryError(w, protoErr)
		return
	}

	codecName, haveCodecName := resolveCodecName(r)
	codec, foundCodec := endpoint.codecs.byName(codecName)
	if !haveCodecName || !foundCodec {
		w.Header().Set(headerAcceptPost, strings.Join(endpoint.codecs.names(), ", "))
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	rc := NewRequestContext(endpoint.Method, r.Method, reqHeaders, endTime)
	ctx := r.Context()
	if endTime != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *endTime)
		defer cancel()
	}

	switch endpoint.ShapeType {
	case StreamTypeUnary:
		serveUnary(ctx, w, r, endpoint, rc, codec)
	default:
		serveStreaming(ctx, w, r, endpoint, rc, codec)
	}
}

func allowedMethods(e *Endpoint) string {
	if e.Method.AllowsGET() {
		return "GET, POST"
	}
	return "POST"
}

// resolveDeadline validates the connect-protocol-version header (or, for
// GET, the connect=v1 query parameter per SPEC_FULL.md's supplemented
// behavior) and parses connect-timeout-ms into an absolute deadline
// (spec.md §4.10 step 3, §8).
func resolveDeadline(headers *Headers, httpMethod, connectQuery string) (*time.Time, *Error) {
	version := headers.Get(headerConnectProtocolVersion)
	validGETWithoutHeader := version == "" && httpMethod == http.MethodGet && connectQuery == "v1"
	if !validGETWithoutHeader && version != connectProtocolVersion {
		return nil, NewErrorf(CodeInvalidArgument, "unsupported connect-protocol-version %q", version)
	}

	timeoutStr := headers.Get(headerConnectTimeoutMs)
	if timeoutStr == "" {
		return nil, nil
	}
	ms, err := parseTimeoutMs(timeoutStr)
	if err != nil {
		return nil, NewError(CodeInvalidArgument, err)
	}
	deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
	return &deadline, nil
}

func resolveCodecName(r *http.Request) (string, bool) {
	if r.Method == http.MethodGet {
		name := r.URL.Query().Get("encoding")
		return name, name != ""
	}
	contentType := r.Header.Get(headerContentType)
	name, ok := parseUnaryContentType(contentType)
	if !ok {
		name, ok = parseStreamingContentType(contentType)
	}
	return name, ok
}

func serveUnary(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint *Endpoint, rc *RequestContext, codec Codec) {
	var body []byte
	var compressionName string
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		message := q.Get("message")
		if message == "" {
			writeUnaryError(w, NewErrorf(CodeInvalidArgument, "missing message query parameter"))
			return
		}
		decoded, err := base64.URLEncoding.DecodeString(message)
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(message)
		}
		if err != nil {
			writeUnaryError(w, NewErrorf(CodeInvalidArgument, "invalid base64 message: %w", err))
			return
		}
		body = decoded
		compressionName = q.Get("compression")
	} else {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeUnaryError(w, NewErrorf(CodeUnavailable, "read request body: %w", err))
			return
		}
		body = raw
		compressionName = r.Header.Get(headerContentEncoding)
	}

	if compressionName != "" && compressionName != compressionIdentity {
		compression, ok := endpoint.compressions.byName(compressionName)
		if !ok {
			writeUnaryError(w, NewErrorf(CodeUnimplemented, "unknown compression %q: known algorithms are %v", compressionName, endpoint.compressions.names()))
			return
		}
		decompressed, err := compression.Decompress(body)
		if err != nil {
			writeUnaryError(w, NewErrorf(CodeInvalidArgument, "decompress request: %w", err))
			return
		}
		body = decompressed
	}

	if endpoint.readMaxBytes > 0 && int64(len(body)) > endpoint.readMaxBytes {
		writeUnaryError(w, NewErrorf(CodeResourceExhausted, "request size %d exceeds configured max %d", len(body), endpoint.readMaxBytes))
		return
	}

	request := endpoint.NewRequest()
	if err := codec.Unmarshal(body, request); err != nil {
		writeUnaryError(w, NewErrorf(CodeInvalidArgument, "unmarshal request: %w", err))
		return
	}

	response, err := endpoint.Unary(ctx, rc, request)
	if err != nil {
		writeUnaryError(w, errorToUnknown(err))
		return
	}

	respBody, err := codec.Marshal(response)
	if err != nil {
		writeUnaryError(w, NewErrorf(CodeInternal, "marshal response: %w", err))
		return
	}

	acceptEncoding := r.Header.Get(headerAcceptEncoding)
	sendCompressionName := endpoint.compressions.negotiate(acceptEncoding)
	if sendCompressionName != compressionIdentity {
		compression, _ := endpoint.compressions.byName(sendCompressionName)
		compressed, cerr := compression.Compress(respBody)
		if cerr == nil {
			respBody = compressed
			w.Header().Set(headerContentEncoding, sendCompressionName)
		}
	}

	rc.ResponseHeaders().AllItems(func(name, value string) bool {
		w.Header().Add(name, value)
		return true
	})
	rc.ResponseTrailers().AllItems(func(name, value string) bool {
		w.Header().Add(trailerPrefix+name, value)
		return true
	})
	w.Header().Set(headerContentType, unaryContentType(codec.Name()))
	rc.CommitResponse()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBody)
}

func writeUnaryError(w http.ResponseWriter, err *Error) {
	body, marshalErr := marshalWireError(err)
	w.Header().Set(headerContentType, "application/json")
	status := httpStatusFromCode(err.Code())
	if marshalErr != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"code":"internal","message":"failed to marshal error"}`)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
