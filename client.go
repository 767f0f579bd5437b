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
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// libraryVersion is substituted into the default User-Agent header (spec.md
// §6.5).
const libraryVersion = "0.1.0"

func defaultUserAgent() string {
	return "connectrpc-go/" + libraryVersion
}

// CallOption configures a single RPC invocation, layered over whatever the
// Client was constructed with.
type CallOption func(*callConfig)

type callConfig struct {
	headers  *Headers
	meta     *ResponseMetadata
	timeout  time.Duration
	hasTimeout bool
}

// WithRequestHeaders attaches additional request headers to one call.
func WithRequestHeaders(h *Headers) CallOption {
	return func(c *callConfig) { c.headers = h }
}

// WithResponseMetadata installs a scoped sink that captures this call's
// response headers/trailers (spec.md §4.12).
func WithResponseMetadata(m *ResponseMetadata) CallOption {
	return func(c *callConfig) { c.meta = m }
}

// WithCallTimeout overrides the client's configured timeout for one call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d; c.hasTimeout = true }
}

// ClientOption configures a Client at construction time.
type ClientOption func(*clientConfig)

type clientConfig struct {
	codecName       string
	codecs          map[string]Codec
	compressions    map[string]Compression
	compressionOrder []string
	sendCompression string
	useGET          bool
	readMaxBytes    int64
	timeout         time.Duration
	hasTimeout      bool
	interceptors    []Interceptor
	userAgent       string
}

// WithClientCodec selects the wire codec a Client uses ("proto" or
// "json" by default; others via WithClientCodecs).
func WithClientCodec(name string) ClientOption {
	return func(c *clientConfig) { c.codecName = name }
}

// WithClientCodecs registers additional codecs available to a Client.
func WithClientCodecs(codecs map[string]Codec) ClientOption {
	return func(c *clientConfig) {
		if c.codecs == nil {
			c.codecs = make(map[string]Codec)
		}
		for name, codec := range codecs {
			c.codecs[name] = codec
		}
	}
}

// WithClientCompression registers a compression algorithm for a Client and
// appends it to the accept-encoding preference order.
func WithClientCompression(name string, compression Compression) ClientOption {
	return func(c *clientConfig) {
		if c.compressions == nil {
			c.compressions = make(map[string]Compression)
		}
		c.compressions[name] = compression
		c.compressionOrder = append(c.compressionOrder, name)
	}
}

// WithSendCompression compresses request payloads with the named,
// already-registered algorithm.
func WithSendCompression(name string) ClientOption {
	return func(c *clientConfig) { c.sendCompression = name }
}

// WithGET dispatches side-effect-free methods over HTTP GET instead of
// POST (spec.md §4.4).
func WithGET() ClientOption {
	return func(c *clientConfig) { c.useGET = true }
}

// WithClientReadMaxBytes caps the decompressed size of any message the
// client will decode.
func WithClientReadMaxBytes(n int64) ClientOption {
	return func(c *clientConfig) { c.readMaxBytes = n }
}

// WithClientTimeout sets the default per-call timeout.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d; c.hasTimeout = true }
}

// WithClientInterceptors appends interceptors, outermost first (spec.md
// §4.11).
func WithClientInterceptors(interceptors ...Interceptor) ClientOption {
	return func(c *clientConfig) { c.interceptors = append(c.interceptors, interceptors...) }
}

// WithClientUserAgent overrides the default User-Agent header.
func WithClientUserAgent(ua string) ClientOption {
	return func(c *clientConfig) { c.userAgent = ua }
}

// Client implements the Connect protocol's client-side encoding and
// decoding for one RPC method, for all four RPC shapes (spec.md §4.9).
// Generated stubs build one Client per method with NewClient; the entry
// points are ExecuteUnary and the stream handles in client_stream.go and
// client_unary_stream.go.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	method     *MethodInfo
	codecs     *codecMap
	codecName  string
	compressions *compressionMap
	sendCompressionName string
	useGET     bool
	readMaxBytes int64
	timeout    time.Duration
	hasTimeout bool
	userAgent  string
	chain      *chain
}

// NewClient builds a Client for method, reachable at baseURL (e.g.
// "https://api.acme.com").
func NewClient(httpClient HTTPClient, baseURL string, method *MethodInfo, opts ...ClientOption) *Client {
	var cfg clientConfig
	cfg.codecName = codecNameProto
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.userAgent == "" {
		cfg.userAgent = defaultUserAgent()
	}
	return &Client{
		httpClient:          httpClient,
		baseURL:             strings.TrimSuffix(baseURL, "/"),
		method:              method,
		codecs:              newCodecMap(cfg.codecs),
		codecName:           cfg.codecName,
		compressions:        newCompressionMap(cfg.compressions, cfg.compressionOrder),
		sendCompressionName: cfg.sendCompression,
		useGET:              cfg.useGET && method.AllowsGET(),
		readMaxBytes:        cfg.readMaxBytes,
		timeout:             cfg.timeout,
		hasTimeout:          cfg.hasTimeout,
		userAgent:           cfg.userAgent,
		chain:               newChain(cfg.interceptors),
	}
}

func (c *Client) procedureURL() string {
	return c.baseURL + c.method.Procedure()
}

func (c *Client) resolveCallConfig(opts []CallOption) *callConfig {
	cfg := &callConfig{headers: NewHeaders(), timeout: c.timeout, hasTimeout: c.hasTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *Client) buildRequestContext(parent context.Context, cfg *callConfig, httpMethod string) (context.Context, context.CancelFunc, *RequestContext) {
	ctx := parent
	var cancel context.CancelFunc = func() {}
	var endTime *time.Time
	if cfg.hasTimeout {
		deadline := time.Now().Add(cfg.timeout)
		endTime = &deadline
		ctx, cancel = context.WithDeadline(ctx, deadline)
	}
	headers := cfg.headers.Clone()
	if headers.Get(headerUserAgent) == "" {
		headers.Set(headerUserAgent, c.userAgent)
	}
	rc := NewRequestContext(c.method, httpMethod, headers, endTime)
	return ctx, cancel, rc
}

// translateTransportError maps a transport-level failure (context
// cancellation/deadline, or an opaque networking error) into a canonical
// *Error (spec.md §4.9, §7).
func translateTransportError(err error) *Error {
	if err == nil {
		return nil
	}
	if connectErr, ok := asError(err); ok {
		return connectErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDeadlineExceeded, errors.New("Request timed out"))
	}
	if errors.Is(err, context.Canceled) {
		return NewError(CodeCanceled, errors.New("Request was cancelled"))
	}
	return NewError(CodeUnavailable, err)
}

// ExecuteUnary performs the unary RPC shape (spec.md §4.9, steps 1-3).
// newResponse must return a fresh, empty instance of the response message
// type to decode into.
func (c *Client) ExecuteUnary(parent context.Context, request any, newResponse func() any, opts ...CallOption) (any, error) {
	cfg := c.resolveCallConfig(opts)
	ctx, cancel, rc := c.buildRequestContext(parent, cfg, c.pickHTTPMethod())
	defer cancel()

	tail := UnaryFunc(func(ctx context.Context, rc *RequestContext, request any) (any, error) {
		return c.sendUnaryRequest(ctx, rc, request, newResponse, cfg.meta)
	})
	response, err := c.chain.unary(tail)(ctx, rc, request)
	if err != nil {
		if _, ok := asError(err); !ok && ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, translateTransportError(err)
	}
	return response, nil
}

func (c *Client) pickHTTPMethod() string {
	if c.useGET {
		return http.MethodGet
	}
	return http.MethodPost
}

func (c *Client) sendUnaryRequest(ctx context.Context, rc *RequestContext, request any, newResponse func() any, meta *ResponseMetadata) (any, error) {
	codec, ok := c.codecs.byName(c.codecName)
	if !ok {
		return nil, NewErrorf(CodeInternal, "unknown codec %q", c.codecName)
	}
	body, err := codec.Marshal(request)
	if err != nil {
		return nil, NewErrorf(CodeInvalidArgument, "marshal request: %w", err)
	}

	sendCompression, _ := c.compressions.byName(c.sendCompressionName)
	if sendCompression != nil && !sendCompression.IsIdentity() {
		compressed, cerr := sendCompression.Compress(body)
		if cerr != nil {
			return nil, NewErrorf(CodeInternal, "compress request: %w", cerr)
		}
		body = compressed
	}

	var httpReq *http.Request
	var reqErr error
	if rc.HTTPMethod() == http.MethodGet {
		httpReq, reqErr = c.buildGETRequest(ctx, body, codec.Name(), sendCompression)
	} else {
		httpReq, reqErr = http.NewRequestWithContext(ctx, http.MethodPost, c.procedureURL(), bytes.NewReader(body))
	}
	if reqErr != nil {
		return nil, NewErrorf(CodeInternal, "build request: %w", reqErr)
	}
	httpReq.Header = httpHeaderFromHeaders(rc.RequestHeaders())
	if rc.HTTPMethod() == http.MethodPost {
		httpReq.Header.Set(headerContentType, unaryContentType(codec.Name()))
		httpReq.Header.Set(headerConnectProtocolVersion, connectProtocolVersion)
		if sendCompression != nil && !sendCompression.IsIdentity() {
			httpReq.Header.Set(headerContentEncoding, sendCompression.Name())
		}
	}
	if accept := c.compressions.names(); len(accept) > 0 {
		httpReq.Header.Set(headerAcceptEncoding, strings.Join(append(accept, compressionIdentity), ","))
	}
	if timeout := rc.TimeoutMs(); timeout != nil {
		httpReq.Header.Set(headerConnectTimeoutMs, fmt.Sprintf("%d", *timeout))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	respHeaders := headersFromHTTPHeader(resp.Header)
	if meta != nil {
		meta.captureUnaryHeaders(respHeaders)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewErrorf(CodeUnavailable, "read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		connectErr, parseErr := unmarshalWireError(payload)
		if parseErr != nil {
			return nil, errorFromUnparseableUnaryResponse(resp.StatusCode)
		}
		return nil, connectErr
	}

	respContentType := resp.Header.Get(headerContentType)
	respCodecName, _ := parseUnaryContentType(respContentType)
	respCodec, ok := c.codecs.byName(respCodecName)
	if !ok {
		respCodec = codec
	}

	if encoding := resp.Header.Get(headerContentEncoding); encoding != "" && encoding != compressionIdentity {
		compression, ok := c.compressions.byName(encoding)
		if !ok {
			return nil, NewErrorf(CodeUnimplemented, "unknown compression %q: known algorithms are %v", encoding, c.compressions.names())
		}
		decompressed, derr := compression.Decompress(payload)
		if derr != nil {
			return nil, NewErrorf(CodeInvalidArgument, "decompress response: %w", derr)
		}
		payload = decompressed
	}

	if c.readMaxBytes > 0 && int64(len(payload)) > c.readMaxBytes {
		return nil, NewErrorf(CodeResourceExhausted, "response size %d exceeds configured max %d", len(payload), c.readMaxBytes)
	}

	response := newResponse()
	if err := respCodec.Unmarshal(payload, response); err != nil {
		return nil, NewErrorf(CodeUnknown, "server returned invalid response: %w", err)
	}
	return response, nil
}

func (c *Client) buildGETRequest(ctx context.Context, body []byte, codecName string, compression Compression) (*http.Request, error) {
	values := url.Values{}
	values.Set("connect", "v1")
	values.Set("message", base64.URLEncoding.EncodeToString(body))
	values.Set("base64", "1")
	values.Set("encoding", codecName)
	if compression != nil && !compression.IsIdentity() {
		values.Set("compression", compression.Name())
	}
	fullURL := c.procedureURL() + "?" + values.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
}
