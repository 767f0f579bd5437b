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

// Endpoint is a tagged variant over the four RPC shapes (spec.md §3,
// §4.10, §9 "Dynamic multi-shape dispatch"). Exactly one of the handler
// fields matching ShapeType is populated; the server's routing dispatch
// switches on ShapeType exactly once per request.
type Endpoint struct {
	Method       *MethodInfo
	ShapeType    StreamType
	NewRequest   func() any
	NewResponse  func() any
	Unary        UnaryFunc
	ClientStream ClientStreamFunc
	ServerStream ServerStreamFunc
	BidiStream   BidiStreamFunc

	codecs       *codecMap
	compressions *compressionMap
	readMaxBytes int64
	chain        *chain
}

// EndpointOption configures an Endpoint at registration time.
type EndpointOption func(*endpointConfig)

type endpointConfig struct {
	codecs           map[string]Codec
	compressions     map[string]Compression
	compressionOrder []string
	readMaxBytes     int64
	interceptors     []Interceptor
}

// WithHandlerCodecs registers additional codecs an Endpoint will accept.
func WithHandlerCodecs(codecs map[string]Codec) EndpointOption {
	return func(c *endpointConfig) {
		if c.codecs == nil {
			c.codecs = make(map[string]Codec)
		}
		for name, codec := range codecs {
			c.codecs[name] = codec
		}
	}
}

// WithHandlerCompression registers a compression algorithm an Endpoint
// will accept and advertise in accept-encoding.
func WithHandlerCompression(name string, compression Compression) EndpointOption {
	return func(c *endpointConfig) {
		if c.compressions == nil {
			c.compressions = make(map[string]Compression)
		}
		c.compressions[name] = compression
		c.compressionOrder = append(c.compressionOrder, name)
	}
}

// WithHandlerReadMaxBytes caps the decompressed size of any request
// message an Endpoint will decode.
func WithHandlerReadMaxBytes(n int64) EndpointOption {
	return func(c *endpointConfig) { c.readMaxBytes = n }
}

// WithHandlerInterceptors appends interceptors, outermost first.
func WithHandlerInterceptors(interceptors ...Interceptor) EndpointOption {
	return func(c *endpointConfig) { c.interceptors = append(c.interceptors, interceptors...) }
}

func buildEndpointConfig(opts []EndpointOption) *endpointConfig {
	cfg := &endpointConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newEndpoint(method *MethodInfo, shape StreamType, newRequest, newResponse func() any, cfg *endpointConfig) *Endpoint {
	return &Endpoint{
		Method:       method,
		ShapeType:    shape,
		NewRequest:   newRequest,
		NewResponse:  newResponse,
		codecs:       newCodecMap(cfg.codecs),
		compressions: newCompressionMap(cfg.compressions, cfg.compressionOrder),
		readMaxBytes: cfg.readMaxBytes,
		chain:        newChain(cfg.interceptors),
	}
}

// NewUnaryEndpoint builds an Endpoint for a unary method.
func NewUnaryEndpoint(method *MethodInfo, newRequest, newResponse func() any, handler UnaryFunc, opts ...EndpointOption) *Endpoint {
	cfg := buildEndpointConfig(opts)
	e := newEndpoint(method, StreamTypeUnary, newRequest, newResponse, cfg)
	e.Unary = e.chain.unary(handler)
	return e
}

// NewClientStreamEndpoint builds an Endpoint for a client-streaming
// method.
func NewClientStreamEndpoint(method *MethodInfo, newRequest, newResponse func() any, handler ClientStreamFunc, opts ...EndpointOption) *Endpoint {
	cfg := buildEndpointConfig(opts)
	e := newEndpoint(method, StreamTypeClient, newRequest, newResponse, cfg)
	e.ClientStream = e.chain.clientStream(handler)
	return e
}

// NewServerStreamEndpoint builds an Endpoint for a server-streaming
// method.
func NewServerStreamEndpoint(method *MethodInfo, newRequest, newResponse func() any, handler ServerStreamFunc, opts ...EndpointOption) *Endpoint {
	cfg := buildEndpointConfig(opts)
	e := newEndpoint(method, StreamTypeServer, newRequest, newResponse, cfg)
	e.ServerStream = e.chain.serverStream(handler)
	return e
}

// NewBidiStreamEndpoint builds an Endpoint for a bidi-streaming method.
func NewBidiStreamEndpoint(method *MethodInfo, newRequest, newResponse func() any, handler BidiStreamFunc, opts ...EndpointOption) *Endpoint {
	cfg := buildEndpointConfig(opts)
	e := newEndpoint(method, StreamTypeBidi, newRequest, newResponse, cfg)
	e.BidiStream = e.chain.bidiStream(handler)
	return e
}
