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
	"sort"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	codecNameProto            = "proto"
	codecNameJSON             = "json"
	codecNameJSONCharsetUTF8  = "json; charset=utf-8"
)

// Codec marshals and unmarshals the messages exchanged by an RPC. The
// runtime ships "proto" (binary Protocol Buffers) and "json" (canonical
// Protobuf JSON); callers may register their own under other names via
// WithClientCodecs or WithHandlerCodecs.
type Codec interface {
	Name() string
	Marshal(message any) ([]byte, error)
	Unmarshal(data []byte, message any) error
}

type protoBinaryCodec struct{}

func (protoBinaryCodec) Name() string { return codecNameProto }

func (protoBinaryCodec) Marshal(message any) ([]byte, error) {
	msg, ok := message.(proto.Message)
	if !ok {
		return nil, NewErrorf(CodeInternal, "message of type %T does not implement proto.Message", message)
	}
	return proto.Marshal(msg)
}

func (protoBinaryCodec) Unmarshal(data []byte, message any) error {
	msg, ok := message.(proto.Message)
	if !ok {
		return NewErrorf(CodeInternal, "message of type %T does not implement proto.Message", message)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return NewErrorf(CodeInvalidArgument, "unmarshal into %T: %w", message, err)
	}
	return nil
}

type protoJSONCodec struct {
	name string
}

func (c protoJSONCodec) Name() string { return c.name }

func (protoJSONCodec) Marshal(message any) ([]byte, error) {
	msg, ok := message.(proto.Message)
	if !ok {
		return nil, NewErrorf(CodeInternal, "message of type %T does not implement proto.Message", message)
	}
	return protojson.MarshalOptions{EmitUnpopulated: false}.Marshal(msg)
}

func (protoJSONCodec) Unmarshal(data []byte, message any) error {
	msg, ok := message.(proto.Message)
	if !ok {
		return NewErrorf(CodeInternal, "message of type %T does not implement proto.Message", message)
	}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, msg); err != nil {
		return NewErrorf(CodeInvalidArgument, "unmarshal into %T: %w", message, err)
	}
	return nil
}

// codecMap is an immutable, per-client/server registry of codecs keyed by
// wire name, replacing any notion of a global mutable registry (spec.md
// §9, "Global codec registry").
type codecMap struct {
	codecs map[string]Codec
}

// newCodecMap builds the default registry: proto and json, with the
// "json; charset=utf-8" alias tolerated for interop (spec.md §4.2).
func newCodecMap(extra map[string]Codec) *codecMap {
	m := make(map[string]Codec, len(extra)+3)
	jsonCodec := protoJSONCodec{name: codecNameJSON}
	m[codecNameProto] = protoBinaryCodec{}
	m[codecNameJSON] = jsonCodec
	m[codecNameJSONCharsetUTF8] = jsonCodec
	for name, codec := range extra {
		m[name] = codec
	}
	return &codecMap{codecs: m}
}

// byName resolves a content-type suffix or encoding query value to a
// registered codec. parseUnaryContentType passes "json; charset=utf-8"
// through unchanged; it resolves here through the alias entry newCodecMap
// registers.
func (m *codecMap) byName(name string) (Codec, bool) {
	codec, ok := m.codecs[name]
	return codec, ok
}

// names returns every distinct, non-alias codec name in sorted order, used
// to build the Accept-Post header on a 415 response; sorting keeps that
// header byte-stable across runs despite map iteration order.
func (m *codecMap) names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, codec := range m.codecs {
		real := codec.Name()
		if seen[real] {
			continue
		}
		seen[real] = true
		out = append(out, real)
	}
	sort.Strings(out)
	return out
}
