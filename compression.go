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
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const (
	compressionIdentity = "identity"
	compressionGzip     = "gzip"
	compressionBrotli   = "br"
	compressionZstd     = "zstd"
)

// Compression implements one named compression algorithm. identity and
// gzip are mandatory (always registered); br and zstd are optional: both
// are compiled in, but a side only uses them once they are registered
// (spec.md §9, "Optional compression back-ends").
type Compression interface {
	Name() string
	IsIdentity() bool
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type identityCompression struct{}

func (identityCompression) Name() string                        { return compressionIdentity }
func (identityCompression) IsIdentity() bool                     { return true }
func (identityCompression) Compress(data []byte) ([]byte, error) { return data, nil }
func (identityCompression) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

type gzipCompression struct{}

func (gzipCompression) Name() string    { return compressionGzip }
func (gzipCompression) IsIdentity() bool { return false }

func (gzipCompression) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCompression) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type brotliCompression struct{}

func (brotliCompression) Name() string     { return compressionBrotli }
func (brotliCompression) IsIdentity() bool { return false }

func (brotliCompression) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (brotliCompression) Decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

type zstdCompression struct{}

func (zstdCompression) Name() string     { return compressionZstd }
func (zstdCompression) IsIdentity() bool { return false }

func (zstdCompression) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (zstdCompression) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// compressionMap is an immutable, per-client/server registry of
// compression algorithms, built once at construction time. identity is
// always present; gzip is registered by default; br and zstd are opt-in
// via WithClientCompression or WithHandlerCompression.
type compressionMap struct {
	algorithms map[string]Compression
	// order is the preference order used when building an accept-encoding
	// header; identity is implicit and always last-resort.
	order []string
}

func newCompressionMap(extra map[string]Compression, order []string) *compressionMap {
	m := make(map[string]Compression, len(extra)+2)
	m[compressionIdentity] = identityCompression{}
	m[compressionGzip] = gzipCompression{}
	order = append([]string{compressionGzip}, order...)
	for name, c := range extra {
		m[name] = c
	}
	return &compressionMap{algorithms: m, order: order}
}

func (m *compressionMap) byName(name string) (Compression, bool) {
	if name == "" {
		return identityCompression{}, true
	}
	c, ok := m.algorithms[name]
	return c, ok
}

// names returns the algorithms this side supports, in preference order,
// excluding identity (callers append identity themselves when needed).
func (m *compressionMap) names() []string {
	out := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if _, ok := m.algorithms[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// negotiate picks the first of the peer's accept-encoding list that this
// side also supports, falling back to identity. peerAccept is the raw,
// comma-separated header value.
func (m *compressionMap) negotiate(peerAccept string) string {
	if peerAccept == "" {
		return compressionIdentity
	}
	wanted := strings.Split(peerAccept, ",")
	for _, w := range wanted {
		name := strings.TrimSpace(w)
		if name == compressionIdentity {
			return compressionIdentity
		}
		if _, ok := m.algorithms[name]; ok {
			return name
		}
	}
	return compressionIdentity
}
