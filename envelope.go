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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	envelopeFlagCompressed byte = 0b00000001
	envelopeFlagEndStream  byte = 0b00000010
	envelopeHeaderLength        = 5
)

// envelopeWriter writes a sequence of messages as length-prefixed envelope
// frames (spec.md §3, §4.8), compressing each payload when the negotiated
// algorithm isn't identity.
type envelopeWriter struct {
	w           io.Writer
	codec       Codec
	compression Compression
}

func newEnvelopeWriter(w io.Writer, codec Codec, compression Compression) *envelopeWriter {
	if compression == nil {
		compression = identityCompression{}
	}
	return &envelopeWriter{w: w, codec: codec, compression: compression}
}

// Write encodes message and writes it as one data frame.
func (ew *envelopeWriter) Write(message any) error {
	raw, err := ew.codec.Marshal(message)
	if err != nil {
		return NewErrorf(CodeInternal, "marshal message: %w", err)
	}
	return ew.writeFrame(raw, false)
}

func (ew *envelopeWriter) writeFrame(payload []byte, endStream bool) error {
	var flag byte
	if endStream {
		flag |= envelopeFlagEndStream
	} else if !ew.compression.IsIdentity() {
		compressed, err := ew.compression.Compress(payload)
		if err != nil {
			return NewErrorf(CodeInternal, "compress message: %w", err)
		}
		payload = compressed
		flag |= envelopeFlagCompressed
	}
	header := make([]byte, envelopeHeaderLength)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := ew.w.Write(header); err != nil {
		return NewErrorf(CodeUnavailable, "write envelope header: %w", err)
	}
	if _, err := ew.w.Write(payload); err != nil {
		return NewErrorf(CodeUnavailable, "write envelope payload: %w", err)
	}
	return nil
}

// End writes the terminal end-of-stream frame, carrying trailers and an
// optional error as JSON (spec.md §4.5, §4.8).
func (ew *envelopeWriter) End(trailers *Headers, streamErr *Error) error {
	payload, err := json.Marshal(newEndStreamMessage(trailers, streamErr))
	if err != nil {
		return NewErrorf(CodeInternal, "marshal end-of-stream message: %w", err)
	}
	return ew.writeFrame(payload, true)
}

// envelopeReader is a stateful parser that turns a byte stream into a
// sequence of decoded messages, surfacing the end-of-stream trailers and
// error when the terminal frame arrives (spec.md §4.7).
//
// compression is the single algorithm negotiated for this stream's
// compressed frames (via connect-content-encoding); if a frame arrives
// with the compressed bit set while compression is identity, that's a
// protocol error.
type envelopeReader struct {
	r           io.Reader
	codec       Codec
	compression Compression
	maxBytes    int64

	buf           []byte
	pendingLength int64
	pendingFlag   byte
	havePending   bool
	done          bool
	endTrailers   *Headers
	endErr        *Error
}

func newEnvelopeReader(r io.Reader, codec Codec, compression Compression, maxBytes int64) *envelopeReader {
	if compression == nil {
		compression = identityCompression{}
	}
	return &envelopeReader{r: r, codec: codec, compression: compression, maxBytes: maxBytes}
}

// Next decodes message from the next data frame, returning io.EOF once the
// end-of-stream frame has been consumed. After Next returns io.EOF,
// Trailers and EndError report the terminal frame's contents.
func (er *envelopeReader) Next(message any) error {
	for {
		if er.done {
			return io.EOF
		}
		if !er.havePending {
			if len(er.buf) < envelopeHeaderLength {
				if err := er.fill(int64(envelopeHeaderLength - len(er.buf))); err != nil {
					return err
				}
				continue
			}
			er.pendingFlag = er.buf[0]
			er.pendingLength = int64(binary.BigEndian.Uint32(er.buf[1:envelopeHeaderLength]))
			er.buf = er.buf[envelopeHeaderLength:]
			er.havePending = true
		}
		if int64(len(er.buf)) < er.pendingLength {
			if err := er.fill(er.pendingLength - int64(len(er.buf))); err != nil {
				return err
			}
			continue
		}
		payload := er.buf[:er.pendingLength]
		er.buf = er.buf[er.pendingLength:]
		flag := er.pendingFlag
		er.havePending = false

		if flag&envelopeFlagEndStream != 0 {
			er.done = true
			var end endStreamMessage
			if err := json.Unmarshal(payload, &end); err != nil {
				return NewErrorf(CodeInternal, "parse end-of-stream message: %w", err)
			}
			er.endTrailers = end.trailers()
			er.endErr = end.error()
			return io.EOF
		}

		decoded := payload
		if flag&envelopeFlagCompressed != 0 {
			if er.compression.IsIdentity() {
				return NewError(CodeInternal, fmt.Errorf("protocol error: sent compressed message without compression support"))
			}
			var err error
			decoded, err = er.compression.Decompress(payload)
			if err != nil {
				return NewErrorf(CodeInvalidArgument, "decompress message: %w", err)
			}
		}
		if er.maxBytes > 0 && int64(len(decoded)) > er.maxBytes {
			return NewErrorf(CodeResourceExhausted, "message size %d exceeds configured max %d", len(decoded), er.maxBytes)
		}
		if err := er.codec.Unmarshal(decoded, message); err != nil {
			return err
		}
		return nil
	}
}

// Trailers returns the trailers carried by the end-of-stream frame; valid
// only after Next has returned io.EOF.
func (er *envelopeReader) Trailers() *Headers {
	if er.endTrailers == nil {
		return NewHeaders()
	}
	return er.endTrailers
}

// EndError returns the error carried by the end-of-stream frame, or nil on
// success; valid only after Next has returned io.EOF.
func (er *envelopeReader) EndError() *Error {
	return er.endErr
}

func (er *envelopeReader) fill(n int64) error {
	chunk := make([]byte, n)
	read, err := io.ReadFull(er.r, chunk)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return NewErrorf(CodeInternal, "truncated envelope stream")
		}
		return NewErrorf(CodeUnavailable, "read envelope stream: %w", err)
	}
	er.buf = append(er.buf, chunk[:read]...)
	return nil
}
