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
	"errors"
	"io"
	"net/http"
)

// HTTPClient is the transport-level interface the client core expects an
// HTTP client to implement. *http.Client satisfies it; so does any test
// double (spec.md §1, "Out of scope: the underlying HTTP client").
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// duplexHTTPCall drives one HTTP request whose body is written
// incrementally (for streaming RPCs) while its response is read back
// concurrently. Start issues the request in a background goroutine, since
// http.Client.Do blocks until a response is available; the body is streamed
// from the pipe as the caller writes to it.
type duplexHTTPCall struct {
	client  HTTPClient
	request *http.Request

	writer   *io.PipeWriter
	reader   *io.PipeReader
	response chan httpResult
}

type httpResult struct {
	response *http.Response
	err      error
}

func newDuplexHTTPCall(ctx context.Context, client HTTPClient, method, url string, headers http.Header) *duplexHTTPCall {
	reader, writer := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	call := &duplexHTTPCall{
		client:   client,
		writer:   writer,
		reader:   reader,
		response: make(chan httpResult, 1),
	}
	if err != nil {
		// Surfaced by Response via the response channel, matching the
		// "build once, fail lazily" pattern generated clients expect.
		call.response <- httpResult{err: err}
		close(call.response)
		return call
	}
	req.Header = headers
	call.request = req
	return call
}

// Start issues the HTTP request in the background. The request body won't
// actually be sent until the caller writes to (and closes) the pipe.
func (c *duplexHTTPCall) Start() {
	if c.request == nil {
		return
	}
	go func() {
		resp, err := c.client.Do(c.request)
		c.response <- httpResult{response: resp, err: err}
		close(c.response)
	}()
}

// Write sends one chunk of the request body.
func (c *duplexHTTPCall) Write(p []byte) (int, error) {
	return c.writer.Write(p)
}

// CloseWrite signals that no more request data will be sent.
func (c *duplexHTTPCall) CloseWrite() error {
	return c.writer.Close()
}

// CloseWriteWithError aborts the request body with err, which unblocks any
// in-flight Do call.
func (c *duplexHTTPCall) CloseWriteWithError(err error) error {
	return c.writer.CloseWithError(err)
}

// Response blocks until the HTTP response headers are available.
func (c *duplexHTTPCall) Response() (*http.Response, error) {
	result, ok := <-c.response
	if !ok {
		return nil, errors.New("duplex call: response already consumed")
	}
	return result.response, result.err
}
