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
	"time"
)

// CallOptions configures one call made through the Transport facade
// (spec.md §4.13): an optional timeout, an optional retry policy (unary
// and client-stream only), and headers to attach.
type CallOptions struct {
	Timeout     time.Duration
	RetryPolicy *RetryPolicy
	Headers     *Headers
	Metadata    *ResponseMetadata

	// Producer is the caller's client-stream message source. A
	// CallClientStream is only retried when Producer implements
	// Restartable; otherwise RetryPolicy is ignored for that call, since
	// replaying messages already sent on a failed attempt isn't safe
	// without it.
	Producer any
}

// RetryPolicy configures exponential backoff retries for unary and
// client-stream calls; server-stream and bidi-stream responses aren't
// replayable, so retries never apply to them (spec.md §4.13, §8).
// Back-off is purely exponential, with no added jitter.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RetryableCodes    map[Code]bool
}

// DefaultRetryableCodes is the default set of codes a RetryPolicy retries
// when the caller doesn't specify one (spec.md §4.13).
func DefaultRetryableCodes() map[Code]bool {
	return map[Code]bool{
		CodeUnavailable:      true,
		CodeDeadlineExceeded: true,
	}
}

func (p *RetryPolicy) retryable(code Code) bool {
	if p == nil {
		return false
	}
	codes := p.RetryableCodes
	if codes == nil {
		codes = DefaultRetryableCodes()
	}
	return codes[code]
}

func (p *RetryPolicy) backoffFor(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// Restartable marks a client-stream request producer as replayable, which
// is the only condition under which the retry policy is permitted to
// retry a client-stream call (spec.md §9, "Open questions": the source
// never documents replay semantics, so this spec requires an explicit
// opt-in).
type Restartable interface {
	Restart() error
}

// Transport is the protocol-neutral call surface shared by the Connect
// client and the gRPC adapter (spec.md §4.13).
type Transport interface {
	CallUnary(ctx context.Context, request any, newResponse func() any, opts CallOptions) (any, error)
	CallClientStream(ctx context.Context, newResponse func() any, opts CallOptions) (ClientStreamCall, error)
	CallServerStream(ctx context.Context, request any, newResponse func() any, opts CallOptions) (ServerStreamCall, error)
	CallBidiStream(ctx context.Context, newResponse func() any, opts CallOptions) (BidiStreamCall, error)
}

// ClientStreamCall is the shape-neutral client-stream handle the facade
// returns.
type ClientStreamCall interface {
	Send(message any) error
	CloseAndReceive(response any) error
	Trailers() *Headers
}

// ServerStreamCall is the shape-neutral server-stream handle the facade
// returns.
type ServerStreamCall interface {
	Receive(message any) error
	Trailers() *Headers
	Err() error
}

// BidiStreamCall is the shape-neutral bidi-stream handle the facade
// returns.
type BidiStreamCall interface {
	Send(message any) error
	CloseSend() error
	Receive(message any) error
	Trailers() *Headers
	Err() error
}

// withUnaryRetry runs call, retrying per policy while the returned error's
// code is retryable and attempts remain.
func withUnaryRetry(policy *RetryPolicy, call func(attempt int) (any, error)) (any, error) {
	if policy == nil || policy.MaxAttempts <= 1 {
		return call(0)
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		response, err := call(attempt)
		if err == nil {
			return response, nil
		}
		lastErr = err
		connectErr := errorToUnknown(err)
		if !policy.retryable(connectErr.Code()) || attempt == policy.MaxAttempts-1 {
			return nil, err
		}
		time.Sleep(policy.backoffFor(attempt))
	}
	return nil, lastErr
}

// withClientStreamRetry opens a client-stream call, retrying per policy
// only when producer implements Restartable (spec.md §9, "Idempotent retry
// replay guard"): without that guarantee, an attempt that failed partway
// through sending messages can't be safely replayed, so the call is made
// exactly once regardless of policy.
func withClientStreamRetry(policy *RetryPolicy, producer any, open func(attempt int) (any, error)) (any, error) {
	restartable, ok := producer.(Restartable)
	if policy == nil || policy.MaxAttempts <= 1 || !ok {
		return open(0)
	}
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := restartable.Restart(); err != nil {
				return nil, err
			}
		}
		call, err := open(attempt)
		if err == nil {
			return call, nil
		}
		lastErr = err
		connectErr := errorToUnknown(err)
		if !policy.retryable(connectErr.Code()) || attempt == policy.MaxAttempts-1 {
			return nil, err
		}
		time.Sleep(policy.backoffFor(attempt))
	}
	return nil, lastErr
}
