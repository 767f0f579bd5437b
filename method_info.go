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

import "fmt"

// IdempotencyLevel classifies the side effects of an RPC method. Only
// NoSideEffects methods may be dispatched over HTTP GET (spec.md §3).
type IdempotencyLevel int

const (
	IdempotencyUnknown IdempotencyLevel = iota
	IdempotencyNoSideEffects
	IdempotencyIdempotent
)

// StreamType classifies the shape of an RPC: how many messages flow in
// each direction.
type StreamType int

const (
	StreamTypeUnary StreamType = iota
	StreamTypeClient
	StreamTypeServer
	StreamTypeBidi
)

// MethodInfo describes one RPC method: its fully-qualified names, the
// names of its input/output message types, its idempotency classification
// (spec.md §3), and its stream shape.
type MethodInfo struct {
	ServiceName      string
	Name             string
	InputType        string
	OutputType       string
	IdempotencyLevel IdempotencyLevel
	StreamType       StreamType
}

// Procedure returns the "/<service>/<method>" path this method is
// dispatched under.
func (m *MethodInfo) Procedure() string {
	return fmt.Sprintf("/%s/%s", m.ServiceName, m.Name)
}

// AllowsGET reports whether this method may be dispatched via HTTP GET.
func (m *MethodInfo) AllowsGET() bool {
	return m.IdempotencyLevel == IdempotencyNoSideEffects
}
