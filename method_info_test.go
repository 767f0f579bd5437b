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

import "testing"

func TestMethodInfoProcedure(t *testing.T) {
	m := &MethodInfo{ServiceName: "acme.haberdasher.v1.HaberdasherService", Name: "MakeHat"}
	if got, want := m.Procedure(), "/acme.haberdasher.v1.HaberdasherService/MakeHat"; got != want {
		t.Errorf("Procedure() = %q, want %q", got, want)
	}
}

func TestMethodInfoAllowsGET(t *testing.T) {
	sideEffectFree := &MethodInfo{IdempotencyLevel: IdempotencyNoSideEffects}
	if !sideEffectFree.AllowsGET() {
		t.Error("a NoSideEffects method should allow GET")
	}

	idempotent := &MethodInfo{IdempotencyLevel: IdempotencyIdempotent}
	if idempotent.AllowsGET() {
		t.Error("an Idempotent (but not side-effect-free) method should not allow GET")
	}

	unknown := &MethodInfo{IdempotencyLevel: IdempotencyUnknown}
	if unknown.AllowsGET() {
		t.Error("an unspecified idempotency level should not allow GET")
	}
}
