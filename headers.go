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

import "strings"

// HeaderPair is one (name, value) entry, used to construct Headers from a
// sequence that may contain duplicate names.
type HeaderPair struct {
	Name  string
	Value string
}

// Headers is a case-insensitive multi-valued header container that
// preserves duplicate values in insertion order. Unlike a plain
// map[string][]string, Headers distinguishes a key's primary value (the
// first one set, or the most recent one set via Set) from any additional
// values appended via Add; Len and iteration over Headers count distinct
// keys, while AllItems walks every (name, value) pair including
// duplicates.
//
// A Headers value is owned by the RequestContext that created it; callers
// may copy entries out of it but must not mutate it from multiple
// goroutines concurrently.
type Headers struct {
	primary map[string]string
	extra   map[string][]string
	order   []string // insertion order of distinct keys, for deterministic iteration
}

// NewHeaders returns an empty Headers.
func NewHeaders() *Headers {
	return &Headers{primary: make(map[string]string)}
}

// NewHeadersFromMap builds a Headers from a name->value mapping, in which
// duplicates are impossible by construction.
func NewHeadersFromMap(m map[string]string) *Headers {
	h := NewHeaders()
	for name, value := range m {
		h.Set(name, value)
	}
	return h
}

// NewHeadersFromPairs builds a Headers from an ordered sequence of pairs,
// preserving duplicates via Add.
func NewHeadersFromPairs(pairs []HeaderPair) *Headers {
	h := NewHeaders()
	for _, p := range pairs {
		h.Add(p.Name, p.Value)
	}
	return h
}

func normalizeHeaderName(name string) string {
	return strings.ToLower(name)
}

// Get returns the primary value for name, or "" if the key is absent.
// Comparison is case-insensitive.
func (h *Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	return h.primary[normalizeHeaderName(name)]
}

// GetAll returns every value stored under name, in the order they were
// added, with the primary value first. Returns nil if the key is absent.
func (h *Headers) GetAll(name string) []string {
	if h == nil {
		return nil
	}
	key := normalizeHeaderName(name)
	primary, ok := h.primary[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, 1+len(h.extra[key]))
	out = append(out, primary)
	out = append(out, h.extra[key]...)
	return out
}

// Set overwrites name's value, discarding any duplicates previously added
// under that key.
func (h *Headers) Set(name, value string) {
	key := normalizeHeaderName(name)
	if _, existed := h.primary[key]; !existed {
		h.order = append(h.order, key)
	}
	h.primary[key] = value
	delete(h.extra, key)
}

// Add appends value under name without discarding any value already
// present.
func (h *Headers) Add(name, value string) {
	key := normalizeHeaderName(name)
	if _, existed := h.primary[key]; !existed {
		h.primary[key] = value
		h.order = append(h.order, key)
		return
	}
	h.ensureExtra()
	h.extra[key] = append(h.extra[key], value)
}

// Remove deletes every value stored under name.
func (h *Headers) Remove(name string) {
	key := normalizeHeaderName(name)
	if _, ok := h.primary[key]; !ok {
		return
	}
	delete(h.primary, key)
	delete(h.extra, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of distinct keys, not the total number of values.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.primary)
}

// Keys returns the distinct keys in insertion order.
func (h *Headers) Keys() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// AllItems iterates every (name, value) pair in order, including
// duplicates: a key's primary value first, then each additional value in
// append order. Iteration stops early if yield returns false.
func (h *Headers) AllItems(yield func(name, value string) bool) {
	if h == nil {
		return
	}
	for _, key := range h.order {
		if !yield(key, h.primary[key]) {
			return
		}
		for _, v := range h.extra[key] {
			if !yield(key, v) {
				return
			}
		}
	}
}

// Clone returns a deep copy, safe for the caller to mutate independently.
func (h *Headers) Clone() *Headers {
	out := NewHeaders()
	if h == nil {
		return out
	}
	h.AllItems(func(name, value string) bool {
		out.Add(name, value)
		return true
	})
	return out
}

// ensureExtra lazily allocates the auxiliary map; Add relies on this so a
// zero-value Headers (other than primary, always initialized by
// NewHeaders) never panics.
func (h *Headers) ensureExtra() {
	if h.extra == nil {
		h.extra = make(map[string][]string)
	}
}
