// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockset

import "sync"

// Registry hands out stable IDs for user-declared "fake locks":
// program-level synchronization that isn't a real mutex the
// instrumentor saw (e.g. a hand-rolled spinlock, an external
// semaphore) but that the user wants treated as one for race
// suppression purposes.
//
// The registry is shared across the whole detector process, so it is
// guarded by a mutex; registration happens at most once per named
// lock and is not on the access-checker hot path.
type Registry struct {
	mu   sync.Mutex
	ids  map[string]ID
	next ID
}

// NewRegistry returns an empty fake-lock registry. IDs start at a high
// offset so they never alias a real mutex address observed by the
// instrumentor.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]ID), next: 1 << 62}
}

// Register returns the ID for the fake lock named name, allocating a
// fresh one on first use. Registration is idempotent: registering the
// same name twice returns the same ID.
func (r *Registry) Register(name string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[name]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[name] = id
	return id
}

// Unregister forgets name. A later Register of the same name allocates
// a new ID; this is intentional; it is not meaningful to compare
// locksets containing a name across an unregister/register pair.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, name)
}
