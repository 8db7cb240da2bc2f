// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idGenerator issues ULIDs that strictly increase within a process, so
// identifiers are never reused and sort in spawn order.
type idGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	last    uint64
}

func newIDGenerator() *idGenerator {
	src := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // identifiers, not secrets
	return &idGenerator{entropy: ulid.Monotonic(src, 0)}
}

func (g *idGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := ulid.Timestamp(time.Now())
	// A clock step backwards must not reorder identifiers.
	if ms < g.last {
		ms = g.last
	}
	g.last = ms
	return ulid.MustNew(ms, g.entropy).String()
}
