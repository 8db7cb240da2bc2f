// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"context"
	"time"

	"github.com/luxfi/xmlrpc"
)

// recordTimeout bounds a single write made from a connection goroutine.
const recordTimeout = 5 * time.Second

// Observer records every finished connection in a Store.
type Observer struct {
	store  *Store
	logger xmlrpc.Logger
}

var _ xmlrpc.Observer = (*Observer)(nil)

// NewObserver returns an observer writing to s. A nil logger discards
// write failures.
func NewObserver(s *Store, logger xmlrpc.Logger) *Observer {
	if logger == nil {
		logger = xmlrpc.NopLogger
	}
	return &Observer{store: s, logger: logger}
}

func (o *Observer) ConnectionFinished(s xmlrpc.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := o.store.Record(ctx, EntryFromSummary(s)); err != nil {
		o.logger.Printf("[journal] %v", err)
	}
}
