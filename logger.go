// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import "log"

// Logger is satisfied by *log.Logger and internal/logging.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

type stdLogger struct{}

func (stdLogger) Printf(format string, v ...any) {
	log.Printf("[xmlrpc] "+format, v...)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NopLogger discards everything. Useful in tests and for quiet embedding.
var NopLogger Logger = nopLogger{}

var defaultLogger Logger = stdLogger{}
