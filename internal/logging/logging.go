// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging configures log output for the binaries.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/luxfi/xmlrpc/config"
)

// Logger wraps the standard log.Logger. It satisfies xmlrpc.Logger.
type Logger struct {
	*log.Logger
	debug bool
	file  *rollingFile
}

// New returns a logger writing to w with the given prefix.
func New(prefix string, w io.Writer) *Logger {
	return &Logger{Logger: log.New(w, prefix+" ", log.LstdFlags)}
}

// Configure applies logging settings from config. With a file path the
// output goes to w and a size-capped file.
func (l *Logger) Configure(cfg config.Logging, w io.Writer) error {
	if l == nil || l.Logger == nil {
		return nil
	}
	level := strings.ToLower(cfg.Level)
	l.debug = level == "debug"
	if level != "" {
		l.SetPrefix(strings.ToUpper(level) + " " + l.Prefix())
	}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
			return err
		}
		f, err := newRollingFile(cfg.FilePath, cfg.FileMaxSizeMB)
		if err != nil {
			return err
		}
		l.file = f
		l.SetOutput(io.MultiWriter(w, f))
	}
	return nil
}

// Debugf logs only at debug level.
func (l *Logger) Debugf(format string, v ...any) {
	if l.debug {
		l.Printf(format, v...)
	}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// rollingFile keeps one backup (path.1) once the file passes maxMB.
type rollingFile struct {
	mu   sync.Mutex
	path string
	max  int64
	file *os.File
}

func newRollingFile(path string, maxMB int) (*rollingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &rollingFile{path: path, max: int64(maxMB) << 20, file: f}, nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 {
		if info, err := r.file.Stat(); err == nil && info.Size() > 0 && info.Size()+int64(len(p)) > r.max {
			if err := r.rotate(); err != nil {
				return 0, err
			}
		}
	}
	return r.file.Write(p)
}

func (r *rollingFile) rotate() error {
	_ = r.file.Close()
	_ = os.Rename(r.path, r.path+".1")
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}

func (r *rollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
