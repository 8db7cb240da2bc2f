// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// latencies records round trip times in microseconds, 1µs to 10min.
type latencies struct {
	hist   *hdrhistogram.Histogram
	errors int
}

func newLatencies() *latencies {
	return &latencies{hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)}
}

func (l *latencies) record(d time.Duration) {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	// Values above the range are clamped rather than dropped.
	if err := l.hist.RecordValue(us); err != nil {
		_ = l.hist.RecordValue(l.hist.HighestTrackableValue())
	}
}

func (l *latencies) failed() {
	l.errors++
}

func (l *latencies) quantile(q float64) time.Duration {
	return time.Duration(l.hist.ValueAtQuantile(q)) * time.Microsecond
}

func (l *latencies) print(w io.Writer) {
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	fmt.Fprintf(w, "calls: %d ok, %d failed\n", l.hist.TotalCount(), l.errors)
	if l.hist.TotalCount() == 0 {
		return
	}
	fmt.Fprintf(w, "latency: min %v  mean %v  p50 %v  p90 %v  p99 %v  max %v\n",
		us(l.hist.Min()),
		us(int64(l.hist.Mean())),
		l.quantile(50),
		l.quantile(90),
		l.quantile(99),
		us(l.hist.Max()),
	)
}
