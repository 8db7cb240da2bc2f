// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"net/http"
	"time"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	transport        string
	transportConfig  TransportConfig
	httpClient       *http.Client
	codec            Codec
	timeout          time.Duration
	userAgent        string
	headers          map[string]string
	credential       *Credential
	maxResponseBytes int64
	tempDir          string
	streamThreshold  int64
	raw              bool
	rateLimit        float64
	rateBurst        int
	metrics          *Metrics
	observer         Observer
	logger           Logger
}

// DefaultUserAgent is sent when WithUserAgent is not used.
const DefaultUserAgent = "luxfi-xmlrpc/1.0"

func newOptions(opts []Option) *options {
	o := &options{
		transport:        DefaultTransport,
		userAgent:        DefaultUserAgent,
		maxResponseBytes: DefaultMaxResponseBytes,
		headers:          map[string]string{},
		logger:           defaultLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTransport selects a registered transport by name.
func WithTransport(t string) Option {
	return func(o *options) { o.transport = t }
}

// WithTransportConfig tunes the transport's HTTP client.
func WithTransportConfig(cfg TransportConfig) Option {
	return func(o *options) { o.transportConfig = cfg }
}

// WithTLSInsecure disables certificate verification.
func WithTLSInsecure(insecure bool) Option {
	return func(o *options) { o.transportConfig.TLSInsecure = insecure }
}

// WithHTTPClient uses c instead of a transport from the registry.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCodec sets a custom codec
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithTimeout bounds each connection from Begin to completion. Zero
// means no deadline beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers[key] = value }
}

// WithBasicAuth sends credentials with every request instead of
// waiting for a challenge.
func WithBasicAuth(username, password string) Option {
	return func(o *options) { o.credential = &Credential{Username: username, Password: password} }
}

func WithMaxResponseBytes(n int64) Option {
	return func(o *options) { o.maxResponseBytes = n }
}

// WithTempDir sets the directory for streamed request bodies.
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// WithStreamThreshold sets the EncodingAuto cut-over size.
func WithStreamThreshold(n int64) Option {
	return func(o *options) { o.streamThreshold = n }
}

// WithoutCleaning hands response bytes to the decoder untouched.
func WithoutCleaning() Option {
	return func(o *options) { o.raw = true }
}

// WithRateLimit limits outgoing requests to rps per second with the
// given burst. Connections wait for a token before sending.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rps
		o.rateBurst = burst
	}
}

// WithMetrics records connection metrics. See NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithObserver is told about every finished connection.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}
