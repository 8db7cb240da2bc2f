// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package xmlrpc is an XML-RPC client for WordPress-style endpoints:
// request encoding, response decoding, HTTP connections and a registry
// of in-flight connections.
//
// # Usage
//
// Synchronous calls:
//
//	client, err := xmlrpc.Dial("https://example.com/xmlrpc.php",
//	    xmlrpc.WithTimeout(30*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	post, err := client.Call(ctx, "wp.getPost", 1, "admin", "secret", 42)
//	var fault *xmlrpc.Fault
//	if errors.As(err, &fault) {
//	    // server said no: fault.Code, fault.Message
//	}
//
// Asynchronous calls go through a Manager, which hands back an
// identifier immediately and reports to a Delegate:
//
//	m, _ := xmlrpc.NewManager(xmlrpc.WithMetrics(xmlrpc.NewMetrics(prometheus.DefaultRegisterer)))
//	id, err := m.Spawn(ctx, xmlrpc.NewRequest(endpoint, "wp.uploadFile", blog, user, pass, xmlrpc.Struct{
//	    {Name: "name", Value: xmlrpc.String("photo.jpg")},
//	    {Name: "bits", Value: xmlrpc.File("/tmp/photo.jpg")},
//	}), &xmlrpc.Hooks{
//	    OnComplete: func(id string, resp *xmlrpc.Response) { ... },
//	    OnFail:     func(id string, err error) { ... },
//	    OnProgress: func(id string, sent, total int64) { ... },
//	})
//	...
//	m.Close(id) // the delegate hears nothing further
//
// Requests carrying File values, or estimated above the stream
// threshold, are encoded to a temporary file and streamed; the file is
// removed when the connection finishes.
//
// # Robustness
//
// Responses are passed through Clean before decoding. It strips PHP
// notices printed before the XML prologue, bytes XML forbids and
// trailing output after the root element. Documents in other charsets
// are decoded through golang.org/x/net/html/charset.
//
// # Architecture
//
// The package separates concerns:
//
//   - value.go, request.go, response.go: the data model
//   - encoder.go, decoder.go, cleaner.go, codec.go: the wire format
//   - connection.go, http.go, delegate.go: one HTTP round trip and its events
//   - manager.go, id.go: the connection registry
//   - client.go, dial.go, options.go: endpoint-bound convenience API
//   - transport.go: named HTTP transports (http, http2, h2c)
//   - server.go: a minimal XML-RPC server for tests and examples
//   - metrics.go: Prometheus collectors
package xmlrpc
