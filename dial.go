// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"fmt"
	"net/url"
)

// Dial returns a Client for an XML-RPC endpoint such as
// https://example.com/xmlrpc.php, backed by a fresh Manager. No
// connection is made until the first call.
func Dial(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("xmlrpc: endpoint %q: need an http or https URL", endpoint)
	}
	m, err := NewManager(opts...)
	if err != nil {
		return nil, err
	}
	return m.Client(u.String()), nil
}
