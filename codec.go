// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

// Codec turns requests into HTTP bodies and response bytes into
// Responses.
type Codec interface {
	EncodeRequest(req *Request) (Body, error)
	DecodeResponse(data []byte) (*Response, error)
}

// XMLCodec is the default Codec.
type XMLCodec struct {
	// TempDir holds streamed request bodies. Empty means os.TempDir.
	TempDir string
	// StreamThreshold is the EncodingAuto cut-over; zero means
	// DefaultStreamThreshold.
	StreamThreshold int64
	// Raw skips Clean on responses.
	Raw    bool
	Logger Logger
}

func (c XMLCodec) EncodeRequest(req *Request) (Body, error) {
	enc := req.Encoder()
	if c.Logger != nil {
		enc.logger = c.Logger
	}
	return enc.Body(req.Encoding(), c.TempDir, c.StreamThreshold)
}

func (c XMLCodec) DecodeResponse(data []byte) (*Response, error) {
	if !c.Raw {
		data = Clean(data)
	}
	return NewResponse(data)
}
