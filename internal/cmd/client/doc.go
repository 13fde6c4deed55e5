// Package client provides the `dispatch` command-line client commands.
//
// # Address configuration
//
// The gRPC address is read from DISPATCH_GRPC (default 127.0.0.1:50051). The
// HTTP base URL used by `journal` comes from the embedding application via a
// BaseURLFunc; the standalone binary reads DISPATCH_HTTP (default
// http://127.0.0.1:8080).
//
// Usage
//
//	dispatch publish --key orders --data '{"amount":120}' --header type=order
//	dispatch subscribe --key orders --filter 'json.amount > 100.0' --limit 5
//	dispatch unsubscribe --key orders
//	dispatch stats --key orders
//	dispatch journal --key audit --after 10 --limit 50
//
// subscribe prints one JSON object per delivery with payload_json,
// payload_text or payload_b64 depending on what the payload decodes as.
package client
