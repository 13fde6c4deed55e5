package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	dispatchv1 "github.com/rzbill/dispatch/api/dispatch/v1"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// grpcAddrFromEnv returns the gRPC server address from DISPATCH_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("DISPATCH_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// withDispatchClient dials the gRPC endpoint with insecure transport for
// local/dev use and closes the connection after fn.
func withDispatchClient(fn func(*dispatchv1.Client) error) error {
	conn, err := grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(dispatchv1.NewClient(conn))
}

// parseHeaders merges repeated key=value flags with an optional JSON object.
func parseHeaders(raw []string, rawJSON string) (map[string]string, error) {
	headers := map[string]string{}
	for _, hv := range raw {
		if hv == "" {
			continue
		}
		parts := strings.SplitN(hv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --header, expected key=value: %s", hv)
		}
		headers[strings.TrimSpace(parts[0])] = parts[1]
	}
	if rawJSON != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(rawJSON), &m); err != nil {
			return nil, fmt.Errorf("invalid --header-json: %w", err)
		}
		for k, v := range m {
			headers[k] = v
		}
	}
	return headers, nil
}

// decodedMessage renders a delivery with one of payload_json, payload_text or
// payload_b64.
func decodedMessage(d dispatchv1.Delivery) map[string]any {
	out := map[string]any{
		"id":           d.ID,
		"key":          d.Key,
		"published_ms": d.PublishedMs,
	}
	if len(d.Headers) > 0 {
		out["headers"] = d.Headers
	}
	payload := d.Payload
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

// requestContext attaches x-request-id metadata when set.
func requestContext(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
}
