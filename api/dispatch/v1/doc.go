// Package dispatchv1 defines the dispatch.v1.DispatchService gRPC contract.
//
// Messages are protobuf well-known types: requests and responses are
// google.protobuf.Struct values whose fields are documented on each method,
// with typed Go views (PublishRequest, Delivery, ...) and converters so
// neither side handles Struct directly.
package dispatchv1
