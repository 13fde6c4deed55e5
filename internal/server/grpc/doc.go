// Package grpcserver hosts the gRPC server: the standard grpc.health.v1
// service and dispatch.v1.DispatchService, both delegating to the shared
// services layer.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	svc := dispatchsvc.New(rt)
//	s := grpcserver.New(rt, svc, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
