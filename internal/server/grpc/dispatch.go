package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	dispatchv1 "github.com/rzbill/dispatch/api/dispatch/v1"
	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
)

type dispatchSvc struct {
	svc *dispatchsvc.Service
}

func (d *dispatchSvc) Publish(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := dispatchv1.PublishRequestFrom(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	m, err := d.svc.Publish(withRequestID(ctx), req.Key, req.Payload, req.Headers)
	if err != nil {
		return nil, toStatus(err)
	}
	return dispatchv1.PublishResponse{ID: m.ID.String(), PublishedMs: m.PublishedMs}.ToStruct(), nil
}

func (d *dispatchSvc) Subscribe(in *structpb.Struct, stream dispatchv1.Dispatch_SubscribeServer) error {
	req := dispatchv1.SubscribeRequestFrom(in)
	if req.Limit < 0 {
		return status.Error(codes.InvalidArgument, "limit must be >= 0")
	}
	ctx := withRequestID(stream.Context())
	opts := dispatchsvc.SubscribeOptions{Filter: req.Filter, Limit: req.Limit, Transport: "grpc"}
	err := d.svc.Subscribe(ctx, req.Key, opts, &grpcSink{stream: stream})
	if err != nil && ctx.Err() != nil {
		// Client went away.
		return nil
	}
	return toStatus(err)
}

func (d *dispatchSvc) Unsubscribe(_ context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	key := in.GetFields()["key"].GetStringValue()
	if key == "" {
		return nil, toStatus(dispatchsvc.ErrEmptyKey)
	}
	d.svc.Unsubscribe(key)
	return &emptypb.Empty{}, nil
}

func (d *dispatchSvc) Stats(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := dispatchv1.StatsRequestFrom(in)
	st := d.svc.Stats()
	resp := dispatchv1.StatsResponse{
		Keys:       int64(st.Keys),
		Subscribed: int64(st.Subscribed),
		Queued:     int64(st.Queued),
		Pushed:     int64(st.Pushed),
		Rejected:   int64(st.Rejected),
		Delivered:  int64(st.Delivered),
		Panics:     int64(st.Panics),
		Sweeps:     int64(st.Sweeps),
		Evicted:    int64(st.Evicted),
	}
	if req.Key != "" {
		resp.Key = req.Key
		if ks, ok := d.svc.KeyStats(req.Key); ok {
			resp.KeyFound = true
			resp.KeyQueued = int64(ks.Queued)
			resp.KeySubscribed = ks.Subscribed
		}
	}
	return resp.ToStruct(), nil
}

type grpcSink struct {
	stream dispatchv1.Dispatch_SubscribeServer
}

func (s *grpcSink) Send(m dispatchsvc.Message) error {
	return s.stream.Send(dispatchv1.Delivery{
		ID:          m.ID.String(),
		Key:         m.Key,
		Payload:     m.Payload,
		Headers:     m.Headers,
		PublishedMs: m.PublishedMs,
	}.ToStruct())
}

// Flush is a no-op; gRPC writes each message as it is sent.
func (s *grpcSink) Flush() error { return nil }

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatchsvc.ErrEmptyKey), errors.Is(err, dispatchsvc.ErrInvalidFilter):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, dispatchsvc.ErrQueueFull), errors.Is(err, dispatchsvc.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, dispatchsvc.ErrAlreadySubscribed):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, dispatchsvc.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// withRequestID copies an x-request-id header into ctx for service logs.
func withRequestID(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" {
		return dispatchsvc.WithRequestID(ctx, v[0])
	}
	return ctx
}
