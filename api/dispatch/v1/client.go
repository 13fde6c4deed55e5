package dispatchv1

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed client for DispatchService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) Publish(ctx context.Context, req PublishRequest, opts ...grpc.CallOption) (PublishResponse, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodPublish, req.ToStruct(), out, opts...); err != nil {
		return PublishResponse{}, err
	}
	return PublishResponseFrom(out), nil
}

func (c *Client) Unsubscribe(ctx context.Context, key string, opts ...grpc.CallOption) error {
	in := newStruct(map[string]*structpb.Value{"key": structpb.NewStringValue(key)})
	return c.cc.Invoke(ctx, MethodUnsubscribe, in, new(emptypb.Empty), opts...)
}

func (c *Client) Stats(ctx context.Context, req StatsRequest, opts ...grpc.CallOption) (StatsResponse, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStats, req.ToStruct(), out, opts...); err != nil {
		return StatsResponse{}, err
	}
	return StatsResponseFrom(out), nil
}

// Subscribe opens the stream and calls fn for every delivery until the
// server ends the stream (nil), fn fails, or ctx is done.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest, fn func(Delivery) error, opts ...grpc.CallOption) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodSubscribe, opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req.ToStruct()); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		m := new(structpb.Struct)
		if err := stream.RecvMsg(m); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		d, err := DeliveryFrom(m)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
}
