package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"lockfree/infra/report"
)

// Client is a thin typed wrapper over a connection to Containers.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) StackPush(ctx context.Context, v []byte) error {
	return c.cc.Invoke(ctx, fullMethod("StackPush"), wrapperspb.Bytes(v), new(emptypb.Empty))
}

func (c *Client) QueuePush(ctx context.Context, v []byte) error {
	return c.cc.Invoke(ctx, fullMethod("QueuePush"), wrapperspb.Bytes(v), new(emptypb.Empty))
}

// StackPop returns ok=false when the stack is empty.
func (c *Client) StackPop(ctx context.Context) ([]byte, bool, error) {
	return c.pop(ctx, "StackPop")
}

// QueuePop returns ok=false when the queue is empty.
func (c *Client) QueuePop(ctx context.Context) ([]byte, bool, error) {
	return c.pop(ctx, "QueuePop")
}

func (c *Client) pop(ctx context.Context, method string) ([]byte, bool, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, fullMethod(method), new(emptypb.Empty), out)
	if status.Code(err) == codes.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out.GetValue(), true, nil
}

func (c *Client) Stats(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Stats"), new(emptypb.Empty), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stress runs a workload on the server and returns its report. ID is
// set when the server stored it.
func (c *Client) Stress(ctx context.Context, req StressRequest) (report.Report, error) {
	in, err := req.Proto()
	if err != nil {
		return report.Report{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Stress"), in, out); err != nil {
		return report.Report{}, err
	}
	return report.FromProto(out)
}
