package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"ardrone-svr/internal/pipeline"
)

// SendDataMethod es el RPC unario del forwarder. Request y response viajan
// como google.protobuf.Struct: {device_id, payload} -> {success, message}.
const SendDataMethod = "/forwarder.Forwarder/SendData"

var ErrRejected = errors.New("forwarder rejected the snapshot")

type GRPCClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func NewGRPCClient(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn, timeout: 5 * time.Second}, nil
}

func (g *GRPCClient) Close() error {
	return g.conn.Close()
}

func (g *GRPCClient) Name() string { return "grpc" }

// Publish reenvía el snapshot al forwarder.
func (g *GRPCClient) Publish(ctx context.Context, s *pipeline.Snapshot) error {
	return g.SendData(ctx, s.SessionID, s.Fields())
}

func (g *GRPCClient) SendData(ctx context.Context, deviceID string, payload map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{
		"device_id": deviceID,
		"payload":   payload,
	})
	if err != nil {
		return fmt.Errorf("encoding forwarder request: %w", err)
	}

	res := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, SendDataMethod, req, res); err != nil {
		return err
	}

	if ok := res.GetFields()["success"]; ok == nil || !ok.GetBoolValue() {
		msg := res.GetFields()["message"].GetStringValue()
		return fmt.Errorf("%w: device=%s %s", ErrRejected, deviceID, msg)
	}
	return nil
}
