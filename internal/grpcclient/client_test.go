package grpcclient

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"ardrone-svr/internal/pipeline"
)

type forwarderServer interface {
	SendData(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var forwarderDesc = grpc.ServiceDesc{
	ServiceName: "forwarder.Forwarder",
	HandlerType: (*forwarderServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "SendData",
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(forwarderServer).SendData(ctx, in)
		},
	}},
	Metadata: "forwarder.proto",
}

type fakeForwarder struct {
	mu     sync.Mutex
	reqs   []*structpb.Struct
	reject bool
}

func (f *fakeForwarder) SendData(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, in)
	f.mu.Unlock()
	return structpb.NewStruct(map[string]any{"success": !f.reject, "message": "nope"})
}

func startForwarder(t *testing.T, impl *fakeForwarder) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&forwarderDesc, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPublish(t *testing.T) {
	impl := &fakeForwarder{}
	c := startForwarder(t, impl)

	snap := pipeline.BuildSnapshot("sess0001", pipeline.Update{New: 1, Changes: []string{"flying is now 1"}})
	if err := c.Publish(context.Background(), snap); err != nil {
		t.Fatal(err)
	}

	if len(impl.reqs) != 1 {
		t.Fatalf("forwarder got %d requests", len(impl.reqs))
	}
	req := impl.reqs[0].AsMap()
	if req["device_id"] != "sess0001" {
		t.Errorf("device_id = %v", req["device_id"])
	}
	payload, _ := req["payload"].(map[string]any)
	if payload["flying"] != true || payload["state"] != float64(1) {
		t.Errorf("payload = %v", payload)
	}
	changes, _ := payload["changes"].([]any)
	if len(changes) != 1 || changes[0] != "flying is now 1" {
		t.Errorf("changes = %v", payload["changes"])
	}
}

func TestPublishRejected(t *testing.T) {
	c := startForwarder(t, &fakeForwarder{reject: true})
	err := c.SendData(context.Background(), "x", map[string]any{})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}
