package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthClient probes a running engine.
type HealthClient struct {
	cc *grpc.ClientConn
	hc healthpb.HealthClient
}

func Dial(target string) (*HealthClient, error) {
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &HealthClient{cc: cc, hc: healthpb.NewHealthClient(cc)}, nil
}

// Check returns nil when the engine service reports SERVING.
func (c *HealthClient) Check(ctx context.Context) error {
	resp, err := c.hc.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("transport: %s is %s", ServiceName, resp.GetStatus())
	}
	return nil
}

func (c *HealthClient) Close() error { return c.cc.Close() }
