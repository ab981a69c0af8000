package aiservice

import (
	"context"
	"fmt"

	"CyberGuard/internal/model"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote AI service. It implements model.Analyzer.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AI service: %w", err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) AnalyzeAlert(ctx context.Context, alert model.Alert) (string, error) {
	in, err := AlertToStruct(alert)
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, analyzeAlertMethod, in, out); err != nil {
		return "", fromStatus(err)
	}
	return out.GetValue(), nil
}

func (c *Client) AnalyzeText(ctx context.Context, input string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, analyzeTextMethod, wrapperspb.String(input), out); err != nil {
		return "", fromStatus(err)
	}
	return out.GetValue(), nil
}

// Close releases the connection if the client created it.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
