//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	api "github.com/oshokin/lockdown/internal/api/grpc/lockdown"
	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// Client wraps the lockdownd control API with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to lockdownd.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are appended to the defaults.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errNotConnected is returned when a call is made on a client without a connection.
	errNotConnected = errors.New("client is not connected")
)

// Dial prepares a gRPC connection to lockdownd.
// The control API listens on loopback, so the transport is insecure.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		client.dialOptions...,
	)

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial lockdownd: %w", err)
	}

	client.conn = conn

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// StartCountdown asks lockdownd to lock for seconds.
func (c *Client) StartCountdown(ctx context.Context, seconds string) error {
	return c.invoke(ctx, "start countdown", api.MethodStartCountdown, wrapperspb.String(seconds), new(emptypb.Empty))
}

// SetDailyWindow asks lockdownd to enforce a daily window.
func (c *Client) SetDailyWindow(ctx context.Context, start, end string) error {
	return c.invoke(ctx, "set daily window", api.MethodSetDailyWindow, api.WindowRequest(start, end), new(emptypb.Empty))
}

// CancelDailyWindow asks lockdownd to drop the daily window.
func (c *Client) CancelDailyWindow(ctx context.Context) error {
	return c.invoke(ctx, "cancel daily window", api.MethodCancelDailyWindow, new(emptypb.Empty), new(emptypb.Empty))
}

// LockNow asks lockdownd to lock the device immediately.
func (c *Client) LockNow(ctx context.Context) error {
	return c.invoke(ctx, "lock now", api.MethodLockNow, new(emptypb.Empty), new(emptypb.Empty))
}

// Status fetches the enforcement snapshot.
func (c *Client) Status(ctx context.Context) (lockdown.Snapshot, error) {
	response := new(structpb.Struct)

	if err := c.invoke(ctx, "get status", api.MethodGetStatus, new(emptypb.Empty), response); err != nil {
		return lockdown.Snapshot{}, err
	}

	snapshot, err := api.SnapshotFromStruct(response)
	if err != nil {
		return lockdown.Snapshot{}, fmt.Errorf("decode status: %w", err)
	}

	return snapshot, nil
}

func (c *Client) invoke(ctx context.Context, op, method string, in, out any) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("%s: %w", op, errNotConnected)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.conn.Invoke(callCtx, api.FullMethod(method), in, out); err != nil {
		return fmt.Errorf("%s: %w", op, api.FromStatus(err))
	}

	return nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
