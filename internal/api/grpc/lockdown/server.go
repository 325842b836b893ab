package lockdown

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// Service abstracts the enforcement operations the transport layer depends on.
type Service interface {
	StartCountdown(ctx context.Context, seconds string) error
	SetDailyWindow(ctx context.Context, start, end string) error
	CancelDailyWindow(ctx context.Context) error
	LockNow(ctx context.Context) error
	Status(ctx context.Context) (domain.Snapshot, error)
}

// Server implements the LockdownService gRPC API.
type Server struct {
	// service provides the enforcement logic.
	service Service
}

var _ LockdownServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// StartCountdown locks the device for the requested number of seconds.
func (s *Server) StartCountdown(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	if err := s.service.StartCountdown(ctx, req.GetValue()); err != nil {
		logger.DebugKV(ctx, "StartCountdown failed", "error", err)

		return nil, StatusError(err)
	}

	return new(emptypb.Empty), nil
}

// SetDailyWindow stores and arms a daily lock window.
func (s *Server) SetDailyWindow(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	start, end := windowFromRequest(req)

	if err := s.service.SetDailyWindow(ctx, start, end); err != nil {
		logger.DebugKV(ctx, "SetDailyWindow failed", "error", err)

		return nil, StatusError(err)
	}

	return new(emptypb.Empty), nil
}

// CancelDailyWindow removes the daily lock window.
func (s *Server) CancelDailyWindow(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.service.CancelDailyWindow(ctx); err != nil {
		return nil, StatusError(err)
	}

	return new(emptypb.Empty), nil
}

// LockNow locks the device immediately.
func (s *Server) LockNow(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.service.LockNow(ctx); err != nil {
		return nil, StatusError(err)
	}

	return new(emptypb.Empty), nil
}

// GetStatus returns the current enforcement snapshot.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snapshot, err := s.service.Status(ctx)
	if err != nil {
		return nil, StatusError(err)
	}

	response, err := SnapshotToStruct(snapshot)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode status")
	}

	return response, nil
}
