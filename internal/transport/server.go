package transport

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"hlclock/internal/hlc"
	"hlclock/internal/logging"
	"hlclock/internal/repair"
	"hlclock/internal/storage"
)

// Clock is the part of the node clock the server needs.
type Clock interface {
	Now() (hlc.Timestamp, error)
	Update(remote hlc.Timestamp) (hlc.Timestamp, error)
}

// Server implements ClockServer on top of a node clock and store.
type Server struct {
	clock  Clock
	store  storage.Store
	logger logging.Logger
}

var _ ClockServer = (*Server)(nil)

// NewServer creates a new server instance.
func NewServer(clock Clock, store storage.Store, logger logging.Logger) *Server {
	return &Server{
		clock:  clock,
		store:  store,
		logger: logger,
	}
}

// Now returns the current timestamp after resynchronizing with the wall clock.
func (s *Server) Now(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	ts, err := s.clock.Now()
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt64(uint64(ts)), nil
}

// Exchange merges the caller's timestamp into the local clock and answers
// with the merged timestamp.
func (s *Server) Exchange(ctx context.Context, req *wrapperspb.UInt64Value) (*wrapperspb.UInt64Value, error) {
	remote, err := hlc.Unpack(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	merged, err := s.clock.Update(remote)
	if err != nil {
		s.logger.Warningf("exchange with remote %s failed: %v", remote, err)
		return nil, toStatus(err)
	}
	s.logger.Debugf("exchange: remote=%s merged=%s", remote, merged)
	return wrapperspb.UInt64(uint64(merged)), nil
}

// Replicate applies a write received from another node.
func (s *Server) Replicate(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	key, vv, err := structToValue(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	s.logger.Debugf("replicate: key=%s version=%s deleted=%v", key, vv.Version, vv.Deleted)
	if err := s.store.PutRepair(key, vv.Value, vv.Version, vv.Deleted); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Fetch returns the local version of a key.
func (s *Server) Fetch(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key cannot be empty")
	}

	vv := s.store.Get(key)
	if vv == nil {
		return notFoundStruct(key), nil
	}
	return valueToStruct(key, repair.VersionedValue{
		Value:   vv.Value,
		Version: vv.Version,
		Deleted: vv.Deleted,
	}), nil
}
