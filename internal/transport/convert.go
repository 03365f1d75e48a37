package transport

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"hlclock/internal/clock"
	"hlclock/internal/hlc"
	"hlclock/internal/repair"
)

// Struct field names of a replicated write.
const (
	fieldKey     = "key"
	fieldValue   = "value"
	fieldVersion = "version"
	fieldDeleted = "deleted"
	fieldFound   = "found"
)

// valueToStruct encodes a versioned value. The version travels in its text
// form because Struct numbers are float64 and would lose precision.
func valueToStruct(key string, vv repair.VersionedValue) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey:     structpb.NewStringValue(key),
		fieldValue:   structpb.NewStringValue(base64.StdEncoding.EncodeToString(vv.Value)),
		fieldVersion: structpb.NewStringValue(vv.Version.String()),
		fieldDeleted: structpb.NewBoolValue(vv.Deleted),
		fieldFound:   structpb.NewBoolValue(true),
	}}
}

// structToValue decodes the output of valueToStruct.
func structToValue(s *structpb.Struct) (string, repair.VersionedValue, error) {
	fields := s.GetFields()
	key := fields[fieldKey].GetStringValue()

	version, err := hlc.ParseTimestamp(fields[fieldVersion].GetStringValue())
	if err != nil {
		return "", repair.VersionedValue{}, fmt.Errorf("version: %w", err)
	}
	value, err := base64.StdEncoding.DecodeString(fields[fieldValue].GetStringValue())
	if err != nil {
		return "", repair.VersionedValue{}, fmt.Errorf("value: %w", err)
	}
	if len(value) == 0 {
		value = nil
	}

	return key, repair.VersionedValue{
		Value:   value,
		Version: version,
		Deleted: fields[fieldDeleted].GetBoolValue(),
	}, nil
}

func notFoundStruct(key string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey:   structpb.NewStringValue(key),
		fieldFound: structpb.NewBoolValue(false),
	}}
}

// toStatus maps clock errors to gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, hlc.ErrOutOfRange):
		code = codes.InvalidArgument
	case errors.Is(err, hlc.ErrAmbiguousMerge):
		code = codes.Aborted
	case errors.Is(err, hlc.ErrLogicalOverflow):
		code = codes.ResourceExhausted
	case errors.Is(err, clock.ErrClockOffset):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus restores the clock error behind a gRPC status so callers can
// match it with errors.Is. Only statuses built by toStatus carry the
// sentinel's text; other statuses with the same code are returned as is.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.InvalidArgument:
		sentinel = hlc.ErrOutOfRange
	case codes.Aborted:
		sentinel = hlc.ErrAmbiguousMerge
	case codes.ResourceExhausted:
		sentinel = hlc.ErrLogicalOverflow
	case codes.FailedPrecondition:
		sentinel = clock.ErrClockOffset
	default:
		return err
	}
	if !strings.Contains(st.Message(), sentinel.Error()) {
		return err
	}
	return fmt.Errorf("%w: remote: %s", sentinel, st.Message())
}
