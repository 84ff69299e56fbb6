package errors

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Kind classifies a failure coming back from the remote API.
type Kind int

const (
	// KindTransport covers timeouts, connectivity and non-envelope HTTP errors.
	KindTransport Kind = iota + 1
	// KindBusiness is an envelope with success=false (quota, not found, validation).
	KindBusiness
	// KindDecode is a payload that could not be parsed.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBusiness:
		return "business"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// ErrSessionNotFound is returned when no stored session exists for a user.
var ErrSessionNotFound = errors.New("session not found")

// Failure is the single error type surfaced by the repository layer.
type Failure struct {
	Kind       Kind
	Op         string
	StatusCode int
	// Message is meant for direct display.
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s: %s", f.Op, f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Transport wraps a network or HTTP level failure.
func Transport(op string, statusCode int, err error) *Failure {
	return &Failure{Kind: KindTransport, Op: op, StatusCode: statusCode, Message: "Network error. Check your connection and try again.", Err: err}
}

// Business is a failure reported by the server, message included.
func Business(op string, statusCode int, message string) *Failure {
	if message == "" {
		message = "The request could not be completed."
	}
	return &Failure{Kind: KindBusiness, Op: op, StatusCode: statusCode, Message: message}
}

// Decode wraps a payload that could not be decoded.
func Decode(op string, err error) *Failure {
	return &Failure{Kind: KindDecode, Op: op, Message: "Unexpected response from server.", Err: err}
}

// KindOf returns the failure kind or 0 when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

// Message returns the human-readable text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	case errors.Is(err, context.Canceled):
		return "The request was canceled."
	}
	return err.Error()
}

// Map converts repo/infra errors into gRPC-friendly status errors.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var f *Failure
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrSessionNotFound):
		return status.Error(codes.NotFound, "session not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	case errors.As(err, &f):
		switch f.Kind {
		case KindTransport:
			return status.Error(codes.Unavailable, f.Message)
		case KindBusiness:
			return status.Error(codes.FailedPrecondition, f.Message)
		default:
			return status.Error(codes.Internal, f.Message)
		}

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

// FailedPrecondition creates a gRPC FailedPrecondition error.
func FailedPrecondition(msg string) error {
	return status.Error(codes.FailedPrecondition, msg)
}

// NotFound creates a gRPC NotFound error.
func NotFound(msg string) error {
	return status.Error(codes.NotFound, msg)
}
