package server_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cafezinho/discovery/internal/logger"
	"github.com/cafezinho/discovery/internal/server"
)

type countingRegistrar struct{ calls int }

func (r *countingRegistrar) Register(*grpc.Server) { r.calls++ }

func TestNewGRPCServer_RegistersAll(t *testing.T) {
	a, b := &countingRegistrar{}, &countingRegistrar{}
	srv := server.NewGRPCServer(logger.Discard(), a, b)
	defer srv.Stop()

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: logger.FormatText, Output: &buf})
	intercept := server.LoggingInterceptor(log)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Ok"}

	resp, err := intercept(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "resp", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)
	assert.Contains(t, buf.String(), "method=/svc/Ok")
	assert.Contains(t, buf.String(), "code=OK")

	buf.Reset()
	info.FullMethod = "/svc/Fail"
	_, err = intercept(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "code=NotFound")
}
