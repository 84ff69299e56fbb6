package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/cafezinho/discovery/internal/config"
)

// Registrar attaches one service to a gRPC server.
type Registrar interface {
	Register(s *grpc.Server)
}

// NewGRPCServer builds a gRPC server with all provided services registered.
func NewGRPCServer(log *slog.Logger, registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(LoggingInterceptor(log)),
	)

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer
}

// StartGRPCServer boots a gRPC server and serves until ctx is done, then
// stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config, log *slog.Logger, registrars ...Registrar) error {
	addr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := NewGRPCServer(log, registrars...)

	go func() {
		<-ctx.Done()
		log.Info("stopping gRPC server")
		grpcServer.GracefulStop()
	}()

	log.Info("starting gRPC server", "addr", lis.Addr().String())
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// LoggingInterceptor logs every unary call with its status code and latency.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Warn("grpc call failed", append(attrs, "err", err)...)
		} else {
			log.Debug("grpc call", attrs...)
		}
		return resp, err
	}
}
