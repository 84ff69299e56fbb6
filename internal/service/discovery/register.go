package discovery

import (
	"log/slog"

	"google.golang.org/grpc"
)

// Registrar ties the Discovery service into the gRPC server
type Registrar struct {
	sessions *Manager
	log      *slog.Logger
}

// NewRegistrar creates a new Registrar for the Discovery service
func NewRegistrar(sessions *Manager, log *slog.Logger) *Registrar {
	return &Registrar{sessions: sessions, log: log}
}

// Register attaches the Discovery service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewService(r.sessions, r.log))
}
