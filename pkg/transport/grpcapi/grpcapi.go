/*
Package grpcapi is SoliDB's thin gRPC surface: a health-check service
plus reflection, grounded on the teacher's pkg/api server (same
net.Listen + grpc.NewServer + Serve/GracefulStop shape) but without that
package's mTLS certificate machinery, which depended on a certificate
authority this node doesn't run (spec names the length-prefixed
MessagePack protocol in pkg/transport as the primary binary RPC; this
surface exists only so an operator's existing gRPC health-check tooling
has something to probe). It carries no SoliDB-specific RPCs of its own.
*/
package grpcapi

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/cuemby/solidb/pkg/log"
)

// Server is a minimal grpc.Server exposing only the standard health and
// reflection services.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

func NewServer() *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return &Server{grpc: grpcServer, health: healthServer}
}

// SetServing updates the serving status of a named service (the empty
// string names the overall server, per grpc_health_v1 convention).
func (s *Server) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpcapi: listen: %w", err)
	}
	log.WithComponent("grpcapi").Info().Str("addr", addr).Msg("listening")
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
