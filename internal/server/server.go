// Package server exposes the fund engine over gRPC (health, reflection) and
// HTTP/JSON. The JSON routes are registered by hand on a grpc-gateway
// ServeMux; callers are identified by the request body's caller field, with
// authentication delegated to the deployment's edge.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"FundLedger/internal/fund"
	"FundLedger/internal/observability"
	"FundLedger/internal/query"
)

// Server wraps the gRPC server and the HTTP/JSON mux.
type Server struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	log           zerolog.Logger
	healthChecker *observability.HealthChecker
}

// Deps holds everything the API handlers need.
type Deps struct {
	Engine        *fund.Engine
	Query         *query.Service
	Metrics       *observability.Metrics
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

// New creates a server with the gRPC health service, reflection, and all
// HTTP routes registered.
func New(grpcAddr, httpAddr string, deps *Deps) (*Server, error) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	mux := runtime.NewServeMux()
	h := &handlers{
		engine:  deps.Engine,
		query:   deps.Query,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}
	if err := h.register(mux); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if deps.HealthChecker != nil {
		httpMux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	return &Server{
		grpcServer: grpcServer,
		httpServer: &http.Server{
			Addr:    httpAddr,
			Handler: httpMux,
		},
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		log:           deps.Logger,
		healthChecker: deps.HealthChecker,
	}, nil
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON server (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
