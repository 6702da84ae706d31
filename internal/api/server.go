package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"classbook/internal/config"
	"classbook/internal/logging"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpccreds "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const grpcStopTimeout = 10 * time.Second

// GRPCServer serves BookingService plus the standard health service.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      *zerolog.Logger
}

func NewGRPCServer(cfg config.GRPCConfig, deps Deps, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	s, err := newGRPCServer(cfg, lis, deps, logger)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}
	return s, nil
}

// newGRPCServer builds the server on an existing listener (bufconn in tests).
func newGRPCServer(cfg config.GRPCConfig, lis net.Listener, deps Deps, logger *zerolog.Logger) (*GRPCServer, error) {
	auth := NewAuthInterceptor(deps.Tokens, newRateLimiter(cfg.RateLimit))
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingUnaryInterceptor(logger), auth.Unary()),
	}
	if cfg.TLS.Enabled {
		creds, err := serverCredentials(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	srv := grpc.NewServer(opts...)
	srv.RegisterService(&bookingServiceDesc, NewBookingService(deps.Admission, deps.Accounts))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(bookingServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	if cfg.Reflection {
		reflection.Register(srv)
	}

	return &GRPCServer{
		server:   srv,
		health:   hs,
		listener: lis,
		log:      logging.Component(logger, "grpc"),
	}, nil
}

func serverCredentials(cfg config.TLSConfig) (grpccreds.TransportCredentials, error) {
	tlsCfg, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return grpccreds.NewTLS(tlsCfg), nil
}

func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("grpc tls: cert_file and key_file are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("grpc tls: load key pair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if !cfg.RequireClientCert {
		return tlsCfg, nil
	}

	pool, err := clientCAPool(cfg.ClientCAFile)
	if err != nil {
		return nil, err
	}
	tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	tlsCfg.ClientCAs = pool
	return tlsCfg, nil
}

// clientCAPool loads the PEM bundle used to verify client certificates.
func clientCAPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, errors.New("grpc tls: require_client_cert needs client_ca_file")
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grpc tls: read client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("grpc tls: no certificates in %s", path)
	}
	return pool, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

// Shutdown reports NOT_SERVING to health checks, then drains in-flight
// calls. Calls still running after ctx (or grpcStopTimeout) are cut off.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(grpcStopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown interrupted; forcing stop")
		s.server.Stop()
	case <-timer.C:
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
