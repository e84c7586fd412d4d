package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported through the gRPC health service.
const ServiceName = "muncak.live.Relay"

// GRPCServer exposes the standard health service so orchestrators can probe the relay.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
}

func NewGRPCServer() *GRPCServer {
	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
		grpc.UnaryInterceptor(LoggingInterceptor),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	// Enable reflection for grpcurl testing
	reflection.Register(server)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{server: server, health: hs}
}

func (s *GRPCServer) Health() *health.Server {
	return s.health
}

// Start listens on port and serves in the background.
func (s *GRPCServer) Start(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", port, err)
	}

	log.Printf("🚀 Starting gRPC server on port %s", port)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			log.Printf("❌ gRPC server failed: %v", err)
		}
	}()
	log.Printf("🔧 Test with: grpcurl -plaintext localhost:%s grpc.health.v1.Health/Check", port)
	return nil
}

func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}

// Probe runs the checks every interval and flips the serving status accordingly.
func (s *GRPCServer) Probe(ctx context.Context, interval time.Duration, checks map[string]HealthChecker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.probeOnce(ctx, checks)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) probeOnce(ctx context.Context, checks map[string]HealthChecker) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range checks {
		if err := check(ctx); err != nil {
			log.Printf("⚠️ Health probe %s failed: %v", name, err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// LoggingInterceptor logs every unary gRPC call with its duration.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		log.Printf("🔴 gRPC %s failed in %v: %v", info.FullMethod, duration, err)
	} else {
		log.Printf("✅ gRPC %s completed in %v", info.FullMethod, duration)
	}

	return resp, err
}
