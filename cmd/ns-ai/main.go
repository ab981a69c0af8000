package main

import (
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"CyberGuard/internal/ai"
	"CyberGuard/internal/ai/aiservice"
	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"

	"google.golang.org/grpc"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})

	// Without a key the service still answers, with FailedPrecondition, so
	// engines can show the key placeholder instead of a connection error.
	var backend aiservice.Analyzer
	analyzer, err := ai.NewAlertAnalyzer(cfg.AI)
	switch {
	case errors.Is(err, ai.ErrNoAPIKey):
		logging.Warn().Msg("AI API key is not configured; requests will be refused")
	case err != nil:
		logging.Fatal().Err(err).Msg("Failed to create AlertAnalyzer")
	default:
		backend = analyzer
	}

	lis, err := net.Listen("tcp", cfg.AI.GRPCLisenAddr)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to listen")
	}

	s := grpc.NewServer()
	aiservice.Register(s, aiservice.NewService(backend))

	go func() {
		logging.Info().Str("addr", cfg.AI.GRPCLisenAddr).Str("model", cfg.AI.Model).Msg("AI-gRPC server starting")
		if err := s.Serve(lis); err != nil {
			logging.Fatal().Err(err).Msg("Failed to serve gRPC")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("Server shutting down...")

	s.GracefulStop()
}
