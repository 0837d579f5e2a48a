package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whchoi98/netaiops/internal/adapter/a2a"
	"github.com/whchoi98/netaiops/internal/adapter/httpapi"
	"github.com/whchoi98/netaiops/internal/adapter/llm"
	"github.com/whchoi98/netaiops/internal/infra/config"
	"github.com/whchoi98/netaiops/internal/infra/logger"
	"github.com/whchoi98/netaiops/internal/infra/tracer"
	"github.com/whchoi98/netaiops/internal/usecase/host"
	"github.com/whchoi98/netaiops/internal/usecase/remote"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Outbound agent client, registry, discovery
	client := a2a.NewClient(cfg.Client, cfg.Auth.BearerToken, logger.Named(log, "a2a"))
	registry := remote.NewRegistry(logger.Named(log, "registry"))
	discoverer := remote.NewDiscoverer(client, registry, cfg.Discovery, logger.Named(log, "discovery"))

	report, err := discoverer.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	log.Info("startup discovery finished",
		"registered", len(report.Succeeded),
		"failed", len(report.Failed),
	)
	if registry.Len() == 0 {
		log.Warn("no specialist agents registered, running standalone")
	}

	// 4. Reasoning engine behind circuit breaker and dispatch gate
	engine, err := llm.NewBedrockEngine(cfg.Model, logger.Named(log, "engine"))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	protected := llm.NewCircuitBreakerEngine(engine, llm.CircuitBreakerConfig{}, logger.Named(log, "engine"))
	gate := host.NewGate(protected, cfg.Gate, logger.Named(log, "gate"))

	// 5. Router
	invoker := remote.NewInvoker(registry, logger.Named(log, "invoker"))
	router := host.NewRouter(gate, registry, invoker, nil, logger.Named(log, "router"))

	// 6. Periodic rediscovery
	if cfg.Discovery.Rediscover != "" {
		var scanner remote.Scanner
		if cfg.Discovery.MDNS {
			scanner = remote.NewMDNSScanner(logger.Named(log, "mdns"))
		}
		redisc := remote.NewRediscoverer(discoverer, scanner, cfg.Discovery.Rediscover, logger.Named(log, "rediscovery"))
		if err := redisc.Start(ctx); err != nil {
			return fmt.Errorf("rediscovery: %w", err)
		}
		defer redisc.Stop()
	}

	// 7. HTTP entry point
	server := httpapi.NewServer(cfg.Host, router, logger.Named(log, "http"))
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
