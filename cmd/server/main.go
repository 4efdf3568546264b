package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wa-bridge/backend/internal/bridge"
	"github.com/wa-bridge/backend/internal/config"
	"github.com/wa-bridge/backend/internal/engine"
	"github.com/wa-bridge/backend/internal/gateway"
	"github.com/wa-bridge/backend/internal/media"
	"github.com/wa-bridge/backend/internal/mock"
	"github.com/wa-bridge/backend/internal/session"
	"github.com/wa-bridge/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use the scripted mock engine instead of the sidecar")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	var eng engine.Engine
	if *mockMode || cfg.Engine.Mode == "mock" {
		log.Println("Starting with mock engine")
		eng = mock.NewEngine(0)
	} else {
		log.Printf("Starting with remote engine at %s", cfg.Engine.URL)
		eng = engine.NewRemote(cfg.Engine.URL, cfg.Engine.CommandTimeout)
	}

	broadcaster := ws.NewBroadcaster()
	machine := session.NewMachine(eng, cfg.Recovery, broadcaster.PublishStatus)
	fetcher := media.NewFetcher(cfg.Media.FetchTimeout, cfg.Media.MaxBytes)
	gw := gateway.New(machine, fetcher, cfg.Gateway.SendTimeout)
	server := ws.NewServer(cfg.Server, machine, gw, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pump must be running before the engine starts emitting.
	go bridge.New(eng, machine, broadcaster, cfg.Responder).Run(ctx)

	if err := machine.Start(ctx); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
