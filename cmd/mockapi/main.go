package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reuse-console/internal/config"
	"reuse-console/internal/httpserver"
	"reuse-console/internal/logging"
	"reuse-console/internal/mockapi"
)

func main() {
	var cfg config.APIConfig
	err := cfg.ParseFlags()

	logging.Logg = logging.NewLogger(cfg.LogLevel, "text", "json", "both", "logs/mockapi-%Y-%m-%d.log")
	if logging.Logg == nil {
		fmt.Println("Failed to initialize logger")
		os.Exit(1)
	}
	if err != nil {
		logging.Logg.Error("Server configuration error", "error", err)
		os.Exit(1)
	}

	server, err := mockapi.NewServer(cfg)
	if err != nil {
		logging.Logg.Error("Server creation error", "error", err)
		os.Exit(1)
	}

	serv := httpserver.New(cfg.Address, server.Router())
	errc := serv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		if err != nil {
			os.Exit(1)
		}
	case <-ctx.Done():
		if err := serv.Shutdown(context.Background()); err != nil {
			os.Exit(1)
		}
	}
}
