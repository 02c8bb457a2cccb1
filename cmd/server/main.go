// Command server is the entry point for the Vixogram chat backend.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vixogram/internal/config"
	"vixogram/internal/seed"
	"vixogram/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if cfg.CompanionBotEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, berr := seed.EnsureBotUser(ctx, srv.DB(), cfg); berr != nil {
			log.Printf("companion bot bootstrap failed: %v", berr)
		}
		cancel()
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if serr := srv.Shutdown(ctx); serr != nil {
			log.Printf("Server shutdown error: %v", serr)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal(err)
	}
}
