package main

import (
	"os"
	"os/signal"
	"syscall"

	"minerva/internal/bootstrap"
	"minerva/pkg/logger"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()
	defer logger.Sync()

	log := container.Log

	go func() {
		if err := container.Start(); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %v, shutting down...", sig)

	container.Shutdown()
}
