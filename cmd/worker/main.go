package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"studentportal/internal/config"
	"studentportal/internal/queue"
	"studentportal/internal/store"
)

// Worker consumes record.created events and drops the cached student listing
// so every API replica sees new submissions on its next load.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" || cfg.RedisAddr == "" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis and REDIS_ADDR; the in-memory queue is drained by the api process")
	}

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("record store: %v", err)
	}
	defer backend.Close()

	if !backend.Redis.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	var inv queue.Invalidator
	if backend.Cache != nil {
		inv = backend.Cache
	} else {
		log.Println("listing cache disabled, events are only logged")
	}

	q := queue.NewRedisQueue(backend.Redis.Client, queue.DefaultKey)

	log.Println("worker started, waiting for messages...")
	n, err := queue.ConsumeRecordEvents(ctx, q, inv)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}
	log.Printf("worker stopped after %d events", n)
}
