package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studentportal/internal/auth"
	"studentportal/internal/config"
	"studentportal/internal/export"
	"studentportal/internal/handler"
	"studentportal/internal/httpmiddleware"
	"studentportal/internal/imagehost"
	"studentportal/internal/queue"
	"studentportal/internal/store"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	flag.Parse()
	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer backend.Close()

	uploader, err := imagehost.New(cfg)
	if err != nil {
		log.Printf("warning: image uploads disabled: %v", err)
	} else {
		log.Printf("image host: %s", cfg.ImageHost)
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" && backend.Redis != nil {
		q = queue.NewRedisQueue(backend.Redis.Client, queue.DefaultKey)
	} else {
		// nobody else can read an in-process queue, so drain it here
		mem := queue.NewInMemory(64)
		q = mem
		var inv queue.Invalidator
		if backend.Cache != nil {
			inv = backend.Cache
		}
		go func() {
			if _, err := queue.ConsumeRecordEvents(ctx, mem, inv); err != nil {
				log.Printf("record events consumer stopped: %v", err)
			}
		}()
	}

	bundler := export.NewBundler(&http.Client{Timeout: cfg.FetchTimeout}, cfg.Location())

	opts := handler.Options{
		Store:             backend.Records,
		Uploader:          uploader,
		Notifier:          queue.RecordEvents{Q: q},
		Exporter:          bundler,
		MaxImageBytes:     cfg.MaxImageBytes,
		SessionTTL:        cfg.SessionTTL,
		AdminPasswordHash: cfg.AdminPasswordHash,
		JWTIssuer:         cfg.JWTIssuer,
		JWTSigningKey:     cfg.JWTSigningKey,
		AccessTTL:         cfg.AccessTTL,
		RefreshTTL:        cfg.RefreshTTL,
	}
	if backend.Redis != nil {
		opts.RedisHealthy = backend.Redis.Healthy
	}
	if cfg.AdminPasswordHash == "" {
		log.Println("warning: ADMIN_PASSWORD_HASH not set, admin login disabled")
	}
	h := handler.New(opts)
	go h.Sweep(ctx, time.Minute)

	var limiter httpmiddleware.Limiter
	if backend.Redis.Healthy(ctx) {
		limiter = httpmiddleware.NewRedisWindow(backend.Redis.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Image-Failures"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	r.Use(securityHeaders())

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	h.Register(r, httpmiddleware.Middleware(limiter, "api"))

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
