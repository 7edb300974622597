package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/somsri-pos/api/internal/cache"
	"github.com/somsri-pos/api/internal/config"
	"github.com/somsri-pos/api/internal/database"
	"github.com/somsri-pos/api/internal/router"
	"github.com/somsri-pos/api/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: create database pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("FATAL: ping database: %v", err)
	}
	queries := database.New(pool)

	var closers []io.Closer

	var reportCache cache.ReportCache = cache.NoopReportCache{}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Printf("WARN: redis unreachable at %s, report caching disabled: %v", cfg.RedisAddr, err)
			rc.Close()
		} else {
			log.Printf("report cache: redis at %s", cfg.RedisAddr)
			reportCache = rc
			closers = append(closers, rc)
		}
	}

	hub := ws.NewHub()
	go hub.Run()

	r := router.New(cfg, queries, reportCache, hub)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Printf("ERROR: close: %v", err)
		}
	}
}
