package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mall-census-go/internal/census"
	"mall-census-go/internal/display"
	"mall-census-go/internal/ingest"
	"mall-census-go/internal/logger"
	"mall-census-go/internal/server"
	"mall-census-go/internal/storage"
	"mall-census-go/internal/webhook"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "mall-census-go").Info("starting service")

	var kv storage.KV
	dbPath := envOr("CENSUS_DB_PATH", "census.db")
	sqlKV, err := storage.OpenSQLite(dbPath)
	if err != nil {
		log.WithError(err).WithField("db_path", dbPath).
			Warn("sqlite unavailable, falling back to in-memory store")
		kv = storage.NewMemory()
	} else {
		defer sqlKV.Close()
		kv = sqlKV
		log.WithField("db_path", dbPath).Info("sqlite store opened")
	}

	store := census.NewStore(kv, time.Now)
	gate := census.NewDedupGate(census.DefaultDedupWindow, time.Now)
	board := census.NewAdBoard(kv, time.Now)
	hooks := webhook.NewDispatcher(kv, os.Getenv("WEBHOOK_SECRET"), time.Now)
	hub := display.NewHub()
	pipeline := ingest.NewPipeline(store, gate, board, hooks, hub, time.Now)

	srv := server.New(store, pipeline, board, hooks, hub, time.Now)

	var origins []string
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(origins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).WithField("events", store.EventCount()).Info("listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
