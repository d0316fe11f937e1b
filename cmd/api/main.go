package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mockstash.org/internal/auth"
	"mockstash.org/internal/docstore"
	"mockstash.org/internal/httpapi"
	"mockstash.org/internal/migrate"
	"mockstash.org/internal/obs"
	"mockstash.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	defer obs.Sync()

	trialToken := os.Getenv("MOCKSTASH_TRIAL_TOKEN")

	var (
		docs  docstore.Service
		users auth.UserStore
		probe httpapi.ReadyProbe
	)
	var closeStore func() error

	if dsn := os.Getenv("MOCKSTASH_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn, pg.WithTrialToken(trialToken))
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := migrate.Up(ctx, store.DB()); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		cancel()
		docs = store
		users = auth.NewPGUsers(store.DB())
		probe = httpapi.ReadyProbe{DB: store.DB()}
		closeStore = store.Close
	} else {
		log.Printf("MOCKSTASH_PG_DSN is not set, using the in-memory store")
		docs = docstore.NewInMemory(docstore.WithTrialToken(trialToken))
		users = auth.NewInMemoryUsers()
	}

	api := httpapi.New(probe, version, docs, auth.NewService(users))
	api.RateLimits(envInt("MOCKSTASH_RATE_BURST", 100), envInt("MOCKSTASH_RATE_PER_SEC", 10))

	addr := os.Getenv("MOCKSTASH_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting %s %s on %s", "mockstash-api", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if closeStore != nil {
		_ = closeStore()
	}
	log.Println("Stopped")
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
