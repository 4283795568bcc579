package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/internal/api"
	"github.com/veilchat/veil/internal/config"
	"github.com/veilchat/veil/internal/guard"
	"github.com/veilchat/veil/internal/identity"
	"github.com/veilchat/veil/internal/matching"
	"github.com/veilchat/veil/internal/messaging"
	"github.com/veilchat/veil/internal/moderation"
	"github.com/veilchat/veil/internal/relay"
	"github.com/veilchat/veil/internal/report"
	"github.com/veilchat/veil/internal/session"
	"github.com/veilchat/veil/internal/ws"
)

func main() {
	cfg := config.Load()

	log.Printf("veil server starting")
	log.Printf("  listen_addr:  %s", cfg.ListenAddr)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  cooldown:     %s", cfg.Cooldown)
	log.Printf("  filter_limit: %d/day", cfg.DailyFilterLimit)
	log.Printf("  ban:          %d reports -> %s", cfg.ReportThreshold, cfg.BanDuration)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	users := identity.NewStore(rdb)
	pairs := session.NewStore(rdb)
	gates := guard.New(rdb, guard.Config{
		Cooldown:         cfg.Cooldown,
		DailyFilterLimit: cfg.DailyFilterLimit,
	})
	mod := moderation.NewStore(rdb, moderation.Config{
		ReportThreshold: cfg.ReportThreshold,
		BanDuration:     cfg.BanDuration,
	})
	queue := matching.NewQueue(rdb, users, pairs)
	matcher := matching.NewService(queue, pairs, gates, mod)

	// --- Postgres report archive (optional) ---
	var archive *report.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to open Postgres: %v", err)
		}
		if err := runMigrations(cfg.PostgresDSN); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		archive = report.NewStore(db)
		defer db.Close()
		log.Printf("  report archive: enabled")
	}

	// --- Relay transport ---
	registry := ws.NewRegistry()

	// --- NATS fanout (optional, multi-replica deployments) ---
	var sender relay.Sender = registry
	var fanout *messaging.Fanout
	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		var err error
		fanout, err = messaging.NewFanout(natsCfg)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		sender = fanout
		log.Printf("  fanout: enabled via %s", natsCfg.URL)
	}

	rel := relay.New(sender, pairs, mod, gates, archive)

	wsCfg := ws.DefaultServerConfig()
	wsCfg.WriteTimeout = cfg.WriteTimeout
	wsCfg.HeartbeatInterval = cfg.HeartbeatInterval
	wsCfg.HeartbeatTimeout = cfg.HeartbeatTimeout

	server := ws.NewServer(wsCfg, registry, rel.Gate, func(c *ws.Connection, data []byte) {
		rel.HandleMessage(c.ID, data)
	})
	server.SetOnDisconnect(func(deviceID string) {
		if fanout != nil {
			_ = fanout.UnsubscribeLocal(deviceID)
		}
		rel.HandleDisconnect(deviceID)
	})
	if fanout != nil {
		server.SetOnConnect(func(deviceID string) {
			if err := fanout.SubscribeLocal(deviceID, func(payload []byte) {
				_ = registry.Send(deviceID, payload)
			}); err != nil {
				log.Printf("[fanout] subscribe %s: %v", deviceID, err)
			}
		})
	}
	ws.StartHeartbeat(server)

	// --- Classifier ---
	var classifier identity.Classifier
	if cfg.ClassifierURL != "" {
		classifier = identity.NewHTTPClassifier(cfg.ClassifierURL)
	} else {
		classifier = identity.ClassifierFunc(func(context.Context, string) (identity.Gender, error) {
			return identity.GenderUnknown, nil
		})
		log.Printf("  classifier: not configured, all verifications return unknown")
	}

	// --- HTTP ---
	handler := &api.Handler{
		Users:      users,
		Classifier: classifier,
		Matcher:    matcher,
		Queue:      queue,
		Moderation: mod,
		Relay:      server,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	handler.Routes(engine)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: engine}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		server.Shutdown()
		if fanout != nil {
			fanout.Close()
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		os.Exit(0)
	}()

	log.Printf("veil server listening on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// runMigrations brings the abuse_reports schema up to date.
func runMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
