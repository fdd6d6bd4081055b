package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusverify/internal/discord"
	"campusverify/internal/identity"
	"campusverify/internal/oauth/google"
	"campusverify/internal/platform/config"
	"campusverify/internal/platform/httpserver"
	"campusverify/internal/platform/logger"
	"campusverify/internal/platform/metrics"
	platformredis "campusverify/internal/platform/redis"
	"campusverify/internal/provision"
	httptransport "campusverify/internal/transport/http"
	"campusverify/internal/verification/service"
	identitystore "campusverify/internal/verification/store/identity"
	tokenstore "campusverify/internal/verification/store/token"
)

const sweepInterval = time.Minute

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx := context.Background()

	// Token store: Redis when configured, in-memory (with a background
	// sweep) otherwise.
	var tokens tokenstore.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		tokens = tokenstore.NewRedis(redisClient.Client, tokenstore.WithRedisTTL(cfg.TokenTTL))
		log.Printf("token store: redis")
	} else {
		memStore := tokenstore.NewInMemory(tokenstore.WithTTL(cfg.TokenTTL))
		tokens = memStore
		go sweepExpiredTokens(ctx, memStore, log)
		log.Printf("token store: in-memory")
	}

	// Identity store: Postgres when configured.
	var identities identitystore.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		pgStore := identitystore.NewPostgres(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		identities = pgStore
		log.Printf("identity store: postgres")
	} else {
		identities = identitystore.NewInMemory()
		log.Printf("identity store: in-memory")
	}

	provider, err := google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BaseURL+"/auth/callback")
	if err != nil {
		log.Fatalf("google provider: %v", err)
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Fatalf("discord session: %v", err)
	}
	directory := discord.NewRoleDirectory(session, cfg.DiscordGuildID, m)

	svc := service.New(
		tokens,
		identities,
		identity.NewGate(cfg.AllowedDomain),
		provision.NewReconciler(directory),
		provider,
		m,
		log,
		cfg.BaseURL,
	)

	bot := discord.NewBot(session, svc, log)
	if err := bot.Open(); err != nil {
		log.Fatalf("discord gateway: %v", err)
	}
	defer bot.Close()

	handler := httptransport.NewHandler(svc, provider, log)
	router := httptransport.NewRouter(handler)
	srv := httpserver.New(cfg.Addr, router)

	log.Printf("starting campusverify on %s", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
}

// sweepExpiredTokens periodically removes dead tokens from the in-memory
// store. Validity never depends on this cadence; ConsumeIfValid re-checks
// expiry itself.
func sweepExpiredTokens(ctx context.Context, store *tokenstore.InMemoryStore, log interface{ Printf(string, ...any) }) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if deleted, err := store.DeleteExpired(ctx, now); err == nil && deleted > 0 {
				log.Printf("swept %d expired tokens", deleted)
			}
		}
	}
}
