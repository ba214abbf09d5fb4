package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/api"
	"board-api/board"
	"board-api/domain"
	"board-api/fanout"
	"board-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("missing database config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	logger := log.New()
	if log.IsLevelEnabled(log.DebugLevel) {
		logger.SetLevel(log.DebugLevel)
	}

	cache := storage.NewSnapshotCache(envDuration("CACHE_TTL", storage.DefaultCacheTTL))
	broker := fanout.NewBroker()

	var feed *fanout.Feed
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))
		feed = fanout.NewFeed(rc, envString("CHANGE_FEED_CHANNEL", "board-changes"), cache, broker, logger)
		go feed.Run(ctx)
	}
	hub := fanout.NewHub(broker, feed, logger)

	var mirror board.AuditMirror
	queueConn := os.Getenv("AUDIT_QUEUE_CONNECTION_STRING")
	queueName := os.Getenv("AUDIT_QUEUE")
	if queueConn != "" && queueName != "" {
		queue, err := storage.NewAuditQueue(queueConn, queueName)
		if err != nil {
			log.Fatalf("audit queue: %v", err)
		}
		mirror = queue
	}

	recorder := board.NewRecorder(store, mirror, logger, board.RecorderConfig{})
	defer recorder.Close()

	rules := domain.DefaultRules()
	if cols := splitList(os.Getenv("BOARD_COLUMNS")); len(cols) > 0 {
		rules.Columns = cols
	}
	engine := board.NewService(store, cache, recorder, hub, board.Config{
		Rules:        rules,
		ServiceTag:   envString("SERVICE_TAG", "board-api"),
		HistoryLimit: envInt("HISTORY_LIMIT", 500),
	}, logger)

	auth := buildAuth()

	limiter := api.NewRateLimiter(api.RateLimiterConfig{
		Window: envDuration("RATE_WINDOW", time.Minute),
		Ceilings: map[string]int{
			api.CategoryImage:      envInt("RATE_IMAGE_CEILING", 0),
			api.CategoryTranscribe: envInt("RATE_TRANSCRIBE_CEILING", 0),
			api.CategoryDefault:    envInt("RATE_DEFAULT_CEILING", 0),
		},
	}, logger)
	limiter.StartSweeper(ctx, envDuration("RATE_SWEEP_INTERVAL", 5*time.Minute))

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, engine, broker, authOrNil(auth), limiter, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown failed")
		}
	}()

	if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

// buildAuth returns nil when no auth is configured, which leaves the API
// open and identifies callers by IP.
func buildAuth() *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != "" {
		return api.NewAuth(nil, "", "")
	}
	authDomain := os.Getenv("AUTH_DOMAIN")
	if authDomain == "" {
		return nil
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	if audience == "" {
		log.Fatal("missing AUTH_AUDIENCE")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+authDomain+"/")
}

// authOrNil keeps the Authenticator interface value nil when auth is
// disabled; a typed nil pointer would defeat the nil check in Register.
func authOrNil(auth *api.Auth) api.Authenticator {
	if auth == nil {
		return nil
	}
	return auth
}

// redisOptions accepts a redis URL and falls back to the comma-separated
// "host:port,password=...,ssl=true" connection string format.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", key, v)
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", key, v)
	}
	return d
}
