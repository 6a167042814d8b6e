package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"absengo/internal/attendance"
	"absengo/internal/backend"
	"absengo/internal/cache"
	"absengo/internal/config"
	"absengo/internal/dashboard"
	"absengo/internal/history"
	"absengo/internal/httpmiddleware"
	"absengo/internal/queue"
	"absengo/internal/store"
	"absengo/internal/token"
	"absengo/internal/ws"
)

var scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absengo_scans_total",
	Help: "Scan submissions by outcome.",
}, []string{"result"})

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using environment variables")
	}

	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	loc := cfg.Location()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	mirror := cache.NewMirror(redisClient.Client, cache.DefaultKey)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "absengo:scans")
	}

	// With no database the kiosk still runs: scans land in a process-local
	// ledger and the redis mirror, which is also what the exports read.
	var ledger attendance.Ledger
	var repo *attendance.Repository
	if db != nil {
		repo = attendance.NewRepository(db.Client)
		ledger = repo
	} else {
		ledger = attendance.NewMemoryLedger()
	}

	recorder := attendance.NewService(ledger, loc)
	views := history.NewModel(ledger, loc)

	hub := ws.NewHub()
	go hub.Run()

	// One rotator backs both the token endpoints and the dashboard, so the
	// code on display always matches the snapshot. When an upstream source
	// of truth is configured the dashboard owns its lifecycle; otherwise the
	// server runs it directly.
	rotator := token.NewRotator(cfg.RotateEvery, nil)
	var board *dashboard.Dashboard
	if cfg.BackendURL != "" {
		remote := backend.New(cfg.BackendURL, loc)
		board = dashboard.New(rotator, remote, mirror, loc, cfg.RefreshEvery)
		board.Start(context.Background())
		defer board.Stop()
	} else {
		rotator.Start()
		defer rotator.Stop()
	}

	srvHandlers := &handlers{
		cfg:      cfg,
		loc:      loc,
		recorder: recorder,
		views:    views,
		repo:     repo,
		mirror:   mirror,
		queue:    q,
		rotator:  rotator,
		hub:      hub,
		board:    board,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy && !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	srvHandlers.register(r)

	r.StaticFile("/", "web/index.html")
	r.Static("/static", "web/static")

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("kiosk listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("kiosk exited")
	return nil
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
