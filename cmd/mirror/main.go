package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"absengo/internal/attendance"
	"absengo/internal/cache"
	"absengo/internal/config"
	"absengo/internal/queue"
	"absengo/internal/store"
)

// The mirror worker consumes scan messages and keeps the redis copy of the
// attendance list current, so the kiosk can keep showing data when the
// ledger is down.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	mirror := cache.NewMirror(redisClient.Client, cache.DefaultKey)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "absengo:scans")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("mirror worker started, waiting for scans...")
	for msg := range messages {
		if msg.Type != queue.TypeScan {
			continue
		}

		var rec attendance.Record
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Printf("bad scan payload: %v", err)
			continue
		}

		appended, err := mirror.Append(ctx, rec)
		if err != nil {
			log.Printf("mirror append failed for %s: %v", rec.StudentID, err)
			continue
		}
		if !appended {
			log.Printf("duplicate scan for %s on %s, mirror unchanged", rec.StudentID, rec.Date)
			continue
		}
		log.Printf("mirrored scan %s (%s %s)", rec.StudentID, rec.Date, rec.Time)
	}

	log.Println("mirror worker stopped")
}
