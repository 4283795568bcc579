// modctl is the operator tool for moderation state: inspect, ban, and unban
// participants directly against Redis.
//
// Usage:
//
//	modctl -device <id> status
//	modctl -device <id> -duration 24h -reason spam ban
//	modctl -device <id> unban
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/internal/moderation"
)

func main() {
	var (
		redisAddr = flag.String("redis", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
		device    = flag.String("device", "", "device identifier")
		duration  = flag.Duration("duration", 24*time.Hour, "ban duration")
		reason    = flag.String("reason", "manual", "ban reason")
	)
	flag.Parse()

	if *device == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: modctl -device <id> [flags] status|ban|unban")
		os.Exit(2)
	}

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	store := moderation.NewStore(rdb, moderation.Config{
		ReportThreshold: 3,
		BanDuration:     24 * time.Hour,
	})

	switch flag.Arg(0) {
	case "status":
		banned, remaining, banReason, err := store.IsBanned(ctx, *device)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		reports, err := store.ReportCount(ctx, *device)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		if banned {
			fmt.Printf("device %s: BANNED (%s, %ds remaining), %d lifetime reports\n",
				*device, banReason, remaining, reports)
		} else {
			fmt.Printf("device %s: not banned, %d lifetime reports\n", *device, reports)
		}

	case "ban":
		if err := store.Ban(ctx, *device, *duration, *reason); err != nil {
			log.Fatalf("ban: %v", err)
		}
		fmt.Printf("device %s banned for %s (%s)\n", *device, *duration, *reason)

	case "unban":
		if err := store.Unban(ctx, *device); err != nil {
			log.Fatalf("unban: %v", err)
		}
		fmt.Printf("device %s unbanned\n", *device)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
