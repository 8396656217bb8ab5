package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// createOrderRequest matches the gateway's /create-order body.
type createOrderRequest struct {
	GameID string `json:"gameId"`
}

type counters struct {
	ok, limited, rejected, failed atomic.Int64
}

func main() {
	// 1. Setting up flags
	targetURL := flag.String("target", "http://localhost:8080/create-order", "create-order endpoint")
	rps := flag.Int("rps", 5, "Requests per second")
	games := flag.String("games", "", "comma-separated game ids to order")
	flag.Parse()

	if *games == "" || *rps <= 0 {
		log.Fatal("-games is required and -rps must be positive")
	}
	gameIDs := strings.Split(*games, ",")

	log.Printf("Starting load generator: target=%s, rps=%d, games=%d\n", *targetURL, *rps, len(gameIDs))

	// 2. Managing the request frequency via ticker
	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()

	// 3. Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 30 * time.Second}
	var stats counters

	// 4. Main loop
	for {
		select {
		case <-ticker.C:
			go sendRequest(ctx, client, *targetURL, gameIDs[rand.Intn(len(gameIDs))], &stats)
		case <-ctx.Done():
			log.Printf("Shutting down: ok=%d rate_limited=%d rejected=%d failed=%d\n",
				stats.ok.Load(), stats.limited.Load(), stats.rejected.Load(), stats.failed.Load())
			return
		}
	}
}

func sendRequest(ctx context.Context, client *http.Client, url, gameID string, stats *counters) {
	body, err := json.Marshal(createOrderRequest{GameID: gameID})
	if err != nil {
		log.Printf("ERROR: failed to marshal request: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("ERROR: failed to build request: %v", err)
		return
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := client.Do(req)
	if err != nil {
		stats.failed.Add(1)
		log.Printf("ERROR: failed to send request: %v", err)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body : %v", err)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		stats.ok.Add(1)
	case http.StatusTooManyRequests:
		stats.limited.Add(1)
	case http.StatusBadRequest:
		stats.rejected.Add(1)
		log.Printf("WARN: request %s rejected for game %s", requestID, gameID)
	default:
		stats.failed.Add(1)
		log.Printf("WARN: request %s got status %d", requestID, resp.StatusCode)
	}
}
