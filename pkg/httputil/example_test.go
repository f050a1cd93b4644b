package httputil_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/sigapi/pkg/config"
	"github.com/wonny/sigapi/pkg/httputil"
	"github.com/wonny/sigapi/pkg/logger"
)

// Example_basic demonstrates basic HTTP client usage
func Example_basic() {
	cfg := &config.Config{
		Env:      "production",
		LogLevel: "info",
	}
	log := logger.New(cfg)

	// Create HTTP client (SSOT)
	client := httputil.New(cfg, log).WithBearerToken("my-api-key")

	resp, err := client.Get(context.Background(), "https://api.sigtech.com/status")
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Status: %d\n", resp.StatusCode)
}

// Example_bulkUpload demonstrates the retry + rate limit setup used for dataset parts
func Example_bulkUpload() {
	cfg := &config.Config{
		Env:      "production",
		LogLevel: "info",
	}
	log := logger.New(cfg)

	// 3 attempts on 502/503 with a fixed 1s delay, at most 20 requests per second
	client := httputil.New(cfg, log).
		WithBearerToken("platform-token").
		WithFixedRetry(2, time.Second, http.StatusBadGateway, http.StatusServiceUnavailable).
		WithRateLimiter(rate.NewLimiter(rate.Limit(20), 20))

	resp, err := client.PostJSON(context.Background(), "https://api.sigtech.com/ingestion/datasets/prices/files", map[string]string{
		"file_id": "20240101T000000Z.prices.part-000000001",
	})
	if err != nil {
		fmt.Printf("Upload failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Part uploaded: %d\n", resp.StatusCode)
}
