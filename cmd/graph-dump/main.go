// Command graph-dump logs in to Microsoft Graph with client credentials,
// fetches every record of one collection endpoint, and writes them to
// stdout as NDJSON.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pathlight-io/graphclient/pkg/graphurl"
	"github.com/pathlight-io/graphclient/pkg/logging"
	"github.com/pathlight-io/graphclient/pkg/session"
)

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	cfg := session.Config{
		Credentials: session.Credentials{
			ClientID:     os.Getenv("GRAPH_CLIENT_ID"),
			ClientSecret: os.Getenv("GRAPH_CLIENT_SECRET"),
			TenantID:     os.Getenv("GRAPH_TENANT_ID"),
		},
		UserAgent: getEnv("USER_AGENT", "graph-dump/0.1.0"),
	}

	version := graphurl.Version(getEnv("GRAPH_VERSION", string(graphurl.VersionV1)))
	endpoint := getEnv("GRAPH_ENDPOINT", "users")
	opts := graphurl.QueryOptions{
		Top:     getEnvInt("GRAPH_TOP", graphurl.DefaultTop),
		OrderBy: os.Getenv("GRAPH_ORDERBY"),
		Filter:  os.Getenv("GRAPH_FILTER"),
	}

	// Optional metrics/health listener for long dumps
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", healthHandler)
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		log.Info().Str("addr", addr).Msg("Serving /health and /metrics")
	}

	ctrl, err := session.NewController(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session controller")
	}
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.Login(ctx); err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}

	records, err := ctrl.FetchAll(ctx, version, endpoint, opts)
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", endpoint).Msg("Fetch failed")
	}

	out := os.Stdout
	for _, record := range records {
		fmt.Fprintf(out, "%s\n", record)
	}

	log.Info().Str("endpoint", endpoint).Int("records", len(records)).Msg("Dump complete")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric env value")
		return defaultValue
	}
	return n
}
