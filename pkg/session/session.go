// Package session owns the Microsoft Graph token lifecycle and the
// pagination-following fetch loop. A Controller logs in with the OAuth2
// client-credentials grant, keeps the token fresh on a background timer,
// and is the sole consumer of the request executor.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pathlight-io/graphclient/pkg/client"
	"github.com/pathlight-io/graphclient/pkg/logging"
)

const (
	// DefaultBaseURL is the Graph resource host.
	DefaultBaseURL = "https://graph.microsoft.com"

	// defaultTokenURL is the Azure AD token endpoint, templated with the
	// tenant id.
	defaultTokenURL = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	// Scope is the client-credentials scope for Graph.
	Scope = "https://graph.microsoft.com/.default"

	// DefaultRefreshInterval is slightly under the one-hour validity
	// window of Graph tokens, so a fresh token arrives before expiry.
	DefaultRefreshInterval = 3599 * time.Second
)

// Prometheus metrics for session operations.
var (
	graphTokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_token_refreshes_total",
		Help: "Total token requests by outcome",
	}, []string{"outcome"})

	graphPagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_pages_fetched_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})
)

// Credentials identifies the application to the token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Config holds the controller configuration. Credentials are re-read from
// this stored config on every refresh cycle, so rotated values apply at
// the next login.
type Config struct {
	Credentials Credentials

	// UserAgent is sent with every resource request when non-empty.
	UserAgent string

	// BaseURL overrides the Graph resource host (tests).
	BaseURL string

	// TokenURL overrides the token endpoint template (tests). Must
	// contain one %s verb for the tenant id.
	TokenURL string

	// RefreshInterval overrides the token refresh period (tests).
	RefreshInterval time.Duration

	// Executor overrides the request executor configuration.
	Executor client.Config

	// HTTPClient is used for token requests (defaults to a 30s-timeout
	// client).
	HTTPClient *http.Client
}

// Controller owns the access token shared with the request executor and
// assembles complete result sets from paginated endpoints.
type Controller struct {
	config     Config
	executor   *client.Client
	httpClient *http.Client
	logger     zerolog.Logger

	// loginMu serializes login cycles (timer-triggered vs 401-triggered)
	// and guards the refresh timer.
	loginMu      sync.Mutex
	refreshTimer *time.Timer

	// mu guards the token; read-locked briefly for header construction,
	// write-locked briefly to store a fresh token.
	mu          sync.RWMutex
	accessToken string
}

// NewController creates a session controller. It does not log in; call
// Login before the first fetch or rely on the 401 path to do it.
func NewController(cfg Config) (*Controller, error) {
	creds := cfg.Credentials
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.TenantID == "" {
		return nil, fmt.Errorf("client_id, client_secret and tenant_id are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Executor.UserAgent == "" {
		cfg.Executor.UserAgent = cfg.UserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctrl := &Controller{
		config:     cfg,
		httpClient: cfg.HTTPClient,
		logger:     logging.NewLogger("session"),
	}

	executor, err := client.New(cfg.Executor, ctrl, ctrl)
	if err != nil {
		return nil, err
	}
	ctrl.executor = executor

	return ctrl, nil
}

// Login requests a fresh access token with the client-credentials grant
// and stores it as the current token. The refresh timer is re-armed
// whether or not the request succeeds, so a failed refresh is attempted
// again after the same interval. A failure propagates to the caller; there
// is no inner retry.
func (c *Controller) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	defer c.armRefreshLocked()

	// Re-read credentials each cycle so rotated config values apply
	creds := c.config.Credentials

	c.logger.Info().Str("tenant_id", creds.TenantID).Msg("Refreshing token")

	grant := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf(c.config.TokenURL, creds.TenantID),
		Scopes:       []string{Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	startTime := time.Now()
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := grant.Token(tokenCtx)
	if err != nil {
		graphTokenRefreshesTotal.WithLabelValues("failure").Inc()
		c.logger.Error().Err(err).Msg("Token request failed")
		return fmt.Errorf("request token: %w", err)
	}
	if token.AccessToken == "" {
		graphTokenRefreshesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("token endpoint returned no access token")
	}

	c.mu.Lock()
	c.accessToken = token.AccessToken
	c.mu.Unlock()

	graphTokenRefreshesTotal.WithLabelValues("success").Inc()
	c.logger.Info().Dur("duration", time.Since(startTime)).Msg("Token refreshed")
	return nil
}

// armRefreshLocked schedules the next login cycle, replacing any pending
// timer. Caller holds loginMu.
func (c *Controller) armRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	c.refreshTimer = time.AfterFunc(c.config.RefreshInterval, func() {
		if err := c.Login(context.Background()); err != nil {
			c.logger.Warn().Err(err).Msg("Scheduled token refresh failed")
		}
	})
}

// Token returns the current bearer token.
func (c *Controller) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Close stops the pending refresh timer and releases idle connections.
// Optional: an unclosed controller keeps refreshing until process exit.
func (c *Controller) Close() error {
	c.loginMu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.loginMu.Unlock()

	c.httpClient.CloseIdleConnections()
	return nil
}
