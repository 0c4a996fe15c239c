// Package testutil provides testing utilities for the Graph client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Graph endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGraph is a configurable mock Graph server for testing. It serves a
// fake token endpoint at {tenant}/oauth2/v2.0/token, handing out tokens
// "token-1", "token-2", ... in sequence, and per-path resource handlers.
type MockGraph struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	tokenStatus int
	tokenBody   string

	// Tracking
	RequestCount   int
	TokenRequests  int
	LastAuthHeader string
	LastTokenForm  url.Values
}

// NewMockGraph creates a new mock Graph server.
func NewMockGraph() *MockGraph {
	mock := &MockGraph{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token") {
			mock.tokenHandler(w, r)
			return
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastAuthHeader = r.Header.Get("Authorization")
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// tokenHandler fakes the client-credentials token endpoint.
func (m *MockGraph) tokenHandler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	m.mu.Lock()
	m.TokenRequests++
	count := m.TokenRequests
	m.LastTokenForm = r.PostForm
	status := m.tokenStatus
	body := m.tokenBody
	m.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":3599}`, count)
}

// URL returns the mock server URL, usable as the Graph base URL.
func (m *MockGraph) URL() string {
	return m.server.URL
}

// TokenURL returns a token endpoint template with a %s verb for the
// tenant id.
func (m *MockGraph) TokenURL() string {
	return m.server.URL + "/%s/oauth2/v2.0/token"
}

// Close shuts down the mock server.
func (m *MockGraph) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGraph) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.TokenRequests = 0
	m.LastAuthHeader = ""
	m.LastTokenForm = nil
}

// FailToken makes the token endpoint return the given status and body
// until RestoreToken is called.
func (m *MockGraph) FailToken(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenStatus = status
	m.tokenBody = body
}

// RestoreToken reverts the token endpoint to issuing tokens.
func (m *MockGraph) RestoreToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenStatus = 0
	m.tokenBody = ""
}

// SetHandler sets a custom handler for a specific resource path.
func (m *MockGraph) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a resource path.
func (m *MockGraph) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		fmt.Fprint(w, resp.Body)
	})
}

// Requests returns the resource request count.
func (m *MockGraph) Requests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// AuthHeader returns the Authorization header of the last resource request.
func (m *MockGraph) AuthHeader() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastAuthHeader
}

// TokenRequestCount returns the token endpoint request count.
func (m *MockGraph) TokenRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TokenRequests
}
