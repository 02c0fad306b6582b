// Package testutil provides test doubles for the CPS API and the audit's
// enrollment fetcher.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// MockCPSResponse defines the behavior for a mock CPS endpoint response.
type MockCPSResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCPS is a configurable mock CPS server. Enrollments answer with their
// scripted responses in order, then with a 200 carrying Payload(id).
type MockCPS struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	scripts   map[enrollment.ID][]MockCPSResponse
	calls     map[enrollment.ID]int
	contracts map[string][]enrollment.ID
	order     []string

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastQuery         url.Values
}

// NewMockCPS creates a new mock CPS server.
func NewMockCPS() *MockCPS {
	mock := &MockCPS{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		scripts:   make(map[enrollment.ID][]MockCPSResponse),
		calls:     make(map[enrollment.ID]int),
		contracts: make(map[string][]enrollment.ID),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.route(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCPS) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCPS) Close() {
	m.server.Close()
}

// Reset clears the tracking counters. Scripts and contracts are kept.
func (m *MockCPS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.LastQuery = nil
	m.calls = make(map[enrollment.ID]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCPS) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// AddContract registers a contract and its enrollments.
func (m *MockCPS) AddContract(contractID string, ids ...enrollment.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[contractID]; !ok {
		m.order = append(m.order, contractID)
	}
	m.contracts[contractID] = append([]enrollment.ID(nil), ids...)
}

// ScriptEnrollment sets the responses for successive requests of id.
func (m *MockCPS) ScriptEnrollment(id enrollment.ID, responses ...MockCPSResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[id] = responses
}

// EnrollmentCalls returns how many times id was requested.
func (m *MockCPS) EnrollmentCalls(id enrollment.ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[id]
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCPS) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// LastHeader returns the headers of the most recent request.
func (m *MockCPS) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// LastRequestQuery returns the query of the most recent request.
func (m *MockCPS) LastRequestQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

func (m *MockCPS) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/contract-api/v1/contracts/identifiers":
		m.mu.RLock()
		body, _ := json.Marshal(m.order)
		m.mu.RUnlock()
		write(w, MockCPSResponse{StatusCode: http.StatusOK, Body: string(body)})

	case r.URL.Path == "/cps/v2/enrollments":
		m.listEnrollments(w, r.URL.Query().Get("contractId"))

	case strings.HasPrefix(r.URL.Path, "/cps/v2/enrollments/"):
		n, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/cps/v2/enrollments/"), 10, 64)
		if err != nil {
			write(w, NewNotFoundResponse())
			return
		}
		m.enrollment(w, enrollment.ID(n))

	default:
		write(w, NewNotFoundResponse())
	}
}

func (m *MockCPS) listEnrollments(w http.ResponseWriter, contractID string) {
	m.mu.RLock()
	ids, ok := m.contracts[contractID]
	m.mu.RUnlock()
	if !ok {
		write(w, NewNotFoundResponse())
		return
	}

	type location struct {
		Location string `json:"location"`
	}
	list := struct {
		Enrollments []location `json:"enrollments"`
	}{Enrollments: make([]location, 0, len(ids))}
	for _, id := range ids {
		list.Enrollments = append(list.Enrollments, location{Location: fmt.Sprintf("/cps/v2/enrollments/%d", id)})
	}

	body, _ := json.Marshal(list)
	write(w, MockCPSResponse{StatusCode: http.StatusOK, Body: string(body)})
}

func (m *MockCPS) enrollment(w http.ResponseWriter, id enrollment.ID) {
	m.mu.Lock()
	n := m.calls[id]
	m.calls[id]++
	resp := NewEnrollmentResponse(id)
	if script := m.scripts[id]; n < len(script) {
		resp = script[n]
	}
	m.mu.Unlock()

	write(w, resp)
}

func write(w http.ResponseWriter, resp MockCPSResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	w.Header().Set("Content-Type", "application/json")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewEnrollmentResponse creates the 200 response for id.
func NewEnrollmentResponse(id enrollment.ID) MockCPSResponse {
	return MockCPSResponse{
		StatusCode: http.StatusOK,
		Body:       string(Payload(id)),
	}
}

// NewRateLimitResponse creates a 429 whose problem detail carries the wait
// hint the way CPS words it.
func NewRateLimitResponse(retryAfterSeconds int) MockCPSResponse {
	return MockCPSResponse{
		StatusCode: http.StatusTooManyRequests,
		Body: fmt.Sprintf(`{"type":"/cps/problem-types/rate-limit","title":"Too Many Requests","status":429,"detail":"Retry after: %d seconds."}`,
			retryAfterSeconds),
		Headers: map[string]string{"Content-Type": "application/problem+json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockCPSResponse {
	return MockCPSResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"title":"Internal Server Error","status":500}`,
		Headers:    map[string]string{"Content-Type": "application/problem+json"},
	}
}

// NewAuthErrorResponse creates a 401 response.
func NewAuthErrorResponse() MockCPSResponse {
	return MockCPSResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"title":"Not authorized","status":401,"detail":"The signature does not match"}`,
		Headers:    map[string]string{"Content-Type": "application/problem+json"},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockCPSResponse {
	return MockCPSResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"title":"Not Found","status":404}`,
		Headers:    map[string]string{"Content-Type": "application/problem+json"},
	}
}
