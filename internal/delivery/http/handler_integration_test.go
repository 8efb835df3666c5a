package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dealwatch/backend/config"
	"github.com/dealwatch/backend/internal/domain"
	"github.com/dealwatch/backend/internal/ratelimit"
	"github.com/dealwatch/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	exitCode := m.Run()

	os.Exit(exitCode)
}

// stubSender is a minimal domain.ChannelSender for router tests.
type stubSender struct {
	mu       sync.Mutex
	calls    int
	sendErr  error
	reachErr error
}

func (s *stubSender) Send(ctx context.Context, msg domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "msg-1", nil
}

func (s *stubSender) CheckReachable(ctx context.Context) error {
	return s.reachErr
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:3000", "https://deals.example.*"},
		},
	}
}

func newTestPipeline(sender domain.ChannelSender) *usecase.Pipeline {
	clock := domain.SystemClock{}
	validator := usecase.NewValidator([]string{"click here"}, 3)
	dedup := usecase.NewDeduplicator(0, clock)
	limiter := ratelimit.New(1000, time.Minute, 0, clock)
	engine := usecase.NewDeliveryEngine(sender, limiter, clock, usecase.DeliveryConfig{
		MaxAttempts: 1,
	}, nil)
	return usecase.NewPipeline(validator, dedup, engine, usecase.PipelineConfig{Workers: 1}, nil)
}

func setupTestRouter(sender *stubSender) *gin.Engine {
	handler := NewHandler(newTestPipeline(sender), sender)
	return SetupRouter(testConfig(), handler)
}

func postDeal(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/api/v1/deals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := setupTestRouter(&stubSender{})

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", response["status"])
	}
	if response["service"] != "dealwatch-backend" {
		t.Errorf("service = %v, want dealwatch-backend", response["service"])
	}
}

func TestReadyCheckEndpoint(t *testing.T) {
	t.Run("ready when channel reachable", func(t *testing.T) {
		router := setupTestRouter(&stubSender{})

		req, _ := http.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("unavailable when channel unreachable", func(t *testing.T) {
		router := setupTestRouter(&stubSender{reachErr: domain.ErrChannelUnreachable})

		req, _ := http.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestSubmitDealEndpoint(t *testing.T) {
	t.Run("delivers valid deal", func(t *testing.T) {
		sender := &stubSender{}
		router := setupTestRouter(sender)

		w := postDeal(router, `{
			"title": "LEGO Star Wars AT-AT Walker",
			"url": "https://example.com/deal-link",
			"price": "£42.99",
			"description": "Great deal with free shipping!"
		}`)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
		}

		var response map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if response["status"] != "delivered" {
			t.Errorf("status = %v, want delivered", response["status"])
		}
		if response["externalId"] != "msg-1" {
			t.Errorf("externalId = %v, want msg-1", response["externalId"])
		}
		if id, ok := response["submissionId"].(string); !ok || id == "" {
			t.Errorf("submissionId = %v, want non-empty string", response["submissionId"])
		}
		if ts, ok := response["timestamp"].(string); !ok || ts == "" {
			t.Errorf("timestamp = %v, want non-empty string", response["timestamp"])
		}
	})

	t.Run("rejects missing required fields", func(t *testing.T) {
		router := setupTestRouter(&stubSender{})

		w := postDeal(router, `{"price": "£9.99"}`)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects invalid deal with reason", func(t *testing.T) {
		sender := &stubSender{}
		router := setupTestRouter(sender)

		w := postDeal(router, `{"title": "TV", "url": "https://example.com/tv"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		if response["status"] != "rejected" {
			t.Errorf("status = %v, want rejected", response["status"])
		}
		if response["reason"] != "title_too_short" {
			t.Errorf("reason = %v, want title_too_short", response["reason"])
		}
		if sender.calls != 0 {
			t.Errorf("send calls = %d, want 0", sender.calls)
		}
	})

	t.Run("reports duplicate without second send", func(t *testing.T) {
		sender := &stubSender{}
		router := setupTestRouter(sender)

		body := `{"title": "Coffee machine", "url": "https://example.com/coffee"}`
		first := postDeal(router, body)
		if first.Code != http.StatusOK {
			t.Fatalf("first Status = %d, want %d", first.Code, http.StatusOK)
		}

		second := postDeal(router, body)
		if second.Code != http.StatusOK {
			t.Fatalf("second Status = %d, want %d", second.Code, http.StatusOK)
		}

		var response map[string]interface{}
		json.Unmarshal(second.Body.Bytes(), &response)
		if response["status"] != "duplicate" {
			t.Errorf("status = %v, want duplicate", response["status"])
		}
		if sender.calls != 1 {
			t.Errorf("send calls = %d, want exactly 1", sender.calls)
		}
	})

	t.Run("reports delivery failure, never silent success", func(t *testing.T) {
		sender := &stubSender{sendErr: errors.New("network down")}
		router := setupTestRouter(sender)

		w := postDeal(router, `{"title": "Good deal", "url": "https://example.com/deal"}`)

		if w.Code != http.StatusAccepted {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusAccepted)
		}

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		if response["status"] != "failed" {
			t.Errorf("status = %v, want failed", response["status"])
		}
		if response["error"] == "" {
			t.Error("error missing from failure response")
		}
	})
}

func TestSummaryEndpoint(t *testing.T) {
	sender := &stubSender{}
	router := setupTestRouter(sender)

	postDeal(router, `{"title": "Deal one", "url": "https://example.com/one"}`)
	postDeal(router, `{"title": "", "url": "https://example.com/two"}`)

	req, _ := http.NewRequest("GET", "/api/v1/deals/summary", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var summary domain.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to unmarshal summary: %v", err)
	}
	if summary.Received != 2 || summary.Sent != 1 || summary.Rejected != 1 {
		t.Errorf("summary = %+v, want received=2 sent=1 rejected=1", summary)
	}
}

func TestCORSMiddleware(t *testing.T) {
	router := setupTestRouter(&stubSender{})

	t.Run("allows listed origin", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q, want http://localhost:3000", got)
		}
	})

	t.Run("matches wildcard origin", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://deals.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://deals.example.com" {
			t.Errorf("Allow-Origin = %q, want echo of wildcard match", got)
		}
	})

	t.Run("ignores unlisted origin", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://evil.example.org")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("no headers without an origin", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty for originless request", got)
		}
	})

	t.Run("handles preflight", func(t *testing.T) {
		req, _ := http.NewRequest("OPTIONS", "/api/v1/deals", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
	})
}
