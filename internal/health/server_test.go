package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulsefeed/internal/logging"
)

func TestHealthAlwaysOK(t *testing.T) {
	s := NewServer("0", nil, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
}

func TestReady_AllProbesPass(t *testing.T) {
	probes := map[string]Probe{
		"broker": func(context.Context) error { return nil },
		"cache":  func(context.Context) error { return nil },
	}
	s := NewServer("0", probes, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /ready = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestReady_FailingProbeReturns503(t *testing.T) {
	probes := map[string]Probe{
		"broker": func(context.Context) error { return nil },
		"cache":  func(context.Context) error { return errors.New("connection refused") },
	}
	s := NewServer("0", probes, logging.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /ready = %d, want 503", rec.Code)
	}
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Dependencies["cache"] != "connection refused" {
		t.Errorf("cache dependency = %q", body.Dependencies["cache"])
	}
	if body.Dependencies["broker"] != "ok" {
		t.Errorf("broker dependency = %q", body.Dependencies["broker"])
	}
}
