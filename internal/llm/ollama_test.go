package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/tactimerge/internal/model"
)

func TestOllamaProvider_SummarizeEvidence_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected stream=false")
		}
		if req.Format != "json" {
			t.Errorf("Expected format json, got %q", req.Format)
		}
		if req.Options.NumPredict != 800 {
			t.Errorf("Expected default num_predict 800, got %d", req.Options.NumPredict)
		}

		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:    "llama3.1:8b",
			Response: `{"attributes": [{"name": "transitions", "value": "quick counters", "evidence_ids": ["r2"]}]}`,
			Done:     true,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1:8b"})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	attrs, err := provider.SummarizeEvidence(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("SummarizeEvidence failed: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Name != "transitions" {
		t.Errorf("Unexpected attributes: %+v", attrs)
	}
}

func TestOllamaProvider_SummarizeEvidence_ModelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'llama3.1:8b' not found"}`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1:8b"})
	_, err := provider.SummarizeEvidence(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if model.IsTransient(err) {
		t.Errorf("404 must not be transient: %v", err)
	}
}

func TestOllamaProvider_SummarizeEvidence_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "m"})
	_, err := provider.SummarizeEvidence(context.Background(), sampleRequest())
	if !errors.Is(err, model.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "m"})
	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be available")
	}

	down, _ := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	if down.IsAvailable(context.Background()) {
		t.Error("Expected provider to be unavailable")
	}
}

func TestOllamaProvider_RequiresModel(t *testing.T) {
	if _, err := NewOllamaProvider(Config{}); err == nil {
		t.Error("Expected error for missing model")
	}
}
