package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kaiwa/internal/config"
)

func newTestClient(url string) *OllamaClient {
	return NewOllamaClient(&config.OllamaConfig{
		BaseURL:            url,
		GenerationModel:    "llama3.2",
		TimeoutSeconds:     5,
		PullTimeoutSeconds: 5,
	})
}

func TestOllamaClient_Generate(t *testing.T) {
	var gotPath string
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "an answer", Done: true})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	answer, err := c.Generate(context.Background(), "a prompt")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "an answer" {
		t.Errorf("answer: %q", answer)
	}
	if gotPath != "/api/generate" {
		t.Errorf("path: %s", gotPath)
	}
	if gotReq.Model != "llama3.2" || gotReq.Prompt != "a prompt" || gotReq.Stream {
		t.Errorf("request: %+v", gotReq)
	}
}

func TestOllamaClient_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Generate(context.Background(), "p"); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestOllamaClient_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	if !newTestClient(srv.URL).Available(context.Background()) {
		t.Error("responding service should be available")
	}
	srv.Close()

	// A closed server means connection refused.
	if newTestClient(srv.URL).Available(context.Background()) {
		t.Error("unreachable service should be unavailable")
	}
}

func TestOllamaClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2"},{"name":"nomic-embed-text"}]}`))
	}))
	defer srv.Close()

	names, err := newTestClient(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "llama3.2" || names[1] != "nomic-embed-text" {
		t.Errorf("models: %v", names)
	}
}

func TestOllamaClient_Pull(t *testing.T) {
	var gotReq pullRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Pull(context.Background(), "mistral"); err != nil {
		t.Fatal(err)
	}
	if gotReq.Name != "mistral" || gotReq.Stream {
		t.Errorf("request: %+v", gotReq)
	}

	// An empty model name falls back to the configured generation model.
	if err := c.Pull(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if gotReq.Name != "llama3.2" {
		t.Errorf("default pull model: %s", gotReq.Name)
	}
}

func TestOllamaClient_PullError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).Pull(context.Background(), "ghost"); err == nil {
		t.Error("expected error on non-200 response")
	}
}
