// internal/providers/llamacpp/provider_test.go
package llamacpp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/providers"
)

// TestMeasureStreamingTimings verifies SSE decoding and the millisecond to
// nanosecond conversion of the final timings block.
func TestMeasureStreamingTimings(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {\"content\":\"Hello \",\"stop\":false}\n\n"))
		_, _ = w.Write([]byte("data: {\"content\":\"there.\",\"stop\":false}\n\n"))
		_, _ = w.Write([]byte("data: {\"content\":\"\",\"stop\":true,\"model\":\"llama-7b\",\"timings\":{\"prompt_n\":10,\"prompt_ms\":100.0,\"predicted_n\":25,\"predicted_ms\":500.0}}\n\n"))
	}))
	defer server.Close()

	cfg := &appconfig.Config{TimeoutSeconds: 5}
	provider := New(cfg)

	req := providers.MeasureRequest{
		Host:   appconfig.Host{Name: "test", URL: server.URL},
		Model:  "llama-7b",
		Prompt: "Say hello",
	}

	var content strings.Builder
	var meta providers.Metadata
	err := provider.Measure(context.Background(), req, providers.MeasureCallbacks{
		OnChunk: func(msg providers.ChatMessage) error {
			content.WriteString(msg.Content)
			return nil
		},
		OnComplete: func(m providers.Metadata) error {
			meta = m
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Measure returned error: %v", err)
	}

	if content.String() != "Hello there." {
		t.Fatalf("unexpected streamed content: %q", content.String())
	}
	if meta.Model != "llama-7b" || !meta.Done {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.PromptEvalCount != 10 || meta.PromptEvalDuration != 100000000 {
		t.Fatalf("prompt timings not converted: %+v", meta)
	}
	if meta.EvalCount != 25 || meta.EvalDuration != 500000000 {
		t.Fatalf("predicted timings not converted: %+v", meta)
	}
	if meta.TotalDuration != 600000000 {
		t.Fatalf("total should sum both phases, got %d", meta.TotalDuration)
	}
}

// TestMeasureSingleResponse verifies the non-streaming path.
func TestMeasureSingleResponse(t *testing.T) {
	t.Parallel()

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capturedBody = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":"done","stop":true,"timings":{"prompt_n":4,"prompt_ms":50.5,"predicted_n":8,"predicted_ms":80.25}}`))
	}))
	defer server.Close()

	cfg := &appconfig.Config{TimeoutSeconds: 5}
	provider := New(cfg)

	req := providers.MeasureRequest{
		Host:             appconfig.Host{Name: "test", URL: server.URL},
		Model:            "llama-7b",
		Prompt:           "Say hello",
		DisableStreaming: true,
	}

	var chunks []providers.ChatMessage
	var meta providers.Metadata
	err := provider.Measure(context.Background(), req, providers.MeasureCallbacks{
		OnChunk: func(msg providers.ChatMessage) error {
			chunks = append(chunks, msg)
			return nil
		},
		OnComplete: func(m providers.Metadata) error {
			meta = m
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Measure returned error: %v", err)
	}

	if len(chunks) != 1 || chunks[0].Content != "done" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if meta.PromptEvalDuration != 50500000 || meta.EvalDuration != 80250000 {
		t.Fatalf("fractional milliseconds mishandled: %+v", meta)
	}

	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["prompt"] != "Say hello" {
		t.Fatalf("unexpected prompt payload: %+v", payload)
	}
	if cache, ok := payload["cache_prompt"].(bool); !ok || cache {
		t.Fatalf("expected cache_prompt=false, got %v", payload["cache_prompt"])
	}
	if stream, ok := payload["stream"].(bool); !ok || stream {
		t.Fatalf("expected stream=false, got %v", payload["stream"])
	}
}

// TestMeasureServerError verifies failures identify the endpoint and body.
func TestMeasureServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading model"))
	}))
	defer server.Close()

	cfg := &appconfig.Config{TimeoutSeconds: 5}
	provider := New(cfg)

	req := providers.MeasureRequest{
		Host:   appconfig.Host{Name: "test", URL: server.URL},
		Prompt: "hi",
	}
	err := provider.Measure(context.Background(), req, providers.MeasureCallbacks{})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if !strings.Contains(err.Error(), "/completion returned") || !strings.Contains(err.Error(), "loading model") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestParseModelsVariants exercises the tolerant /models response parsing.
func TestParseModelsVariants(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{name: "wrapped models", body: `{"models":[{"name":"a"},{"name":"b"}]}`, want: []string{"a", "b"}},
		{name: "openai data", body: `{"data":[{"id":"c"}]}`, want: []string{"c"}},
		{name: "bare array", body: `[{"model":"d"}]`, want: []string{"d"}},
		{name: "name strings", body: `{"models":["e","f"]}`, want: []string{"e", "f"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			models, err := parseModels([]byte(tc.body))
			if err != nil {
				t.Fatalf("parseModels error: %v", err)
			}
			if len(models) != len(tc.want) {
				t.Fatalf("expected %d models, got %d", len(tc.want), len(models))
			}
			for i, want := range tc.want {
				if got := modelDisplayName(models[i]); got != want {
					t.Fatalf("model %d: want %q got %q", i, want, got)
				}
			}
		})
	}

	if _, err := parseModels([]byte(`{"other":true}`)); err == nil {
		t.Fatal("expected an error for an unrecognized response shape")
	}
}

// TestStatusFieldUnmarshal covers both status encodings the router emits.
func TestStatusFieldUnmarshal(t *testing.T) {
	var s statusField
	if err := json.Unmarshal([]byte(`"loaded"`), &s); err != nil || s.Value != "loaded" {
		t.Fatalf("string status: %v %q", err, s.Value)
	}
	if err := json.Unmarshal([]byte(`{"value":"unloaded"}`), &s); err != nil || s.Value != "unloaded" {
		t.Fatalf("object status: %v %q", err, s.Value)
	}
	if err := json.Unmarshal([]byte(`null`), &s); err != nil || s.Value != "" {
		t.Fatalf("null status: %v %q", err, s.Value)
	}
}

// TestEnsureModelReadyNoRouter verifies plain servers without router endpoints
// are tolerated.
func TestEnsureModelReadyNoRouter(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &appconfig.Config{TimeoutSeconds: 5}
	provider := New(cfg)

	err := provider.EnsureModelReady(context.Background(), appconfig.Host{Name: "plain", URL: server.URL}, "llama-7b")
	if err != nil {
		t.Fatalf("expected 404 to be tolerated, got %v", err)
	}
}

// TestLoadedModelsFiltersStatus verifies only loaded models are reported.
func TestLoadedModelsFiltersStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"a","status":"loaded"},{"name":"b","status":"unloaded"},{"name":"c","status":{"value":"loaded"}}]}`))
	}))
	defer server.Close()

	cfg := &appconfig.Config{TimeoutSeconds: 5}
	provider := New(cfg)

	loaded, err := provider.LoadedModels(context.Background(), appconfig.Host{Name: "router", URL: server.URL})
	if err != nil {
		t.Fatalf("LoadedModels error: %v", err)
	}
	if len(loaded) != 2 || loaded[0] != "a" || loaded[1] != "c" {
		t.Fatalf("unexpected loaded set: %v", loaded)
	}
}
