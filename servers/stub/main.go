// servers/stub/main.go
//
// Stub inference host for exercising tachys without a real model. It speaks
// the Ollama surface (/api/tags, /api/ps, /api/generate, /api/chat) and the
// llama.cpp surface (/models, /models/load, /completion), fabricating token
// accounting from configured rates so measurement runs produce stable
// numbers.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
)

type Config struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Models         []string `yaml:"models"`
	PromptEvalTPS  float64  `yaml:"prompt_eval_tps"`
	ResponseTPS    float64  `yaml:"response_tps"`
	ResponseTokens int      `yaml:"response_tokens"`
	LoadMillis     int      `yaml:"load_ms"`
}

var (
	configOnce sync.Once
	configVal  *Config
	configErr  error
)

func loadConfig() (*Config, error) {
	configOnce.Do(func() {
		cfg := defaultConfig()

		path := filepath.Join("servers", "stub", "stub.yml")
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				configErr = err
				return
			}
		case !os.IsNotExist(err):
			configErr = err
			return
		}

		if cfg.Port <= 0 {
			cfg.Port = 11435
		}
		if len(cfg.Models) == 0 {
			cfg.Models = defaultConfig().Models
		}
		if cfg.PromptEvalTPS <= 0 {
			cfg.PromptEvalTPS = defaultConfig().PromptEvalTPS
		}
		if cfg.ResponseTPS <= 0 {
			cfg.ResponseTPS = defaultConfig().ResponseTPS
		}
		if cfg.ResponseTokens <= 0 {
			cfg.ResponseTokens = defaultConfig().ResponseTokens
		}

		configVal = cfg
	})

	return configVal, configErr
}

func defaultConfig() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           11435,
		Models:         []string{"llama3.1:latest", "gemma3:4b"},
		PromptEvalTPS:  220,
		ResponseTPS:    48,
		ResponseTokens: 48,
		LoadMillis:     350,
	}
}

type Server struct {
	mu     sync.Mutex
	cfg    *Config
	loaded map[string]bool
}

func newServer(cfg *Config) *Server {
	return &Server{cfg: cfg, loaded: make(map[string]bool)}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	s := newServer(cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("stub host: models=%v prompt_eval_tps=%.0f response_tps=%.0f", cfg.Models, cfg.PromptEvalTPS, cfg.ResponseTPS)
	log.Printf("listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/tags", s.handleTags)
	mux.HandleFunc("GET /api/ps", s.handlePS)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("POST /models/load", s.handleModelLoad)
	mux.HandleFunc("POST /completion", s.handleCompletion)

	return mux
}

func (s *Server) knownModel(name string) bool {
	for _, model := range s.cfg.Models {
		if model == name {
			return true
		}
	}
	return false
}

func (s *Server) isLoaded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[name]
}

// markLoaded records a model as resident and reports whether this load was a
// cold start.
func (s *Server) markLoaded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cold := !s.loaded[name]
	s.loaded[name] = true
	return cold
}

func (s *Server) markUnloaded(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loaded, name)
}

// markOnlyLoaded swaps the single model slot, mirroring a llama.cpp router.
func (s *Server) markOnlyLoaded(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for model := range s.loaded {
		delete(s.loaded, model)
	}
	s.loaded[name] = true
}

type namedModel struct {
	Name string `json:"name"`
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	models := make([]namedModel, 0, len(s.cfg.Models))
	for _, model := range s.cfg.Models {
		models = append(models, namedModel{Name: model})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handlePS(w http.ResponseWriter, _ *http.Request) {
	models := make([]namedModel, 0)
	for _, model := range s.cfg.Models {
		if s.isLoaded(model) {
			models = append(models, namedModel{Name: model})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt,omitempty"`
	Stream *bool  `json:"stream,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if !s.knownModel(req.Model) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("model %q not found", req.Model)})
		return
	}

	s.markLoaded(req.Model)
	writeJSON(w, http.StatusOK, map[string]any{
		"model":       req.Model,
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"response":    "",
		"done":        true,
		"done_reason": "load",
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages,omitempty"`
	Stream    *bool         `json:"stream,omitempty"`
	KeepAlive *float64      `json:"keep_alive,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if !s.knownModel(req.Model) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("model %q not found", req.Model)})
		return
	}

	// keep_alive: 0 with no messages is Ollama's unload request.
	if req.KeepAlive != nil && *req.KeepAlive == 0 && len(req.Messages) == 0 {
		s.markUnloaded(req.Model)
		writeJSON(w, http.StatusOK, map[string]any{
			"model":       req.Model,
			"done":        true,
			"done_reason": "unload",
		})
		return
	}

	prompt := ""
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			prompt = msg.Content
		}
	}

	cold := s.markLoaded(req.Model)
	acct := s.accounting(prompt, s.cfg.ResponseTokens, cold)
	words := replyWords(s.cfg.ResponseTokens)

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	if !stream {
		writeJSON(w, http.StatusOK, mergeMaps(map[string]any{
			"model":   req.Model,
			"message": chatMessage{Role: "assistant", Content: strings.Join(words, " ")},
			"done":    true,
		}, acct))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for _, word := range words {
		_ = enc.Encode(map[string]any{
			"model":   req.Model,
			"message": chatMessage{Role: "assistant", Content: word + " "},
			"done":    false,
		})
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(2 * time.Millisecond)
	}
	_ = enc.Encode(mergeMaps(map[string]any{
		"model":   req.Model,
		"message": chatMessage{Role: "assistant", Content: ""},
		"done":    true,
	}, acct))
	if flusher != nil {
		flusher.Flush()
	}
}

// accounting fabricates Ollama-style nanosecond accounting from the
// configured rates.
func (s *Server) accounting(prompt string, responseTokens int, cold bool) map[string]any {
	promptTokens := len(strings.Fields(prompt))
	if promptTokens == 0 {
		promptTokens = 1
	}

	promptEvalNs := int64(float64(promptTokens) / s.cfg.PromptEvalTPS * 1e9)
	evalNs := int64(float64(responseTokens) / s.cfg.ResponseTPS * 1e9)
	loadNs := int64(time.Millisecond)
	if cold {
		loadNs = int64(s.cfg.LoadMillis) * int64(time.Millisecond)
	}

	return map[string]any{
		"total_duration":       loadNs + promptEvalNs + evalNs,
		"load_duration":        loadNs,
		"prompt_eval_count":    promptTokens,
		"prompt_eval_duration": promptEvalNs,
		"eval_count":           responseTokens,
		"eval_duration":        evalNs,
	}
}

type routerModel struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := make([]routerModel, 0, len(s.cfg.Models))
	for _, model := range s.cfg.Models {
		status := "unloaded"
		if s.isLoaded(model) {
			status = "loaded"
		}
		models = append(models, routerModel{ID: model, Status: status})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models})
}

func (s *Server) handleModelLoad(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"message": "invalid JSON: " + err.Error()}})
		return
	}
	if !s.knownModel(req.Model) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"message": fmt.Sprintf("model %q not found", req.Model)}})
		return
	}

	s.markOnlyLoaded(req.Model)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type completionRequest struct {
	Model       string `json:"model,omitempty"`
	Prompt      string `json:"prompt"`
	Stream      *bool  `json:"stream,omitempty"`
	CachePrompt *bool  `json:"cache_prompt,omitempty"`
	NPredict    *int   `json:"n_predict,omitempty"`
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"message": "invalid JSON: " + err.Error()}})
		return
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Models[0]
	} else if !s.knownModel(model) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"message": fmt.Sprintf("model %q not found", model)}})
		return
	}
	s.markOnlyLoaded(model)

	tokens := s.cfg.ResponseTokens
	if req.NPredict != nil && *req.NPredict > 0 {
		tokens = *req.NPredict
	}
	words := replyWords(tokens)
	timings := s.timings(req.Prompt, tokens)

	stream := false
	if req.Stream != nil {
		stream = *req.Stream
	}

	if !stream {
		writeJSON(w, http.StatusOK, map[string]any{
			"content": strings.Join(words, " "),
			"stop":    true,
			"model":   model,
			"timings": timings,
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, word := range words {
		writeEvent(w, map[string]any{"content": word + " ", "stop": false})
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(2 * time.Millisecond)
	}
	writeEvent(w, map[string]any{
		"content": "",
		"stop":    true,
		"model":   model,
		"timings": timings,
	})
	if flusher != nil {
		flusher.Flush()
	}
}

// timings fabricates the llama.cpp millisecond accounting block.
func (s *Server) timings(prompt string, responseTokens int) map[string]any {
	promptTokens := len(strings.Fields(prompt))
	if promptTokens == 0 {
		promptTokens = 1
	}

	return map[string]any{
		"prompt_n":     promptTokens,
		"prompt_ms":    float64(promptTokens) / s.cfg.PromptEvalTPS * 1000,
		"predicted_n":  responseTokens,
		"predicted_ms": float64(responseTokens) / s.cfg.ResponseTPS * 1000,
	}
}

var cannedWords = []string{"Why", "did", "the", "model", "cross", "the", "context", "window?", "To", "get", "to", "the", "other", "token."}

func replyWords(n int) []string {
	words := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, cannedWords[i%len(cannedWords)])
	}
	return words
}

func writeEvent(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func mergeMaps(dst, src map[string]any) map[string]any {
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
