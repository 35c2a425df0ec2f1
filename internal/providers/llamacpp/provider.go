// internal/providers/llamacpp/provider.go
// Package llamacpp provides a measurement Provider backed by llama.cpp's HTTP API.
//
// Measurement goes through the native /completion endpoint rather than the
// OpenAI-compatible one: only the native endpoint reports the per-phase
// timings block (prompt_n/prompt_ms, predicted_n/predicted_ms) the
// measurement loop needs.
package llamacpp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/logging"
	"github.com/mwiater/tachys/internal/providers"
)

// Provider implements the providers.Provider interface using llama.cpp HTTP APIs.
type Provider struct {
	client  *http.Client
	timeout time.Duration
	debug   bool
}

// New constructs a Provider configured with the application's request timeout.
func New(cfg *appconfig.Config) *Provider {
	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		timeout: timeout,
		debug:   cfg.Debug,
	}
}

type modelsResponse struct {
	Data   []llamaModel `json:"data"`
	Models []llamaModel `json:"models"`
}

type llamaModel struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Model  string      `json:"model"`
	Path   string      `json:"path"`
	Status statusField `json:"status"`
}

// completionTimings is the server-side accounting block on the final
// /completion response. Durations are milliseconds.
type completionTimings struct {
	PromptN     int     `json:"prompt_n"`
	PromptMS    float64 `json:"prompt_ms"`
	PredictedN  int     `json:"predicted_n"`
	PredictedMS float64 `json:"predicted_ms"`
}

type completionChunk struct {
	Content string            `json:"content"`
	Stop    bool              `json:"stop"`
	Model   string            `json:"model"`
	Timings completionTimings `json:"timings"`
}

// LoadedModels returns the models currently loaded in memory on the host.
func (p *Provider) LoadedModels(ctx context.Context, host appconfig.Host) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	models, err := p.fetchModels(ctx, host, p.debug)
	if err != nil {
		return nil, err
	}

	var loaded []string
	for _, model := range models {
		status := strings.TrimSpace(modelStatusValue(model))
		if strings.EqualFold(status, "loaded") {
			name := modelDisplayName(model)
			if name != "" {
				loaded = append(loaded, name)
			}
		}
	}
	return loaded, nil
}

// EnsureModelReady triggers a load request when the router endpoints are available.
func (p *Provider) EnsureModelReady(ctx context.Context, host appconfig.Host, model string) error {
	payload := map[string]any{"model": model}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := host.URL + "/models/load"
	if p.debug {
		logging.LogRequest("TACHYS->LLM", hostIdentifier(host), model, body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if p.debug {
		logging.LogRequest("LLM->TACHYS", hostIdentifier(host), model, respBody)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		// Router endpoints not available; rely on auto-loading on first request.
		return nil
	}
	if resp.StatusCode >= 400 {
		if isAlreadyLoadedError(resp.StatusCode, respBody) {
			return p.waitForModelLoaded(ctx, host, model)
		}
		return fmt.Errorf("llama.cpp: /models/load returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return p.waitForModelLoaded(ctx, host, model)
}

// Measure issues a native completion request for a single prompt and forwards
// output to the provided callbacks. cache_prompt is disabled so repeat runs
// re-evaluate the prompt; a cached prefix would report a zero prompt phase.
func (p *Provider) Measure(ctx context.Context, req providers.MeasureRequest, callbacks providers.MeasureCallbacks) error {
	hostID := hostIdentifier(req.Host)

	streamEnabled := !req.DisableStreaming
	payload := map[string]any{
		"prompt":       req.Prompt,
		"stream":       streamEnabled,
		"cache_prompt": false,
	}
	if strings.TrimSpace(req.Model) != "" {
		payload["model"] = req.Model
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if p.debug {
		logging.LogRequest("TACHYS->LLM", hostID, req.Model, body)
	}

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := req.Host.URL + "/completion"
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streamEnabled {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if p.debug {
			logging.LogRequest("LLM->TACHYS", hostID, req.Model, raw)
		}
		return fmt.Errorf("llama.cpp: /completion returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	if !streamEnabled {
		return p.handleSingleResponse(resp, req, callbacks)
	}
	return p.handleStreaming(resp, req, callbacks)
}

func (p *Provider) handleSingleResponse(resp *http.Response, req providers.MeasureRequest, callbacks providers.MeasureCallbacks) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if p.debug {
		logging.LogRequest("LLM->TACHYS", hostIdentifier(req.Host), req.Model, body)
	}

	var parsed completionChunk
	if err := json.Unmarshal(body, &parsed); err != nil {
		return err
	}

	if callbacks.OnChunk != nil && parsed.Content != "" {
		if err := callbacks.OnChunk(providers.ChatMessage{Role: "assistant", Content: parsed.Content}); err != nil {
			return err
		}
	}
	return completeFromChunk(req.Model, parsed, callbacks)
}

func (p *Provider) handleStreaming(resp *http.Response, req providers.MeasureRequest, callbacks providers.MeasureCallbacks) error {
	reader := bufio.NewReader(resp.Body)
	var final completionChunk
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		if p.debug {
			logging.LogRequest("LLM->TACHYS", hostIdentifier(req.Host), req.Model, data)
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return err
		}
		if callbacks.OnChunk != nil && chunk.Content != "" {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: "assistant", Content: chunk.Content}); err != nil {
				return err
			}
		}
		if chunk.Stop {
			final = chunk
			break
		}
	}

	return completeFromChunk(req.Model, final, callbacks)
}

// completeFromChunk maps the final chunk's timings into Metadata. llama.cpp
// reports milliseconds and no overall total, so the total is the sum of the
// two phases converted to nanoseconds.
func completeFromChunk(requestedModel string, final completionChunk, callbacks providers.MeasureCallbacks) error {
	if callbacks.OnComplete == nil {
		return nil
	}
	modelName := final.Model
	if modelName == "" {
		modelName = requestedModel
	}
	t := final.Timings
	meta := providers.Metadata{
		Model:              modelName,
		CreatedAt:          time.Now(),
		Done:               final.Stop,
		TotalDuration:      int64((t.PromptMS + t.PredictedMS) * 1e6),
		PromptEvalCount:    t.PromptN,
		PromptEvalDuration: int64(t.PromptMS * 1e6),
		EvalCount:          t.PredictedN,
		EvalDuration:       int64(t.PredictedMS * 1e6),
	}
	return callbacks.OnComplete(meta)
}

func parseModels(body []byte) ([]llamaModel, error) {
	var wrapped modelsResponse
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if len(wrapped.Models) > 0 {
			return wrapped.Models, nil
		}
		if len(wrapped.Data) > 0 {
			return wrapped.Data, nil
		}
	}

	var direct []llamaModel
	if err := json.Unmarshal(body, &direct); err == nil && len(direct) > 0 {
		return direct, nil
	}

	var names struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(body, &names); err == nil && len(names.Models) > 0 {
		out := make([]llamaModel, 0, len(names.Models))
		for _, name := range names.Models {
			out = append(out, llamaModel{Name: name})
		}
		return out, nil
	}

	return nil, fmt.Errorf("llama.cpp: unrecognized /models response")
}

func modelDisplayName(model llamaModel) string {
	if strings.TrimSpace(model.ID) != "" {
		return strings.TrimSpace(model.ID)
	}
	if strings.TrimSpace(model.Name) != "" {
		return strings.TrimSpace(model.Name)
	}
	if strings.TrimSpace(model.Model) != "" {
		return strings.TrimSpace(model.Model)
	}
	return strings.TrimSpace(model.Path)
}

type statusField struct {
	Value string
}

func (s *statusField) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		s.Value = ""
		return nil
	}
	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		s.Value = v
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Value = obj.Value
	return nil
}

func modelStatusValue(model llamaModel) string {
	return strings.TrimSpace(model.Status.Value)
}

func (p *Provider) fetchModels(ctx context.Context, host appconfig.Host, logIO bool) ([]llamaModel, error) {
	endpoint := host.URL + "/models"
	if logIO {
		logging.LogRequest("TACHYS->LLM", hostIdentifier(host), "", map[string]string{"method": http.MethodGet, "url": endpoint})
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if logIO {
		logging.LogRequest("LLM->TACHYS", hostIdentifier(host), "", body)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama.cpp: /models returned %s", resp.Status)
	}

	return parseModels(body)
}

func (p *Provider) waitForModelLoaded(ctx context.Context, host appconfig.Host, model string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		loaded, err := p.isModelLoaded(ctx, host, model)
		if err != nil {
			return err
		}
		if loaded {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("llama.cpp: model %s did not load before timeout", model)
		case <-ticker.C:
		}
	}
}

func (p *Provider) isModelLoaded(ctx context.Context, host appconfig.Host, model string) (bool, error) {
	models, err := p.fetchModels(ctx, host, false)
	if err != nil {
		return false, err
	}
	for _, item := range models {
		if strings.EqualFold(modelDisplayName(item), model) {
			status := strings.ToLower(modelStatusValue(item))
			return status == "loaded", nil
		}
	}
	return false, nil
}

func isAlreadyLoadedError(statusCode int, body []byte) bool {
	if statusCode != http.StatusBadRequest {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(string(body)))
	if strings.Contains(text, "already loaded") {
		return true
	}
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if strings.Contains(strings.ToLower(payload.Error.Message), "already loaded") {
			return true
		}
	}
	return false
}

// hostIdentifier returns a string identifier for a given host, preferring the name over the URL.
func hostIdentifier(host appconfig.Host) string {
	name := strings.TrimSpace(host.Name)
	if name != "" {
		return name
	}
	if url := strings.TrimSpace(host.URL); url != "" {
		return url
	}
	return "llama.cpp-host"
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}
