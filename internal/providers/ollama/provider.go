// internal/providers/ollama/provider.go
// Package ollama provides a measurement Provider backed by Ollama-compatible HTTP endpoints.
package ollama

import (
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

// Provider implements the providers.Provider interface using Ollama HTTP APIs.
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

// ollamaPsResponse defines the structure of the response from the /api/ps endpoint.
type ollamaPsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// streamChunk defines the structure of a single chunk in a streaming response.
// The duration fields are nanoseconds and only populated on the final chunk.
type streamChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done               bool  `json:"done"`
	TotalDuration      int64 `json:"total_duration"`
	LoadDuration       int64 `json:"load_duration"`
	PromptEvalCount    int   `json:"prompt_eval_count"`
	PromptEvalDuration int64 `json:"prompt_eval_duration"`
	EvalCount          int   `json:"eval_count"`
	EvalDuration       int64 `json:"eval_duration"`
}

// hostIdentifier resolves a human-readable identifier for log lines.
func hostIdentifier(host appconfig.Host) string {
	if strings.TrimSpace(host.Name) != "" {
		return host.Name
	}
	return host.URL
}

// LoadedModels returns the models currently loaded in memory on the host.
func (p *Provider) LoadedModels(ctx context.Context, host appconfig.Host) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := host.URL + "/api/ps"
	if p.debug {
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: /api/ps returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if p.debug {
		logging.LogRequest("LLM->TACHYS", hostIdentifier(host), "", body)
	}

	var ps ollamaPsResponse
	if err := json.Unmarshal(body, &ps); err != nil {
		return nil, err
	}

	names := make([]string, len(ps.Models))
	for i, m := range ps.Models {
		names[i] = m.Name
	}
	return names, nil
}

// EnsureModelReady triggers a lightweight generate request to make sure the model is loaded.
// Loading this way keeps the load cost out of the first measured request.
func (p *Provider) EnsureModelReady(ctx context.Context, host appconfig.Host, model string) error {
	payload := map[string]any{
		"model": model,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if p.debug {
		logging.LogRequest("TACHYS->LLM", hostIdentifier(host), model, body)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host.URL+"/api/generate", bytes.NewReader(body))
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

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: /api/generate returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	return nil
}

// Measure issues a chat request for a single prompt and forwards output to the provided callbacks.
func (p *Provider) Measure(ctx context.Context, req providers.MeasureRequest, callbacks providers.MeasureCallbacks) error {
	hostID := hostIdentifier(req.Host)

	streamEnabled := !req.DisableStreaming
	payload := map[string]any{
		"model": req.Model,
		"messages": []providers.ChatMessage{
			{Role: "user", Content: req.Prompt},
		},
		"stream": streamEnabled,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if p.debug {
		if pretty, perr := json.MarshalIndent(payload, "", "  "); perr == nil {
			logging.LogRequest("TACHYS->LLM", hostID, req.Model, pretty)
		} else {
			logging.LogRequest("TACHYS->LLM", hostID, req.Model, body)
		}
	}

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, req.Host.URL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if p.debug {
			logging.LogRequest("LLM->TACHYS", hostID, req.Model, body)
		}
		return fmt.Errorf("ollama: /api/chat returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if !streamEnabled {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if p.debug {
			logging.LogRequest("LLM->TACHYS", hostID, req.Model, body)
		}
		var result streamChunk
		if err := json.Unmarshal(body, &result); err != nil {
			return err
		}
		if callbacks.OnChunk != nil && result.Message.Content != "" {
			role := result.Message.Role
			if role == "" {
				role = "assistant"
			}
			if err := callbacks.OnChunk(providers.ChatMessage{Role: role, Content: result.Message.Content}); err != nil {
				return err
			}
		}
		return p.complete(req.Model, result, callbacks)
	}

	decoder := json.NewDecoder(resp.Body)
	var final streamChunk
	for {
		var chunk streamChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if p.debug {
			if data, err := json.Marshal(chunk); err == nil {
				logging.LogRequest("LLM->TACHYS", hostID, req.Model, data)
			}
		}

		if callbacks.OnChunk != nil {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: chunk.Message.Role, Content: chunk.Message.Content}); err != nil {
				return err
			}
		}

		if chunk.Done {
			final = chunk
			break
		}
	}

	return p.complete(req.Model, final, callbacks)
}

// complete maps the final chunk into Metadata and invokes the completion callback.
func (p *Provider) complete(requestedModel string, final streamChunk, callbacks providers.MeasureCallbacks) error {
	if callbacks.OnComplete == nil {
		return nil
	}
	modelName := final.Model
	if modelName == "" {
		modelName = requestedModel
	}
	meta := providers.Metadata{
		Model:              modelName,
		CreatedAt:          time.Now(),
		Done:               final.Done,
		TotalDuration:      final.TotalDuration,
		LoadDuration:       final.LoadDuration,
		PromptEvalCount:    final.PromptEvalCount,
		PromptEvalDuration: final.PromptEvalDuration,
		EvalCount:          final.EvalCount,
		EvalDuration:       final.EvalDuration,
	}
	return callbacks.OnComplete(meta)
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}
