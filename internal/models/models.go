// internal/models/models.go
// Package models manages model lifecycle operations on the measurement host.
// It talks to the Ollama management API directly; providers own the
// measurement path, this package owns listing and unloading.
package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/mwiater/tachys/internal/appconfig"
)

// defaultRequestTimeout defines the fallback HTTP timeout for host interactions.
const defaultRequestTimeout = 120 * time.Second

var (
	statusOK     = color.New(color.FgGreen).SprintFunc()
	statusFailed = color.New(color.FgRed).SprintFunc()
)

// Host performs model management calls against an Ollama server.
type Host struct {
	Name           string
	URL            string
	client         *http.Client
	requestTimeout time.Duration
}

// NewHost builds a management host from the active configuration.
func NewHost(cfg *appconfig.Config) *Host {
	target := cfg.TargetHost()
	timeout := cfg.RequestTimeout()
	return &Host{
		Name:           target.Name,
		URL:            target.URL,
		client:         &http.Client{Timeout: timeout},
		requestTimeout: timeout,
	}
}

// httpClient returns the explicitly configured HTTP client or the shared default client.
func (h *Host) httpClient() *http.Client {
	if h.client != nil {
		return h.client
	}
	return http.DefaultClient
}

// effectiveTimeout resolves the timeout to use for outbound HTTP requests.
func (h *Host) effectiveTimeout() time.Duration {
	if h.requestTimeout > 0 {
		return h.requestTimeout
	}
	return defaultRequestTimeout
}

// doRequest executes an HTTP request against the management API with context cancellation support.
func (h *Host) doRequest(method, path string, body io.Reader, contentType string) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.effectiveTimeout())
	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", h.URL, path), body)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

// ListRawModels returns the models available on the host without styling markup.
func (h *Host) ListRawModels() ([]string, error) {
	resp, cancel, err := h.doRequest(http.MethodGet, "/api/tags", nil, "")
	if err != nil {
		return nil, fmt.Errorf("could not list models: Ollama is not accessible on %s", h.Name)
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("could not list models: %s", strings.TrimSpace(string(bodyBytes)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body from %s: %v", h.Name, err)
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &tagsResp); err != nil {
		return nil, fmt.Errorf("error parsing models from %s: %v", h.Name, err)
	}

	var names []string
	for _, model := range tagsResp.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

// ListModels returns the models available on the host, labeling currently loaded entries.
func (h *Host) ListModels() ([]string, error) {
	modelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	loadedModelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	running, err := h.RunningModels()
	if err != nil {
		return nil, fmt.Errorf("could not get running models: %v", err)
	}
	names, err := h.ListRawModels()
	if err != nil {
		return nil, err
	}

	var entries []string
	for _, name := range names {
		if _, ok := running[name]; ok {
			entries = append(entries, loadedModelStyle.Render(fmt.Sprintf("- %s (CURRENTLY LOADED)", name)))
		} else {
			entries = append(entries, modelStyle.Render(fmt.Sprintf("- %s", name)))
		}
	}
	return entries, nil
}

// RunningModels returns the set of currently loaded models by querying /api/ps.
func (h *Host) RunningModels() (map[string]struct{}, error) {
	running := make(map[string]struct{})

	resp, cancel, err := h.doRequest(http.MethodGet, "/api/ps", nil, "")
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("could not get running models: %s", strings.TrimSpace(string(bodyBytes)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var psResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &psResp); err != nil {
		return nil, err
	}

	for _, model := range psResp.Models {
		running[model.Name] = struct{}{}
	}
	return running, nil
}

// UnloadModel unloads a model by sending a chat request with keep_alive set to 0.
func (h *Host) UnloadModel(model string) {
	payload := map[string]any{"model": model, "keep_alive": 0}
	body, _ := json.Marshal(payload)

	resp, cancel, err := h.doRequest(http.MethodPost, "/api/chat", bytes.NewReader(body), "application/json")
	if err != nil {
		fmt.Println(statusFailed(fmt.Sprintf("Error unloading model %s on %s: %v", model, h.Name, err)))
		return
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		fmt.Println(statusFailed(fmt.Sprintf("Error unloading model %s on %s: %s", model, h.Name, strings.TrimSpace(string(respBody)))))
	}
}

// ListModels prints the models available on the configured host, indicating
// which are currently loaded.
func ListModels(cfg *appconfig.Config) {
	if cfg == nil {
		fmt.Println("configuration is not initialized")
		return
	}

	host := NewHost(cfg)
	nodeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255"))

	entries, err := host.ListModels()
	if err != nil {
		fmt.Println(statusFailed(fmt.Sprintf("Error listing models on %s: %v", host.Name, err)))
		return
	}

	fmt.Println(nodeStyle.Render(fmt.Sprintf("%s:", host.Name)))
	for _, entry := range entries {
		fmt.Println("  " + entry)
	}
	fmt.Println()
}

// UnloadModels unloads every currently loaded model on the configured host.
// Only Ollama exposes an unload call; other providers are reported and skipped.
func UnloadModels(cfg *appconfig.Config) {
	if cfg == nil {
		fmt.Println("configuration is not initialized")
		return
	}
	if cfg.ProviderName() != "ollama" {
		fmt.Printf("Unloading models is not supported for provider %s\n", cfg.ProviderName())
		return
	}

	host := NewHost(cfg)
	fmt.Printf("Unloading models for %s...\n", host.Name)
	running, err := host.RunningModels()
	if err != nil {
		fmt.Println(statusFailed(fmt.Sprintf("Error getting running models from %s: %v", host.Name, err)))
		return
	}
	if len(running) == 0 {
		fmt.Println("No models are currently loaded.")
		return
	}

	names := make([]string, 0, len(running))
	for name := range running {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  -> Unloading model: %s on %s\n", name, host.Name)
		host.UnloadModel(name)
	}
	fmt.Println(statusOK("All model unload commands have finished."))
}
