// scripts/llamacpp_integration_check.go
//
// Manual probe for llama.cpp hosts. It exercises the endpoints a measurement
// run depends on: the /models inventory, the optional /models/load router
// endpoint, and the timings block on /completion responses.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mwiater/tachys/internal/appconfig"
)

type llamaModel struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Model  string      `json:"model"`
	Path   string      `json:"path"`
	Status statusField `json:"status"`
}

type modelsResponse struct {
	Data   []llamaModel `json:"data"`
	Models []llamaModel `json:"models"`
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

func main() {
	configPath := flag.String("config", appconfig.DefaultConfigPath, "Path to config JSON")
	hostURL := flag.String("url", "", "Override llama.cpp host URL")
	modelName := flag.String("model", "", "Override model name for the completion probe")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout")
	flag.Parse()

	baseURL, model, err := resolveTarget(*configPath, *hostURL, *modelName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}

	fmt.Printf("Target host: %s\n", baseURL)
	fmt.Printf("Target model: %s\n\n", model)

	if err := checkModels(client, baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "models check failed: %v\n", err)
	}

	if err := checkLoadEndpoint(client, baseURL, model); err != nil {
		fmt.Fprintf(os.Stderr, "load endpoint check failed: %v\n", err)
	}

	if err := probeCompletionTimings(client, baseURL, model); err != nil {
		fmt.Fprintf(os.Stderr, "completion timings probe failed: %v\n", err)
	}
}

func resolveTarget(configPath, overrideURL, overrideModel string) (string, string, error) {
	if overrideURL != "" {
		model := overrideModel
		if model == "" {
			model = "model"
		}
		return strings.TrimRight(overrideURL, "/"), model, nil
	}

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return "", "", err
	}
	if cfg.ProviderName() != "llamacpp" {
		return "", "", fmt.Errorf("configured provider is %s, not llamacpp", cfg.ProviderName())
	}

	model := overrideModel
	if model == "" {
		model = cfg.ModelList()[0]
	}
	return cfg.HostURL(), model, nil
}

func checkModels(client *http.Client, baseURL string) error {
	fmt.Println("== /models ==")
	req, err := http.NewRequest(http.MethodGet, baseURL+"/models", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Println("Raw:")
	fmt.Println(indentJSON(body))

	parsed, err := parseModels(body)
	if err != nil {
		fmt.Printf("Parse: %v\n\n", err)
		return nil
	}

	fmt.Printf("Parsed models: %d\n", len(parsed))
	for _, m := range parsed {
		fmt.Printf("  - %s (status=%s)\n", modelDisplayName(m), strings.TrimSpace(m.Status.Value))
	}
	fmt.Println()
	return nil
}

func checkLoadEndpoint(client *http.Client, baseURL, model string) error {
	fmt.Println("== /models/load ==")
	status, body, err := postJSON(client, baseURL+"/models/load", map[string]any{"model": model})
	if err != nil {
		return err
	}
	fmt.Printf("Status: %d\n", status)
	switch {
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		fmt.Println("Endpoint absent; single-model servers skip explicit loads.")
	case status >= 200 && status < 300:
		fmt.Println("Load request accepted.")
	default:
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		fmt.Printf("Unexpected response: %s\n", msg)
	}
	fmt.Println()
	return nil
}

func probeCompletionTimings(client *http.Client, baseURL, model string) error {
	fmt.Println("== /completion timings probe ==")
	payload := map[string]any{
		"model":        model,
		"prompt":       "ping",
		"n_predict":    8,
		"stream":       false,
		"cache_prompt": false,
	}
	status, body, err := postJSON(client, baseURL+"/completion", payload)
	if err != nil {
		return err
	}
	fmt.Printf("Status: %d\n", status)
	if status < 200 || status >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		fmt.Printf("Body: %s\n\n", msg)
		return nil
	}

	var parsed struct {
		Timings struct {
			PromptN     *int     `json:"prompt_n"`
			PromptMS    *float64 `json:"prompt_ms"`
			PredictedN  *int     `json:"predicted_n"`
			PredictedMS *float64 `json:"predicted_ms"`
		} `json:"timings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		fmt.Printf("Parse: %v\n\n", err)
		return nil
	}

	fmt.Printf("  timings.prompt_n present=%v\n", parsed.Timings.PromptN != nil)
	fmt.Printf("  timings.prompt_ms present=%v\n", parsed.Timings.PromptMS != nil)
	fmt.Printf("  timings.predicted_n present=%v\n", parsed.Timings.PredictedN != nil)
	fmt.Printf("  timings.predicted_ms present=%v\n", parsed.Timings.PredictedMS != nil)
	if parsed.Timings.PromptMS == nil || parsed.Timings.PredictedMS == nil {
		fmt.Println("Throughput math needs prompt_ms and predicted_ms; this server omits them.")
	}
	fmt.Println()
	return nil
}

func postJSON(client *http.Client, url string, payload map[string]any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
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
	return nil, fmt.Errorf("unrecognized /models response")
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

func indentJSON(body []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}
