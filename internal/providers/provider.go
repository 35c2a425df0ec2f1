// internal/providers/provider.go

// Package providers defines the interface for issuing measured inference
// requests against local model servers. It gives the measurement loop one
// abstraction for sending a prompt and collecting the server's own token and
// timing accounting, regardless of the backend implementation (e.g., Ollama,
// llama.cpp).
package providers

import (
	"context"
	"time"

	"github.com/mwiater/tachys/internal/appconfig"
)

// ChatMessage represents a single message in a chat exchange.
// It contains the role of the message sender (e.g., "user", "assistant") and the message content.
type ChatMessage struct {
	Role    string
	Content string
}

// Metadata contains the server-side accounting for one completed request.
// Durations are nanoseconds exactly as the server reported them; no local
// clock is involved, so repeated runs against an idle server are comparable.
type Metadata struct {
	Model              string
	CreatedAt          time.Time
	Done               bool
	TotalDuration      int64
	LoadDuration       int64
	PromptEvalCount    int
	PromptEvalDuration int64
	EvalCount          int
	EvalDuration       int64
}

// MeasureRequest encapsulates all the information needed to issue one measured request.
type MeasureRequest struct {
	Host             appconfig.Host
	Model            string
	Prompt           string
	DisableStreaming bool
}

// MeasureCallbacks defines the callback functions invoked while a request runs.
// OnChunk is called for each response chunk received, and OnComplete is called
// once with the final accounting when the server reports the request done.
type MeasureCallbacks struct {
	OnChunk    func(ChatMessage) error
	OnComplete func(Metadata) error
}

// Provider is the interface every measurement backend must implement.
type Provider interface {
	// LoadedModels returns a list of models that are currently loaded into memory on the host.
	LoadedModels(ctx context.Context, host appconfig.Host) ([]string, error)
	// EnsureModelReady checks if a model is ready to be used and loads it if necessary.
	EnsureModelReady(ctx context.Context, host appconfig.Host, model string) error
	// Measure sends a single prompt and reports chunks plus final accounting through callbacks.
	Measure(ctx context.Context, req MeasureRequest, callbacks MeasureCallbacks) error
	// Close cleans up any resources used by the provider.
	Close() error
}
