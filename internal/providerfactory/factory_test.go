// internal/providerfactory/factory_test.go
package providerfactory

import (
	"testing"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/providers/llamacpp"
	"github.com/mwiater/tachys/internal/providers/ollama"
)

func TestNewProviderErrorsOnNilConfig(t *testing.T) {
	if _, err := NewProvider(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewProviderDefaultsToOllama(t *testing.T) {
	cfg := &appconfig.Config{Repeats: 1}

	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	if _, ok := provider.(*ollama.Provider); !ok {
		t.Fatalf("expected ollama.Provider, got %T", provider)
	}
}

func TestNewProviderSelectsLlamaCpp(t *testing.T) {
	cfg := &appconfig.Config{Repeats: 1, Provider: "llamacpp"}

	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	if _, ok := provider.(*llamacpp.Provider); !ok {
		t.Fatalf("expected llamacpp.Provider, got %T", provider)
	}
}

func TestNewProviderRejectsUnsupported(t *testing.T) {
	cfg := &appconfig.Config{Repeats: 1, Provider: "vllm"}

	if _, err := NewProvider(cfg); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
