// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/providers"
	"github.com/mwiater/tachys/internal/providers/llamacpp"
	"github.com/mwiater/tachys/internal/providers/ollama"
)

// NewProvider selects and configures the measurement provider for the
// configured backend.
func NewProvider(cfg *appconfig.Config) (providers.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	switch cfg.ProviderName() {
	case "ollama":
		return ollama.New(cfg), nil
	case "llamacpp":
		return llamacpp.New(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q (want ollama or llamacpp)", cfg.Provider)
	}
}
