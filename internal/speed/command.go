// internal/speed/command.go
package speed

import (
	"errors"
	"log"
	"os"

	"github.com/mwiater/tachys/internal/appconfig"
)

// RunMeasurement is the CLI entry point for a measurement run. It walks the
// full model/prompt/repeat matrix and renders one table per model, plus the
// raw records as JSON when requested.
func RunMeasurement(cfg *appconfig.Config) error {
	if cfg == nil {
		return errors.New("configuration is not initialized")
	}
	log.Printf("Measuring %d model(s), %d prompt(s), %d repeat(s) against %s",
		len(cfg.ModelList()), len(cfg.PromptList()), cfg.Repeats, cfg.HostURL())

	reports, err := MeasureModels(cfg)
	if err != nil {
		return err
	}

	RenderReports(os.Stdout, reports)
	if cfg.JSONRecords {
		return WriteRecordsJSON(os.Stdout, reports)
	}
	return nil
}
