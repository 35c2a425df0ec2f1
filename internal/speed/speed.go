// internal/speed/speed.go
// Package speed measures the token throughput of locally served models.
//
// A run walks the configured models in order, and for each model walks the
// configured prompts, repeating each prompt the configured number of times.
// Every combination is measured sequentially so that runs never compete for
// the same server resources.
package speed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/logging"
	"github.com/mwiater/tachys/internal/models"
	"github.com/mwiater/tachys/internal/providerfactory"
	"github.com/mwiater/tachys/internal/providers"
	"github.com/mwiater/tachys/internal/util"
)

// function aliases allow tests to substitute collaborators.
var (
	newProvider  = providerfactory.NewProvider
	unloadModels = models.UnloadModels
)

// chunkOutput receives streamed response chunks in verbose mode.
var chunkOutput io.Writer = os.Stdout

// ProgressEvent describes one model/prompt/repeat combination. Each
// combination produces two events, one when it starts and one with the
// finished Measurement attached.
type ProgressEvent struct {
	Model       string
	Prompt      string
	Repeat      int
	Index       int
	Total       int
	Done        bool
	Measurement *Measurement
}

// ProgressFunc receives progress events while a run is in flight.
type ProgressFunc func(ProgressEvent)

// MeasureModels runs the full measurement matrix for the configured models
// and returns one report per model in configuration order. The first failed
// call aborts the run.
func MeasureModels(cfg *appconfig.Config) ([]ModelReport, error) {
	return MeasureModelsWithProgress(cfg, nil)
}

// MeasureModelsWithProgress is MeasureModels with a callback for interfaces
// that render the run as it happens.
func MeasureModelsWithProgress(cfg *appconfig.Config, progress ProgressFunc) ([]ModelReport, error) {
	if cfg == nil {
		return nil, errors.New("configuration is not initialized")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	defer provider.Close()

	host := cfg.TargetHost()
	modelList := cfg.ModelList()
	promptList := cfg.PromptList()
	repeats := cfg.Repeats
	total := len(modelList) * len(promptList) * repeats

	reports := make([]ModelReport, 0, len(modelList))
	index := 0
	for i, model := range modelList {
		log.Printf("Measuring model %d/%d: %s on %s", i+1, len(modelList), model, host.Name)
		ctx := context.Background()
		if err := provider.EnsureModelReady(ctx, host, model); err != nil {
			return nil, fmt.Errorf("model %s: could not prepare on %s: %w", model, host.Name, err)
		}

		report := ModelReport{Model: model}
		for _, prompt := range promptList {
			for repeat := 1; repeat <= repeats; repeat++ {
				index++
				log.Printf("  [%d/%d] prompt %q run %d/%d", index, total, util.TruncateRunes(prompt, 48), repeat, repeats)
				emit(progress, ProgressEvent{Model: model, Prompt: prompt, Repeat: repeat, Index: index, Total: total})

				measurement, err := measureOnce(ctx, provider, cfg, host, model, prompt, repeat)
				if err != nil {
					return nil, fmt.Errorf("model %s, prompt %q: %w", model, prompt, err)
				}
				report.Measurements = append(report.Measurements, measurement)
				emit(progress, ProgressEvent{Model: model, Prompt: prompt, Repeat: repeat, Index: index, Total: total, Done: true, Measurement: &measurement})
			}
		}
		finalizeReport(&report)
		reports = append(reports, report)

		if cfg.UnloadAfter {
			unloadModels(cfg)
		}
	}
	return reports, nil
}

// measureOnce performs a single chat round trip and converts the provider's
// final accounting into a Measurement. Responses are always streamed so the
// time to first token can be observed.
func measureOnce(ctx context.Context, provider providers.Provider, cfg *appconfig.Config, host appconfig.Host, model, prompt string, repeat int) (Measurement, error) {
	verbose := cfg.Verbose
	start := time.Now()
	var firstToken time.Duration
	sawChunk := false
	var meta providers.Metadata
	complete := false

	request := providers.MeasureRequest{
		Host:   host,
		Model:  model,
		Prompt: prompt,
	}
	callbacks := providers.MeasureCallbacks{
		OnChunk: func(message providers.ChatMessage) error {
			if !sawChunk {
				firstToken = time.Since(start)
				sawChunk = true
			}
			if verbose && message.Content != "" {
				fmt.Fprint(chunkOutput, message.Content)
			}
			return nil
		},
		OnComplete: func(m providers.Metadata) error {
			meta = m
			complete = true
			return nil
		},
	}

	if err := provider.Measure(ctx, request, callbacks); err != nil {
		return Measurement{}, err
	}
	if verbose && sawChunk {
		fmt.Fprintln(chunkOutput)
	}
	if !complete || !meta.Done {
		return Measurement{}, errors.New("no final accounting received from server")
	}

	measurement := newMeasurement(model, prompt, repeat, firstToken, meta)
	if verbose {
		logging.LogEvent("  run %d: prompt eval %d tokens in %.3fs (%s tps), response %d tokens in %.3fs (%s tps)",
			repeat,
			measurement.PromptTokenCount, measurement.PromptEvalTimeSec, FormatTPS(measurement.PromptEvalTPS),
			measurement.ResponseTokenCount, measurement.ResponseTimeSec, FormatTPS(measurement.ResponseTPS))
	}
	return measurement, nil
}

// newMeasurement maps provider accounting onto the throughput record.
func newMeasurement(model, prompt string, repeat int, firstToken time.Duration, meta providers.Metadata) Measurement {
	return Measurement{
		Model:              model,
		Prompt:             prompt,
		Repeat:             repeat,
		PromptEvalTPS:      TokensPerSecond(meta.PromptEvalCount, meta.PromptEvalDuration),
		ResponseTPS:        TokensPerSecond(meta.EvalCount, meta.EvalDuration),
		TotalTPS:           TokensPerSecond(meta.PromptEvalCount+meta.EvalCount, meta.PromptEvalDuration+meta.EvalDuration),
		PromptTokenCount:   meta.PromptEvalCount,
		ResponseTokenCount: meta.EvalCount,
		ModelLoadTimeSec:   secondsFromNanos(meta.LoadDuration),
		PromptEvalTimeSec:  secondsFromNanos(meta.PromptEvalDuration),
		ResponseTimeSec:    secondsFromNanos(meta.EvalDuration),
		TotalTimeSec:       secondsFromNanos(meta.TotalDuration),
		TimeToFirstToken:   firstToken,
	}
}

func finalizeReport(report *ModelReport) {
	promptEval := make([]TPS, 0, len(report.Measurements))
	response := make([]TPS, 0, len(report.Measurements))
	for _, measurement := range report.Measurements {
		promptEval = append(promptEval, measurement.PromptEvalTPS)
		response = append(response, measurement.ResponseTPS)
	}
	report.MeanPromptEvalTPS = Mean(promptEval)
	report.MeanResponseTPS = Mean(response)
}

func emit(progress ProgressFunc, event ProgressEvent) {
	if progress != nil {
		progress(event)
	}
}
