// internal/speed/report.go
package speed

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/tachys/internal/util"
)

// Column headers for the throughput tables. The runner measures two phases
// per call, the prompt evaluation and the generated response.
const (
	columnPromptEval = "Prompt eval tps"
	columnResponse   = "Response tps"
)

const (
	labelWidth = 34
	valueWidth = 15
)

var (
	reportTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	reportHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	reportMeanStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
)

// RenderReports writes one throughput table per model to out, in run order.
func RenderReports(out io.Writer, reports []ModelReport) {
	for _, report := range reports {
		renderReport(out, report)
	}
}

func renderReport(out io.Writer, report ModelReport) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, reportTitleStyle.Render(fmt.Sprintf("Model: %s", report.Model)))

	header := fmt.Sprintf("%-*s | %*s | %*s", labelWidth, "Run", valueWidth, columnPromptEval, valueWidth, columnResponse)
	fmt.Fprintln(out, reportHeaderStyle.Render(header))
	fmt.Fprintln(out, strings.Repeat("-", len(header)))

	for _, measurement := range report.Measurements {
		label := fmt.Sprintf("%s #%d", util.TruncateRunes(measurement.Prompt, labelWidth-5), measurement.Repeat)
		fmt.Fprintf(out, "%-*s | %*s | %*s\n",
			labelWidth, label,
			valueWidth, FormatTPS(measurement.PromptEvalTPS),
			valueWidth, FormatTPS(measurement.ResponseTPS))
	}

	fmt.Fprintln(out, strings.Repeat("-", len(header)))
	meanRow := fmt.Sprintf("%-*s | %*s | %*s",
		labelWidth, "Mean",
		valueWidth, FormatTPS(report.MeanPromptEvalTPS),
		valueWidth, FormatTPS(report.MeanResponseTPS))
	fmt.Fprintln(out, reportMeanStyle.Render(meanRow))
}

// FormatTPS renders a throughput value for display. Undefined values render
// as "n/a" rather than a number.
func FormatTPS(value TPS) string {
	if value.IsNaN() {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", float64(value))
}

// WriteRecordsJSON writes the complete measurement records as indented JSON.
func WriteRecordsJSON(out io.Writer, reports []ModelReport) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(reports); err != nil {
		return fmt.Errorf("encoding measurement records: %w", err)
	}
	return nil
}
