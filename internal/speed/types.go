// internal/speed/types.go
package speed

import (
	"math"
	"strconv"
	"time"
)

// nanosPerSecond converts the nanosecond durations reported by providers
// into seconds for throughput math.
const nanosPerSecond = 1e9

// TPS is a tokens-per-second value. A NaN value marks a measurement whose
// phase duration was reported as zero, which makes the rate undefined.
// NaN values serialize as JSON null and are excluded from means.
type TPS float64

// IsNaN reports whether the value is undefined.
func (t TPS) IsNaN() bool {
	return math.IsNaN(float64(t))
}

// MarshalJSON emits null for undefined values so that records stay valid JSON.
func (t TPS) MarshalJSON() ([]byte, error) {
	if t.IsNaN() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(t), 'f', -1, 64), nil
}

// UnmarshalJSON accepts null as the undefined value.
func (t *TPS) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TPS(math.NaN())
		return nil
	}
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*t = TPS(value)
	return nil
}

// TokensPerSecond computes a throughput from a token count and a duration in
// nanoseconds. Providers occasionally report a zero duration for a phase, for
// example when a prompt is served entirely from cache. Dividing by zero would
// produce a misleading rate, so durations of zero or less yield NaN and the
// measurement is excluded from means and rendered as "n/a".
func TokensPerSecond(tokens int, durationNanos int64) TPS {
	if durationNanos <= 0 {
		return TPS(math.NaN())
	}
	return TPS(float64(tokens) / (float64(durationNanos) / nanosPerSecond))
}

// Mean returns the arithmetic mean of the defined values. Undefined values
// are skipped rather than poisoning the mean. The mean of zero defined
// values is itself undefined.
func Mean(values []TPS) TPS {
	var sum float64
	var count int
	for _, value := range values {
		if value.IsNaN() {
			continue
		}
		sum += float64(value)
		count++
	}
	if count == 0 {
		return TPS(math.NaN())
	}
	return TPS(sum / float64(count))
}

// Measurement captures the throughput of a single model/prompt/repeat run.
type Measurement struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Repeat int    `json:"repeat"`

	PromptEvalTPS TPS `json:"promptEvalTps"`
	ResponseTPS   TPS `json:"responseTps"`
	TotalTPS      TPS `json:"totalTps"`

	PromptTokenCount   int `json:"promptTokenCount"`
	ResponseTokenCount int `json:"responseTokenCount"`

	ModelLoadTimeSec  float64 `json:"modelLoadTimeSec"`
	PromptEvalTimeSec float64 `json:"promptEvalTimeSec"`
	ResponseTimeSec   float64 `json:"responseTimeSec"`
	TotalTimeSec      float64 `json:"totalTimeSec"`

	TimeToFirstToken time.Duration `json:"timeToFirstToken"`
}

// ModelReport aggregates every measurement taken for one model along with
// the per-column means shown in the summary row.
type ModelReport struct {
	Model             string        `json:"model"`
	Measurements      []Measurement `json:"measurements"`
	MeanPromptEvalTPS TPS           `json:"meanPromptEvalTps"`
	MeanResponseTPS   TPS           `json:"meanResponseTps"`
}

func secondsFromNanos(nanos int64) float64 {
	return float64(nanos) / nanosPerSecond
}
