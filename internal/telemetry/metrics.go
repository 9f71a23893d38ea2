package telemetry

import (
	"context"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/metrics"
)

// MetricsSink folds records into the in-process metrics manager under
// "telemetry/<provider>".
type MetricsSink struct{}

func (MetricsSink) Name() string { return "metrics" }

func (MetricsSink) Write(_ context.Context, r Record) error {
	topic := "telemetry/" + r.ProviderID
	if r.Success {
		MetricSuccess(topic, "attempt")
		MetricOutcome("telemetry/summarize", "fallback", string(r.UsedFallback))
		MetricAdd(topic, "output_chars", int64(r.OutputLength))
	} else {
		MetricFailWithReason(topic, "attempt", r.ErrorKind)
	}
	MetricDuration(topic, "elapsed", time.Duration(r.ElapsedMs)*time.Millisecond)
	MetricAdd(topic, "input_chars", int64(r.InputLength))
	return nil
}

func (MetricsSink) Close() error { return nil }
