package telemetry

import (
	"context"
	"time"
)

// NoOpExporter is a recorder that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordPrediction(context.Context, int, int, time.Duration) {}

func (e *NoOpExporter) RecordEvaluation(context.Context, float64, int) {}

func (e *NoOpExporter) RecordFailure(context.Context, string) {}

func (e *NoOpExporter) Close(context.Context) error {
	return nil
}
