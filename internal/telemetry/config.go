package telemetry

import "yashubustudio/reviewlens/sentiment"

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint string
	Enabled  bool
	Insecure bool
}

// FromSettings converts the telemetry block of reviewlens.json.
func FromSettings(t sentiment.TelemetryConfig) Config {
	return Config{
		Endpoint: t.Endpoint,
		Enabled:  t.Enabled,
		Insecure: t.Insecure,
	}
}
