package sentiment

import "context"

// Classifier exposes the minimal surface required by the service layer.
// Classify receives one batch and must return one prediction per text, in order.
type Classifier interface {
	Classify(ctx context.Context, texts []string) ([]Prediction, error)
	Close() error
	ModelID() string
}

// Loader builds a Classifier from model settings. It may block for a long time.
type Loader func(ctx context.Context, cfg ModelConfig) (Classifier, error)
