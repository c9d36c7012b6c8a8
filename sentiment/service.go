package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder receives service level measurements.
type Recorder interface {
	RecordPrediction(ctx context.Context, rows, cached int, took time.Duration)
	RecordEvaluation(ctx context.Context, macroF1 float64, rows int)
	RecordFailure(ctx context.Context, op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPrediction(context.Context, int, int, time.Duration) {}
func (nopRecorder) RecordEvaluation(context.Context, float64, int) {}
func (nopRecorder) RecordFailure(context.Context, string) {}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder installs a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service owns the single in-process model and gates every call on its lifecycle.
type Service struct {
	cfg      Config
	loader   Loader
	logger   *zap.Logger
	recorder Recorder
	cache    *predictionCache

	mu      sync.RWMutex
	state   ModelState
	clf     Classifier
	loadErr error
}

// NewService constructs a service in the uninitialized state. Call Load to bring the model up.
func NewService(cfg Config, loader Loader, logger *zap.Logger, opts ...Option) (*Service, error) {
	if loader == nil {
		return nil, errors.New("model loader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	s := &Service{
		cfg:      cfg,
		loader:   loader,
		logger:   logger,
		recorder: nopRecorder{},
		cache:    newPredictionCache(cfg.Cache),
		state:    StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load runs the loader once. Concurrent or repeated calls while loading or ready are no-ops.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateLoading, StateReady:
		s.mu.Unlock()
		return nil
	case StateUnloaded:
		s.mu.Unlock()
		return errors.New("service is closed")
	}
	s.state = StateLoading
	s.loadErr = nil
	s.mu.Unlock()

	s.logger.Info("loading model",
		zap.String("model_path", s.cfg.Model.ModelPath),
		zap.Int("batch_size", s.cfg.Model.BatchSize),
		zap.Int("max_seq_len", s.cfg.Model.MaxSeqLen))
	start := time.Now()
	clf, err := s.loader(ctx, s.cfg.Model)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnloaded {
		if clf != nil {
			_ = clf.Close()
		}
		return errors.New("service closed while loading")
	}
	if err != nil {
		s.state = StateFailed
		s.loadErr = err
		s.logger.Error("model load failed", zap.Error(err))
		return fmt.Errorf("load model: %w", err)
	}
	s.clf = clf
	s.state = StateReady
	s.logger.Info("model ready",
		zap.String("model_id", clf.ModelID()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// State reports the current lifecycle state.
func (s *Service) State() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether predictions can be served.
func (s *Service) Ready() bool {
	return s.State() == StateReady
}

// Health summarizes the model lifecycle for the health endpoint.
func (s *Service) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := Health{
		Status:      "ok",
		ModelLoaded: s.state == StateReady,
		State:       s.state,
	}
	if s.clf != nil {
		h.ModelID = s.clf.ModelID()
	}
	if s.loadErr != nil {
		h.Error = s.loadErr.Error()
	}
	return h
}

func (s *Service) classifier() (Classifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady || s.clf == nil {
		return nil, ErrNotReady
	}
	return s.clf, nil
}

// Predict labels every text, preserving order and length. Texts are sent to the
// classifier in fixed-size batches; cached texts skip the forward pass.
func (s *Service) Predict(ctx context.Context, texts []string, progress func(done, total int)) ([]Prediction, error) {
	if len(texts) == 0 {
		return nil, Validationf("no texts to classify")
	}
	clf, err := s.classifier()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	total := len(texts)
	out := make([]Prediction, total)
	normalized := make([]string, total)
	keys := make([]string, total)
	pending := make([]int, 0, total)
	for i, t := range texts {
		normalized[i] = normalizeText(t)
		keys[i] = cacheKey(clf.ModelID(), normalized[i])
		if p, ok := s.cache.get(keys[i]); ok {
			out[i] = p
			continue
		}
		pending = append(pending, i)
	}
	cached := total - len(pending)
	done := cached
	if progress != nil && cached > 0 {
		progress(done, total)
	}

	batchSize := s.cfg.Model.BatchSize
	for lo := 0; lo < len(pending); lo += batchSize {
		hi := lo + batchSize
		if hi > len(pending) {
			hi = len(pending)
		}
		idx := pending[lo:hi]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = normalized[i]
		}
		preds, err := clf.Classify(ctx, batch)
		if err != nil {
			s.recorder.RecordFailure(ctx, "predict")
			s.logger.Error("forward pass failed", zap.Int("batch_start", lo), zap.Error(err))
			return nil, internal("predict", err)
		}
		if len(preds) != len(batch) {
			s.recorder.RecordFailure(ctx, "predict")
			return nil, &InternalError{Op: "predict", Err: fmt.Errorf("classifier returned %d predictions for %d texts", len(preds), len(batch))}
		}
		for j, i := range idx {
			p := preds[j]
			if !p.Label.Valid() || p.Confidence < 0 || p.Confidence > 1 {
				s.recorder.RecordFailure(ctx, "predict")
				return nil, &InternalError{Op: "predict", Err: fmt.Errorf("classifier produced invalid prediction %+v", p)}
			}
			out[i] = p
			s.cache.put(keys[i], p)
		}
		done += len(idx)
		if progress != nil {
			progress(done, total)
		}
	}

	took := time.Since(start)
	s.recorder.RecordPrediction(ctx, total, cached, took)
	s.logger.Debug("predicted batch",
		zap.Int("rows", total),
		zap.Int("cached", cached),
		zap.Int("cache_entries", s.cache.len()),
		zap.Duration("took", took))
	return out, nil
}

// PredictTable adds label and confidence columns to t. Existing columns with
// those names are overwritten; every other column and row is kept in order.
func (s *Service) PredictTable(ctx context.Context, t *Table, progress func(done, total int)) error {
	if t == nil {
		return Validationf("no CSV provided")
	}
	textIdx := t.TextColumn()
	if textIdx < 0 {
		return Validationf("CSV must contain a 'text' column")
	}
	if t.Len() == 0 {
		return Validationf("CSV contains no rows")
	}
	preds, err := s.Predict(ctx, t.Column(textIdx), progress)
	if err != nil {
		return err
	}
	labels := make([]string, len(preds))
	confidences := make([]string, len(preds))
	for i, p := range preds {
		labels[i] = strconv.Itoa(int(p.Label))
		confidences[i] = strconv.FormatFloat(p.Confidence, 'f', -1, 64)
	}
	if err := t.SetColumn(ColumnLabel, labels); err != nil {
		return internal("predict", err)
	}
	if err := t.SetColumn(ColumnConfidence, confidences); err != nil {
		return internal("predict", err)
	}
	return nil
}

// Evaluate computes macro-F1 of the label column in pred against truth.
func (s *Service) Evaluate(ctx context.Context, pred, truth *Table) (EvalResult, error) {
	if pred == nil || truth == nil {
		return EvalResult{}, Validationf("both prediction and ground truth files are required")
	}
	predIdx, truthIdx := pred.LabelColumn(), truth.LabelColumn()
	if predIdx < 0 || truthIdx < 0 {
		return EvalResult{}, Validationf("both files must contain a 'label' column")
	}
	if _, err := s.classifier(); err != nil {
		return EvalResult{}, err
	}
	predLabels, err := pred.Labels(predIdx)
	if err != nil {
		return EvalResult{}, fmt.Errorf("predictions: %w", err)
	}
	truthLabels, err := truth.Labels(truthIdx)
	if err != nil {
		return EvalResult{}, fmt.Errorf("ground truth: %w", err)
	}
	res, err := MacroF1(truthLabels, predLabels)
	if err != nil {
		return EvalResult{}, err
	}
	s.recorder.RecordEvaluation(ctx, res.MacroF1, res.Support)
	s.logger.Info("evaluated labels", zap.Int("rows", res.Support), zap.Float64("macro_f1", res.MacroF1))
	return res, nil
}

// Close unloads the model and releases its resources.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateUnloaded
	s.cache.flush()
	if s.clf == nil {
		return nil
	}
	err := s.clf.Close()
	s.clf = nil
	s.logger.Info("model unloaded", zap.String("previous_state", string(prev)))
	return err
}
