package sentiment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordClassifier labels by keyword so tests can assert exact outputs.
type keywordClassifier struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	closed  bool
}

func (k *keywordClassifier) Classify(_ context.Context, texts []string) ([]Prediction, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	k.batches = append(k.batches, append([]string(nil), texts...))
	out := make([]Prediction, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "great"), strings.Contains(lower, "love"):
			out[i] = Prediction{Label: Positive, Confidence: 0.93}
		case strings.Contains(lower, "terrible"), strings.Contains(lower, "awful"):
			out[i] = Prediction{Label: Negative, Confidence: 0.88}
		default:
			out[i] = Prediction{Label: Neutral, Confidence: 0.61}
		}
	}
	return out, nil
}

func (k *keywordClassifier) Close() error {
	k.closed = true
	return nil
}

func (k *keywordClassifier) ModelID() string { return "keyword-test" }

func (k *keywordClassifier) calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.batches)
}

func loaderFor(c Classifier) Loader {
	return func(context.Context, ModelConfig) (Classifier, error) { return c, nil }
}

func newReadyService(t *testing.T, clf Classifier, mutate func(*Config)) *Service {
	t.Helper()
	cfg := Config{}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, loaderFor(clf), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Load(context.Background()))
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceLifecycle(t *testing.T) {
	clf := &keywordClassifier{}
	svc, err := NewService(Config{}, loaderFor(clf), nil)
	require.NoError(t, err)

	assert.Equal(t, StateUninitialized, svc.State())
	h := svc.Health()
	assert.Equal(t, "ok", h.Status)
	assert.False(t, h.ModelLoaded)

	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, StateReady, svc.State())
	assert.True(t, svc.Health().ModelLoaded)
	assert.Equal(t, "keyword-test", svc.Health().ModelID)

	require.NoError(t, svc.Close())
	assert.Equal(t, StateUnloaded, svc.State())
	assert.True(t, clf.closed)

	_, err = svc.Predict(context.Background(), []string{"x"}, nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestServiceLoadFailure(t *testing.T) {
	boom := errors.New("no such file: model.onnx")
	svc, err := NewService(Config{}, func(context.Context, ModelConfig) (Classifier, error) {
		return nil, boom
	}, nil)
	require.NoError(t, err)

	err = svc.Load(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, svc.State())
	h := svc.Health()
	assert.False(t, h.ModelLoaded)
	assert.Contains(t, h.Error, "model.onnx")
}

func TestPredictBeforeLoadIsNotReady(t *testing.T) {
	svc, err := NewService(Config{}, loaderFor(&keywordClassifier{}), nil)
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), []string{"great service"}, nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestPredictBatchesAndPreservesOrder(t *testing.T) {
	clf := &keywordClassifier{}
	svc := newReadyService(t, clf, func(c *Config) { c.Model.BatchSize = 2 })

	texts := []string{"great service", "terrible wait", "it was fine", "love it", "awful food"}
	var progress []int
	preds, err := svc.Predict(context.Background(), texts, func(done, total int) {
		assert.Equal(t, len(texts), total)
		progress = append(progress, done)
	})
	require.NoError(t, err)
	require.Len(t, preds, len(texts))

	want := []Label{Positive, Negative, Neutral, Positive, Negative}
	for i, p := range preds {
		assert.Equal(t, want[i], p.Label, "row %d", i)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
	}
	assert.Equal(t, 3, clf.calls())
	assert.Equal(t, []int{2, 4, 5}, progress)
}

func TestPredictUsesCacheForRepeatedTexts(t *testing.T) {
	clf := &keywordClassifier{}
	svc := newReadyService(t, clf, func(c *Config) {
		c.Cache.Enabled = true
		c.Model.BatchSize = 8
	})

	_, err := svc.Predict(context.Background(), []string{"great service", "it was fine"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, clf.calls())

	preds, err := svc.Predict(context.Background(), []string{"it was fine", "awful food", "great service"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Label{Neutral, Negative, Positive}, []Label{preds[0].Label, preds[1].Label, preds[2].Label})
	require.Equal(t, 2, clf.calls())
	assert.Equal(t, []string{"awful food"}, clf.batches[1])
}

func TestPredictWrapsClassifierFailure(t *testing.T) {
	clf := &keywordClassifier{err: errors.New("onnx: invalid input shape")}
	svc := newReadyService(t, clf, nil)

	_, err := svc.Predict(context.Background(), []string{"hello"}, nil)
	var ie *InternalError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "invalid input shape")
}

func TestPredictTableAppendsColumns(t *testing.T) {
	svc := newReadyService(t, &keywordClassifier{}, nil)
	table, err := ReadTableBytes([]byte("text,src\ngreat service,web\nterrible wait,app\nit was fine,web\n"))
	require.NoError(t, err)

	require.NoError(t, svc.PredictTable(context.Background(), table, nil))
	assert.Equal(t, []string{"text", "src", "label", "confidence"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"2", "0", "1"}, table.Column(2))
	assert.Equal(t, "great service", table.Records[0][0])
	assert.Equal(t, "app", table.Records[1][1])
}

func TestPredictTableOverwritesExistingLabel(t *testing.T) {
	svc := newReadyService(t, &keywordClassifier{}, nil)
	table, err := ReadTableBytes([]byte("label,text\n9,great service\n"))
	require.NoError(t, err)

	require.NoError(t, svc.PredictTable(context.Background(), table, nil))
	assert.Equal(t, []string{"label", "text", "confidence"}, table.Columns)
	assert.Equal(t, "2", table.Records[0][0])
}

func TestPredictTableRequiresTextColumn(t *testing.T) {
	clf := &keywordClassifier{}
	svc := newReadyService(t, clf, nil)
	table, err := ReadTableBytes([]byte("review\ngreat service\n"))
	require.NoError(t, err)

	err = svc.PredictTable(context.Background(), table, nil)
	require.True(t, IsValidation(err))
	assert.Zero(t, clf.calls())
}

func TestEvaluateIdenticalLabels(t *testing.T) {
	svc := newReadyService(t, &keywordClassifier{}, nil)
	pred, err := ReadTableBytes([]byte("text,label\ngreat service,2\nterrible wait,0\nit was fine,1\n"))
	require.NoError(t, err)
	truth := pred.Clone()

	res, err := svc.Evaluate(context.Background(), pred, truth)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.MacroF1, 1e-12)
	assert.Equal(t, 3, res.Support)
}

func TestEvaluateValidation(t *testing.T) {
	svc := newReadyService(t, &keywordClassifier{}, nil)
	withLabel, err := ReadTableBytes([]byte("label\n1\n2\n"))
	require.NoError(t, err)
	noLabel, err := ReadTableBytes([]byte("text\nhello\n"))
	require.NoError(t, err)
	short, err := ReadTableBytes([]byte("label\n1\n"))
	require.NoError(t, err)
	bad, err := ReadTableBytes([]byte("label\n1\n7\n"))
	require.NoError(t, err)

	cases := map[string][2]*Table{
		"missing label column": {withLabel, noLabel},
		"length mismatch":      {withLabel, short},
		"label out of range":   {withLabel, bad},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Evaluate(context.Background(), tc[0], tc[1])
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestEvaluateBeforeLoadIsNotReady(t *testing.T) {
	svc, err := NewService(Config{}, loaderFor(&keywordClassifier{}), nil)
	require.NoError(t, err)
	tbl, err := ReadTableBytes([]byte("label\n1\n"))
	require.NoError(t, err)
	_, err = svc.Evaluate(context.Background(), tbl, tbl.Clone())
	assert.ErrorIs(t, err, ErrNotReady)
}
