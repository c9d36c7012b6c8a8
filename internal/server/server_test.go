package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/reviewlens/sentiment"
)

type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, texts []string) ([]sentiment.Prediction, error) {
	out := make([]sentiment.Prediction, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(t, "good"):
			out[i] = sentiment.Prediction{Label: sentiment.Positive, Confidence: 0.9}
		case strings.Contains(t, "bad"):
			out[i] = sentiment.Prediction{Label: sentiment.Negative, Confidence: 0.8}
		default:
			out[i] = sentiment.Prediction{Label: sentiment.Neutral, Confidence: 0.5}
		}
	}
	return out, nil
}

func (stubClassifier) Close() error    { return nil }
func (stubClassifier) ModelID() string { return "stub" }

type part struct {
	field, filename, body string
}

func multipartBody(t *testing.T, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

type testEnv struct {
	router  http.Handler
	svc     *sentiment.Service
	tempDir string
}

func newTestEnv(t *testing.T, load bool) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := sentiment.NewService(sentiment.Config{}, func(context.Context, sentiment.ModelConfig) (sentiment.Classifier, error) {
		return stubClassifier{}, nil
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	if load {
		require.NoError(t, svc.Load(context.Background()))
	}

	dir := t.TempDir()
	srv := NewServer(sentiment.ServerConfig{TempDir: dir, MaxUploadMB: 1}, svc, nil)
	return testEnv{router: srv.Handler(), svc: svc, tempDir: dir}
}

func (e testEnv) post(t *testing.T, path string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthReportsLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var h sentiment.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.False(t, h.ModelLoaded)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	require.NoError(t, env.svc.Load(context.Background()))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.True(t, h.ModelLoaded)
	assert.Equal(t, sentiment.StateReady, h.State)
}

func TestPredictReturnsAnnotatedCSV(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.post(t, "/predict", part{"file", "reviews.csv", "text,src\ngood food,web\nbad wait,app\nok,web\n"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "predictions.csv")

	table, err := sentiment.ReadTableBytes(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"text", "src", "label", "confidence"}, table.Columns)
	assert.Equal(t, []string{"good food", "bad wait", "ok"}, table.Column(0))
	assert.Equal(t, []string{"2", "0", "1"}, table.Column(2))
	assert.Equal(t, []string{"0.9", "0.8", "0.5"}, table.Column(3))

	leftovers, err := filepath.Glob(filepath.Join(env.tempDir, "predictions-*.csv"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		load   bool
		parts  []part
		status int
		msg    string
	}{
		{
			name:   "not ready",
			load:   false,
			parts:  []part{{"file", "reviews.csv", "text\ngood\n"}},
			status: http.StatusServiceUnavailable,
			msg:    "not ready",
		},
		{
			name:   "wrong extension",
			load:   true,
			parts:  []part{{"file", "reviews.txt", "text\ngood\n"}},
			status: http.StatusBadRequest,
			msg:    "CSV",
		},
		{
			name:   "missing text column",
			load:   true,
			parts:  []part{{"file", "reviews.csv", "review\ngood\n"}},
			status: http.StatusBadRequest,
			msg:    "'text'",
		},
		{
			name:   "missing file part",
			load:   true,
			parts:  []part{{"upload", "reviews.csv", "text\ngood\n"}},
			status: http.StatusBadRequest,
			msg:    "'file'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.load)
			w := env.post(t, "/predict", tt.parts...)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, errorMessage(t, w), tt.msg)
		})
	}
}

func TestPredictRejectsOversizedUpload(t *testing.T) {
	env := newTestEnv(t, true)
	big := "text\n" + strings.Repeat("a long review line\n", 80000)
	w := env.post(t, "/predict", part{"file", "reviews.csv", big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestEvaluateIdenticalFiles(t *testing.T) {
	env := newTestEnv(t, true)
	csv := "text,label\ngood,2\nbad,0\nok,1\n"

	w := env.post(t, "/evaluate",
		part{"predictions_file", "pred.csv", csv},
		part{"ground_truth_file", "gt.csv", csv},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res sentiment.EvalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.InDelta(t, 1.0, res.MacroF1, 1e-12)
	assert.Equal(t, 3, res.Support)
}

func TestEvaluateAcceptsPartAliases(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.post(t, "/evaluate",
		part{"pred_file", "pred.csv", "label\n0\n0\n"},
		part{"gt_file", "gt.csv", "label\n2\n2\n"},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res sentiment.EvalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Zero(t, res.MacroF1)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		load   bool
		parts  []part
		status int
	}{
		{
			name:   "length mismatch",
			load:   true,
			parts:  []part{{"predictions_file", "p.csv", "label\n1\n2\n"}, {"ground_truth_file", "g.csv", "label\n1\n"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing label column",
			load:   true,
			parts:  []part{{"predictions_file", "p.csv", "text\nx\n"}, {"ground_truth_file", "g.csv", "label\n1\n"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing ground truth part",
			load:   true,
			parts:  []part{{"predictions_file", "p.csv", "label\n1\n"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed csv",
			load:   true,
			parts:  []part{{"predictions_file", "p.csv", "label\n\"1\n"}, {"ground_truth_file", "g.csv", "label\n1\n"}},
			status: http.StatusBadRequest,
		},
		{
			name:   "not ready",
			load:   false,
			parts:  []part{{"predictions_file", "p.csv", "label\n1\n"}, {"ground_truth_file", "g.csv", "label\n1\n"}},
			status: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.load)
			w := env.post(t, "/evaluate", tt.parts...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, errorMessage(t, w))
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
