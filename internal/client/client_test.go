package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/reviewlens/sentiment"
)

func testClient(url string) *Client {
	return New(Config{
		BaseURL:        url,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		HealthTimeout:  2 * time.Second,
	}, nil)
}

func TestPredictRetriesOnServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model is not ready"}`))
			return
		}
		f, fh, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		assert.Equal(t, "reviews.csv", fh.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "text\ngood\n", string(body))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("text,label,confidence\ngood,2,0.9\n"))
	}))
	defer srv.Close()

	table, err := testClient(srv.URL).Predict(context.Background(), "reviews.csv", []byte("text\ngood\n"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"text", "label", "confidence"}, table.Columns)
	assert.Equal(t, []string{"good", "2", "0.9"}, table.Records[0])
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"CSV must contain a 'text' column"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Predict(context.Background(), "reviews.csv", []byte("review\nx\n"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "CSV must contain a 'text' column", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
	assert.Equal(t, int32(4), calls.Load())
}

func TestEvaluateSendsBothParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluate", r.URL.Path)
		for field, want := range map[string]string{
			"predictions_file":  "label\n2\n",
			"ground_truth_file": "label\n2\n",
		} {
			f, _, err := r.FormFile(field)
			if !assert.NoError(t, err, field) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			got, _ := io.ReadAll(f)
			f.Close()
			assert.Equal(t, want, string(got))
		}
		_ = json.NewEncoder(w).Encode(sentiment.EvalResult{MacroF1: 1, Support: 1})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Evaluate(context.Background(), []byte("label\n2\n"), []byte("label\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.MacroF1)
	assert.Equal(t, 1, res.Support)
}

func TestHealthTimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, HealthTimeout: 50 * time.Millisecond, MaxRetries: 3, InitialBackoff: time.Millisecond}, nil)
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "got %v", err)
}

func TestHealthDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","model_loaded":true,"state":"ready","model_id":"rubert"}`))
	}))
	defer srv.Close()

	h, err := testClient(srv.URL + "/").Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.ModelLoaded)
	assert.Equal(t, sentiment.StateReady, h.State)
	assert.Equal(t, "rubert", h.ModelID)
}
