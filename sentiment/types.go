package sentiment

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is one class of the fixed three-way sentiment taxonomy.
type Label int

const (
	Negative Label = 0
	Neutral  Label = 1
	Positive Label = 2
)

// NumLabels is the size of the taxonomy and the width of the model's logits.
const NumLabels = 3

// Labels lists the taxonomy in id order.
var Labels = []Label{Negative, Neutral, Positive}

var labelNames = [NumLabels]string{"Negative", "Neutral", "Positive"}

// Fixed chart colors for each class.
var labelColors = [NumLabels]string{"red", "gray", "green"}

// Valid reports whether l belongs to the taxonomy.
func (l Label) Valid() bool {
	return l >= Negative && l <= Positive
}

func (l Label) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return labelNames[l]
}

// Color returns the chart color name used for the label.
func (l Label) Color() string {
	if !l.Valid() {
		return ""
	}
	return labelColors[l]
}

// ParseLabel accepts a numeric id ("2", "2.0") or a class name in any case.
func ParseLabel(s string) (Label, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, fmt.Errorf("empty label")
	}
	if n, err := strconv.Atoi(v); err == nil {
		l := Label(n)
		if !l.Valid() {
			return 0, fmt.Errorf("label %d is outside the taxonomy", n)
		}
		return l, nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if f != float64(int(f)) {
			return 0, fmt.Errorf("label %q is not an integer", v)
		}
		l := Label(int(f))
		if !l.Valid() {
			return 0, fmt.Errorf("label %q is outside the taxonomy", v)
		}
		return l, nil
	}
	for i, name := range labelNames {
		if strings.EqualFold(v, name) {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", v)
}

// Prediction is the model output for a single text.
type Prediction struct {
	Label      Label   `json:"label_id"`
	Confidence float64 `json:"confidence"`
}

// ClassScore holds the per-class metrics behind a macro average.
type ClassScore struct {
	Label     Label   `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvalResult is the agreement between predicted and ground-truth labels.
type EvalResult struct {
	MacroF1  float64      `json:"macro_f1"`
	Support  int          `json:"support"`
	PerClass []ClassScore `json:"per_class"`
}

// ModelState tracks the lifecycle of the in-process model.
type ModelState string

const (
	StateUninitialized ModelState = "uninitialized"
	StateLoading       ModelState = "loading"
	StateReady         ModelState = "ready"
	StateUnloaded      ModelState = "unloaded"
	StateFailed        ModelState = "failed"
)

// Health is the payload served by the health endpoint.
type Health struct {
	Status      string     `json:"status"`
	ModelLoaded bool       `json:"model_loaded"`
	State       ModelState `json:"state"`
	ModelID     string     `json:"model_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}
