package sentiment

import "sort"

// MacroF1 scores pred against truth. The average runs over every label seen in
// either column; a class with no predicted or no true members contributes 0
// for the undefined ratio instead of failing.
func MacroF1(truth, pred []Label) (EvalResult, error) {
	if len(truth) != len(pred) {
		return EvalResult{}, Validationf("label columns differ in length: %d predictions vs %d ground truth rows", len(pred), len(truth))
	}
	if len(truth) == 0 {
		return EvalResult{}, Validationf("no labels to evaluate")
	}

	var tp, fp, fn [NumLabels]int
	present := make(map[Label]struct{}, NumLabels)
	for i := range truth {
		t, p := truth[i], pred[i]
		if !t.Valid() {
			return EvalResult{}, Validationf("ground truth row %d: label %d is outside the taxonomy", i+1, int(t))
		}
		if !p.Valid() {
			return EvalResult{}, Validationf("prediction row %d: label %d is outside the taxonomy", i+1, int(p))
		}
		present[t] = struct{}{}
		present[p] = struct{}{}
		if t == p {
			tp[t]++
			continue
		}
		fp[p]++
		fn[t]++
	}

	labels := make([]Label, 0, len(present))
	for l := range present {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	res := EvalResult{Support: len(truth), PerClass: make([]ClassScore, 0, len(labels))}
	var sum float64
	for _, l := range labels {
		precision := safeDiv(tp[l], tp[l]+fp[l])
		recall := safeDiv(tp[l], tp[l]+fn[l])
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		sum += f1
		res.PerClass = append(res.PerClass, ClassScore{
			Label:     l,
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   tp[l] + fn[l],
		})
	}
	res.MacroF1 = sum / float64(len(labels))
	return res, nil
}

func safeDiv(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
