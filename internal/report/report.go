// Package report scores classifier output against labeled records:
// accuracy, per-class precision/recall/F1, a confusion matrix, error
// patterns and per-class crisp score statistics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/edumetrics/kestrel/internal/fuzzy"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Unclassified is the predicted label used when no rule fired.
const Unclassified = "Unclassified"

var numClasses = len(fuzzy.Categories)

// Sample is one scored record.
type Sample struct {
	ID        string
	Actual    fuzzy.Category
	Predicted fuzzy.Category // zero when unclassified
	Score     float64
	Inputs    fuzzy.Inputs
	LatencyMs int64
}

// Collector accumulates samples from concurrent workers.
type Collector struct {
	mu        sync.Mutex
	samples   []Sample
	failed    int
	unlabeled int
	latencyMs int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records a scored sample. Samples without a valid label are counted
// but excluded from the metrics.
func (c *Collector) Add(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencyMs += s.LatencyMs
	if !s.Actual.Valid() {
		c.unlabeled++
		return
	}
	c.samples = append(c.samples, s)
}

// Fail records a request that produced no prediction.
func (c *Collector) Fail() {
	c.mu.Lock()
	c.failed++
	c.mu.Unlock()
}

// ClassMetrics holds the one-vs-rest metrics of a category.
type ClassMetrics struct {
	Category    string  `json:"category"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`
	Support     int     `json:"support"`
	ScoreMean   float64 `json:"scoreMean"`
	ScoreStdDev float64 `json:"scoreStdDev"`
}

// ErrorPattern groups misclassifications by actual and predicted label.
type ErrorPattern struct {
	Actual         string  `json:"actual"`
	Predicted      string  `json:"predicted"`
	Count          int     `json:"count"`
	MeanGPA        float64 `json:"meanGpa"`
	MeanAttendance float64 `json:"meanAttendance"`
}

// Report is the result of an accuracy run.
type Report struct {
	Method       string         `json:"method,omitempty"`
	Total        int            `json:"total"`
	Evaluated    int            `json:"evaluated"`
	Failed       int            `json:"failed"`
	Unlabeled    int            `json:"unlabeled"`
	Unclassified int            `json:"unclassified"`
	Correct      int            `json:"correct"`
	Accuracy     float64        `json:"accuracy"`
	MacroF1      float64        `json:"macroF1"`
	WeightedF1   float64        `json:"weightedF1"`
	Classes      []ClassMetrics `json:"classes"`
	Labels       []string       `json:"labels"`
	Confusion    [][]int        `json:"confusionMatrix"` // rows actual, columns predicted
	Errors       []ErrorPattern `json:"errorPatterns"`
	DurationMs   int64          `json:"durationMs"`
	AvgLatencyMs float64        `json:"avgLatencyMs"`
}

// Build computes the report over everything collected so far.
func (c *Collector) Build(method string, elapsed time.Duration) *Report {
	c.mu.Lock()
	samples := append([]Sample(nil), c.samples...)
	failed, unlabeled, latency := c.failed, c.unlabeled, c.latencyMs
	c.mu.Unlock()

	r := Compute(samples)
	r.Method = method
	r.Failed = failed
	r.Unlabeled += unlabeled
	r.Total = r.Evaluated + failed + r.Unlabeled
	r.DurationMs = elapsed.Milliseconds()
	if n := r.Evaluated + unlabeled; n > 0 {
		r.AvgLatencyMs = float64(latency) / float64(n)
	}
	return r
}

// Compute scores labeled samples. Unclassified predictions count as
// errors and against recall, but stay out of the confusion matrix.
// Samples without a valid label are counted as unlabeled and skipped.
func Compute(samples []Sample) *Report {
	r := &Report{
		Labels:    make([]string, numClasses),
		Classes:   make([]ClassMetrics, numClasses),
		Errors:    []ErrorPattern{},
	}
	for i, c := range fuzzy.Categories {
		r.Labels[i] = c.String()
	}

	confusion := mat.NewDense(numClasses, numClasses, nil)
	support := make([]float64, numClasses)
	scores := make([][]float64, numClasses)
	patterns := make(map[[2]string][]Sample)

	for _, s := range samples {
		if !s.Actual.Valid() {
			r.Unlabeled++
			continue
		}
		r.Evaluated++
		row := s.Actual.Rank() - 1
		support[row]++
		if !s.Predicted.Valid() {
			r.Unclassified++
			key := [2]string{s.Actual.String(), Unclassified}
			patterns[key] = append(patterns[key], s)
			continue
		}

		col := s.Predicted.Rank() - 1
		confusion.Set(row, col, confusion.At(row, col)+1)
		scores[row] = append(scores[row], s.Score)

		if s.Predicted == s.Actual {
			r.Correct++
			continue
		}
		key := [2]string{s.Actual.String(), s.Predicted.String()}
		patterns[key] = append(patterns[key], s)
	}

	if r.Evaluated > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Evaluated)
	}

	r.Confusion = make([][]int, numClasses)
	f1s := make([]float64, numClasses)
	for i := range fuzzy.Categories {
		r.Confusion[i] = make([]int, numClasses)
		for j := 0; j < numClasses; j++ {
			r.Confusion[i][j] = int(confusion.At(i, j))
		}

		tp := confusion.At(i, i)
		predicted := floats.Sum(mat.Col(nil, i, confusion))

		m := ClassMetrics{Category: r.Labels[i], Support: int(support[i])}
		m.Precision = ratio(tp, predicted)
		m.Recall = ratio(tp, support[i])
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		m.ScoreMean, m.ScoreStdDev = meanStdDev(scores[i])

		f1s[i] = m.F1
		r.Classes[i] = m
	}

	if r.Evaluated > 0 {
		r.MacroF1 = stat.Mean(f1s, nil)
		if floats.Sum(support) > 0 {
			r.WeightedF1 = stat.Mean(f1s, support)
		}
	}

	for key, cases := range patterns {
		gpa := make([]float64, len(cases))
		attendance := make([]float64, len(cases))
		for i, s := range cases {
			gpa[i] = s.Inputs.GPA
			attendance[i] = s.Inputs.Attendance
		}
		r.Errors = append(r.Errors, ErrorPattern{
			Actual:         key[0],
			Predicted:      key[1],
			Count:          len(cases),
			MeanGPA:        stat.Mean(gpa, nil),
			MeanAttendance: stat.Mean(attendance, nil),
		})
	}
	sort.Slice(r.Errors, func(i, j int) bool {
		if r.Errors[i].Count != r.Errors[j].Count {
			return r.Errors[i].Count > r.Errors[j].Count
		}
		if r.Errors[i].Actual != r.Errors[j].Actual {
			return r.Errors[i].Actual < r.Errors[j].Actual
		}
		return r.Errors[i].Predicted < r.Errors[j].Predicted
	})

	return r
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// meanStdDev returns zeros for empty input and a zero deviation for a
// single value, keeping the report JSON-encodable.
func meanStdDev(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// WriteJSON encodes the report with indentation.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
