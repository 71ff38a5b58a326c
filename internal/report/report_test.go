package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(actual, predicted fuzzy.Category, score float64) Sample {
	return Sample{
		Actual:    actual,
		Predicted: predicted,
		Score:     score,
		Inputs:    fuzzy.Inputs{GPA: 2.0, CCA: 60, Attendance: 0.7, Midterm: 60, FinalExam: 60},
	}
}

func mixedSamples() []Sample {
	return []Sample{
		sample(fuzzy.Poor, fuzzy.Poor, 20),
		sample(fuzzy.Poor, fuzzy.Poor, 30),
		sample(fuzzy.Satisfactory, fuzzy.Satisfactory, 70),
		sample(fuzzy.Satisfactory, fuzzy.Good, 85),
		sample(fuzzy.Good, 0, 0),
		sample(fuzzy.Excellent, fuzzy.Excellent, 95),
	}
}

func TestCompute(t *testing.T) {
	r := Compute(mixedSamples())

	assert.Equal(t, 6, r.Evaluated)
	assert.Equal(t, 4, r.Correct)
	assert.Equal(t, 1, r.Unclassified)
	assert.InDelta(t, 4.0/6.0, r.Accuracy, 1e-9)

	require.Len(t, r.Labels, 5)
	assert.Equal(t, "Needs Improvement", r.Labels[1])

	t.Run("ConfusionMatrix", func(t *testing.T) {
		require.Len(t, r.Confusion, 5)
		assert.Equal(t, 2, r.Confusion[0][0])
		assert.Equal(t, 1, r.Confusion[2][2])
		assert.Equal(t, 1, r.Confusion[2][3])
		assert.Equal(t, 1, r.Confusion[4][4])

		total := 0
		for _, row := range r.Confusion {
			for _, n := range row {
				total += n
			}
		}
		assert.Equal(t, r.Evaluated-r.Unclassified, total)
	})

	t.Run("PerClass", func(t *testing.T) {
		poor := r.Classes[0]
		assert.Equal(t, "Poor", poor.Category)
		assert.Equal(t, 2, poor.Support)
		assert.InDelta(t, 1.0, poor.Precision, 1e-9)
		assert.InDelta(t, 1.0, poor.Recall, 1e-9)
		assert.InDelta(t, 1.0, poor.F1, 1e-9)
		assert.InDelta(t, 25.0, poor.ScoreMean, 1e-9)
		assert.InDelta(t, 7.0711, poor.ScoreStdDev, 1e-4)

		sat := r.Classes[2]
		assert.InDelta(t, 1.0, sat.Precision, 1e-9)
		assert.InDelta(t, 0.5, sat.Recall, 1e-9)
		assert.InDelta(t, 2.0/3.0, sat.F1, 1e-9)
		assert.InDelta(t, 77.5, sat.ScoreMean, 1e-9)

		good := r.Classes[3]
		assert.Equal(t, 1, good.Support)
		assert.Zero(t, good.Precision)
		assert.Zero(t, good.Recall)
		assert.Zero(t, good.ScoreMean)

		ni := r.Classes[1]
		assert.Zero(t, ni.Support)
		assert.Zero(t, ni.F1)

		exc := r.Classes[4]
		assert.InDelta(t, 95.0, exc.ScoreMean, 1e-9)
		assert.Zero(t, exc.ScoreStdDev)
	})

	t.Run("Averages", func(t *testing.T) {
		assert.InDelta(t, (1+2.0/3.0+1)/5, r.MacroF1, 1e-9)
		assert.InDelta(t, (2+2*2.0/3.0+1)/6, r.WeightedF1, 1e-9)
	})

	t.Run("ErrorPatterns", func(t *testing.T) {
		require.Len(t, r.Errors, 2)
		assert.Equal(t, "Good", r.Errors[0].Actual)
		assert.Equal(t, Unclassified, r.Errors[0].Predicted)
		assert.Equal(t, "Satisfactory", r.Errors[1].Actual)
		assert.Equal(t, "Good", r.Errors[1].Predicted)
		assert.InDelta(t, 2.0, r.Errors[1].MeanGPA, 1e-9)
		assert.InDelta(t, 0.7, r.Errors[1].MeanAttendance, 1e-9)
	})
}

func TestComputeEmpty(t *testing.T) {
	r := Compute(nil)

	assert.Zero(t, r.Evaluated)
	assert.Zero(t, r.Accuracy)
	assert.Zero(t, r.MacroF1)
	assert.Empty(t, r.Errors)
	assert.Len(t, r.Confusion, 5)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))
}

func TestComputeSkipsUnlabeled(t *testing.T) {
	samples := append(mixedSamples(),
		sample(0, fuzzy.Good, 85),
		sample(fuzzy.Category(9), fuzzy.Poor, 20),
	)

	var r *Report
	require.NotPanics(t, func() { r = Compute(samples) })
	assert.Equal(t, 6, r.Evaluated)
	assert.Equal(t, 2, r.Unlabeled)
	assert.Equal(t, Compute(mixedSamples()).Accuracy, r.Accuracy)
}

func TestCollector(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for _, s := range mixedSamples() {
		wg.Add(1)
		go func(s Sample) {
			defer wg.Done()
			s.LatencyMs = 4
			c.Add(s)
		}(s)
	}
	wg.Wait()

	c.Add(Sample{Predicted: fuzzy.Good, Score: 85, LatencyMs: 4})
	c.Fail()

	r := c.Build("tsukamoto", 250*time.Millisecond)

	assert.Equal(t, "tsukamoto", r.Method)
	assert.Equal(t, 6, r.Evaluated)
	assert.Equal(t, 1, r.Unlabeled)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 8, r.Total)
	assert.Equal(t, int64(250), r.DurationMs)
	assert.InDelta(t, 4.0, r.AvgLatencyMs, 1e-9)
	assert.Equal(t, 4, r.Correct)
}

func TestWriteJSON(t *testing.T) {
	r := Compute(mixedSamples())

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Contains(t, decoded, "confusionMatrix")
	assert.Contains(t, decoded, "errorPatterns")
	assert.InDelta(t, 4.0/6.0, decoded["accuracy"].(float64), 1e-9)
	assert.Len(t, decoded["classes"], 5)
}

func TestRender(t *testing.T) {
	r := Compute(mixedSamples())
	r.Method = "strict"

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf))
	out := buf.String()

	for _, want := range []string{"ACCURACY", "PER CLASS", "CONFUSION MATRIX", "ERROR PATTERNS", "strict", "NI", "Unclassified"} {
		assert.True(t, strings.Contains(out, want), "render output missing %q", want)
	}
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "NI", abbreviate("Needs Improvement"))
	assert.Equal(t, "Satisfactory", abbreviate("Satisfactory"))
	assert.Equal(t, "Poor", abbreviate("Poor"))
}
