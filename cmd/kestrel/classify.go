package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/edumetrics/kestrel/internal/dataset"
	"github.com/edumetrics/kestrel/internal/decision"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/edumetrics/kestrel/internal/report"
	"github.com/edumetrics/kestrel/internal/rules"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one student or a CSV file offline",
	Example: "  kestrel classify --gpa 2.15 --cca 68 --attendance 0.82 --midterm 78 --final 85\n" +
		"  kestrel classify --csv students.csv --out predictions.csv --report",
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.Float64("gpa", 0, "Grade point average (0-4)")
	f.Float64("cca", 0, "Core course average (0-100)")
	f.Float64("attendance", 0, "Attendance rate (0-1)")
	f.Float64("midterm", 0, "Midterm exam score (0-100)")
	f.Float64("final", 0, "Final exam score (0-100)")
	f.String("method", "tsukamoto", "Defuzzification method: tsukamoto or strict")
	f.String("csv", "", "Labeled CSV to classify in bulk")
	f.String("out", "", "Write predictions CSV here (default stdout)")
	f.Bool("report", false, "Print an accuracy report against the Performance column")
	f.Bool("json", false, "Print the report as JSON")
}

func runClassify(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("method")
	method, err := fuzzy.ParseMethod(name)
	if err != nil {
		return err
	}

	engine, err := rules.NewEngine(0)
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.ReloadRules(rules.DefaultAdvisories()); err != nil {
		return err
	}
	processor := decision.NewProcessor(method, engine)

	if path, _ := cmd.Flags().GetString("csv"); path != "" {
		return classifyFile(cmd, processor, path)
	}

	f := cmd.Flags()
	in := fuzzy.Inputs{}
	in.GPA, _ = f.GetFloat64("gpa")
	in.CCA, _ = f.GetFloat64("cca")
	in.Attendance, _ = f.GetFloat64("attendance")
	in.Midterm, _ = f.GetFloat64("midterm")
	in.FinalExam, _ = f.GetFloat64("final")
	if err := in.Validate(); err != nil {
		return err
	}

	a := processor.Assess(context.Background(), &decision.AssessInput{
		TenantID:  "cli",
		Inputs:    in,
		StartTime: time.Now(),
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(a.ToResponse())
}

func classifyFile(cmd *cobra.Command, processor *decision.Processor, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	records, err := dataset.Parse(file)
	if err != nil {
		return err
	}

	start := time.Now()
	collector := report.NewCollector()
	predictions := make([]dataset.Prediction, 0, len(records))

	for i := range records {
		rec := records[i]
		t := time.Now()
		a := processor.Assess(context.Background(), &decision.AssessInput{
			TenantID:  "cli",
			StudentID: rec.StudentID,
			Inputs:    rec.Inputs(),
			StartTime: t,
		})

		p := dataset.Prediction{Record: rec, Score: a.Score, Status: a.Status}
		if a.Classified() {
			p.Predicted = a.Category.String()
		}
		predictions = append(predictions, p)

		actual, err := rec.Label()
		if err != nil {
			actual = 0
		}
		collector.Add(report.Sample{
			ID:        rec.StudentID,
			Actual:    actual,
			Predicted: a.Category,
			Score:     a.Score,
			Inputs:    rec.Inputs(),
			LatencyMs: time.Since(t).Milliseconds(),
		})
	}

	out := cmd.OutOrStdout()
	if dst, _ := cmd.Flags().GetString("out"); dst != "" {
		f, err := os.Create(dst)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	withReport, _ := cmd.Flags().GetBool("report")
	asJSON, _ := cmd.Flags().GetBool("json")

	// A report on stdout replaces the predictions there.
	if !(withReport || asJSON) || out != cmd.OutOrStdout() {
		if err := dataset.WritePredictions(out, predictions); err != nil {
			return fmt.Errorf("write predictions: %w", err)
		}
	}

	if withReport || asJSON {
		return writeReport(cmd.OutOrStdout(), collector.Build(processor.Method.String(), time.Since(start)), asJSON)
	}
	return nil
}

func writeReport(w io.Writer, r *report.Report, asJSON bool) error {
	if asJSON {
		return r.WriteJSON(w)
	}
	return r.Render(w)
}
