// Kestrel - Fuzzy student performance classification.
// Copyright (c) 2025 edumetrics
// Licensed under the Apache License 2.0

// Accuracy tool for measuring Kestrel against a labeled student dataset.
//
// Usage:
//
//	go run ./cmd/accuracy --csv students.csv --url http://localhost:8080
//
// This tool:
//  1. Reads the labeled CSV (Performance column)
//  2. Sends each record to POST /evaluate
//  3. Compares the predicted category with the label
//  4. Prints accuracy, per-class precision/recall/F1 and a confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/edumetrics/kestrel/internal/dataset"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/edumetrics/kestrel/internal/report"
	"github.com/spf13/cobra"
)

// EvaluateRequest is the Kestrel API request format
type EvaluateRequest struct {
	GPA        float64 `json:"gpa"`
	CCA        float64 `json:"cca"`
	Attendance float64 `json:"attendance"`
	Midterm    float64 `json:"midterm"`
	FinalExam  float64 `json:"finalExam"`
	Method     string  `json:"method,omitempty"`
}

// EvaluateResponse is the subset of the Kestrel response this tool reads
type EvaluateResponse struct {
	Status   string         `json:"status"`
	Category fuzzy.Category `json:"category"`
	Score    float64        `json:"score"`
}

type options struct {
	csvPath  string
	baseURL  string
	tenantID string
	token    string
	method   string
	limit    int
	workers  int
	jsonOut  string
	verbose  bool
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "accuracy",
		Short:        "Measure Kestrel against a labeled student CSV",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.csvPath, "csv", "", "Path to labeled student CSV")
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "Kestrel base URL")
	f.StringVar(&opts.tenantID, "tenant", "accuracy-test", "Tenant ID for requests")
	f.StringVar(&opts.token, "token", os.Getenv("KESTREL_TOKEN"), "Bearer token, if the server requires one")
	f.StringVar(&opts.method, "method", "", "Defuzzification method (default: server setting)")
	f.IntVar(&opts.limit, "limit", 1000, "Maximum records to evaluate (0 = all)")
	f.IntVar(&opts.workers, "workers", 10, "Number of concurrent workers")
	f.StringVar(&opts.jsonOut, "json", "", "Also write the report as JSON to this file")
	f.BoolVar(&opts.verbose, "verbose", false, "Print each record result")
	cmd.MarkFlagRequired("csv")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts *options) error {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL ACCURACY - Labeled Student Dataset           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", opts.csvPath)
	fmt.Printf("Kestrel URL: %s\n", opts.baseURL)
	fmt.Printf("Tenant ID:   %s\n", opts.tenantID)
	fmt.Printf("Workers:     %d\n", opts.workers)
	fmt.Printf("Limit:       %d\n", opts.limit)
	fmt.Println()

	if err := checkHealth(opts.baseURL); err != nil {
		return fmt.Errorf("kestrel not reachable at %s: %w", opts.baseURL, err)
	}
	fmt.Println("✓ Kestrel is healthy")

	records, err := readRecords(opts.csvPath, opts.limit)
	if err != nil {
		return fmt.Errorf("read CSV: %w", err)
	}
	fmt.Printf("✓ Loaded %d records\n", len(records))

	fmt.Printf("\nRunning evaluation with %d workers...\n\n", opts.workers)
	start := time.Now()
	collector := runAccuracy(records, opts)
	r := collector.Build(opts.method, time.Since(start))

	if err := r.Render(os.Stdout); err != nil {
		return err
	}

	if opts.jsonOut != "" {
		f, err := os.Create(opts.jsonOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := r.WriteJSON(f); err != nil {
			return err
		}
		fmt.Printf("Results saved to %s\n", opts.jsonOut)
	}
	return nil
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readRecords(path string, limit int) ([]dataset.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := dataset.Parse(file)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func runAccuracy(records []dataset.Record, opts *options) *report.Collector {
	collector := report.NewCollector()

	work := make(chan dataset.Record, 100)
	var wg sync.WaitGroup

	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()
				result, err := evaluateRecord(client, opts, rec)
				elapsed := time.Since(start).Milliseconds()

				if err != nil {
					collector.Fail()
					if opts.verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.StudentID, err)
					}
					continue
				}

				actual, err := rec.Label()
				if err != nil {
					actual = 0
				}

				collector.Add(report.Sample{
					ID:        rec.StudentID,
					Actual:    actual,
					Predicted: result.Category,
					Score:     result.Score,
					Inputs:    rec.Inputs(),
					LatencyMs: elapsed,
				})

				if opts.verbose {
					mark := "✓"
					if result.Category != actual {
						mark = "✗"
					}
					predicted := result.Category.String()
					if !result.Category.Valid() {
						predicted = report.Unclassified
					}
					fmt.Printf("%s %-10s | GPA %.2f | Attendance %.2f | Actual %-17s | Kestrel %-17s (%.2f)\n",
						mark, rec.StudentID, rec.GPA, rec.Attendance, actual, predicted, result.Score)
				}
			}
		}()
	}

	for _, rec := range records {
		work <- rec
	}
	close(work)

	wg.Wait()
	return collector
}

func evaluateRecord(client *http.Client, opts *options, rec dataset.Record) (*EvaluateResponse, error) {
	in := rec.Inputs()
	body, err := json.Marshal(EvaluateRequest{
		GPA:        in.GPA,
		CCA:        in.CCA,
		Attendance: in.Attendance,
		Midterm:    in.Midterm,
		FinalExam:  in.FinalExam,
		Method:     opts.method,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, opts.baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", opts.tenantID)
	if opts.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
