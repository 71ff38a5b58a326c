//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Kestrel
// server.
//
// These tests verify the complete classification pipeline:
//
//	Measurements → Fuzzification → 58 rules → Defuzzification → Category
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server is expected at KESTREL_TEST_URL (default http://localhost:8080)
// with the built-in advisories loaded. When it runs with a JWT secret, set
// KESTREL_TEST_TOKEN to an admin token (kestrel token ops --role admin).
//
// CATEGORY BANDS (Tsukamoto crisp score):
//
// | Score        | Category          |
// |--------------|-------------------|
// | <= 40        | Poor              |
// | 40 - 60      | Needs Improvement |
// | 60 - 80      | Satisfactory      |
// | 80 - 95      | Good              |
// | >= 95        | Excellent         |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
	Token    string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
		Token:    os.Getenv("KESTREL_TEST_TOKEN"),
	}
}

// EvaluateRequest is the body sent to POST /evaluate
type EvaluateRequest struct {
	GPA        float64 `json:"gpa"`
	CCA        float64 `json:"cca"`
	Attendance float64 `json:"attendance"`
	Midterm    float64 `json:"midterm"`
	FinalExam  float64 `json:"finalExam"`
	Method     string  `json:"method,omitempty"`
}

// AssessmentResponse is what the classification endpoints return
type AssessmentResponse struct {
	AssessmentID string            `json:"assessmentId"`
	StudentID    string            `json:"studentId"`
	Status       string            `json:"status"`
	Category     string            `json:"category"`
	Score        float64           `json:"score"`
	Method       string            `json:"method"`
	Reasons      []string          `json:"reasons"`
	FiredRules   []json.RawMessage `json:"firedRules"`
	Metadata     struct {
		TraceID       string `json:"traceId"`
		RulesFired    int    `json:"rulesFired"`
		EngineVersion string `json:"engineVersion"`
	} `json:"metadata"`
}

func do(t *testing.T, config TestConfig, method, path, contentType string, body []byte) (int, []byte, http.Header) {
	t.Helper()

	httpReq, err := http.NewRequest(method, config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	if config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+config.Token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody, resp.Header
}

func evaluate(t *testing.T, config TestConfig, req EvaluateRequest) AssessmentResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	status, respBody, _ := do(t, config, http.MethodPost, "/evaluate", "application/json", body)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(respBody))
	}

	var result AssessmentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}
	return result
}

func TestMain(m *testing.M) {
	config := getTestConfig()
	resp, err := http.Get(config.BaseURL + "/health")
	if err != nil {
		fmt.Printf("kestrel not reachable at %s: %v\n", config.BaseURL, err)
		os.Exit(1)
	}
	resp.Body.Close()
	os.Exit(m.Run())
}

// ============================================================================
// SCENARIO 1: Typical student, two overlapping rules
// ============================================================================

func TestTypicalStudent_Satisfactory(t *testing.T) {
	/*
	   SCENARIO: GPA 2.15, CCA 68, attendance 0.82, midterm 78, final 85

	   EXPECTED BEHAVIOR:
	   - GPA is 0.125 Low and 0.5 Medium; attendance is 0.3 Medium, 0.2 High
	   - Two rules fire; the weighted crisp score is 76
	   - 76 falls in the Satisfactory band
	*/
	config := getTestConfig()

	result := evaluate(t, config, EvaluateRequest{GPA: 2.15, CCA: 68, Attendance: 0.82, Midterm: 78, FinalExam: 85})

	if result.Status != "CLASSIFIED" {
		t.Fatalf("Expected CLASSIFIED, got %s", result.Status)
	}
	if result.Category != "Satisfactory" {
		t.Errorf("Expected Satisfactory, got %s", result.Category)
	}
	if result.Score < 75.99 || result.Score > 76.01 {
		t.Errorf("Expected score 76, got %.4f", result.Score)
	}
	if result.Metadata.RulesFired != 2 || len(result.FiredRules) != 2 {
		t.Errorf("Expected 2 fired rules, got %d/%d", result.Metadata.RulesFired, len(result.FiredRules))
	}

	t.Logf("✓ Typical student: category=%s, score=%.2f", result.Category, result.Score)
}

// ============================================================================
// SCENARIO 2: Extremes of the rule base
// ============================================================================

func TestExtremes(t *testing.T) {
	config := getTestConfig()

	tests := []struct {
		name     string
		req      EvaluateRequest
		category string
		score    float64
	}{
		{"AllLow", EvaluateRequest{GPA: 1.0, CCA: 30, Attendance: 0.5, Midterm: 40, FinalExam: 40}, "Poor", 20},
		{"AllHigh", EvaluateRequest{GPA: 3.8, CCA: 90, Attendance: 0.95, Midterm: 90, FinalExam: 95}, "Excellent", 95},
		{"AllMedium", EvaluateRequest{GPA: 2.5, CCA: 65, Attendance: 0.75, Midterm: 65, FinalExam: 70}, "Satisfactory", 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evaluate(t, config, tt.req)
			if result.Category != tt.category {
				t.Errorf("Expected %s, got %s", tt.category, result.Category)
			}
			if result.Score < tt.score-0.01 || result.Score > tt.score+0.01 {
				t.Errorf("Expected score %.0f, got %.4f", tt.score, result.Score)
			}
		})
	}
}

// ============================================================================
// SCENARIO 3: Inputs no rule covers
// ============================================================================

func TestUncoveredInputs_Unclassified(t *testing.T) {
	/*
	   SCENARIO: GPA 4.0 (High) with CCA 10 (Low) and everything else High

	   EXPECTED BEHAVIOR:
	   - No rule pairs High GPA with Low CCA, every strength is 0
	   - The assessment is UNCLASSIFIED with no category
	   - The built-in "unclassified" advisory raises an alert reason
	   - With ?strict=true the same request fails with 422
	*/
	config := getTestConfig()
	req := EvaluateRequest{GPA: 4.0, CCA: 10, Attendance: 0.95, Midterm: 90, FinalExam: 95}

	result := evaluate(t, config, req)
	if result.Status != "UNCLASSIFIED" {
		t.Errorf("Expected UNCLASSIFIED, got %s", result.Status)
	}
	if result.Category != "" {
		t.Errorf("Expected no category, got %s", result.Category)
	}
	if len(result.Reasons) == 0 {
		t.Error("Expected an advisory reason for the uncovered input")
	}

	body, _ := json.Marshal(req)
	status, _, _ := do(t, config, http.MethodPost, "/evaluate?strict=true", "application/json", body)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 with strict=true, got %d", status)
	}
}

// ============================================================================
// SCENARIO 4: Strict defuzzification
// ============================================================================

func TestStrictMethod(t *testing.T) {
	/*
	   SCENARIO: The typical student under the strict method

	   EXPECTED BEHAVIOR:
	   - No category reaches its strict threshold
	   - Strict falls back to the strongest category, Satisfactory
	*/
	config := getTestConfig()

	result := evaluate(t, config, EvaluateRequest{GPA: 2.15, CCA: 68, Attendance: 0.82, Midterm: 78, FinalExam: 85, Method: "strict"})
	if result.Method != "strict" {
		t.Errorf("Expected method strict, got %s", result.Method)
	}
	if result.Category != "Satisfactory" {
		t.Errorf("Expected Satisfactory, got %s", result.Category)
	}
}

// ============================================================================
// SCENARIO 5: Validation
// ============================================================================

func TestOutOfRange_Rejected(t *testing.T) {
	config := getTestConfig()

	for _, req := range []EvaluateRequest{
		{GPA: 4.5, CCA: 60, Attendance: 0.7, Midterm: 60, FinalExam: 60},
		{GPA: 2.0, CCA: 60, Attendance: 1.5, Midterm: 60, FinalExam: 60},
		{GPA: 2.0, CCA: 60, Attendance: 0.7, Midterm: -1, FinalExam: 60},
	} {
		body, _ := json.Marshal(req)
		status, respBody, _ := do(t, config, http.MethodPost, "/evaluate", "application/json", body)
		if status != http.StatusBadRequest {
			t.Errorf("Expected 400 for %+v, got %d: %s", req, status, respBody)
		}
	}
}

// ============================================================================
// SCENARIO 6: Stored students and cached assessments
// ============================================================================

func TestStudentLifecycle(t *testing.T) {
	config := getTestConfig()
	id := fmt.Sprintf("it-%d", time.Now().UnixNano())

	csv := "Student ID,University ID,GPA,Core Course Average,Attendance Rate,Final Exam Scores,Midterm Exam Scores,Performance\n" +
		id + ",it-univ,2.15,68,0.82,85,78,Satisfactory\n"

	status, body, _ := do(t, config, http.MethodPost, "/students/import", "text/csv", []byte(csv))
	if status != http.StatusOK {
		t.Fatalf("Import failed: %d %s", status, body)
	}
	defer do(t, config, http.MethodDelete, "/students/"+id, "application/json", nil)

	status, body, headers := do(t, config, http.MethodGet, "/students/"+id+"/assessment", "application/json", nil)
	if status != http.StatusOK {
		t.Fatalf("Assessment failed: %d %s", status, body)
	}
	if headers.Get("X-Cache") != "MISS" {
		t.Errorf("Expected first assessment to miss the cache, got %q", headers.Get("X-Cache"))
	}

	var first AssessmentResponse
	json.Unmarshal(body, &first)
	if first.StudentID != id || first.Category != "Satisfactory" {
		t.Errorf("Unexpected assessment: %s %s", first.StudentID, first.Category)
	}

	_, body, headers = do(t, config, http.MethodGet, "/students/"+id+"/assessment", "application/json", nil)
	if headers.Get("X-Cache") != "HIT" {
		t.Errorf("Expected second assessment to hit the cache, got %q", headers.Get("X-Cache"))
	}

	var second AssessmentResponse
	json.Unmarshal(body, &second)
	if second.AssessmentID != first.AssessmentID {
		t.Errorf("Expected the cached assessment, got a new ID")
	}
}

func TestRuleBase(t *testing.T) {
	config := getTestConfig()

	status, body, _ := do(t, config, http.MethodGet, "/rulebase", "application/json", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}

	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(body, &resp)
	if resp.Count != 58 {
		t.Errorf("Expected 58 rules, got %d", resp.Count)
	}
	if !strings.Contains(string(body), "Needs Improvement") {
		t.Error("Expected category names in the rule base")
	}
}
