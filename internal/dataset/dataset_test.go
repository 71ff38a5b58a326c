package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
)

const sample = `Student ID,University ID,GPA,Core Course Average,Attendance Rate,Final Exam Scores,Midterm Exam Scores,Project/Assignment Scores,Performance
1,10,2.15,68,0.82,85,78,70,Satisfactory
2,10,1.0,30,0.5,40,40,35,Kurang
3,11,3.8,90,0.95,95,90,92,excellent
4,11,2.5,65,0.75,70,65,60,
`

func TestParse(t *testing.T) {
	records, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	first := records[0]
	if first.StudentID != "1" || first.UniversityID != "10" {
		t.Errorf("unexpected ids: %q %q", first.StudentID, first.UniversityID)
	}
	want := fuzzy.Inputs{GPA: 2.15, CCA: 68, Attendance: 0.82, Midterm: 78, FinalExam: 85}
	if first.Inputs() != want {
		t.Errorf("expected inputs %+v, got %+v", want, first.Inputs())
	}

	labels := []fuzzy.Category{fuzzy.Satisfactory, fuzzy.Poor, fuzzy.Excellent, 0}
	for i, r := range records {
		got, err := r.Label()
		if err != nil {
			t.Errorf("record %d: unexpected label error: %v", i, err)
		}
		if got != labels[i] {
			t.Errorf("record %d: expected label %v, got %v", i, labels[i], got)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	header := "Student ID,GPA,Core Course Average,Attendance Rate,Final Exam Scores,Midterm Exam Scores,Performance\n"

	tests := []struct {
		name string
		body string
		line string
	}{
		{"out of range", header + "1,2.0,60,1.5,60,60,Good\n", "line 2"},
		{"missing id", header + "1,2.0,60,0.7,60,60,Good\n,2.0,60,0.7,60,60,Good\n", "line 3"},
		{"unknown label", header + "1,2.0,60,0.7,60,60,Great\n", "line 2"},
		{"not a number", header + "1,abc,60,0.7,60,60,Good\n", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body))
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
			if tt.line != "" && !strings.Contains(err.Error(), tt.line) {
				t.Errorf("expected error to mention %q, got %v", tt.line, err)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    fuzzy.Category
		wantErr bool
	}{
		{"Poor", fuzzy.Poor, false},
		{"  needs improvement ", fuzzy.NeedsImprovement, false},
		{"Perlu Perbaikan", fuzzy.NeedsImprovement, false},
		{"Memuaskan", fuzzy.Satisfactory, false},
		{"Baik", fuzzy.Good, false},
		{"Sangat Baik", fuzzy.Excellent, false},
		{"", 0, false},
		{"Outstanding", 0, true},
	}

	for _, tt := range tests {
		got, err := NormalizeLabel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeLabel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeLabel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStudents(t *testing.T) {
	records, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	students := Students("tenant-001", records)
	if len(students) != len(records) {
		t.Fatalf("expected %d students, got %d", len(records), len(students))
	}
	for _, s := range students {
		if s.TenantID != "tenant-001" {
			t.Errorf("expected tenant on every student, got %q", s.TenantID)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("student %s invalid: %v", s.ID, err)
		}
	}
	if students[1].Label != fuzzy.Poor {
		t.Errorf("expected Poor label, got %v", students[1].Label)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	students := []*domain.Student{
		{ID: "a", UniversityID: "u1", GPA: 3.1, CCA: 72, Attendance: 0.88, Midterm: 74, FinalExam: 80, Label: fuzzy.Good},
		{ID: "b", GPA: 1.2, CCA: 40, Attendance: 0.55, Midterm: 50, FinalExam: 45},
	}

	var buf bytes.Buffer
	if err := Write(&buf, FromStudents(students)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Student ID,University ID,GPA,") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	records, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse of written CSV failed: %v", err)
	}
	back := Students("t", records)
	if back[0].Label != fuzzy.Good || back[1].Label != 0 {
		t.Errorf("labels not preserved: %v %v", back[0].Label, back[1].Label)
	}
	if back[0].Inputs() != students[0].Inputs() {
		t.Errorf("measurements not preserved: %+v", back[0].Inputs())
	}
}

func TestWritePredictions(t *testing.T) {
	var buf bytes.Buffer
	err := WritePredictions(&buf, []Prediction{{
		Record:    Record{StudentID: "1", GPA: 2.15, CCA: 68, Attendance: 0.82, Midterm: 78, FinalExam: 85},
		Predicted: "Satisfactory",
		Score:     76,
		Status:    domain.StatusClassified,
	}})
	if err != nil {
		t.Fatalf("WritePredictions failed: %v", err)
	}

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	if !strings.HasSuffix(header, "Performance,Predicted,Score,Status") {
		t.Errorf("unexpected header: %q", header)
	}
}
