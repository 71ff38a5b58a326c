// Package dataset reads and writes labeled academic records in the CSV
// layout used by the historical student datasets.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/gocarina/gocsv"
)

// ErrInvalidRecord is returned for unparseable files and out-of-range rows.
var ErrInvalidRecord = errors.New("invalid record")

// Record is one CSV row. Unknown columns such as
// "Project/Assignment Scores" are ignored.
type Record struct {
	StudentID    string  `csv:"Student ID"`
	UniversityID string  `csv:"University ID"`
	GPA          float64 `csv:"GPA"`
	CCA          float64 `csv:"Core Course Average"`
	Attendance   float64 `csv:"Attendance Rate"`
	FinalExam    float64 `csv:"Final Exam Scores"`
	Midterm      float64 `csv:"Midterm Exam Scores"`
	Performance  string  `csv:"Performance"`
}

// Inputs returns the row's measurements.
func (r *Record) Inputs() fuzzy.Inputs {
	return fuzzy.Inputs{
		GPA:        r.GPA,
		CCA:        r.CCA,
		Attendance: r.Attendance,
		Midterm:    r.Midterm,
		FinalExam:  r.FinalExam,
	}
}

// Label returns the normalized Performance column.
func (r *Record) Label() (fuzzy.Category, error) {
	return NormalizeLabel(r.Performance)
}

// Prediction is a Record with the engine's verdict appended.
type Prediction struct {
	Record
	Predicted string  `csv:"Predicted"`
	Score     float64 `csv:"Score"`
	Status    string  `csv:"Status"`
}

// NormalizeLabel maps a label spelling to a category. Empty labels map to
// the zero category without error.
func NormalizeLabel(s string) (fuzzy.Category, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return fuzzy.ParseCategory(s)
}

// Parse reads every row of a CSV stream. Rows are checked for a student ID,
// in-range measurements and a known label; the first bad row fails the
// whole file.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	for i := range records {
		if err := validate(&records[i]); err != nil {
			// line 1 is the header
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, i+2, err)
		}
	}
	return records, nil
}

func validate(r *Record) error {
	r.StudentID = strings.TrimSpace(r.StudentID)
	if r.StudentID == "" {
		return errors.New("student id is required")
	}
	if err := r.Inputs().Validate(); err != nil {
		return err
	}
	if _, err := r.Label(); err != nil {
		return err
	}
	return nil
}

// Students converts parsed records into tenant-scoped student records.
func Students(tenantID string, records []Record) []*domain.Student {
	out := make([]*domain.Student, 0, len(records))
	for i := range records {
		r := &records[i]
		label, _ := r.Label()
		out = append(out, &domain.Student{
			ID:           r.StudentID,
			TenantID:     tenantID,
			UniversityID: r.UniversityID,
			GPA:          r.GPA,
			CCA:          r.CCA,
			Attendance:   r.Attendance,
			Midterm:      r.Midterm,
			FinalExam:    r.FinalExam,
			Label:        label,
		})
	}
	return out
}

// FromStudents converts stored records back to CSV rows.
func FromStudents(students []*domain.Student) []Record {
	out := make([]Record, 0, len(students))
	for _, s := range students {
		out = append(out, Record{
			StudentID:    s.ID,
			UniversityID: s.UniversityID,
			GPA:          s.GPA,
			CCA:          s.CCA,
			Attendance:   s.Attendance,
			FinalExam:    s.FinalExam,
			Midterm:      s.Midterm,
			Performance:  s.Label.String(),
		})
	}
	return out
}

// Write encodes records with the header row.
func Write(w io.Writer, records []Record) error {
	return gocsv.Marshal(records, w)
}

// WritePredictions encodes predictions with the header row.
func WritePredictions(w io.Writer, predictions []Prediction) error {
	return gocsv.Marshal(predictions, w)
}
