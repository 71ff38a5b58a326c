package domain

import (
	"errors"
	"time"

	"github.com/edumetrics/kestrel/internal/fuzzy"
)

// Student is one tenant-scoped academic record.
type Student struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	UniversityID string `json:"universityId,omitempty"`

	// Measurements
	GPA        float64 `json:"gpa"`
	CCA        float64 `json:"cca"`
	Attendance float64 `json:"attendance"`
	Midterm    float64 `json:"midterm"`
	FinalExam  float64 `json:"finalExam"`

	// Label is the externally assigned category, if known. Zero means unlabeled.
	Label fuzzy.Category `json:"label,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Inputs returns the record's measurements as engine inputs.
func (s *Student) Inputs() fuzzy.Inputs {
	return fuzzy.Inputs{
		GPA:        s.GPA,
		CCA:        s.CCA,
		Attendance: s.Attendance,
		Midterm:    s.Midterm,
		FinalExam:  s.FinalExam,
	}
}

// Validate checks the identifiers and that every measurement is in range.
func (s *Student) Validate() error {
	if s.ID == "" {
		return errors.New("student id is required")
	}
	return s.Inputs().Validate()
}

// StudentRequest is the API payload for creating or replacing a record.
type StudentRequest struct {
	ID           string  `json:"id"`
	UniversityID string  `json:"universityId"`
	GPA          float64 `json:"gpa"`
	CCA          float64 `json:"cca"`
	Attendance   float64 `json:"attendance"`
	Midterm      float64 `json:"midterm"`
	FinalExam    float64 `json:"finalExam"`
	Label        string  `json:"label,omitempty"`
}

// ToStudent converts a request to a Student. The label is parsed leniently
// by fuzzy.ParseCategory; an unknown label is an error.
func (r *StudentRequest) ToStudent(tenantID string) (*Student, error) {
	s := &Student{
		ID:           r.ID,
		TenantID:     tenantID,
		UniversityID: r.UniversityID,
		GPA:          r.GPA,
		CCA:          r.CCA,
		Attendance:   r.Attendance,
		Midterm:      r.Midterm,
		FinalExam:    r.FinalExam,
	}
	if r.Label != "" {
		label, err := fuzzy.ParseCategory(r.Label)
		if err != nil {
			return nil, err
		}
		s.Label = label
	}
	return s, nil
}
