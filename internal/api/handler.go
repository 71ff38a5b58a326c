package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edumetrics/kestrel/internal/cache"
	"github.com/edumetrics/kestrel/internal/dataset"
	"github.com/edumetrics/kestrel/internal/decision"
	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/edumetrics/kestrel/internal/repository"
	"github.com/edumetrics/kestrel/internal/rules"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// maxImportBytes bounds a CSV upload.
const maxImportBytes = 32 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo          domain.Repository
	cache         domain.Cache
	bus           domain.EventBus
	advisories    *rules.Engine
	processor     *decision.Processor
	version       string
	assessmentTTL time.Duration

	flight singleflight.Group
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, advisories *rules.Engine, processor *decision.Processor, version string, assessmentTTL time.Duration) *Handler {
	return &Handler{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		advisories:    advisories,
		processor:     processor,
		version:       version,
		assessmentTTL: assessmentTTL,
	}
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	GPA        float64 `json:"gpa"`
	CCA        float64 `json:"cca"`
	Attendance float64 `json:"attendance"`
	Midterm    float64 `json:"midterm"`
	FinalExam  float64 `json:"finalExam"`
	Method     string  `json:"method,omitempty"`
}

// Inputs returns the request's measurements.
func (r *EvaluateRequest) Inputs() fuzzy.Inputs {
	return fuzzy.Inputs{
		GPA:        r.GPA,
		CCA:        r.CCA,
		Attendance: r.Attendance,
		Midterm:    r.Midterm,
		FinalExam:  r.FinalExam,
	}
}

// requestMethod resolves the defuzzification method from the ?method=
// query parameter, then the body, then the processor default.
func (h *Handler) requestMethod(r *http.Request, body string) (fuzzy.Method, error) {
	name := r.URL.Query().Get("method")
	if name == "" {
		name = body
	}
	if name == "" {
		return h.processor.Method, nil
	}
	return fuzzy.ParseMethod(name)
}

// Evaluate handles POST /evaluate. Inputs no rule covers produce an
// UNCLASSIFIED assessment, or 422 when ?strict=true.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	inputs := req.Inputs()
	if err := inputs.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	method, err := h.requestMethod(r, req.Method)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	a := h.processor.Assess(ctx, &decision.AssessInput{
		TenantID:  GetTenantID(ctx),
		TraceID:   GetTraceID(ctx),
		Inputs:    inputs,
		Method:    &method,
		StartTime: start,
	})

	if !a.Classified() && r.URL.Query().Get("strict") == "true" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": fuzzy.ErrNoActiveRule.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, a.ToResponse())
}

// StudentAssessment handles GET /students/{id}/assessment. Results are
// cached per record version and method.
func (h *Handler) StudentAssessment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if !h.requireRepo(w) {
		return
	}

	method, err := h.requestMethod(r, "")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	student, ok := h.loadStudent(w, r)
	if !ok {
		return
	}

	key := cache.AssessmentKey(student.ID, student.UpdatedAt, method.String())
	if h.cache != nil {
		cached, err := h.cache.GetAssessment(ctx, tenantID, key)
		if err != nil {
			slog.Warn("assessment cache read failed", "student_id", student.ID, "error", err)
		}
		if cached != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached.ToResponse())
			return
		}
	}

	// Concurrent misses for the same record version share one evaluation.
	// It outlives the first caller, whose result every waiter receives.
	v, _, shared := h.flight.Do(tenantID+"/"+key, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		a := h.processor.Assess(flightCtx, &decision.AssessInput{
			TenantID:  tenantID,
			StudentID: student.ID,
			TraceID:   GetTraceID(ctx),
			Inputs:    student.Inputs(),
			Method:    &method,
			StartTime: start,
		})

		if !a.AdvisoriesComplete() {
			slog.Warn("assessment not cached, advisories incomplete", "student_id", student.ID)
			return a, nil
		}
		if h.cache != nil && h.assessmentTTL > 0 {
			if err := h.cache.SetAssessment(flightCtx, tenantID, key, a, h.assessmentTTL); err != nil {
				slog.Warn("assessment cache write failed", "student_id", student.ID, "error", err)
			}
		}
		return a, nil
	})
	a := v.(*domain.Assessment)
	if shared {
		slog.Debug("assessment shared with concurrent request", "student_id", student.ID)
	}

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, a.ToResponse())
}

// RuleBase handles GET /rulebase: the fixed rules and variable partitions.
func (h *Handler) RuleBase(w http.ResponseWriter, r *http.Request) {
	categories := make([]map[string]interface{}, 0, len(fuzzy.Categories))
	for _, c := range fuzzy.Categories {
		categories = append(categories, map[string]interface{}{
			"name":            c.String(),
			"rank":            c.Rank(),
			"crispValue":      c.CrispValue(),
			"strictThreshold": fuzzy.StrictThreshold(c),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":      fuzzy.Rules(),
		"count":      fuzzy.RuleCount(),
		"variables":  fuzzy.Variables(),
		"categories": categories,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports readiness and, for in-process caches, their counters.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"ready": true}
	if sr, ok := h.cache.(cache.StatsReporter); ok {
		stats := sr.Stats()
		resp["cache"] = map[string]interface{}{
			"size":     stats.Size,
			"capacity": stats.Capacity,
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"hitRate":  stats.HitRate(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListStudents handles GET /students with optional universityId, limit
// and offset query parameters.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	q := r.URL.Query()
	filter := domain.StudentFilter{UniversityID: q.Get("universityId")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": name + " must be a non-negative integer",
			})
			return
		}
		*dst = n
	}

	students, err := h.repo.ListStudents(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		slog.Error("failed to list students", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list students",
		})
		return
	}
	if students == nil {
		students = []*domain.Student{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"students": students,
		"count":    len(students),
	})
}

// GetStudent handles GET /students/{id}.
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	if student, ok := h.loadStudent(w, r); ok {
		writeJSON(w, http.StatusOK, student)
	}
}

// CreateStudent handles POST /students.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	h.saveStudent(w, r, "", http.StatusCreated)
}

// UpdateStudent handles PUT /students/{id}. The path ID wins over the body.
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	h.saveStudent(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) saveStudent(w http.ResponseWriter, r *http.Request, id string, status int) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.StudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if id != "" {
		req.ID = id
	}

	student, err := req.ToStudent(tenantID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveStudent(ctx, tenantID, student); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save student", "student_id", student.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save student",
		})
		return
	}

	saved, err := h.repo.GetStudent(ctx, tenantID, student.ID)
	if err != nil {
		saved = student
	}

	slog.Info("student saved", "tenant_id", tenantID, "student_id", student.ID)
	writeJSON(w, status, saved)
}

// DeleteStudent handles DELETE /students/{id}.
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteStudent(ctx, GetTenantID(ctx), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "student not found",
			})
			return
		}
		slog.Error("failed to delete student", "student_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete student",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ImportStudents handles POST /students/import with a CSV body. With
// ?assess=async every imported record is queued for assessment on the bus.
func (h *Handler) ImportStudents(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	records, err := dataset.Parse(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	students := dataset.Students(tenantID, records)
	n, err := h.repo.ImportStudents(ctx, tenantID, students)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to import students", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to import students",
		})
		return
	}

	queued := 0
	if r.URL.Query().Get("assess") == "async" && h.bus != nil {
		for _, s := range students {
			payload, _ := json.Marshal(domain.AssessmentRequest{
				RequestID: uuid.New().String(),
				StudentID: s.ID,
			})
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentRequested, payload); err != nil {
				slog.Warn("failed to queue assessment", "student_id", s.ID, "error", err)
				continue
			}
			queued++
		}
	}

	slog.Info("students imported",
		"tenant_id", tenantID,
		"request_id", GetRequestID(ctx),
		"count", n,
		"queued", queued,
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": n,
		"queued":   queued,
	})
}

// ListAdvisories returns the advisory rules loaded in the engine.
func (h *Handler) ListAdvisories(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdvisories(w) {
		return
	}

	loaded := h.advisories.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"advisories": loaded,
		"count":      len(loaded),
	})
}

// GetAdvisory retrieves a loaded advisory rule by ID.
func (h *Handler) GetAdvisory(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdvisories(w) {
		return
	}
	id := chi.URLParam(r, "id")

	for _, rule := range h.advisories.GetLoadedRules() {
		if rule.ID == id {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "advisory not found",
	})
}

// CreateAdvisoryRequest is the request body for POST /advisories.
type CreateAdvisoryRequest struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Version     string                `json:"version,omitempty"`
	Expression  string                `json:"expression"`
	Bands       []domain.AdvisoryBand `json:"bands"`
	Weight      float64               `json:"weight"`
	Enabled     bool                  `json:"enabled"`
}

// CreateAdvisory validates and stores a global advisory rule. It takes
// effect after POST /advisories/reload.
func (h *Handler) CreateAdvisory(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdvisories(w) || !h.requireRepo(w) {
		return
	}
	ctx := r.Context()

	var req CreateAdvisoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	rule := &domain.AdvisoryRule{
		ID:          req.ID,
		TenantID:    domain.GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	if err := h.advisories.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid advisory: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveAdvisoryRule(ctx, domain.GlobalTenantID, rule); err != nil {
		slog.Error("failed to save advisory", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save advisory",
		})
		return
	}

	slog.Info("advisory created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"advisory": rule,
		"message":  "Advisory created. Call POST /advisories/reload to apply changes.",
	})
}

// ReloadAdvisories reloads the enabled global advisories from the
// repository into the engine.
func (h *Handler) ReloadAdvisories(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdvisories(w) || !h.requireRepo(w) {
		return
	}
	ctx := r.Context()

	stored, err := h.repo.ListAdvisoryRules(ctx, domain.GlobalTenantID)
	if err != nil {
		slog.Error("failed to list advisories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load advisories",
		})
		return
	}

	if err := h.advisories.ReloadRules(stored); err != nil {
		slog.Error("failed to reload advisories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload advisories: " + err.Error(),
		})
		return
	}

	slog.Info("advisories reloaded", "count", h.advisories.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "advisories reloaded successfully",
		"count":   h.advisories.RulesCount(),
	})
}

func (h *Handler) loadStudent(w http.ResponseWriter, r *http.Request) (*domain.Student, bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	student, err := h.repo.GetStudent(ctx, GetTenantID(ctx), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "student not found",
			})
			return nil, false
		}
		slog.Error("failed to get student", "student_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get student",
		})
		return nil, false
	}
	return student, true
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return false
	}
	return true
}

func (h *Handler) requireAdvisories(w http.ResponseWriter) bool {
	if h.advisories == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "advisory engine not available",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
