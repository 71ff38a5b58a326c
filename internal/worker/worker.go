// Package worker assesses students asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edumetrics/kestrel/internal/cache"
	"github.com/edumetrics/kestrel/internal/decision"
	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
)

// Worker consumes assessment requests and publishes the results.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	processor *decision.Processor

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process. Empty subscribes the
	// "_global" tenant only.
	TenantIDs []string

	// AssessmentTTL caches stored-student assessments when a cache is set.
	AssessmentTTL time.Duration
}

// NewWorker creates a new async worker. repo and cache may be nil; without
// a repository only requests carrying inputs can be served.
func NewWorker(bus domain.EventBus, repo domain.Repository, c domain.Cache, processor *decision.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     c,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the request topic for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{"_global"}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
			return w.handle(ctx, msg, cfg.AssessmentTTL)
		})
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	if len(w.subscriptions) == 0 {
		return fmt.Errorf("no tenant subscriptions could be started")
	}

	slog.Info("workers started",
		"tenant_count", len(w.subscriptions),
		"topic", domain.TopicAssessmentRequested,
	)
	return nil
}

// errorReply is sent back to a requester whose request failed.
type errorReply struct {
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error"`
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message, ttl time.Duration) error {
	var req domain.AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		w.replyError(ctx, msg, "", err)
		return err
	}

	a, err := w.assess(ctx, msg, &req, ttl)
	if err != nil {
		slog.Error("assessment request failed",
			"request_id", req.RequestID,
			"tenant_id", msg.TenantID,
			"student_id", req.StudentID,
			"error", err,
		)
		w.replyError(ctx, msg, req.RequestID, err)
		return err
	}

	payload, err := json.Marshal(a.ToResponse())
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	if err := w.bus.Publish(ctx, msg.TenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		slog.Error("failed to publish assessment",
			"request_id", req.RequestID,
			"error", err,
		)
	}
	if !a.Classified() {
		if err := w.bus.Publish(ctx, msg.TenantID, domain.TopicAssessmentUnclassified, payload); err != nil {
			slog.Error("failed to publish unclassified assessment",
				"request_id", req.RequestID,
				"error", err,
			)
		}
	}
	if err := w.bus.Reply(ctx, msg, payload); err != nil {
		slog.Warn("failed to reply to requester",
			"request_id", req.RequestID,
			"error", err,
		)
	}

	slog.Info("assessment processed",
		"request_id", req.RequestID,
		"tenant_id", msg.TenantID,
		"student_id", req.StudentID,
		"status", a.Status,
		"category", a.Category.String(),
		"notify", decision.ShouldNotify(a),
		"duration_ms", a.Metadata.TotalMs,
	)
	return nil
}

func (w *Worker) assess(ctx context.Context, msg *domain.Message, req *domain.AssessmentRequest, ttl time.Duration) (*domain.Assessment, error) {
	start := time.Now()

	method, err := fuzzy.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if req.Method == "" {
		method = w.processor.Method
	}

	traceID := req.RequestID
	if traceID == "" {
		traceID = msg.ID
	}

	if req.Inputs != nil {
		if err := req.Inputs.Validate(); err != nil {
			return nil, err
		}
		return w.processor.Assess(ctx, &decision.AssessInput{
			TenantID:  msg.TenantID,
			StudentID: req.StudentID,
			TraceID:   traceID,
			Inputs:    *req.Inputs,
			Method:    &method,
			StartTime: start,
		}), nil
	}

	if req.StudentID == "" {
		return nil, errors.New("either studentId or inputs is required")
	}
	if w.repo == nil {
		return nil, errors.New("student lookup unavailable")
	}

	student, err := w.repo.GetStudent(ctx, msg.TenantID, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student %s: %w", req.StudentID, err)
	}

	key := cache.AssessmentKey(student.ID, student.UpdatedAt, method.String())
	if w.cache != nil {
		if cached, err := w.cache.GetAssessment(ctx, msg.TenantID, key); err == nil && cached != nil {
			return cached, nil
		}
	}

	a := w.processor.Assess(ctx, &decision.AssessInput{
		TenantID:  msg.TenantID,
		StudentID: student.ID,
		TraceID:   traceID,
		Inputs:    student.Inputs(),
		Method:    &method,
		StartTime: start,
	})

	if w.cache != nil && ttl > 0 {
		if err := w.cache.SetAssessment(ctx, msg.TenantID, key, a, ttl); err != nil {
			slog.Warn("failed to cache assessment",
				"student_id", student.ID,
				"error", err,
			)
		}
	}
	return a, nil
}

func (w *Worker) replyError(ctx context.Context, msg *domain.Message, requestID string, cause error) {
	payload, _ := json.Marshal(errorReply{RequestID: requestID, Error: cause.Error()})
	if err := w.bus.Reply(ctx, msg, payload); err != nil {
		slog.Warn("failed to send error reply",
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
