package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edumetrics/kestrel/internal/bus"
	"github.com/edumetrics/kestrel/internal/cache"
	"github.com/edumetrics/kestrel/internal/decision"
	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/fuzzy"
	"github.com/edumetrics/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	processor := decision.NewProcessor(fuzzy.Tsukamoto, nil)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicAssessmentRequested {
			t.Errorf("expected topic %s, got %s", domain.TopicAssessmentRequested, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("ProcessInputs", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		completed := make(chan []byte, 1)
		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed <- msg.Payload
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(domain.AssessmentRequest{
			RequestID: "req-001",
			Inputs:    &fuzzy.Inputs{GPA: 2.15, CCA: 68, Attendance: 0.82, Midterm: 78, FinalExam: 85},
		})
		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicAssessmentRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case data := <-completed:
			var resp domain.AssessmentResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				t.Fatalf("failed to parse assessment: %v", err)
			}
			if resp.Category != "Satisfactory" {
				t.Errorf("expected Satisfactory, got %q", resp.Category)
			}
			if resp.TenantID != "tenant-test" {
				t.Errorf("expected tenantID 'tenant-test', got '%s'", resp.TenantID)
			}
			if resp.Metadata.TraceID != "req-001" {
				t.Errorf("expected traceID 'req-001', got '%s'", resp.Metadata.TraceID)
			}
		case <-time.After(time.Second):
			t.Fatal("expected assessment to be published")
		}
	})

	t.Run("UnclassifiedPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor)
		w.Start(Config{TenantIDs: []string{"tenant-unclassified"}})
		defer w.Stop()

		var unclassified atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-unclassified", domain.TopicAssessmentUnclassified, func(ctx context.Context, msg *domain.Message) error {
			unclassified.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(domain.AssessmentRequest{
			RequestID: "req-002",
			Inputs:    &fuzzy.Inputs{GPA: 4.0, CCA: 10, Attendance: 0.95, Midterm: 90, FinalExam: 95},
		})
		eventBus.Publish(context.Background(), "tenant-unclassified", domain.TopicAssessmentRequested, payload)

		time.Sleep(100 * time.Millisecond)

		if !unclassified.Load() {
			t.Error("expected unclassified assessment to be published")
		}
	})

	t.Run("RequestReplyForStoredStudent", func(t *testing.T) {
		repo := newTestRepo(t)
		lru := cache.NewLRUCache(100)
		defer lru.Close()

		ctx := context.Background()
		student := &domain.Student{ID: "stu-001", GPA: 1.0, CCA: 30, Attendance: 0.5, Midterm: 40, FinalExam: 40}
		if err := repo.SaveStudent(ctx, "tenant-repo", student); err != nil {
			t.Fatalf("SaveStudent failed: %v", err)
		}

		w := NewWorker(eventBus, repo, lru, processor)
		w.Start(Config{TenantIDs: []string{"tenant-repo"}, AssessmentTTL: time.Minute})
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(domain.AssessmentRequest{RequestID: "req-003", StudentID: "stu-001"})
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := eventBus.Request(reqCtx, "tenant-repo", domain.TopicAssessmentRequested, payload)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var resp domain.AssessmentResponse
		if err := json.Unmarshal(reply, &resp); err != nil {
			t.Fatalf("failed to parse reply: %v", err)
		}
		if resp.StudentID != "stu-001" || resp.Category != "Poor" {
			t.Errorf("unexpected reply: student %q category %q", resp.StudentID, resp.Category)
		}

		stored, _ := repo.GetStudent(ctx, "tenant-repo", "stu-001")
		key := cache.AssessmentKey(stored.ID, stored.UpdatedAt, "tsukamoto")
		cached, err := lru.GetAssessment(ctx, "tenant-repo", key)
		if err != nil || cached == nil {
			t.Errorf("expected assessment to be cached, got %v", err)
		}
	})

	t.Run("ErrorReply", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor)
		w.Start(Config{TenantIDs: []string{"tenant-err"}})
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(domain.AssessmentRequest{RequestID: "req-004", StudentID: "stu-404"})
		reqCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		reply, err := eventBus.Request(reqCtx, "tenant-err", domain.TopicAssessmentRequested, payload)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var resp errorReply
		if err := json.Unmarshal(reply, &resp); err != nil {
			t.Fatalf("failed to parse reply: %v", err)
		}
		if resp.Error == "" || resp.RequestID != "req-004" {
			t.Errorf("expected error reply, got %+v", resp)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil, processor)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", got)
		}
	})
}
