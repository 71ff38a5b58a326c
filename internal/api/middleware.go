package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/edumetrics/kestrel/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

// requestInfoKey holds the *requestInfo of the current request.
const requestInfoKey contextKey = "requestInfo"

const (
	// TenantIDHeader is the HTTP header for tenant ID.
	TenantIDHeader = "X-Tenant-ID"

	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader is the HTTP header for trace ID.
	TraceIDHeader = "X-Trace-ID"
)

var tracer = otel.Tracer("github.com/edumetrics/kestrel/internal/api")

// tenantPattern bounds tenant IDs to what is safe in cache keys and
// bus subjects.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// requestInfo is created once per request by TracingMiddleware and filled in
// by the handlers below it, so the outer logging middleware sees the tenant.
type requestInfo struct {
	RequestID string
	TraceID   string
	TenantID  string
}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info
	}
	return nil
}

// TracingMiddleware assigns request and trace IDs and wraps the request in a
// span named after the matched route.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{RequestID: r.Header.Get(RequestIDHeader)}
		if info.RequestID == "" {
			info.RequestID = uuid.New().String()
		}

		ctx, span := tracer.Start(r.Context(), "http.request",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("request.id", info.RequestID),
			),
		)
		defer span.End()

		info.TraceID = info.RequestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			info.TraceID = sc.TraceID().String()
		}

		w.Header().Set(RequestIDHeader, info.RequestID)
		w.Header().Set(TraceIDHeader, info.TraceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(context.WithValue(ctx, requestInfoKey, info))
		next.ServeHTTP(ww, r)

		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			span.SetName(r.Method + " " + rc.RoutePattern())
			span.SetAttributes(attribute.String("http.route", rc.RoutePattern()))
		}
		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if info.TenantID != "" {
			span.SetAttributes(attribute.String("tenant.id", info.TenantID))
		}
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// LoggingMiddleware logs one line per request, at warn level for 4xx and
// error level for 5xx responses.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			level = slog.LevelError
		case ww.Status() >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if info := infoFrom(r.Context()); info != nil {
			attrs = append(attrs,
				"tenant_id", info.TenantID,
				"request_id", info.RequestID,
				"trace_id", info.TraceID,
			)
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}

// TenantMiddleware requires a well-formed X-Tenant-ID header. The global
// tenant "*" is reserved for shared advisories and cannot be addressed.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantIDHeader)
		switch {
		case tenantID == "":
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "X-Tenant-ID header is required",
			})
			return
		case tenantID == domain.GlobalTenantID:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "tenant id is reserved",
			})
			return
		case !tenantPattern.MatchString(tenantID):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "tenant id must be 1-64 letters, digits, '.', '_' or '-'",
			})
			return
		}

		info := infoFrom(r.Context())
		if info == nil {
			info = &requestInfo{}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoKey, info))
		}
		info.TenantID = tenantID

		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware rejects requests over the tenant's window with 429.
// Limiter failures are logged and let the request through.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limiter.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := GetTenantID(r.Context())

			d, err := limiter.Allow(r.Context(), tenantID)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					"tenant_id", tenantID,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RecoverMiddleware turns a handler panic into a JSON 500 and logs the stack.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic recovered",
				"error", fmt.Sprint(rec),
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// GetTenantID returns the tenant of the current request.
func GetTenantID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.TenantID
	}
	return ""
}

// GetTraceID returns the trace ID of the current request.
func GetTraceID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.TraceID
	}
	return ""
}

// GetRequestID returns the request ID of the current request.
func GetRequestID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.RequestID
	}
	return ""
}
