package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Span times one operation such as an HTTP request, a ledger load or an
// export. Spans nest through the context and are reported to the log when
// they end.
type Span struct {
	TraceID   string
	SpanID    string
	ParentID  string
	Operation string
	Start     time.Time
	Duration  time.Duration
	Tags      map[string]string
	Err       error
}

type spanKey struct{}

// StartSpan opens a span as a child of the span in ctx, if any.
func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	span := &Span{
		TraceID:   newID(),
		SpanID:    newID(),
		Operation: operation,
		Start:     time.Now(),
		Tags:      map[string]string{},
	}
	if parent := GetSpan(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

func GetSpan(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError marks the span failed.
func (s *Span) SetError(err error) {
	s.Err = err
}

func (s *Span) Failed() bool {
	return s.Err != nil
}

// End records the duration and logs the span: at debug when it succeeded,
// at error when it failed.
func (s *Span) End(logger *slog.Logger) {
	s.Duration = time.Since(s.Start)

	attrs := []any{
		"operation", s.Operation,
		"trace_id", s.TraceID,
		"span_id", s.SpanID,
		"duration", s.Duration,
	}
	if s.ParentID != "" {
		attrs = append(attrs, "parent_id", s.ParentID)
	}
	for _, k := range slices.Sorted(maps.Keys(s.Tags)) {
		attrs = append(attrs, k, s.Tags[k])
	}

	if s.Failed() {
		logger.Error("span failed", append(attrs, "error", s.Err)...)
		return
	}
	logger.Debug("span finished", attrs...)
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
