package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// FileExporter appends spans to a JSONL file, one object per line, for
// inspection with jq. It implements sdktrace.SpanExporter.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileExporter opens path for appending, creating it and its parent
// directories as needed.
func NewFileExporter(path string) (*FileExporter, error) {
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	file, err := os.OpenFile(clean, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{file: file, enc: json.NewEncoder(file)}, nil
}

// ExportSpans writes spans in JSONL format.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return fmt.Errorf("trace file closed")
	}
	for _, span := range spans {
		if err := e.enc.Encode(recordOf(span)); err != nil {
			return fmt.Errorf("encode span: %w", err)
		}
	}
	return nil
}

// Shutdown closes the file. Later exports fail.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// SpanRecord is the JSON form of an exported span.
type SpanRecord struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_span_id,omitempty"`
	Name       string         `json:"name"`
	Start      time.Time      `json:"start_time"`
	End        time.Time      `json:"end_time"`
	DurationMs float64        `json:"duration_ms"`
	Status     string         `json:"status"`
	StatusMsg  string         `json:"status_message,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []EventRecord  `json:"events,omitempty"`
}

// EventRecord is the JSON form of a span event.
type EventRecord struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func recordOf(span sdktrace.ReadOnlySpan) SpanRecord {
	sc := span.SpanContext()
	rec := SpanRecord{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Name:       span.Name(),
		Start:      span.StartTime(),
		End:        span.EndTime(),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000.0,
		Status:     statusName(span.Status().Code),
		StatusMsg:  span.Status().Description,
		Attributes: attrMap(span.Attributes()),
	}
	if span.Parent().IsValid() {
		rec.ParentID = span.Parent().SpanID().String()
	}
	for _, ev := range span.Events() {
		rec.Events = append(rec.Events, EventRecord{
			Name:       ev.Name,
			Time:       ev.Time,
			Attributes: attrMap(ev.Attributes),
		})
	}
	return rec
}

func attrMap(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func statusName(c codes.Code) string {
	switch c {
	case codes.Ok:
		return "OK"
	case codes.Error:
		return "ERROR"
	default:
		return "UNSET"
	}
}
