package ctxutil

import (
	"context"
	"fmt"
	"strings"
)

// Payload keys under which trace identity travels with a queued job.
const (
	PayloadTraceID   = "trace_id"
	PayloadRequestID = "request_id"
)

// TraceData identifies the request (or job) a unit of work belongs to.
type TraceData struct {
	TraceID   string
	RequestID string
	OrgID     string
}

type traceKey struct{}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceKey{}, td)
}

// GetTraceData returns nil when ctx carries no trace data.
func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceKey{}).(*TraceData)
	return td
}

// Fields renders the non-empty ids as logger key/value pairs.
func (td *TraceData) Fields() []interface{} {
	if td == nil {
		return nil
	}
	var kv []interface{}
	for _, f := range [...]struct{ k, v string }{
		{"trace_id", td.TraceID},
		{"request_id", td.RequestID},
		{"org_id", td.OrgID},
	} {
		if f.v != "" {
			kv = append(kv, f.k, f.v)
		}
	}
	return kv
}

// Stamp copies the trace ids into a job payload without overwriting keys the
// caller already set.
func (td *TraceData) Stamp(payload map[string]any) {
	if td == nil || payload == nil {
		return
	}
	if _, ok := payload[PayloadTraceID]; !ok && td.TraceID != "" {
		payload[PayloadTraceID] = td.TraceID
	}
	if _, ok := payload[PayloadRequestID]; !ok && td.RequestID != "" {
		payload[PayloadRequestID] = td.RequestID
	}
}

// FromPayload is the inverse of Stamp. It returns nil when neither id is set.
func FromPayload(payload map[string]any) *TraceData {
	td := &TraceData{
		TraceID:   payloadString(payload, PayloadTraceID),
		RequestID: payloadString(payload, PayloadRequestID),
		OrgID:     payloadString(payload, "org_id"),
	}
	if td.TraceID == "" && td.RequestID == "" {
		return nil
	}
	return td
}

func payloadString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
