package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/domain"
)

// recordEmitter is the part of otellog.Logger the emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("meetmate.session")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to an OTel log record. Metadata becomes the JSON body.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(severity(event.EventType))
	rec.SetEventName(event.EventType)
	if len(event.Metadata) > 0 {
		body, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}
	attrs := []struct{ key, val string }{
		{"principal_id", event.PrincipalID},
		{"session_id", event.SessionID},
		{"event_type", event.EventType},
		{"source", event.Source},
	}
	for _, a := range attrs {
		if a.val != "" {
			rec.AddAttributes(otellog.String(a.key, a.val))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severity(eventType string) otellog.Severity {
	switch eventType {
	case domain.EventRefreshReuse, domain.EventSessionsRevokedAll:
		return otellog.SeverityWarn
	case domain.EventLoginFailed:
		return otellog.SeverityInfo2
	default:
		return otellog.SeverityInfo
	}
}
