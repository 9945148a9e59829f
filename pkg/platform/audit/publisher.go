package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transferai/pkg/attrs"
	"transferai/pkg/requestcontext"
)

// Log writes an audit event to the structured logger and, when configured, to
// the publisher. A failing publisher never fails the caller.
//
// kv holds slog-style key/value pairs; string-able values are copied into the
// emitted event's Attrs. Events raised outside an authenticated request
// (operator tier changes, CLI commands) take their account from an
// "account_id" attr.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event AuditEvent, kv ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		kv = append(kv, "request_id", requestID)
	}
	args := append(kv, "event", string(event), "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}
	if publisher == nil {
		return
	}

	e := Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		AccountID: accountID(ctx, kv),
		Action:    string(event),
		RequestID: requestID,
		Attrs:     toAttrs(kv),
	}
	if err := publisher.Emit(ctx, e); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

func accountID(ctx context.Context, kv []any) string {
	if id := requestcontext.AccountID(ctx); id != "" {
		return id
	}
	return attrs.ExtractString(kv, "account_id")
}

func toAttrs(kv []any) map[string]string {
	if len(kv) < 2 {
		return nil
	}
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			out[key] = v
		case time.Time:
			out[key] = v.UTC().Format(time.RFC3339)
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}

// Fanout emits every event to each publisher in turn.
type Fanout []Publisher

func (f Fanout) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
