package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/domain"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

var inflight sync.WaitGroup

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Errors are logged and otherwise ignored. A nil emitter or event is a no-op.
//
// The emit outlives the caller's context: request cancellation does not abort it.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logrus.WithError(err).WithField("event_type", event.EventType).Warn("telemetry: async emit failed")
		}
	}()
}

// Drain waits for in-flight EmitAsync calls to finish, or for ctx to be done.
// Call it after the servers stop and before the emitters are closed.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
