// Package telemetry records operational events for director runs: one event
// per tick or abort, persisted through the storage layer. Replays emit no
// events.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/storyloom/internal/director"
	"github.com/louisbranch/storyloom/internal/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, severity Severity, threadID string, tickIndex int, message string) error {
	if e == nil || e.store == nil {
		return nil
	}
	clock := e.clock
	if clock == nil {
		clock = time.Now
	}
	return e.store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		Timestamp: clock().UTC(),
		Severity:  string(severity),
		ThreadID:  threadID,
		TickIndex: tickIndex,
		Message:   message,
	})
}

// EmitTick records the outcome of one completed tick.
func (e *Emitter) EmitTick(ctx context.Context, threadID string, record director.TickRecord) error {
	message := fmt.Sprintf("tick %d selected %d storylet(s), intensity %.3f -> %.3f, idle %d",
		record.TickIndex, len(record.Selected), record.IntensityBefore, record.IntensityAfter,
		record.IdleTickCountAfter)
	return e.Emit(ctx, SeverityInfo, threadID, record.TickIndex, message)
}

// EmitAbort records a tick that failed during effect application.
func (e *Emitter) EmitAbort(ctx context.Context, threadID string, tickIndex int, cause error) error {
	return e.Emit(ctx, SeverityError, threadID, tickIndex, cause.Error())
}
