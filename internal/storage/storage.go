// Package storage defines the persistence interfaces the director service
// depends on: project snapshots, story threads with their append-only tick
// logs, and operational telemetry. Backends live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/storyloom/internal/director"
	"github.com/louisbranch/storyloom/internal/state"
	"github.com/louisbranch/storyloom/internal/story"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Thread is one independent story line over a project.
type Thread struct {
	ID        string
	ProjectID string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectStore persists authored project snapshots.
type ProjectStore interface {
	PutProject(ctx context.Context, project *story.Project) error
	GetProject(ctx context.Context, id string) (*story.Project, error)
	ListProjects(ctx context.Context) ([]string, error)
}

// ThreadStore persists story threads, their current snapshots, and their
// tick logs. Tick records are append-only; any historic state can be
// reconstructed from the initial state plus the recorded diffs.
type ThreadStore interface {
	CreateThread(ctx context.Context, thread Thread) error
	GetThread(ctx context.Context, id string) (Thread, error)
	ListThreads(ctx context.Context, projectID string) ([]Thread, error)

	PutThreadState(ctx context.Context, threadID string, snapshot *state.State) error
	GetThreadState(ctx context.Context, threadID string) (*state.State, error)

	AppendTickRecord(ctx context.Context, threadID string, record director.TickRecord) error
	ListTickRecords(ctx context.Context, threadID string, afterIndex int, limit int) ([]director.TickRecord, error)
}

// TelemetryEvent is one operational event emitted by the service.
type TelemetryEvent struct {
	Timestamp time.Time
	Severity  string
	ThreadID  string
	TickIndex int
	Message   string
}

// TelemetryStore records operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
}
