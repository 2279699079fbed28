package mcp

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/storyloom/internal/director"
	"github.com/louisbranch/storyloom/internal/judge"
	"github.com/louisbranch/storyloom/internal/storage"
	"github.com/louisbranch/storyloom/internal/story"
	"github.com/louisbranch/storyloom/internal/telemetry"
)

// Store is the persistence surface the MCP service depends on.
type Store interface {
	storage.ProjectStore
	storage.ThreadStore
}

// Service executes director operations against persisted projects and
// threads. Each operation rebuilds the thread's director from its snapshot
// and recorded history, runs, and persists the outcome.
type Service struct {
	store   Store
	emitter *telemetry.Emitter
	judge   judge.Judge
	cache   *judge.Cache
	tracer  trace.Tracer
}

// NewService creates the director service. The judge may be nil; natural
// language conditions are then unsatisfied with an explicit reason.
func NewService(store Store, emitter *telemetry.Emitter, j judge.Judge) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		judge:   j,
		cache:   judge.NewCache(),
		tracer:  otel.Tracer("storyloom/mcp"),
	}
}

// tickLogPageSize bounds each page when rebuilding history.
const tickLogPageSize = 200

func (s *Service) loadDirector(ctx context.Context, threadID string) (*director.Director, storage.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, storage.Thread{}, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	project, err := s.store.GetProject(ctx, thread.ProjectID)
	if err != nil {
		return nil, storage.Thread{}, fmt.Errorf("load project %s: %w", thread.ProjectID, err)
	}

	var records []director.TickRecord
	after := -1
	for {
		page, err := s.store.ListTickRecords(ctx, threadID, after, tickLogPageSize)
		if err != nil {
			return nil, storage.Thread{}, fmt.Errorf("load tick log: %w", err)
		}
		if len(page) == 0 {
			break
		}
		records = append(records, page...)
		after = page[len(page)-1].TickIndex
	}
	history, err := director.RestoreHistory(records)
	if err != nil {
		return nil, storage.Thread{}, err
	}

	snapshot, err := s.store.GetThreadState(ctx, threadID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, storage.Thread{}, err
		}
		snapshot = project.InitialState()
	}

	var opts []director.Option
	if s.judge != nil {
		opts = append(opts, director.WithJudge(s.judge, s.cache))
	}
	d, err := director.Restore(project, snapshot, history, opts...)
	if err != nil {
		return nil, storage.Thread{}, err
	}
	return d, thread, nil
}

// PutProject validates and stores a project snapshot.
func (s *Service) PutProject(ctx context.Context, data []byte) (*story.Project, error) {
	ctx, span := s.tracer.Start(ctx, "PutProject")
	defer span.End()

	project, err := story.DecodeProject(data)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// CreateThread creates a new story thread over a stored project.
func (s *Service) CreateThread(ctx context.Context, projectID, name string) (storage.Thread, error) {
	ctx, span := s.tracer.Start(ctx, "CreateThread")
	defer span.End()

	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return storage.Thread{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	id, err := newID()
	if err != nil {
		return storage.Thread{}, err
	}
	thread := storage.Thread{ID: id, ProjectID: projectID, Name: name}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return storage.Thread{}, err
	}
	return thread, nil
}

// Tick advances a thread by one tick and persists the outcome.
func (s *Service) Tick(ctx context.Context, threadID string, cfg story.DirectorConfig) (director.TickRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Tick")
	defer span.End()

	d, thread, err := s.loadDirector(ctx, threadID)
	if err != nil {
		return director.TickRecord{}, err
	}

	record, err := d.Tick(ctx, cfg)
	if err != nil {
		_ = s.emitter.EmitAbort(ctx, thread.ID, d.History().Len(), err)
		return director.TickRecord{}, err
	}

	if err := s.store.AppendTickRecord(ctx, thread.ID, record); err != nil {
		return director.TickRecord{}, err
	}
	if err := s.store.PutThreadState(ctx, thread.ID, d.State()); err != nil {
		return director.TickRecord{}, err
	}
	_ = s.emitter.EmitTick(ctx, thread.ID, record)
	return record, nil
}

// Replay re-runs a range of recorded ticks for a thread.
func (s *Service) Replay(ctx context.Context, threadID string, from, to int, cfg story.DirectorConfig) ([]director.TickRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Replay")
	defer span.End()

	d, _, err := s.loadDirector(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return d.Replay(ctx, from, to, cfg)
}

// Explain evaluates one storylet's preconditions against a thread's current
// state without mutating anything.
func (s *Service) Explain(ctx context.Context, threadID, storyletID string, cfg story.DirectorConfig) ([]director.ConditionReason, error) {
	ctx, span := s.tracer.Start(ctx, "Explain")
	defer span.End()

	d, _, err := s.loadDirector(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return d.Explain(ctx, storyletID, cfg)
}

// History returns a page of a thread's recorded ticks.
func (s *Service) History(ctx context.Context, threadID string, afterIndex, limit int) ([]director.TickRecord, error) {
	ctx, span := s.tracer.Start(ctx, "History")
	defer span.End()

	if _, err := s.store.GetThread(ctx, threadID); err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return s.store.ListTickRecords(ctx, threadID, afterIndex, limit)
}

func newID() (string, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
