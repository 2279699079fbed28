package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/director"
	"github.com/louisbranch/storyloom/internal/story"
)

// ProjectPutInput represents the MCP tool input for storing a project.
type ProjectPutInput struct {
	ProjectJSON string `json:"project_json" jsonschema:"project snapshot as JSON"`
}

// ProjectPutResult represents the MCP tool output for storing a project.
type ProjectPutResult struct {
	ID        string `json:"id" jsonschema:"project identifier"`
	Name      string `json:"name,omitempty" jsonschema:"project name"`
	Storylets int    `json:"storylets" jsonschema:"number of storylets in the pool"`
}

// ProjectPutTool defines the MCP tool schema for storing a project.
func ProjectPutTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "project_put",
		Description: "Validates and stores a project snapshot (world, characters, relationships, storylets).",
	}
}

// ProjectPutHandler executes a project put request.
func ProjectPutHandler(service *Service) mcp.ToolHandlerFor[ProjectPutInput, ProjectPutResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProjectPutInput) (*mcp.CallToolResult, ProjectPutResult, error) {
		project, err := service.PutProject(ctx, []byte(input.ProjectJSON))
		if err != nil {
			return nil, ProjectPutResult{}, err
		}
		return nil, ProjectPutResult{ID: project.ID, Name: project.Name, Storylets: len(project.Storylets)}, nil
	}
}

// ThreadCreateInput represents the MCP tool input for creating a thread.
type ThreadCreateInput struct {
	ProjectID string `json:"project_id" jsonschema:"project identifier"`
	Name      string `json:"name,omitempty" jsonschema:"optional free-form thread name"`
}

// ThreadCreateResult represents the MCP tool output for creating a thread.
type ThreadCreateResult struct {
	ThreadID  string `json:"thread_id" jsonschema:"thread identifier"`
	ProjectID string `json:"project_id" jsonschema:"project identifier"`
}

// ThreadCreateTool defines the MCP tool schema for creating a thread.
func ThreadCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "thread_create",
		Description: "Creates a new story thread over a stored project. Each thread owns its own state and tick history.",
	}
}

// ThreadCreateHandler executes a thread create request.
func ThreadCreateHandler(service *Service) mcp.ToolHandlerFor[ThreadCreateInput, ThreadCreateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ThreadCreateInput) (*mcp.CallToolResult, ThreadCreateResult, error) {
		thread, err := service.CreateThread(ctx, input.ProjectID, input.Name)
		if err != nil {
			return nil, ThreadCreateResult{}, err
		}
		return nil, ThreadCreateResult{ThreadID: thread.ID, ProjectID: thread.ProjectID}, nil
	}
}

// TickInput represents the MCP tool input for advancing a thread.
type TickInput struct {
	ThreadID   string `json:"thread_id" jsonschema:"thread identifier"`
	ConfigJSON string `json:"config_json,omitempty" jsonschema:"director config as JSON; defaults apply when omitted"`
}

// TickResult represents the MCP tool output for one tick.
type TickResult struct {
	Record director.TickRecord `json:"record" jsonschema:"the appended tick record"`
}

// DirectorTickTool defines the MCP tool schema for advancing a thread.
func DirectorTickTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "director_tick",
		Description: "Advances a story thread by one tick: selects storylets, applies effects, and appends exactly one record.",
	}
}

// DirectorTickHandler executes a tick request.
func DirectorTickHandler(service *Service) mcp.ToolHandlerFor[TickInput, TickResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TickInput) (*mcp.CallToolResult, TickResult, error) {
		cfg, err := decodeConfig(input.ConfigJSON)
		if err != nil {
			return nil, TickResult{}, err
		}
		record, err := service.Tick(ctx, input.ThreadID, cfg)
		if err != nil {
			return nil, TickResult{}, err
		}
		return nil, TickResult{Record: record}, nil
	}
}

// ReplayInput represents the MCP tool input for replaying ticks.
type ReplayInput struct {
	ThreadID   string `json:"thread_id" jsonschema:"thread identifier"`
	FromTick   int    `json:"from_tick" jsonschema:"first tick index to return (inclusive)"`
	ToTick     int    `json:"to_tick" jsonschema:"last tick index to return (inclusive)"`
	ConfigJSON string `json:"config_json,omitempty" jsonschema:"director config used for the original run"`
}

// ReplayResult represents the MCP tool output for a replay.
type ReplayResult struct {
	Records []director.TickRecord `json:"records" jsonschema:"replayed tick records in order"`
}

// DirectorReplayTool defines the MCP tool schema for replaying ticks.
func DirectorReplayTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "director_replay",
		Description: "Re-runs recorded ticks from the thread's initial state. With identical config and seed the records are bit-for-bit identical.",
	}
}

// DirectorReplayHandler executes a replay request.
func DirectorReplayHandler(service *Service) mcp.ToolHandlerFor[ReplayInput, ReplayResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ReplayInput) (*mcp.CallToolResult, ReplayResult, error) {
		cfg, err := decodeConfig(input.ConfigJSON)
		if err != nil {
			return nil, ReplayResult{}, err
		}
		records, err := service.Replay(ctx, input.ThreadID, input.FromTick, input.ToTick, cfg)
		if err != nil {
			return nil, ReplayResult{}, err
		}
		return nil, ReplayResult{Records: records}, nil
	}
}

// ExplainInput represents the MCP tool input for explaining a storylet.
type ExplainInput struct {
	ThreadID   string `json:"thread_id" jsonschema:"thread identifier"`
	StoryletID string `json:"storylet_id" jsonschema:"storylet identifier"`
	ConfigJSON string `json:"config_json,omitempty" jsonschema:"director config; controls the evaluation mode"`
}

// ExplainResult represents the MCP tool output for an explain request.
type ExplainResult struct {
	Reasons []director.ConditionReason `json:"reasons" jsonschema:"per-condition pass/fail reasons"`
}

// DirectorExplainTool defines the MCP tool schema for explaining a storylet.
func DirectorExplainTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "director_explain",
		Description: "Evaluates every precondition of a storylet against the thread's current state without mutating anything.",
	}
}

// DirectorExplainHandler executes an explain request.
func DirectorExplainHandler(service *Service) mcp.ToolHandlerFor[ExplainInput, ExplainResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ExplainInput) (*mcp.CallToolResult, ExplainResult, error) {
		cfg, err := decodeConfig(input.ConfigJSON)
		if err != nil {
			return nil, ExplainResult{}, err
		}
		reasons, err := service.Explain(ctx, input.ThreadID, input.StoryletID, cfg)
		if err != nil {
			return nil, ExplainResult{}, err
		}
		return nil, ExplainResult{Reasons: reasons}, nil
	}
}

// HistoryInput represents the MCP tool input for reading a thread's log.
type HistoryInput struct {
	ThreadID   string `json:"thread_id" jsonschema:"thread identifier"`
	AfterIndex int    `json:"after_index,omitempty" jsonschema:"return records with tick_index greater than this; use -1 for the full log"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum records to return"`
}

// HistoryResult represents the MCP tool output for a history page.
type HistoryResult struct {
	Records []director.TickRecord `json:"records" jsonschema:"tick records in order"`
}

// ThreadHistoryTool defines the MCP tool schema for reading a tick log.
func ThreadHistoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "thread_history",
		Description: "Returns a page of a thread's recorded ticks.",
	}
}

// ThreadHistoryHandler executes a history request.
func ThreadHistoryHandler(service *Service) mcp.ToolHandlerFor[HistoryInput, HistoryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryResult, error) {
		records, err := service.History(ctx, input.ThreadID, input.AfterIndex, input.Limit)
		if err != nil {
			return nil, HistoryResult{}, err
		}
		return nil, HistoryResult{Records: records}, nil
	}
}

func decodeConfig(raw string) (story.DirectorConfig, error) {
	if raw == "" {
		return story.DefaultConfig(), nil
	}
	return story.DecodeConfig([]byte(raw))
}
