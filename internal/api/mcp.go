package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the core over MCP (stdio transport): triggering a
// generation, enqueueing jobs, and inspecting the queue and post history.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"reelpost",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("reelpost — automated short-form content generation and publishing."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("trigger_generation",
			mcp.WithDescription("Run the full generation pipeline for a topic immediately and publish the result."),
			mcp.WithString("topic", mcp.Description("Topic to generate content about"), mcp.Required()),
		),
		mcpTriggerGeneration(deps),
	)

	s.AddTool(
		mcp.NewTool("enqueue_job",
			mcp.WithDescription("Schedule a generation job for later, one-shot or daily-recurring."),
			mcp.WithString("topic", mcp.Description("Topic to generate content about"), mcp.Required()),
			mcp.WithString("run_at", mcp.Description("RFC3339 instant to run at (default: now)")),
			mcp.WithString("kind", mcp.Description("Job kind: once or daily (default: once)")),
		),
		mcpEnqueueJob(deps),
	)

	s.AddTool(
		mcp.NewTool("list_posts",
			mcp.WithDescription("List recently published posts, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of posts (default 10)")),
		),
		mcpListPosts(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_status",
			mcp.WithDescription("Show the job queue and cumulative generation metrics."),
		),
		mcpQueueStatus(deps),
	)

	return s
}

func mcpTriggerGeneration(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcpError("topic is required"), nil
		}

		cfg := deps.Settings.Load()
		record, err := deps.Scheduler.TriggerNow(ctx, topic, cfg.Channel)
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		b, err := json.Marshal(record)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal record: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEnqueueJob(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return mcpError("topic is required"), nil
		}

		runAt := time.Now().UTC()
		if raw := req.GetString("run_at", ""); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid run_at: %v", err)), nil
			}
			runAt = parsed
		}

		kind := req.GetString("kind", "once")

		job, err := deps.Scheduler.Enqueue(topic, runAt, kind)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to enqueue: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Enqueued %s job %s for %s", job.Kind, job.ID, job.RunAt.Format(time.RFC3339))), nil
	}
}

func mcpListPosts(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		posts := deps.Runner.History(limit)
		b, err := json.Marshal(posts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal posts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpQueueStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := map[string]any{
			"jobs":      deps.Scheduler.Jobs(),
			"analytics": deps.Metrics.Snapshot(),
		}
		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
