package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arturoeanton/milestoner/internal/optimal"
	"github.com/arturoeanton/milestoner/internal/port"
	"github.com/arturoeanton/milestoner/internal/service"
)

// ListActivityInput is the input of list_activity.
type ListActivityInput struct {
	RepoPath    string `json:"repo_path,omitempty" jsonschema:"Path to the git repository (defaults to the configured repository)"`
	Since       string `json:"since,omitempty" jsonschema:"Look-back window such as '7 days', '2 weeks' or '24 hours'"`
	CommitRange string `json:"commit_range,omitempty" jsonschema:"Commit range such as 'last 5', 'v1.0..HEAD' or a single ref; overrides since"`
}

// DraftUpdateInput is the input of draft_update.
type DraftUpdateInput struct {
	Context     string `json:"context,omitempty" jsonschema:"What the user wants to highlight"`
	Style       string `json:"style,omitempty" jsonschema:"casual, announcement, technical or storytelling"`
	RepoPath    string `json:"repo_path,omitempty" jsonschema:"Path to the git repository"`
	CommitRange string `json:"commit_range,omitempty" jsonschema:"Commit range to draft from"`
	Platform    string `json:"platform,omitempty" jsonschema:"Target platform (defaults to the configured default)"`
}

// PostUpdateInput is the input of post_update.
type PostUpdateInput struct {
	Content  string `json:"content" jsonschema:"Text to publish"`
	Platform string `json:"platform,omitempty" jsonschema:"Target platform (defaults to the configured default)"`
}

// ConfigureInput is the input of configure.
type ConfigureInput struct {
	Platform    string `json:"platform" jsonschema:"Platform to configure, e.g. bluesky"`
	Handle      string `json:"handle" jsonschema:"Account handle, e.g. you.bsky.social"`
	AppPassword string `json:"app_password" jsonschema:"App password for the account"`
	SetDefault  bool   `json:"set_default,omitempty" jsonschema:"Make this the default platform"`
}

// SchedulePostInput is the input of schedule_post.
type SchedulePostInput struct {
	Content        string `json:"content" jsonschema:"Text to publish"`
	ScheduledFor   string `json:"scheduled_for,omitempty" jsonschema:"RFC 3339 time to publish at, e.g. 2025-01-15T10:00:00Z"`
	Platform       string `json:"platform,omitempty" jsonschema:"Target platform (defaults to the configured default)"`
	UseOptimalTime bool   `json:"use_optimal_time,omitempty" jsonschema:"Publish at the next recommended slot"`
}

// CancelPostInput is the input of cancel_scheduled_post.
type CancelPostInput struct {
	PostID string `json:"post_id" jsonschema:"ID of the scheduled post"`
}

// OptimalTimesInput is the input of get_optimal_times.
type OptimalTimesInput struct {
	Now     string `json:"now,omitempty" jsonschema:"RFC 3339 reference time (defaults to the current time)"`
	Horizon string `json:"horizon,omitempty" jsonschema:"Only list recommendations for today, tomorrow or week"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "list_activity",
			Description: "Summarize recent git commits grouped by day, with categories and change totals",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args ListActivityInput) (*sdkmcp.CallToolResult, any, error) {
			summary, err := s.svc.Activity.Summarize(ctx, service.ActivityQuery{
				RepoPath: args.RepoPath,
				Since:    args.Since,
				Range:    args.CommitRange,
			})
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(summary)
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "draft_update",
			Description: "Gather git activity and writing guidance for drafting a social post about recent work",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args DraftUpdateInput) (*sdkmcp.CallToolResult, any, error) {
			draft, err := s.svc.Drafts.Prepare(ctx, service.DraftRequest{
				Context:  args.Context,
				Style:    args.Style,
				RepoPath: args.RepoPath,
				Range:    args.CommitRange,
				Platform: args.Platform,
			})
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(draft)
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "post_update",
			Description: "Publish a post immediately",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args PostUpdateInput) (*sdkmcp.CallToolResult, any, error) {
			post, err := s.svc.Scheduling.PublishNow(ctx, args.Content, args.Platform)
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(map[string]interface{}{
				"success":  true,
				"platform": post.Platform,
				"url":      post.Result.URL,
				"post":     post,
			})
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "configure",
			Description: "Verify and store credentials for a platform",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args ConfigureInput) (*sdkmcp.CallToolResult, any, error) {
			st, err := s.svc.Settings.Configure(ctx, service.ConfigureRequest{
				Platform:    args.Platform,
				Handle:      args.Handle,
				AppPassword: args.AppPassword,
				SetDefault:  args.SetDefault,
			})
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(st)
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "schedule_post",
			Description: "Schedule a post for an explicit time or the next optimal slot (the default when no time is given)",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args SchedulePostInput) (*sdkmcp.CallToolResult, any, error) {
			when, err := service.ResolveWhen(args.ScheduledFor, args.UseOptimalTime, false, s.svc.Scheduling.Now().Location())
			if err != nil {
				return toolFailure(err)
			}

			post, err := s.svc.Scheduling.Schedule(ctx, service.ScheduleRequest{
				Content:  args.Content,
				Platform: args.Platform,
				When:     when,
			})
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(post)
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "list_scheduled_posts",
			Description: "List pending posts, soonest first, and the next optimal posting times",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, _ EmptyInput) (*sdkmcp.CallToolResult, any, error) {
			view, err := s.svc.Scheduling.ListPending(ctx)
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(view)
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "cancel_scheduled_post",
			Description: "Cancel a pending post",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args CancelPostInput) (*sdkmcp.CallToolResult, any, error) {
			post, err := s.svc.Scheduling.Cancel(ctx, args.PostID)
			if err != nil {
				return toolFailure(err)
			}
			return toolSuccessJSON(map[string]interface{}{
				"success": true,
				"message": fmt.Sprintf("Post %s cancelled", post.ID),
				"post":    post,
			})
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "get_optimal_times",
			Description: "Grade the current time and recommend the best posting times",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, args OptimalTimesInput) (*sdkmcp.CallToolResult, any, error) {
			now := s.svc.Scheduling.Now()
			if args.Now != "" {
				t, err := service.ParseTime(args.Now, now.Location())
				if err != nil {
					return toolError(err.Error())
				}
				now = t
			}
			if args.Horizon != "" {
				horizon, ok := optimal.ParseHorizon(args.Horizon)
				if !ok {
					return toolError("horizon must be today, tomorrow or week")
				}
				return toolSuccessJSON(map[string]interface{}{
					"current_time":    now,
					"current_quality": optimal.CurrentQuality(now),
					"recommendations": optimal.Recommend(now, horizon),
				})
			}
			return toolSuccessJSON(optimal.BuildReport(now))
		},
	)

	sdkmcp.AddTool(s.mcpServer,
		&sdkmcp.Tool{
			Name:        "dispatch_due_posts",
			Description: "Publish every post whose time has come",
		},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, _ EmptyInput) (*sdkmcp.CallToolResult, any, error) {
			report, err := s.svc.Scheduling.DispatchDue(ctx)
			if err != nil && report == nil {
				return toolFailure(err)
			}
			if err != nil {
				return toolError(fmt.Sprintf("dispatch finished with errors: %v", err))
			}
			return toolSuccessJSON(report)
		},
	)
}

// toolError returns an error result for a tool call.
func toolError(message string) (*sdkmcp.CallToolResult, any, error) {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: message},
		},
		IsError: true,
	}, nil, nil
}

// toolFailure reports err to the assistant. Unexpected errors carry a prefix
// so they are not mistaken for input problems.
func toolFailure(err error) (*sdkmcp.CallToolResult, any, error) {
	var (
		validation *port.ValidationError
		schedule   *port.InvalidScheduleError
		notFound   *port.NotFoundError
		transition *port.InvalidTransitionError
		publish    *port.PublishError
		repo       *port.RepositoryError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &schedule), errors.As(err, &notFound),
		errors.As(err, &transition), errors.As(err, &publish), errors.As(err, &repo):
		return toolError(err.Error())
	default:
		return toolError("Internal error: " + err.Error())
	}
}

// toolSuccessJSON returns result as indented JSON text.
func toolSuccessJSON(result interface{}) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("Failed to format result: %v", err))
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
