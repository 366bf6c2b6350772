package mcp

import (
	"context"
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	configURI      = "milestoner://config"
	recentPostsURI = "milestoner://recent-posts"

	recentPostsLimit = 20
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         configURI,
		Name:        "Configuration",
		Description: "Default platform and configured platforms (no secrets)",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
		return marshalResourceResult(configURI, s.svc.Settings.Status())
	})

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         recentPostsURI,
		Name:        "Recent Posts",
		Description: "Recently published posts, newest first",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
		posts, err := s.svc.Scheduling.History(ctx, recentPostsLimit)
		if err != nil {
			return nil, err
		}
		return marshalResourceResult(recentPostsURI, map[string]interface{}{
			"posts": posts,
			"count": len(posts),
		})
	})
}

// marshalResourceResult marshals any value to an MCP resource result.
func marshalResourceResult(uri string, v interface{}) (*sdkmcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}

	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
