package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arturoeanton/milestoner/internal/middleware"
	"github.com/arturoeanton/milestoner/internal/service"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Services bundles what the tools call into.
type Services struct {
	Activity   *service.ActivityService
	Drafts     *service.DraftService
	Scheduling *service.SchedulingService
	Settings   *service.SettingsService
}

// Server implements the Model Context Protocol (MCP) server.
// It exposes tools for AI assistants to summarize work and schedule posts.
type Server struct {
	svc       Services
	mcpServer *sdkmcp.Server
	port      string
	auth      middleware.JWTConfig
}

// NewServer creates a new MCP server with all tools and resources registered.
// When auth carries a secret the HTTP transport requires a bearer token.
func NewServer(svc Services, port string, auth middleware.JWTConfig) *Server {
	s := &Server{
		svc:  svc,
		port: port,
		auth: auth,
		mcpServer: sdkmcp.NewServer(&sdkmcp.Implementation{
			Name:    "milestoner",
			Version: Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *sdkmcp.Server { return s.mcpServer }

// RunStdio serves one client over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	slog.Info("MCP server on stdio")
	return s.mcpServer.Run(ctx, &sdkmcp.StdioTransport{})
}

// HTTPHandler returns the streamable HTTP handler behind the bearer check.
func (s *Server) HTTPHandler() http.Handler {
	return middleware.RequireBearer(s.auth, sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return s.mcpServer },
		nil,
	))
}

// Start serves streamable HTTP on the configured port until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.HTTPHandler())

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("MCP server starting", "port", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
