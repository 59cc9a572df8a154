// Package mcp exposes the playground as Model Context Protocol tools, so an agent can
// evaluate Lisp, highlight it and drive a session the way the editor does.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/svoctor/lisper-go"
	"github.com/svoctor/lisper-go/internal/logging"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/highlight"
	"github.com/svoctor/lisper-go/pkg/sanitize"
	"github.com/svoctor/lisper-go/pkg/session"
)

// DefaultSessionID is used by tools called without a session_id.
const DefaultSessionID = "mcp"

// Sessions is the part of session.Manager the MCP server drives.
type Sessions interface {
	Open(ctx context.Context, sessionID string) (*session.Session, error)
	List(ctx context.Context) ([]string, error)
}

// EvaluateResponse describes one evaluate call.
type EvaluateResponse struct {
	SessionID string                  `json:"session_id" jsonschema_description:"The session the source was evaluated in"`
	Seq       uint64                  `json:"seq" jsonschema_description:"Sequence number of the evaluate call"`
	Completed bool                    `json:"completed" jsonschema_description:"Whether the evaluation finished before the tool returned"`
	Committed bool                    `json:"committed" jsonschema_description:"Whether the output became the session output"`
	Output    string                  `json:"output" jsonschema_description:"Evaluator output, including Lisp error messages"`
	Status    domain.EvaluationStatus `json:"status" jsonschema_description:"Evaluation status (ready, pending, unavailable)"`
}

// HighlightResponse carries highlighted HTML.
type HighlightResponse struct {
	HTML     string `json:"html" jsonschema_description:"Source rendered as class-annotated HTML spans"`
	Balanced bool   `json:"balanced" jsonschema_description:"False when a form is left open or a paren has no opener"`
	Plain    bool   `json:"plain,omitempty" jsonschema_description:"Set when the source could not be tokenized"`
}

// ThemeResponse reports the theme after a toggle.
type ThemeResponse struct {
	SessionID string       `json:"session_id"`
	Theme     domain.Theme `json:"theme" jsonschema_description:"The new theme (light or dark)"`
}

type evaluateArgs struct {
	SessionID string `mapstructure:"session_id"`
	Source    string `mapstructure:"source"`
	Wait      *bool  `mapstructure:"wait"`
}

type highlightArgs struct {
	Source string `mapstructure:"source"`
}

type sessionArgs struct {
	SessionID string `mapstructure:"session_id"`
}

// Server exposes the playground as an MCP Server.
type Server struct {
	sessions       Sessions
	highlighter    *highlight.Highlighter
	renderer       *highlight.Renderer
	maxSourceBytes int
	logger         *slog.Logger
	mcpServer      *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithHighlighter sets the highlighter used by the highlight tool.
func WithHighlighter(h *highlight.Highlighter) Option {
	return func(s *Server) {
		s.highlighter = h
	}
}

// WithRenderer sets the renderer used by the highlight tool.
func WithRenderer(r *highlight.Renderer) Option {
	return func(s *Server) {
		s.renderer = r
	}
}

// WithMaxSourceBytes bounds the size of submitted source text.
func WithMaxSourceBytes(n int) Option {
	return func(s *Server) {
		s.maxSourceBytes = n
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		sessions:       sessions,
		highlighter:    highlight.New(),
		renderer:       highlight.NewRenderer("", ""),
		maxSourceBytes: sanitize.DefaultMaxSourceBytes,
		logger:         logging.NewNop(),
		mcpServer:      server.NewMCPServer("lisper-mcp", lisper.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	// TOOL: evaluate
	evaluateTool := mcp.NewTool("evaluate",
		mcp.WithDescription("Replace the session source with the given Lisp text and evaluate it."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Lisp source text")),
		mcp.WithString("session_id", mcp.Description("Session to evaluate in (defaults to a shared scratch session)")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the evaluation to complete (default true)")),
		mcp.WithOutputSchema[EvaluateResponse](),
	)
	s.mcpServer.AddTool(evaluateTool, mcp.NewStructuredToolHandler(s.handleEvaluate))

	// TOOL: highlight
	highlightTool := mcp.NewTool("highlight",
		mcp.WithDescription("Highlight Lisp source text as HTML."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Lisp source text")),
		mcp.WithOutputSchema[HighlightResponse](),
	)
	s.mcpServer.AddTool(highlightTool, mcp.NewStructuredToolHandler(s.handleHighlight))

	// TOOL: toggle_theme
	themeTool := mcp.NewTool("toggle_theme",
		mcp.WithDescription("Switch the session between the light and dark theme."),
		mcp.WithString("session_id", mcp.Description("Session to update (defaults to a shared scratch session)")),
		mcp.WithOutputSchema[ThemeResponse](),
	)
	s.mcpServer.AddTool(themeTool, mcp.NewStructuredToolHandler(s.handleToggleTheme))

	// TOOL: session_state
	stateTool := mcp.NewTool("session_state",
		mcp.WithDescription("Get the source, output and theme of a session."),
		mcp.WithString("session_id", mcp.Description("Session to inspect (defaults to a shared scratch session)")),
		mcp.WithOutputSchema[domain.Snapshot](),
	)
	s.mcpServer.AddTool(stateTool, mcp.NewStructuredToolHandler(s.handleSessionState))
}

// Handler methods for structured tools

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (EvaluateResponse, error) {
	var in evaluateArgs
	if err := decodeArgs(args, &in); err != nil {
		return EvaluateResponse{}, err
	}

	source, err := sanitize.Source(in.Source, s.maxSourceBytes)
	if err != nil {
		s.logger.Warn("MCP Evaluate: Source rejected", "err", err, "size", len(in.Source))
		return EvaluateResponse{}, fmt.Errorf("source rejected: %w", err)
	}

	sess, err := s.sessions.Open(ctx, sessionID(in.SessionID))
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("open session: %w", err)
	}

	call := sess.Evaluate(source)
	if in.Wait == nil || *in.Wait {
		if err := call.Wait(ctx); err != nil {
			return EvaluateResponse{}, fmt.Errorf("evaluate: %w", err)
		}
	}

	resp := EvaluateResponse{
		SessionID: sess.ID,
		Seq:       call.Seq,
		Status:    domain.StatusPending,
	}
	select {
	case <-call.Done():
		resp.Completed = true
		resp.Committed = call.Committed()
		resp.Output = call.Output()
		resp.Status = call.Status()
	default:
	}
	return resp, nil
}

func (s *Server) handleHighlight(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (HighlightResponse, error) {
	var in highlightArgs
	if err := decodeArgs(args, &in); err != nil {
		return HighlightResponse{}, err
	}
	source, err := sanitize.Source(in.Source, s.maxSourceBytes)
	if err != nil {
		return HighlightResponse{}, fmt.Errorf("source rejected: %w", err)
	}

	m := s.highlighter.Highlight(source)
	return HighlightResponse{
		HTML:     s.renderer.HTML(m),
		Balanced: m.Balanced,
		Plain:    m.Plain,
	}, nil
}

func (s *Server) handleToggleTheme(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ThemeResponse, error) {
	var in sessionArgs
	if err := decodeArgs(args, &in); err != nil {
		return ThemeResponse{}, err
	}
	sess, err := s.sessions.Open(ctx, sessionID(in.SessionID))
	if err != nil {
		return ThemeResponse{}, fmt.Errorf("open session: %w", err)
	}
	return ThemeResponse{SessionID: sess.ID, Theme: sess.ToggleTheme()}, nil
}

func (s *Server) handleSessionState(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.Snapshot, error) {
	var in sessionArgs
	if err := decodeArgs(args, &in); err != nil {
		return domain.Snapshot{}, err
	}
	sess, err := s.sessions.Open(ctx, sessionID(in.SessionID))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("open session: %w", err)
	}
	return sess.Snapshot(), nil
}

func (s *Server) registerResources() {
	// EXPOSE: lisper://sessions
	s.mcpServer.AddResource(mcp.NewResource("lisper://sessions", "Known Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.sessions.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		jsonBytes, _ := json.Marshal(ids)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "lisper://sessions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// decodeArgs decodes loosely typed tool arguments ("true", 1) into out.
func decodeArgs(args map[string]interface{}, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func sessionID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}
