package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svoctor/lisper-go/pkg/adapters/memory"
	"github.com/svoctor/lisper-go/pkg/domain"
	"github.com/svoctor/lisper-go/pkg/loader"
	"github.com/svoctor/lisper-go/pkg/ports"
	"github.com/svoctor/lisper-go/pkg/session"
)

var echoEvaluator = ports.EvaluatorFunc(func(ctx context.Context, source string) (string, error) {
	if source == domain.SampleSource {
		return "21", nil
	}
	return "=> " + source, nil
})

func newTestServer(t *testing.T, opts ...Option) (*Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(memory.NewStore(), loader.New(ports.Static("test", echoEvaluator)))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return NewServer(mgr, opts...), mgr
}

func TestEvaluate_WaitsByDefault(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.handleEvaluate(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"source": "(+ 2 2)",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionID, resp.SessionID)
	assert.True(t, resp.Completed)
	assert.True(t, resp.Committed)
	assert.Equal(t, "=> (+ 2 2)", resp.Output)
	assert.Equal(t, domain.StatusReady, resp.Status)
}

func TestEvaluate_DecodesLooseArguments(t *testing.T) {
	s, mgr := newTestServer(t)

	resp, err := s.handleEvaluate(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"session_id": "agent-1",
		"source":     "(list 1 2)",
		"wait":       "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", resp.SessionID)
	assert.Equal(t, "=> (list 1 2)", resp.Output)

	sess, ok := mgr.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, "(list 1 2)", sess.Snapshot().Source)
}

func TestEvaluate_NoWait(t *testing.T) {
	s, mgr := newTestServer(t)

	resp, err := s.handleEvaluate(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"source": "(+ 3 3)",
		"wait":   false,
	})
	require.NoError(t, err)
	assert.NotZero(t, resp.Seq)

	sess, ok := mgr.Get(DefaultSessionID)
	require.True(t, ok)
	assert.Equal(t, "(+ 3 3)", sess.Snapshot().Source, "the source is written before the tool returns")
}

func TestEvaluate_RejectsOversizedSource(t *testing.T) {
	s, _ := newTestServer(t, WithMaxSourceBytes(4))

	_, err := s.handleEvaluate(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"source": "(+ 1 2)",
	})
	assert.ErrorContains(t, err, "source rejected")
}

func TestEvaluate_InvalidArguments(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.handleEvaluate(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"source": map[string]interface{}{"nested": true},
	})
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestHighlightTool(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.handleHighlight(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{
		"source": "(+ 1",
	})
	require.NoError(t, err)
	assert.False(t, resp.Balanced)
	assert.Contains(t, resp.HTML, "+")
}

func TestToggleThemeAndState(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	args := map[string]interface{}{"session_id": "themed"}

	resp, err := s.handleToggleTheme(ctx, mcp.CallToolRequest{}, args)
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeDark, resp.Theme)

	snap, err := s.handleSessionState(ctx, mcp.CallToolRequest{}, args)
	require.NoError(t, err)
	assert.Equal(t, "themed", snap.SessionID)
	assert.Equal(t, domain.ThemeDark, snap.Theme)
	assert.Equal(t, domain.SampleSource, snap.Source)

	resp, err = s.handleToggleTheme(ctx, mcp.CallToolRequest{}, args)
	require.NoError(t, err)
	assert.Equal(t, domain.ThemeLight, resp.Theme)
}

func rpc(t *testing.T, s *Server, method string, params any) string {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	resp := s.MCPServer().HandleMessage(context.Background(), msg)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(out)
}

func TestProtocol_ListAndCallTools(t *testing.T) {
	s, _ := newTestServer(t)

	rpc(t, s, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
		"capabilities":    map[string]any{},
	})

	list := rpc(t, s, "tools/list", map[string]any{})
	for _, name := range []string{"evaluate", "highlight", "toggle_theme", "session_state"} {
		assert.Contains(t, list, `"name":"`+name+`"`)
	}

	call := rpc(t, s, "tools/call", map[string]any{
		"name":      "evaluate",
		"arguments": map[string]any{"source": "(car '(a b))", "session_id": "rpc"},
	})
	// ">" is escaped by the JSON encoder.
	assert.Contains(t, call, `u003e (car '(a b))`)
	assert.NotContains(t, call, `"isError":true`)
}
