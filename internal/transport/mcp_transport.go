package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adamavenir/mentionrunner/internal/core"
	"github.com/adamavenir/mentionrunner/internal/mention"
)

// remoteNamePrefixes/urlSchemes identify a transport as remote for
// heartbeat purposes: a session is remote iff its spec indicates
// a networked endpoint.
var remoteNamePrefixes = []string{"remote", "http", "cloud"}

func specIsRemote(name string, spec core.TransportSpec) bool {
	lower := strings.ToLower(name)
	for _, prefix := range remoteNamePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, arg := range spec.Args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			return true
		}
	}
	return false
}

// MCPTransport drives a MessageTransport over a spawned MCP stdio
// session using the official Go SDK client, grounded in
// original_source's use of mcp.ClientSession / stdio_client.
type MCPTransport struct {
	session  *mcpsdk.ClientSession
	cmd      *exec.Cmd
	isRemote bool
}

// OpenMCPTransport spawns spec's command and performs the MCP
// initialization handshake. stdin is
// detached so the child never tries to read a JSON-RPC stream meant for
// its own stdio transport from this process's stdin.
func OpenMCPTransport(ctx context.Context, name string, spec core.TransportSpec) (*MCPTransport, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Stdin = nil
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "mentionrunner",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("open mcp transport %q: %w", name, err)
	}

	return &MCPTransport{
		session:  session,
		cmd:      cmd,
		isRemote: specIsRemote(name, spec),
	}, nil
}

// IsRemote reports whether this session should receive a Heartbeat.
func (t *MCPTransport) IsRemote() bool {
	return t.isRemote
}

// Close releases the underlying MCP session.
func (t *MCPTransport) Close() error {
	if t.session == nil {
		return nil
	}
	return t.session.Close()
}

// Send posts content, optionally as a threaded reply.
func (t *MCPTransport) Send(ctx context.Context, content string, parentMessageID string) (Ack, error) {
	args := map[string]any{
		"action":  "send",
		"content": content,
	}
	if parentMessageID != "" {
		args["parent_message_id"] = parentMessageID
	}

	result, err := t.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "messages",
		Arguments: args,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("send: %w", err)
	}
	if result != nil && result.IsError {
		return Ack{}, fmt.Errorf("send: transport reported error: %s", resultText(result))
	}
	return Ack{MessageID: parentMessageID}, nil
}

// Check polls or blocks for the next mention.
func (t *MCPTransport) Check(ctx context.Context, opts CheckOptions) (mention.Payload, error) {
	args := map[string]any{
		"action":    "check",
		"wait":      opts.Wait,
		"mark_read": opts.MarkRead,
	}
	if opts.Mode != "" {
		args["mode"] = opts.Mode
	}
	if opts.Limit > 0 {
		args["limit"] = opts.Limit
	}
	if opts.FilterAgent != "" {
		args["filter_agent"] = opts.FilterAgent
	}

	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, err := t.session.CallTool(callCtx, &mcpsdk.CallToolParams{
		Name:      "messages",
		Arguments: args,
	})
	if err != nil {
		return mention.Payload{}, fmt.Errorf("check: %w", err)
	}
	return mention.Payload{Text: resultText(result)}, nil
}

// SendPing issues a liveness ping over the session.
func (t *MCPTransport) SendPing(ctx context.Context) (PingResult, error) {
	if err := t.session.Ping(ctx, nil); err != nil {
		return PingResult{}, fmt.Errorf("ping: %w", err)
	}
	return PingResult{Status: "ok", Timestamp: time.Now()}, nil
}

// resultText concatenates a CallToolResult's text content blocks.
func resultText(result *mcpsdk.CallToolResult) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
