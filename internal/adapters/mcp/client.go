// Package mcp implements the stdio JSON-RPC dispatcher that serves the
// translation tools, and a client for talking to such a server.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
)

// Client handles JSON-RPC communication with an MCP server over a pair of
// streams, either a child process's stdio or in-process pipes.
type Client struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out io.ReadCloser

	mu        sync.Mutex
	writeMu   sync.Mutex
	requestID atomic.Int64
	pending   map[string]chan *domainMCP.Response

	protocolInfo *domainMCP.ProtocolInfo
	tools        []*domainMCP.Tool

	readErr   error
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient starts the configured server process and connects to its stdio.
// The child's stderr is passed through.
func NewClient(ctx context.Context, config domainMCP.ServerConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	if len(config.Env) > 0 {
		cmd.Env = append(os.Environ(), mapToEnvSlice(config.Env)...)
	}
	if config.WorkDir != "" {
		cmd.Dir = config.WorkDir
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create stdin pipe: %v", domainMCP.ErrServerStartFailed, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w: failed to create stdout pipe: %v", domainMCP.ErrServerStartFailed, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("%w: %v", domainMCP.ErrServerStartFailed, err)
	}

	c := newClient(stdout, stdin)
	c.cmd = cmd
	return c, nil
}

// NewStreamClient connects to a server reachable through out (responses)
// and in (requests).
func NewStreamClient(out io.ReadCloser, in io.WriteCloser) *Client {
	return newClient(out, in)
}

func newClient(out io.ReadCloser, in io.WriteCloser) *Client {
	c := &Client{
		in:      in,
		out:     out,
		pending: make(map[string]chan *domainMCP.Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Initialize performs the MCP handshake with the server.
func (c *Client) Initialize(ctx context.Context) error {
	params := domainMCP.InitializeParams{
		ProtocolVersion: domainMCP.ProtocolVersion,
		Capabilities:    domainMCP.ClientCapabilities{},
		ClientInfo: domainMCP.ClientInfo{
			Name:    "tokenpad",
			Version: domainMCP.ServerVersion,
		},
	}

	resp, err := c.Call(ctx, domainMCP.MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("%w: %v", domainMCP.ErrInitializeFailed, err)
	}

	var result domainMCP.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("%w: failed to parse initialize result: %v", domainMCP.ErrInitializeFailed, err)
	}

	info := &domainMCP.ProtocolInfo{
		ProtocolVersion: result.ProtocolVersion,
		Capabilities:    result.Capabilities,
	}
	if result.ServerInfo != nil {
		info.ServerName = result.ServerInfo.Name
		info.ServerVersion = result.ServerInfo.Version
	}

	c.mu.Lock()
	c.protocolInfo = info
	c.mu.Unlock()
	return nil
}

// Ping checks that the server is alive.
func (c *Client) Ping(ctx context.Context) (*domainMCP.PingResult, error) {
	resp, err := c.Call(ctx, domainMCP.MethodPing, nil)
	if err != nil {
		return nil, err
	}

	var result domainMCP.PingResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ping result: %v", domainMCP.ErrInvalidResponse, err)
	}
	return &result, nil
}

// DiscoverTools fetches the list of available tools from the server.
func (c *Client) DiscoverTools(ctx context.Context) ([]*domainMCP.Tool, error) {
	resp, err := c.Call(ctx, domainMCP.MethodToolsList, nil)
	if err != nil {
		return nil, err
	}

	var result domainMCP.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse tools list: %v", domainMCP.ErrInvalidResponse, err)
	}

	tools := make([]*domainMCP.Tool, 0, len(result.Tools))
	for _, def := range result.Tools {
		tool, err := def.ToTool()
		if err != nil {
			continue // Skip invalid tools
		}
		tools = append(tools, tool)
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()

	return tools, nil
}

// CallTool executes a tool and returns the result. A protocol error is
// returned as *domainMCP.RPCError.
func (c *Client) CallTool(ctx context.Context, toolName string, arguments any) (*domainMCP.ToolCallResult, error) {
	argsJSON, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	params := domainMCP.ToolCallParams{
		Name:      toolName,
		Arguments: argsJSON,
	}

	resp, err := c.Call(ctx, domainMCP.MethodToolsCall, params)
	if err != nil {
		return nil, err
	}

	var result domainMCP.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse tool result: %v", domainMCP.ErrInvalidResponse, err)
	}

	return &result, nil
}

// GetTools returns the cached list of tools.
func (c *Client) GetTools() []*domainMCP.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tools := make([]*domainMCP.Tool, len(c.tools))
	copy(tools, c.tools)
	return tools
}

// GetProtocolInfo returns the protocol info from initialization.
func (c *Client) GetProtocolInfo() *domainMCP.ProtocolInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolInfo
}

// PID returns the process ID of the server, or 0 for stream clients.
func (c *Client) PID() int {
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// Close closes the request stream, which ends the server's input, and waits
// for a child process to exit.
func (c *Client) Close(ctx context.Context) error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.in.Close()
		close(c.done)

		if c.cmd == nil {
			c.out.Close()
			return
		}

		done := make(chan error, 1)
		go func() {
			done <- c.cmd.Wait()
		}()

		select {
		case closeErr = <-done:
		case <-ctx.Done():
			if c.cmd.Process != nil {
				c.cmd.Process.Kill()
			}
			closeErr = <-done
		case <-time.After(10 * time.Second):
			if c.cmd.Process != nil {
				c.cmd.Process.Kill()
			}
			closeErr = <-done
		}
	})

	return closeErr
}

// Call sends a JSON-RPC request and waits for the response. Error responses
// are returned as *domainMCP.RPCError.
func (c *Client) Call(ctx context.Context, method string, params any) (*domainMCP.Response, error) {
	id := c.requestID.Add(1)

	req, err := domainMCP.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	key := domainMCP.IDKey(req.ID)

	respChan := make(chan *domainMCP.Response, 1)

	c.mu.Lock()
	c.pending[key] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	_, err = c.in.Write(append(data, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, domainMCP.ErrServerNotRunning
	}
}

// Err returns the error that stopped the read loop, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// readLoop reads responses and hands them to waiting callers.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.out)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)

	for scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp domainMCP.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue // Skip malformed responses
		}

		c.mu.Lock()
		if ch, ok := c.pending[domainMCP.IDKey(resp.ID)]; ok {
			ch <- &resp
		}
		c.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
	}
}

// mapToEnvSlice converts a map to KEY=VALUE format.
func mapToEnvSlice(m map[string]string) []string {
	result := make([]string, 0, len(m))
	for k, v := range m {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
