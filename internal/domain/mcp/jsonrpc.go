package mcp

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// JSON-RPC version constant.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Request represents a JSON-RPC 2.0 request. ID is kept raw so that string,
// numeric and absent ids are echoed back exactly.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new JSON-RPC request with a numeric id.
func NewRequest(id int64, method string, params any) (*Request, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		paramsJSON = data
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      NumericID(id),
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NumericID encodes n as a raw JSON id.
func NumericID(n int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(n, 10))
}

// IDKey normalizes a raw id for map lookups. Absent and null ids share
// the empty key.
func IDKey(id json.RawMessage) string {
	trimmed := bytes.TrimSpace(id)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return string(trimmed)
}

// Response represents a JSON-RPC 2.0 response. A nil ID marshals as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewResult builds a success response echoing id.
func NewResult(id json.RawMessage, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: echoID(id), Result: data}, nil
}

// NewErrorResponse builds an error response echoing id.
func NewErrorResponse(id json.RawMessage, rpcErr *RPCError) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: echoID(id), Error: rpcErr}
}

func echoID(id json.RawMessage) json.RawMessage {
	if IDKey(id) == "" {
		return nil
	}
	return id
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes.
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

// MCP-specific method names.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
	MethodShutdown   = "shutdown"
)

// InitializeParams are the parameters for the initialize method.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct{}

// ClientInfo identifies the client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      *ServerInfoResult  `json:"serverInfo,omitempty"`
}

// ServerInfoResult contains server identification info.
type ServerInfoResult struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// PingResult is the result of the ping method.
type PingResult struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Server    string `json:"server"`
}

// ToolsListResult is the result of the tools/list method.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolCallParams are the parameters for the tools/call method.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the result of the tools/call method.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock represents a block of content in a tool result.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "resource"
	Text string `json:"text,omitempty"`
}

// TextResult wraps text in a single-block tool result.
func TextResult(text string) *ToolCallResult {
	return &ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// TextContent returns the concatenated text content from all text blocks.
func (r *ToolCallResult) TextContent() string {
	var text string
	for _, block := range r.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}
