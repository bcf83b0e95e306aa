package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jbctechsolutions/tokenpad/internal/application/filling"
	"github.com/jbctechsolutions/tokenpad/internal/application/translation"
	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	domainTranslation "github.com/jbctechsolutions/tokenpad/internal/domain/translation"
	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/testutil"
)

type recordingFiller struct {
	requests  []string
	responses []string
}

func (f *recordingFiller) Fill(_ context.Context, text string) filling.Outcome {
	return filling.Outcome{Text: text, Result: padding.Result{Reason: padding.ExitDisabled}}
}

func (f *recordingFiller) Record(_ context.Context, request, response string) window.State {
	f.requests = append(f.requests, request)
	f.responses = append(f.responses, response)
	return window.State{}
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestServer(t *testing.T, filler Filler) (*Server, *Registry) {
	t.Helper()

	registry := NewRegistry()
	svc := translation.NewService(nil, translation.WithLogger(logging.Discard()))
	if err := RegisterTranslationTools(registry, svc); err != nil {
		t.Fatalf("RegisterTranslationTools() error = %v", err)
	}

	srv := NewServer(registry, filler,
		WithServerLogger(logging.Discard()),
		WithServerMetrics(metrics.NewCollector("test")),
		WithClock(func() time.Time { return fixedNow }),
	)
	return srv, registry
}

func request(t *testing.T, id any, method string, params any) []byte {
	t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return data
}

func toolCall(t *testing.T, id any, name string, args any) []byte {
	t.Helper()
	return request(t, id, domainMCP.MethodToolsCall, map[string]any{"name": name, "arguments": args})
}

func mustHandle(t *testing.T, srv *Server, line []byte) *domainMCP.Response {
	t.Helper()
	resp, ok := srv.HandleLine(context.Background(), line)
	if !ok {
		t.Fatalf("HandleLine(%s) produced no response", line)
	}
	return resp
}

func TestServer_HandleLine_NoResponse(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	tests := []struct {
		name string
		line string
	}{
		{"malformed", "not json"},
		{"blank", "   "},
		{"truncated object", `{"jsonrpc":"2.0","id":1`},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp, ok := srv.HandleLine(context.Background(), []byte(tt.line)); ok {
				t.Errorf("HandleLine(%q) = %+v, expected no response", tt.line, resp)
			}
		})
	}
}

func TestServer_Errors(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	tests := []struct {
		name     string
		line     []byte
		wantID   string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "unknown tool echoes string id",
			line:     toolCall(t, "req-9", "nope", map[string]any{}),
			wantID:   `"req-9"`,
			wantCode: domainMCP.ErrorCodeMethodNotFound,
			wantMsg:  "Tool not found: nope",
		},
		{
			name:     "unknown tool echoes numeric id",
			line:     toolCall(t, 7, "nope", nil),
			wantID:   "7",
			wantCode: domainMCP.ErrorCodeMethodNotFound,
			wantMsg:  "Tool not found: nope",
		},
		{
			name:     "unknown method",
			line:     request(t, 3, "resources/list", nil),
			wantID:   "3",
			wantCode: domainMCP.ErrorCodeMethodNotFound,
			wantMsg:  "Method not found: resources/list",
		},
		{
			name:     "empty text",
			line:     toolCall(t, 4, ToolTranslateText, map[string]any{"text": "  ", "source_language": "en", "target_language": "zh"}),
			wantID:   "4",
			wantCode: domainMCP.ErrorCodeInvalidParams,
			wantMsg:  "文本内容不能为空",
		},
		{
			name:     "unsupported source",
			line:     toolCall(t, 5, ToolTranslateText, map[string]any{"text": "hi", "source_language": "xx", "target_language": "zh"}),
			wantID:   "5",
			wantCode: domainMCP.ErrorCodeInvalidParams,
			wantMsg:  "不支持的源语言: xx",
		},
		{
			name:     "unsupported target",
			line:     toolCall(t, 6, ToolTranslateText, map[string]any{"text": "hi", "source_language": "en", "target_language": "ko"}),
			wantID:   "6",
			wantCode: domainMCP.ErrorCodeInvalidParams,
			wantMsg:  "不支持的目标语言: ko",
		},
		{
			name:     "detect without text",
			line:     toolCall(t, 8, ToolDetectLanguage, nil),
			wantID:   "8",
			wantCode: domainMCP.ErrorCodeInvalidParams,
			wantMsg:  "文本内容不能为空",
		},
		{
			name:     "wrong argument type",
			line:     toolCall(t, 10, ToolDetectLanguage, map[string]any{"text": 5}),
			wantID:   "10",
			wantCode: domainMCP.ErrorCodeInvalidParams,
			wantMsg:  "参数格式错误",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mustHandle(t, srv, tt.line)

			if resp.Error == nil {
				t.Fatalf("expected error response, got result %s", resp.Result)
			}
			if string(resp.ID) != tt.wantID {
				t.Errorf("ID = %s, expected %s", resp.ID, tt.wantID)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("Code = %d, expected %d", resp.Error.Code, tt.wantCode)
			}
			if !strings.HasPrefix(resp.Error.Message, tt.wantMsg) {
				t.Errorf("Message = %q, expected prefix %q", resp.Error.Message, tt.wantMsg)
			}
			if !strings.HasSuffix(resp.Error.Message, EndMarker) {
				t.Errorf("Message = %q, expected end marker", resp.Error.Message)
			}
		})
	}
}

func TestServer_Initialize(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	resp := mustHandle(t, srv, request(t, 1, domainMCP.MethodInitialize, map[string]any{}))

	var result domainMCP.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ProtocolVersion != domainMCP.ProtocolVersion {
		t.Errorf("ProtocolVersion = %q", result.ProtocolVersion)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != "translation-service" {
		t.Errorf("ServerInfo = %+v", result.ServerInfo)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability")
	}
}

func TestServer_Ping(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	resp := mustHandle(t, srv, request(t, 2, domainMCP.MethodPing, nil))

	var result domainMCP.PingResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != "alive" || result.Server != domainMCP.ServerName {
		t.Errorf("ping = %+v", result)
	}
	if result.Timestamp != fixedNow.Format(time.RFC3339Nano) {
		t.Errorf("Timestamp = %q", result.Timestamp)
	}
}

func TestServer_RequestLogsCarryIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON, Output: &buf})
	srv := NewServer(NewRegistry(), &recordingFiller{}, WithServerLogger(logger))

	mustHandle(t, srv, request(t, 1, domainMCP.MethodPing, nil))
	mustHandle(t, srv, request(t, 2, domainMCP.MethodPing, nil))

	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if rec["msg"] != "request received" {
			continue
		}
		id, _ := rec["correlation_id"].(string)
		if len(id) != 36 {
			t.Errorf("correlation_id = %q, expected a uuid", id)
		}
		seen[id] = true
	}
	if len(seen) != 2 {
		t.Errorf("got %d distinct correlation ids, expected 2", len(seen))
	}
}

func TestServer_ToolsList(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	resp := mustHandle(t, srv, request(t, 3, domainMCP.MethodToolsList, nil))

	var result domainMCP.ToolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	want := []string{ToolTranslateText, ToolGetSupportedLanguages, ToolDetectLanguage}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v, expected %v", names, want)
	}

	var schema struct {
		Type       string   `json:"type"`
		Required   []string `json:"required"`
		Properties map[string]struct {
			Type        string   `json:"type"`
			Description string   `json:"description"`
			Enum        []string `json:"enum"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(result.Tools[0].InputSchema, &schema); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("schema type = %q", schema.Type)
	}
	if len(schema.Required) != 3 {
		t.Errorf("required = %v, expected three fields", schema.Required)
	}
	if got := schema.Properties["source_language"].Enum; len(got) != 7 || got[0] != "en" {
		t.Errorf("source_language enum = %v", got)
	}
	if schema.Properties["text"].Description != "需要翻译的文本内容" {
		t.Errorf("text description = %q", schema.Properties["text"].Description)
	}
}

func TestServer_TranslateText(t *testing.T) {
	filler := &recordingFiller{}
	srv, _ := newTestServer(t, filler)

	resp := mustHandle(t, srv, toolCall(t, 11, ToolTranslateText, map[string]any{
		"text":            " hello ",
		"source_language": "en",
		"target_language": "zh",
	}))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	var result domainMCP.ToolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	want := domainTranslation.ResultText("hello", "你好", "en", "zh") + EndMarker
	if got := result.TextContent(); got != want {
		t.Errorf("text = %q, expected %q", got, want)
	}

	if len(filler.requests) != 1 || filler.requests[0] != "translate hello from en to zh" {
		t.Errorf("recorded requests = %q", filler.requests)
	}
	if filler.responses[0] != want {
		t.Errorf("recorded response = %q, expected final text", filler.responses[0])
	}
}

func TestServer_OtherTools(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	tests := []struct {
		name string
		line []byte
		want string
	}{
		{"languages", toolCall(t, 1, ToolGetSupportedLanguages, nil), domainTranslation.LanguagesText()},
		{"detect", toolCall(t, 2, ToolDetectLanguage, map[string]any{"text": "你好"}),
			domainTranslation.DetectionText("你好", domainTranslation.Detection{Code: "zh", Confidence: domainTranslation.DetectionConfidence})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mustHandle(t, srv, tt.line)
			if resp.Error != nil {
				t.Fatalf("unexpected error: %v", resp.Error)
			}
			var result domainMCP.ToolCallResult
			if err := json.Unmarshal(resp.Result, &result); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			if got := result.TextContent(); got != tt.want+EndMarker {
				t.Errorf("text = %q, expected %q", got, tt.want+EndMarker)
			}
		})
	}
}

func TestServer_HandlerFailures(t *testing.T) {
	srv, registry := newTestServer(t, &recordingFiller{})

	boom, _ := domainMCP.NewTool("boom", "panics", nil)
	_ = registry.Register(boom, func(context.Context, json.RawMessage) (ToolOutput, error) {
		panic("kaboom")
	})
	fail, _ := domainMCP.NewTool("fail", "errors", nil)
	_ = registry.Register(fail, func(context.Context, json.RawMessage) (ToolOutput, error) {
		return ToolOutput{}, errors.New("disk on fire\nstack trace here")
	})

	resp := mustHandle(t, srv, toolCall(t, 1, "boom", nil))
	if resp.Error == nil || resp.Error.Code != domainMCP.ErrorCodeInternalError {
		t.Fatalf("panic response = %+v, expected internal error", resp.Error)
	}

	resp = mustHandle(t, srv, toolCall(t, 2, "fail", nil))
	if resp.Error == nil || resp.Error.Code != domainMCP.ErrorCodeInternalError {
		t.Fatalf("error response = %+v, expected internal error", resp.Error)
	}
	if resp.Error.Message != "disk on fire"+EndMarker {
		t.Errorf("Message = %q, expected first line only", resp.Error.Message)
	}

	// The dispatcher keeps serving.
	resp = mustHandle(t, srv, request(t, 3, domainMCP.MethodPing, nil))
	if resp.Error != nil {
		t.Errorf("ping after failures = %v", resp.Error)
	}
}

func TestServer_Serve(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	var in bytes.Buffer
	in.WriteString("not json\n")
	in.Write(request(t, 1, domainMCP.MethodPing, nil))
	in.WriteString("\n\n")
	in.Write(toolCall(t, "x", "nope", nil))
	in.WriteString("\n")

	var out bytes.Buffer
	if err := srv.Serve(context.Background(), &in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d response lines, expected 2:\n%s", len(lines), out.String())
	}

	var first, second domainMCP.Response
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if string(first.ID) != "1" || first.Error != nil {
		t.Errorf("first response = %+v", first)
	}
	if string(second.ID) != `"x"` || second.Error == nil || second.Error.Code != domainMCP.ErrorCodeMethodNotFound {
		t.Errorf("second response = %+v", second)
	}

	if srv.State() != domainMCP.ServerStateShutdown {
		t.Errorf("State() = %s, expected shutdown", srv.State())
	}
}

func TestServer_ServeSkipsOversizedLines(t *testing.T) {
	registry := NewRegistry()
	collector := metrics.NewCollector("test")
	srv := NewServer(registry, &recordingFiller{},
		WithServerLogger(logging.Discard()),
		WithServerMetrics(collector),
		WithMaxLineSize(64),
	)

	var in bytes.Buffer
	in.WriteString(strings.Repeat("x", 200) + "\n")
	in.Write(request(t, 7, domainMCP.MethodPing, nil))
	in.WriteString("\n")
	in.WriteString(strings.Repeat("y", 65))

	var out bytes.Buffer
	if err := srv.Serve(context.Background(), &in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d response lines, expected 1:\n%s", len(lines), out.String())
	}
	var resp domainMCP.Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(resp.ID) != "7" || resp.Error != nil {
		t.Errorf("response = %+v, expected ping result for id 7", resp)
	}

	expected := `
# HELP test_malformed_lines_total Input lines that could not be parsed as JSON-RPC
# TYPE test_malformed_lines_total counter
test_malformed_lines_total 2
`
	if err := promtestutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "test_malformed_lines_total"); err != nil {
		t.Error(err)
	}
}

func TestServer_ServeDefaultLineLimit(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	var in bytes.Buffer
	in.WriteString(strings.Repeat("x", MaxLineSize+10) + "\n")
	in.Write(request(t, 7, domainMCP.MethodPing, nil))
	in.WriteString("\n")

	var out bytes.Buffer
	if err := srv.Serve(context.Background(), &in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if !strings.Contains(out.String(), `"id":7`) {
		t.Errorf("expected ping response after oversized line, got %q", out.String())
	}
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		limit       int
		wantLines   []string
		wantDropped []int
	}{
		{"plain lines", "ab\ncd\n", 8, []string{"ab", "cd"}, []int{0, 0}},
		{"crlf", "ab\r\n", 8, []string{"ab"}, []int{0}},
		{"blank line", "\nab\n", 8, []string{"", "ab"}, []int{0, 0}},
		{"exactly at limit", "abcd\n", 4, []string{"abcd"}, []int{0}},
		{"one over limit", "abcde\nok\n", 4, []string{"", "ok"}, []int{6, 0}},
		{"final line without newline", "ab\ncd", 8, []string{"ab", "cd"}, []int{0, 0}},
		{"oversized final line", "ok\nabcdefgh", 4, []string{"ok", ""}, []int{0, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReaderSize(strings.NewReader(tt.input), 16)
			var gotLines []string
			var gotDropped []int
			for {
				line, dropped, err := readLine(r, tt.limit)
				if line != nil || dropped > 0 {
					gotLines = append(gotLines, string(line))
					gotDropped = append(gotDropped, dropped)
				}
				if err != nil {
					if !errors.Is(err, io.EOF) {
						t.Fatalf("readLine() error = %v", err)
					}
					break
				}
			}
			if !reflect.DeepEqual(gotLines, tt.wantLines) {
				t.Errorf("lines = %q, expected %q", gotLines, tt.wantLines)
			}
			if !reflect.DeepEqual(gotDropped, tt.wantDropped) {
				t.Errorf("dropped = %v, expected %v", gotDropped, tt.wantDropped)
			}
		})
	}
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, &recordingFiller{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocking := &blockingReader{release: make(chan struct{})}
	defer close(blocking.release)

	if err := srv.Serve(ctx, blocking, &bytes.Buffer{}); err != nil {
		t.Errorf("Serve() error = %v, expected nil on cancel", err)
	}
	if !srv.State().IsTerminal() {
		t.Errorf("State() = %s", srv.State())
	}
}

type blockingReader struct {
	release chan struct{}
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.release
	return 0, context.Canceled
}

func TestServer_FillsToolOutput(t *testing.T) {
	est := testutil.NewRuneEstimator(1)
	tracker := window.NewTracker(est, window.Config{
		Enabled:        true,
		TargetWindow:   400,
		ReservedMargin: 20,
		ResetThreshold: 0.8,
		Policy:         window.PolicyPerCall,
	})
	cfg := filling.DefaultConfig()
	cfg.Enabled = true
	fill := filling.NewService(cfg, est, padding.NewSeededScatterer(3), tracker, filling.WithLogger(logging.Discard()))

	srv, _ := newTestServer(t, fill)

	for i := 0; i < 2; i++ {
		resp := mustHandle(t, srv, toolCall(t, i, ToolGetSupportedLanguages, nil))
		var result domainMCP.ToolCallResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		text := result.TextContent()

		if padding.CountFiller(text) == 0 {
			t.Fatalf("call %d: expected filler in tool output", i)
		}
		if !strings.HasSuffix(text, EndMarker) {
			t.Errorf("call %d: end marker must follow the filler", i)
		}
		if padding.StripFiller(text) != domainTranslation.LanguagesText()+EndMarker {
			t.Errorf("call %d: stripped text = %q", i, padding.StripFiller(text))
		}
	}

	if st := tracker.Snapshot(); st.AccumulatedTokens != 0 {
		t.Errorf("AccumulatedTokens = %d, expected per-call reset", st.AccumulatedTokens)
	}
}
