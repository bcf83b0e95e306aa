package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/tokenpad/internal/application/filling"
	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
	"github.com/jbctechsolutions/tokenpad/internal/domain/window"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/tracing"
)

// EndMarker terminates every tool response and error message so callers can
// find the end of output behind invisible filler.
const EndMarker = "\n\n[TOOL_RESPONSE_END]"

// MaxLineSize bounds a single request line.
const MaxLineSize = 16 * 1024 * 1024

// maxErrorMessage bounds internal error messages returned to callers.
const maxErrorMessage = 200

// Filler pads tool output and charges finished calls to the context window.
type Filler interface {
	Fill(ctx context.Context, text string) filling.Outcome
	Record(ctx context.Context, request, response string) window.State
}

// Server dispatches newline-delimited JSON-RPC requests read from a stream.
// Requests are handled one at a time in arrival order.
type Server struct {
	registry *Registry
	filler   Filler

	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics *metrics.Collector
	now     func() time.Time
	maxLine int

	mu    sync.RWMutex
	state domainMCP.ServerState
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. Logs must not go to the response stream.
func WithServerLogger(l *logging.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithServerTracer sets the tracer.
func WithServerTracer(t *tracing.Tracer) ServerOption {
	return func(s *Server) { s.tracer = t }
}

// WithServerMetrics sets the metrics collector.
func WithServerMetrics(m *metrics.Collector) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithClock sets the clock used for ping timestamps and durations.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) { s.now = now }
}

// WithMaxLineSize sets the longest request line accepted. Longer lines are
// skipped.
func WithMaxLineSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// NewServer creates a Server over the tools in registry.
func NewServer(registry *Registry, filler Filler, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		filler:   filler,
		logger:   logging.Default(),
		tracer:   tracing.Default(),
		now:      time.Now,
		maxLine:  MaxLineSize,
		state:    domainMCP.ServerStateAwaitingLine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the dispatcher state.
func (s *Server) State() domainMCP.ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) setState(state domainMCP.ServerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Serve reads requests from in and writes responses to out until in is
// exhausted or ctx is cancelled. Malformed lines are logged and skipped.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	defer s.setState(domainMCP.ServerStateShutdown)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		r := bufio.NewReaderSize(in, 64*1024)
		for {
			line, dropped, err := readLine(r, s.maxLine)
			if dropped > 0 {
				s.logger.Error("request line too long, skipped", "bytes", dropped, "limit", s.maxLine)
				s.metrics.RecordMalformed()
			} else if line != nil {
				select {
				case lines <- line:
				case <-ctx.Done():
					readErr <- nil
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	s.logger.Info("dispatcher started", "tools", s.registry.Len())
	for {
		s.setState(domainMCP.ServerStateAwaitingLine)

		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			s.logger.Info("dispatcher stopped", "reason", ctx.Err().Error())
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if err := <-readErr; err != nil && ctx.Err() == nil {
				return fmt.Errorf("read request: %w", err)
			}
			s.logger.Info("dispatcher stopped", "reason", "end of input")
			return nil
		}

		resp, respond := s.HandleLine(ctx, line)
		if !respond {
			continue
		}

		s.setState(domainMCP.ServerStateResponding)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if f, ok := out.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return fmt.Errorf("flush response: %w", err)
			}
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed up to its newline and reported by its size in dropped.
// A final line without a newline is returned together with io.EOF.
func readLine(r *bufio.Reader, limit int) (line []byte, dropped int, err error) {
	size := 0
	for {
		var chunk []byte
		chunk, err = r.ReadSlice('\n')
		size += len(chunk)
		if size <= limit+1 {
			line = append(line, chunk...)
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			break
		}
	}
	if size == 0 {
		return nil, 0, err
	}

	n := size
	if err == nil {
		n--
	}
	if n > limit {
		return nil, size, err
	}
	return trimEOL(line), 0, err
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

// HandleLine decodes and dispatches one request line. It reports false when
// no response should be written: blank or unparseable lines, and
// notifications.
func (s *Server) HandleLine(ctx context.Context, line []byte) (*domainMCP.Response, bool) {
	s.setState(domainMCP.ServerStateParsing)

	if len(strings.TrimSpace(string(line))) == 0 {
		return nil, false
	}

	var req domainMCP.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Error("failed to decode request", "error", err.Error(), "bytes", len(line))
		s.metrics.RecordMalformed()
		return nil, false
	}

	if domainMCP.IDKey(req.ID) == "" && strings.HasPrefix(req.Method, "notifications/") {
		s.logger.Debug("notification received", "method", req.Method)
		return nil, false
	}

	return s.HandleRequest(ctx, &req), true
}

// HandleRequest dispatches a decoded request and always returns a response.
// Handler panics become internal errors.
func (s *Server) HandleRequest(ctx context.Context, req *domainMCP.Request) (resp *domainMCP.Response) {
	s.setState(domainMCP.ServerStateDispatching)
	start := s.now()

	ctx = logging.WithNewCorrelationID(ctx)
	ctx = logging.WithRequestID(ctx, domainMCP.IDKey(req.ID))
	ctx, span := s.tracer.StartRequestSpan(ctx, req.Method, domainMCP.IDKey(req.ID))
	tracing.SetAttribute(ctx, "correlation_id", logging.CorrelationID(ctx))
	logging.LogRequest(ctx, s.logger, req.Method)

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "request handler panicked", "method", req.Method, "panic", fmt.Sprint(r))
			resp = domainMCP.NewErrorResponse(req.ID, domainMCP.NewInternalError("internal error").WithSuffix(EndMarker))
		}

		outcome := "ok"
		if resp.Error != nil {
			outcome = "error"
			span.SetErrorCode(resp.Error.Code)
			span.EndWithError(resp.Error)
		} else {
			span.End()
		}
		s.metrics.RecordRequest(req.Method, outcome, s.now().Sub(start))
	}()

	result, rpcErr := s.dispatch(ctx, req)
	if rpcErr != nil {
		return domainMCP.NewErrorResponse(req.ID, rpcErr.WithSuffix(EndMarker))
	}

	resp, err := domainMCP.NewResult(req.ID, result)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode result", "error", err.Error())
		return domainMCP.NewErrorResponse(req.ID, domainMCP.NewInternalError("internal error").WithSuffix(EndMarker))
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *domainMCP.Request) (any, *domainMCP.RPCError) {
	switch req.Method {
	case domainMCP.MethodInitialize:
		return s.initialize(), nil
	case domainMCP.MethodPing:
		return domainMCP.PingResult{
			Status:    "alive",
			Timestamp: s.now().Format(time.RFC3339Nano),
			Server:    domainMCP.ServerName,
		}, nil
	case domainMCP.MethodToolsList:
		return domainMCP.ToolsListResult{Tools: s.registry.Definitions()}, nil
	case domainMCP.MethodToolsCall:
		return s.callTool(ctx, req.Params)
	default:
		return nil, domainMCP.NewMethodNotFound(req.Method)
	}
}

func (s *Server) initialize() domainMCP.InitializeResult {
	return domainMCP.InitializeResult{
		ProtocolVersion: domainMCP.ProtocolVersion,
		Capabilities: domainMCP.ServerCapabilities{
			Tools: &domainMCP.ToolsCapability{},
		},
		ServerInfo: &domainMCP.ServerInfoResult{
			Name:    domainMCP.ServerName,
			Version: domainMCP.ServerVersion,
		},
	}
}

// callTool runs a tool, pads its text, appends the end marker and charges
// the call to the context window.
func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *domainMCP.RPCError) {
	var params domainMCP.ToolCallParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, domainMCP.NewInvalidParams("Invalid params: " + err.Error())
		}
	}

	handler, ok := s.registry.Lookup(params.Name)
	if !ok {
		s.metrics.RecordToolCall(params.Name, "not_found")
		return nil, domainMCP.NewToolNotFound(params.Name)
	}

	ctx = logging.WithTool(ctx, params.Name)
	ctx, span := s.tracer.StartToolSpan(ctx, params.Name)
	start := s.now()

	out, err := s.runHandler(ctx, handler, params.Arguments)
	logging.LogToolCall(ctx, s.logger, params.Name, s.now().Sub(start), err)
	if err != nil {
		span.EndWithError(err)
		s.metrics.RecordToolCall(params.Name, "error")
		return nil, toRPCError(err)
	}

	outcome := s.filler.Fill(ctx, out.Text)
	final := outcome.Text + EndMarker
	state := s.filler.Record(ctx, out.RequestText, final)

	span.SetPadded(outcome.Padded, outcome.Result.FillerCount)
	span.SetContextUsage(state.AccumulatedTokens, state.TargetWindow-state.AccumulatedTokens-state.ReservedMargin)
	span.End()
	s.metrics.RecordToolCall(params.Name, "ok")

	return domainMCP.TextResult(final), nil
}

func (s *Server) runHandler(ctx context.Context, h Handler, args json.RawMessage) (out ToolOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domainMCP.ErrToolExecutionFailed, r)
		}
	}()
	return h(ctx, args)
}

// toRPCError keeps handler-chosen protocol errors and hides everything else
// behind a short internal error.
func toRPCError(err error) *domainMCP.RPCError {
	var rpcErr *domainMCP.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return domainMCP.NewInternalError(sanitize(err.Error()))
}

func sanitize(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if r := []rune(msg); len(r) > maxErrorMessage {
		msg = string(r[:maxErrorMessage]) + "…"
	}
	return msg
}
