package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nachoal/mini-agent-go/agent"
)

const (
	maxLineBytes = 10 * 1024 * 1024
	queueSize    = 16
)

// SessionFactory creates a session rooted at workspace. An empty
// workspace selects the server default.
type SessionFactory func(ctx context.Context, workspace string) (*agent.Session, error)

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAgentInfo sets the name and version reported by initialize
func WithAgentInfo(name, version string) Option {
	return func(s *Server) {
		s.info = Implementation{Name: name, Version: version}
	}
}

// Server multiplexes agent sessions over one byte stream. Requests for a
// session run one at a time in arrival order; cancel is handled as soon
// as it is read.
type Server struct {
	factory SessionFactory
	logger  *slog.Logger
	info    Implementation

	writeMu sync.Mutex
	enc     *json.Encoder

	mu       sync.Mutex
	sessions map[string]*worker
	wg       sync.WaitGroup
}

// worker runs the queued requests of one session
type worker struct {
	session *agent.Session
	jobs    chan func()
	once    sync.Once
}

func (w *worker) stop() {
	w.once.Do(func() { close(w.jobs) })
}

// NewServer creates a server that writes responses to out
func NewServer(factory SessionFactory, out io.Writer, opts ...Option) *Server {
	s := &Server{
		factory:  factory,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		info:     Implementation{Name: "mini-agent", Version: "dev"},
		enc:      json.NewEncoder(out),
		sessions: make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads requests from in until EOF or until ctx is done, then
// cancels every session and waits for queued work to drain
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	defer s.shutdown()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			readErr <- err
			close(lines)
		}()
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), scanner.Bytes()...):
			case <-ctx.Done():
				return
			}
		}
		err = scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("acp: reading requests: %w", err)
				}
				return ctx.Err()
			}
			s.handleLine(ctx, line)
		}
	}
}

func (s *Server) shutdown() {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.sessions))
	for id, w := range s.sessions {
		workers = append(workers, w)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, w := range workers {
		w.session.Close()
		w.stop()
	}
	s.wg.Wait()
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.respond(nil, nil, newError(CodeParseError, "parse error: %v", err))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.respond(req.ID, nil, newError(CodeInvalidRequest, "invalid request"))
		return
	}

	method := req.Method
	if m, ok := aliases[method]; ok {
		method = m
	}
	s.logger.Debug("request", "method", method, "id", string(req.ID))

	switch method {
	case MethodInitialize:
		result, err := s.initialize(req.Params)
		s.reply(&req, result, err)
	case MethodNewSession:
		result, err := s.newSession(ctx, req.Params)
		s.reply(&req, result, err)
	case MethodCancel:
		result, err := s.cancel(req.Params)
		s.reply(&req, result, err)
	case MethodCloseSession:
		result, err := s.closeSession(req.Params)
		s.reply(&req, result, err)
	case MethodPrompt:
		s.prompt(ctx, &req)
	default:
		s.reply(&req, nil, newError(CodeMethodNotFound, "method not found: %s", req.Method))
	}
}

func (s *Server) initialize(raw json.RawMessage) (interface{}, *Error) {
	var params InitializeParams
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, newError(CodeInvalidParams, "invalid params: %v", err)
		}
	}
	if params.ClientInfo != nil {
		s.logger.Info("client connected", "client", params.ClientInfo.Name, "version", params.ClientInfo.Version, "protocol", params.ProtocolVersion)
	}
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		AgentCapabilities: AgentCapabilities{
			Streaming: true,
			Methods:   []string{MethodInitialize, MethodNewSession, MethodPrompt, MethodCancel, MethodCloseSession},
		},
		AgentInfo: s.info,
	}, nil
}

func (s *Server) newSession(ctx context.Context, raw json.RawMessage) (interface{}, *Error) {
	var params NewSessionParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, newError(CodeInvalidParams, "invalid params: %v", err)
		}
	}
	workspace := params.Workspace
	if workspace == "" {
		workspace = params.Cwd
	}

	session, err := s.factory(ctx, workspace)
	if err != nil {
		return nil, newError(CodeInvalidParams, "cannot create session: %v", err)
	}

	w := &worker{session: session, jobs: make(chan func(), queueSize)}
	s.mu.Lock()
	s.sessions[session.ID] = w
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for job := range w.jobs {
			job()
		}
	}()

	s.logger.Info("session created", "session", session.ID, "workspace", session.Workspace().Root())
	return NewSessionResult{SessionID: session.ID, Workspace: session.Workspace().Root()}, nil
}

func (s *Server) lookup(raw json.RawMessage) (*worker, string, *Error) {
	var params SessionParams
	if err := json.Unmarshal(raw, &params); err != nil || params.SessionID == "" {
		return nil, "", newError(CodeInvalidParams, "sessionId is required")
	}
	s.mu.Lock()
	w, ok := s.sessions[params.SessionID]
	s.mu.Unlock()
	if !ok {
		return nil, params.SessionID, newError(CodeUnknownSession, "unknown session: %s", params.SessionID)
	}
	return w, params.SessionID, nil
}

func (s *Server) cancel(raw json.RawMessage) (interface{}, *Error) {
	w, _, rpcErr := s.lookup(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	w.session.Cancel()
	return map[string]bool{"cancelled": true}, nil
}

func (s *Server) closeSession(raw json.RawMessage) (interface{}, *Error) {
	w, id, rpcErr := s.lookup(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	w.session.Close()
	w.stop()
	s.logger.Info("session closed", "session", id)
	return map[string]bool{"closed": true}, nil
}

func (s *Server) prompt(ctx context.Context, req *request) {
	var params PromptParams
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil {
		s.reply(req, nil, newError(CodeInvalidParams, "invalid params"))
		return
	}
	text, err := promptText(params.Prompt)
	if err != nil {
		s.reply(req, nil, newError(CodeInvalidParams, "%v", err))
		return
	}

	s.mu.Lock()
	w, ok := s.sessions[params.SessionID]
	if !ok {
		s.mu.Unlock()
		s.reply(req, nil, newError(CodeUnknownSession, "unknown session: %s", params.SessionID))
		return
	}

	job := func() {
		result, rpcErr := s.runTurn(ctx, w.session, text)
		s.reply(req, result, rpcErr)
	}
	select {
	case w.jobs <- job:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.reply(req, nil, newError(CodeSessionBusy, "session %s has too many queued prompts", params.SessionID))
	}
}

// runTurn streams one turn's events as notifications and builds the
// prompt response
func (s *Server) runTurn(ctx context.Context, session *agent.Session, text string) (interface{}, *Error) {
	stream, err := session.Prompt(ctx, text)
	switch {
	case errors.Is(err, agent.ErrTurnInProgress):
		return nil, newError(CodeSessionBusy, "session %s is busy", session.ID)
	case errors.Is(err, agent.ErrSessionClosed):
		return nil, newError(CodeUnknownSession, "session %s is closed", session.ID)
	case err != nil:
		return nil, newError(CodeTurnFailed, "%v", err)
	}

	for ev := range stream.Events() {
		s.notify(session.ID, ev)
	}
	result := stream.Wait()

	if result.Reason == agent.StopError {
		msg := "turn failed"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		return nil, &Error{Code: CodeTurnFailed, Message: msg, Data: map[string]string{"stopReason": string(result.Reason)}}
	}
	return PromptResult{
		Content:    []ContentBlock{{Type: "text", Text: result.Text}},
		StopReason: string(result.Reason),
	}, nil
}

// notify sends session/<event type> with the event fields and sessionId
func (s *Server) notify(sessionID string, ev agent.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding event failed", "error", err)
		return
	}
	params := map[string]interface{}{}
	if err := json.Unmarshal(data, &params); err != nil {
		s.logger.Error("encoding event failed", "error", err)
		return
	}
	params["sessionId"] = sessionID
	s.write(outbound{JSONRPC: "2.0", Method: "session/" + string(ev.Type), Params: params})
}

func (s *Server) reply(req *request, result interface{}, rpcErr *Error) {
	if req.notification() {
		if rpcErr != nil {
			s.logger.Debug("notification failed", "method", req.Method, "error", rpcErr.Message)
		}
		return
	}
	s.respond(req.ID, result, rpcErr)
}

func (s *Server) respond(id json.RawMessage, result interface{}, rpcErr *Error) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	resp := response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil {
		resp.Result = result
	}
	s.write(resp)
}

func (s *Server) write(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}
