package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tools/registry"
)

type replyFunc func(ctx context.Context, req *llm.Request) (*llm.Reply, error)

// queueClient answers each request with the next reply function
type queueClient struct {
	mu      sync.Mutex
	replies []replyFunc
}

func (c *queueClient) push(fns ...replyFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, fns...)
}

func (c *queueClient) Complete(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	c.mu.Lock()
	if len(c.replies) == 0 {
		c.mu.Unlock()
		return nil, &llm.Error{Kind: llm.ErrServer, Status: 500, Message: "no scripted reply"}
	}
	fn := c.replies[0]
	c.replies = c.replies[1:]
	c.mu.Unlock()
	return fn(ctx, req)
}

func (c *queueClient) Close() error { return nil }

func say(text string) replyFunc {
	return func(context.Context, *llm.Request) (*llm.Reply, error) {
		return &llm.Reply{Message: llm.Message{Role: llm.RoleAssistant, Content: text}}, nil
	}
}

type harness struct {
	t      *testing.T
	client *queueClient
	root   string
	in     *io.PipeWriter
	out    *bufio.Scanner
	done   chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	client := &queueClient{}
	reg := registry.New()
	require.NoError(t, reg.Register(tools.NewFileReadTool()))

	factory := func(_ context.Context, workspace string) (*agent.Session, error) {
		if workspace == "" {
			workspace = root
		}
		ws, err := tools.NewWorkspace(workspace)
		if err != nil {
			return nil, err
		}
		return agent.NewSession(client, reg, ws), nil
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	srv := NewServer(factory, outW)

	h := &harness{
		t:      t,
		client: client,
		root:   root,
		in:     inW,
		out:    bufio.NewScanner(outR),
		done:   make(chan error, 1),
	}
	go func() {
		err := srv.Serve(context.Background(), inR)
		outW.Close()
		h.done <- err
	}()
	t.Cleanup(func() {
		inW.Close()
		go func() {
			for h.out.Scan() {
			}
		}()
		<-h.done
	})
	return h
}

func (h *harness) send(line string) {
	h.t.Helper()
	_, err := io.WriteString(h.in, line+"\n")
	require.NoError(h.t, err)
}

func (h *harness) read() map[string]interface{} {
	h.t.Helper()
	lines := make(chan []byte, 1)
	go func() {
		if h.out.Scan() {
			lines <- append([]byte(nil), h.out.Bytes()...)
			return
		}
		lines <- nil
	}()
	select {
	case line := <-lines:
		require.NotNil(h.t, line, "server closed its output")
		var msg map[string]interface{}
		require.NoError(h.t, json.Unmarshal(line, &msg))
		return msg
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for server output")
		return nil
	}
}

func (h *harness) newSession() string {
	h.t.Helper()
	h.send(`{"jsonrpc":"2.0","id":1,"method":"session/new","params":{}}`)
	resp := h.read()
	require.Nil(h.t, resp["error"])
	return resp["result"].(map[string]interface{})["sessionId"].(string)
}

func errorCode(msg map[string]interface{}) int {
	e, ok := msg["error"].(map[string]interface{})
	if !ok {
		return 0
	}
	return int(e["code"].(float64))
}

func TestServer_Initialize(t *testing.T) {
	h := newHarness(t)
	h.send(`{"jsonrpc":"2.0","id":"init","method":"initialize","params":{"protocolVersion":1,"clientInfo":{"name":"zed","version":"0.1"}}}`)
	resp := h.read()
	assert.Equal(t, "init", resp["id"])
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, 1.0, result["protocolVersion"])
	assert.Equal(t, "mini-agent", result["agentInfo"].(map[string]interface{})["name"])
	caps := result["agentCapabilities"].(map[string]interface{})
	assert.Equal(t, true, caps["streaming"])
	assert.Contains(t, caps["methods"], "prompt")
	assert.NotContains(t, result, "serverInfo")
	assert.NotContains(t, result, "capabilities")

	h.send(`{"jsonrpc":"2.0","id":2,"method":"initialize"}`)
	assert.Contains(t, h.read()["result"], "agentInfo")

	h.send(`{"jsonrpc":"2.0","id":3,"method":"initialize","params":{"clientInfo":"zed"}}`)
	assert.Equal(t, CodeInvalidParams, errorCode(h.read()))
}

func TestServer_ProtocolErrors(t *testing.T) {
	h := newHarness(t)

	h.send(`{not json`)
	resp := h.read()
	assert.Equal(t, CodeParseError, errorCode(resp))
	assert.Nil(t, resp["id"])

	h.send(`{"jsonrpc":"1.0","id":2,"method":"initialize"}`)
	assert.Equal(t, CodeInvalidRequest, errorCode(h.read()))

	h.send(`{"jsonrpc":"2.0","id":3,"method":"session/fly"}`)
	assert.Equal(t, CodeMethodNotFound, errorCode(h.read()))

	h.send(`{"jsonrpc":"2.0","id":4,"method":"prompt","params":{"sessionId":"nope","prompt":"hi"}}`)
	assert.Equal(t, CodeUnknownSession, errorCode(h.read()))

	h.send(`{"jsonrpc":"2.0","id":5,"method":"cancel","params":{}}`)
	assert.Equal(t, CodeInvalidParams, errorCode(h.read()))

	id := h.newSession()
	h.send(`{"jsonrpc":"2.0","id":6,"method":"prompt","params":{"sessionId":"` + id + `","prompt":[{"type":"image","text":""}]}}`)
	assert.Equal(t, CodeInvalidParams, errorCode(h.read()))

	// notifications never get a response, even for unknown methods
	h.send(`{"jsonrpc":"2.0","method":"session/fly"}`)
	h.send(`{"jsonrpc":"2.0","id":7,"method":"initialize"}`)
	assert.Equal(t, 7.0, h.read()["id"])
}

func TestServer_PromptStreamsEvents(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "notes.txt"), []byte("remember milk"), 0o644))
	h.client.push(
		func(context.Context, *llm.Request) (*llm.Reply, error) {
			return &llm.Reply{Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "c1", Name: "file.read", Arguments: map[string]interface{}{"path": "notes.txt"}},
			}}}, nil
		},
		say("You need milk."),
	)

	id := h.newSession()
	h.send(`{"jsonrpc":"2.0","id":10,"method":"session/prompt","params":{"sessionId":"` + id + `","prompt":[{"type":"text","text":"what do I need?"}]}}`)

	var methods []string
	for {
		msg := h.read()
		if method, ok := msg["method"].(string); ok {
			methods = append(methods, method)
			assert.Equal(t, id, msg["params"].(map[string]interface{})["sessionId"])
			continue
		}
		assert.Equal(t, 10.0, msg["id"])
		result := msg["result"].(map[string]interface{})
		assert.Equal(t, "completed", result["stopReason"])
		content := result["content"].([]interface{})
		assert.Equal(t, "You need milk.", content[0].(map[string]interface{})["text"])
		break
	}
	assert.Equal(t, []string{
		"session/tool_started", "session/tool_finished", "session/assistant_message", "session/turn_finished",
	}, methods)
}

func TestServer_PromptsRunInOrder(t *testing.T) {
	h := newHarness(t)
	h.client.push(say("first"), say("second"))
	id := h.newSession()

	h.send(`{"jsonrpc":"2.0","id":1,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"one"}}`)
	h.send(`{"jsonrpc":"2.0","id":2,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"two"}}`)

	var ids []float64
	var texts []string
	for len(ids) < 2 {
		msg := h.read()
		if _, ok := msg["method"]; ok {
			continue
		}
		ids = append(ids, msg["id"].(float64))
		content := msg["result"].(map[string]interface{})["content"].([]interface{})
		texts = append(texts, content[0].(map[string]interface{})["text"].(string))
	}
	assert.Equal(t, []float64{1, 2}, ids)
	assert.Equal(t, []string{"first", "second"}, texts)
}

func TestServer_CancelInFlightPrompt(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.client.push(func(ctx context.Context, _ *llm.Request) (*llm.Reply, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	id := h.newSession()

	h.send(`{"jsonrpc":"2.0","id":20,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"wait"}}`)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not start")
	}
	h.send(`{"jsonrpc":"2.0","id":21,"method":"session/cancel","params":{"sessionId":"` + id + `"}}`)

	seen := map[string]map[string]interface{}{}
	for len(seen) < 3 {
		msg := h.read()
		switch {
		case msg["method"] == "session/turn_finished":
			seen["finished"] = msg
		case msg["id"] == 21.0:
			seen["cancel"] = msg
		case msg["id"] == 20.0:
			seen["prompt"] = msg
		}
	}
	assert.Equal(t, true, seen["cancel"]["result"].(map[string]interface{})["cancelled"])
	assert.Equal(t, "cancelled", seen["finished"]["params"].(map[string]interface{})["reason"])
	assert.Equal(t, "cancelled", seen["prompt"]["result"].(map[string]interface{})["stopReason"])

	// the session is still open
	h.client.push(say("back"))
	h.send(`{"jsonrpc":"2.0","id":22,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"again"}}`)
	for {
		msg := h.read()
		if msg["id"] == 22.0 {
			assert.Equal(t, "completed", msg["result"].(map[string]interface{})["stopReason"])
			break
		}
	}
}

func TestServer_TurnErrorKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.client.push(func(context.Context, *llm.Request) (*llm.Reply, error) {
		return nil, &llm.Error{Kind: llm.ErrAuth, Status: 401, Message: "bad key"}
	})
	id := h.newSession()

	h.send(`{"jsonrpc":"2.0","id":30,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"hi"}}`)
	var methods []string
	for {
		msg := h.read()
		if method, ok := msg["method"].(string); ok {
			methods = append(methods, method)
			continue
		}
		assert.Equal(t, CodeTurnFailed, errorCode(msg))
		assert.Contains(t, msg["error"].(map[string]interface{})["message"], "bad key")
		break
	}
	assert.Equal(t, []string{"session/error", "session/turn_finished"}, methods)

	h.client.push(say("recovered"))
	h.send(`{"jsonrpc":"2.0","id":31,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"hi"}}`)
	for {
		msg := h.read()
		if msg["id"] == 31.0 {
			assert.Nil(t, msg["error"])
			break
		}
	}
}

func TestServer_CloseSession(t *testing.T) {
	h := newHarness(t)
	id := h.newSession()

	h.send(`{"jsonrpc":"2.0","id":40,"method":"closeSession","params":{"sessionId":"` + id + `"}}`)
	assert.Equal(t, true, h.read()["result"].(map[string]interface{})["closed"])

	h.send(`{"jsonrpc":"2.0","id":41,"method":"prompt","params":{"sessionId":"` + id + `","prompt":"hi"}}`)
	assert.Equal(t, CodeUnknownSession, errorCode(h.read()))
}

func TestServer_NewSessionWorkspace(t *testing.T) {
	h := newHarness(t)
	other := t.TempDir()
	params, err := json.Marshal(map[string]string{"cwd": other})
	require.NoError(t, err)

	h.send(`{"jsonrpc":"2.0","id":50,"method":"newSession","params":` + string(params) + `}`)
	result := h.read()["result"].(map[string]interface{})
	resolved, err := filepath.EvalSymlinks(other)
	require.NoError(t, err)
	assert.Equal(t, resolved, result["workspace"])

	h.send(`{"jsonrpc":"2.0","id":51,"method":"newSession","params":{"workspace":"/definitely/not/here"}}`)
	assert.Equal(t, CodeInvalidParams, errorCode(h.read()))
}

func TestServer_EOFDrainsSessions(t *testing.T) {
	client := &queueClient{}
	started := make(chan struct{})
	client.push(func(ctx context.Context, _ *llm.Request) (*llm.Reply, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	root := t.TempDir()
	factory := func(context.Context, string) (*agent.Session, error) {
		ws, err := tools.NewWorkspace(root)
		if err != nil {
			return nil, err
		}
		return agent.NewSession(client, registry.New(), ws), nil
	}

	inR, inW := io.Pipe()
	var out syncBuffer
	srv := NewServer(factory, &out)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), inR) }()

	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"newSession"}`+"\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(out.Lines()) == 1 }, 5*time.Second, 10*time.Millisecond)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(out.Lines()[0]), &resp))
	id := resp.Result.(map[string]interface{})["sessionId"].(string)

	_, err = io.WriteString(inW, `{"jsonrpc":"2.0","id":2,"method":"prompt","params":{"sessionId":"`+id+`","prompt":"wait"}}`+"\n")
	require.NoError(t, err)
	<-started
	require.NoError(t, inW.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not drain after EOF")
	}
	lines := out.Lines()
	assert.Contains(t, lines[len(lines)-1], `"stopReason":"cancelled"`)
}

// syncBuffer collects output lines from concurrent writers
type syncBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(b.data))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestPromptText(t *testing.T) {
	got, err := promptText(json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = promptText(json.RawMessage(`[{"type":"text","text":"a"},{"type":"image"},{"type":"text","text":"b"}]`))
	require.NoError(t, err)
	assert.Equal(t, "a\nb", got)

	for _, raw := range []string{``, `"  "`, `42`, `[]`} {
		_, err := promptText(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestError(t *testing.T) {
	var err error = newError(CodeSessionBusy, "busy %d", 1)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "jsonrpc error -32002: busy 1", err.Error())
}

func TestServer_ServeStopsOnContextCancel(t *testing.T) {
	client := &queueClient{}
	started := make(chan struct{})
	stopped := make(chan struct{})
	client.push(func(ctx context.Context, _ *llm.Request) (*llm.Reply, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil, ctx.Err()
	})
	root := t.TempDir()
	factory := func(context.Context, string) (*agent.Session, error) {
		ws, err := tools.NewWorkspace(root)
		if err != nil {
			return nil, err
		}
		return agent.NewSession(client, registry.New(), ws), nil
	}

	// stdin stays open: only the context ends the loop
	inR, inW := io.Pipe()
	t.Cleanup(func() { inW.Close() })
	outR, outW := io.Pipe()
	out := bufio.NewScanner(outR)
	srv := NewServer(factory, outW)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, inR)
		outW.Close()
	}()

	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"session/new","params":{}}`+"\n")
	require.NoError(t, err)
	require.True(t, out.Scan())
	var resp struct {
		Result NewSessionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	go func() {
		for out.Scan() {
		}
	}()

	_, err = io.WriteString(inW, `{"jsonrpc":"2.0","id":2,"method":"prompt","params":{"sessionId":"`+resp.Result.SessionID+`","prompt":"wait"}}`+"\n")
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not start")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("turn still running after Serve returned")
	}
}
