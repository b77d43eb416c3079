package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tools/base"
)

type echoParams struct {
	Text      string `json:"text" description:"Text to echo"`
	Times     int    `json:"times,omitempty" schema:"min:1,max:3"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// fakeTool runs fn; calls counts invocations
type fakeTool struct {
	base.BaseTool
	calls int
	fn    func(ctx context.Context, inv *tools.Invocation) (interface{}, error)
}

func (t *fakeTool) Parameters() interface{} { return &echoParams{} }

func (t *fakeTool) Execute(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
	t.calls++
	return t.fn(ctx, inv)
}

func newFake(name string, category tools.Category, fn func(ctx context.Context, inv *tools.Invocation) (interface{}, error)) *fakeTool {
	return &fakeTool{
		BaseTool: base.BaseTool{ToolName: name, ToolDesc: name + " tool", ToolCategory: category, IsReadOnly: true},
		fn:       fn,
	}
}

func call(name string, args map[string]interface{}) llm.ToolCall {
	return llm.ToolCall{ID: "call_" + name, Name: name, Arguments: args}
}

func TestRegister_RejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake("a.one", tools.CategoryFile, nil)))
	err := r.Register(newFake("a.one", tools.CategoryFile, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateTool))
	assert.Equal(t, 1, r.Len())
}

func TestSchemas_StableRegistrationOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"z.last", "a.first", "m.middle"} {
		require.NoError(t, r.Register(newFake(name, tools.CategoryFile, nil)))
	}

	first := r.Schemas()
	second := r.Schemas()
	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, "z.last", first[0].Name)
	assert.Equal(t, "a.first", first[1].Name)
	assert.Equal(t, []string{"text"}, first[0].Parameters["required"])
}

func TestDispatch_UnknownTool(t *testing.T) {
	res := New().Dispatch(context.Background(), call("nope", nil), nil)
	assert.False(t, res.OK)
	assert.Equal(t, tools.KindNotFound, res.ErrorKind)
}

func TestDispatch_InvalidArgumentsSkipsInvoke(t *testing.T) {
	r := New()
	tool := newFake("echo", tools.CategoryFile, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, r.Register(tool))

	cases := []map[string]interface{}{
		{},
		{"text": 5.0},
		{"text": "hi", "times": 9.0},
		{"text": "hi", "times": 1.5},
	}
	for i, args := range cases {
		res := r.Dispatch(context.Background(), call("echo", args), nil)
		assert.Equal(t, tools.KindInvalidArguments, res.ErrorKind, "case %d", i)
	}
	assert.Equal(t, 0, tool.calls)
}

func TestDispatch_Success(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake("echo", tools.CategoryFile, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		var p echoParams
		if err := inv.Decode(&p); err != nil {
			return nil, err
		}
		inv.RecordSideEffect("echoed")
		return p.Text, nil
	})))

	res := r.Dispatch(context.Background(), call("echo", map[string]interface{}{"text": "hi"}), nil)
	require.True(t, res.OK)
	assert.Equal(t, "hi", res.Output)
	assert.Equal(t, []string{"echoed"}, res.SideEffects)
	assert.JSONEq(t, `{"ok":true,"output":"hi","side_effects":["echoed"]}`, res.JSON())
}

func TestDispatch_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"tool error", tools.NewToolError(tools.KindExists, "already there"), tools.KindExists},
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), tools.KindNotFound},
		{"permission", fmt.Errorf("open: %w", os.ErrPermission), tools.KindPermissionDenied},
		{"plain", errors.New("boom\n\tat stack frame"), tools.KindRuntime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New()
			require.NoError(t, r.Register(newFake("fail", tools.CategoryFile, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
				return nil, tc.err
			})))
			res := r.Dispatch(context.Background(), call("fail", map[string]interface{}{"text": "x"}), nil)
			assert.False(t, res.OK)
			assert.Equal(t, tc.kind, res.ErrorKind)
			assert.NotContains(t, res.ErrorMessage, "stack frame")
		})
	}
}

func TestDispatch_PanicBecomesRuntime(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake("crash", tools.CategoryFile, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})))

	res := r.Dispatch(context.Background(), call("crash", map[string]interface{}{"text": "x"}), nil)
	assert.Equal(t, tools.KindRuntime, res.ErrorKind)
}

func TestDispatch_TimeoutFromArgument(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake("slow", tools.CategoryShell, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	start := time.Now()
	res := r.Dispatch(context.Background(), call("slow", map[string]interface{}{"text": "x", "timeout_ms": 50.0}), nil)
	assert.Equal(t, tools.KindTimeout, res.ErrorKind)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatch_CategoryCeiling(t *testing.T) {
	r := New(WithDefaultTimeout(time.Hour))
	e := &entry{tool: newFake("w", tools.CategoryWeb, nil)}
	e.schema, _ = r.generator.Generate(&echoParams{})

	assert.Equal(t, 2*time.Minute, r.timeoutFor(e, map[string]interface{}{}))
	assert.Equal(t, time.Second, r.timeoutFor(e, map[string]interface{}{"timeout_ms": 1000.0}))

	e.tool = newFake("s", tools.CategoryShell, nil)
	assert.Equal(t, 10*time.Minute, r.timeoutFor(e, map[string]interface{}{"timeout_ms": 3600000.0}))
}

func TestDispatch_ParentCancelled(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake("wait", tools.CategoryShell, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("interrupted: %w", ctx.Err())
	})))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res := r.Dispatch(ctx, call("wait", map[string]interface{}{"text": "x"}), nil)
	assert.Equal(t, tools.KindCancelled, res.ErrorKind)
}

func TestDispatch_PermissionDenied(t *testing.T) {
	r := New()
	tool := newFake("danger", tools.CategoryShell, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		return "ran", nil
	})
	require.NoError(t, r.Register(tool))

	perms := tools.NewPermissions()
	perms.Deny("shell")
	session := &tools.Invocation{Permissions: perms}

	res := r.Dispatch(context.Background(), call("danger", map[string]interface{}{"text": "x"}), session)
	assert.Equal(t, tools.KindPermissionDenied, res.ErrorKind)
	assert.Equal(t, 0, tool.calls)

	perms.Allow("danger")
	res = r.Dispatch(context.Background(), call("danger", map[string]interface{}{"text": "x"}), session)
	assert.True(t, res.OK)
}

func TestBatch_DuplicateCallID(t *testing.T) {
	r := New()
	tool := newFake("echo", tools.CategoryFile, func(ctx context.Context, inv *tools.Invocation) (interface{}, error) {
		return inv.CallID, nil
	})
	require.NoError(t, r.Register(tool))

	b := r.Batch()
	c := llm.ToolCall{ID: "call_1", Name: "echo", Arguments: map[string]interface{}{"text": "x"}}
	first := b.Dispatch(context.Background(), c, nil)
	second := b.Dispatch(context.Background(), c, nil)

	assert.True(t, first.OK)
	assert.Equal(t, "call_1", first.Output)
	assert.Equal(t, tools.KindInvalidArguments, second.ErrorKind)
	assert.Equal(t, 1, tool.calls)
}

func TestDispatch_FileReadOutsideWorkspace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("abc\n"), 0o644))
	ws, err := tools.NewWorkspace(root)
	require.NoError(t, err)

	r := New()
	require.NoError(t, r.Register(tools.NewFileReadTool()))
	session := &tools.Invocation{Workspace: ws}

	res := r.Dispatch(context.Background(), call("file.read", map[string]interface{}{"path": "../../etc/passwd"}), session)
	assert.Equal(t, tools.KindOutsideWorkspace, res.ErrorKind)

	res = r.Dispatch(context.Background(), call("file.read", map[string]interface{}{"path": "notes.txt"}), session)
	require.True(t, res.OK, res.ErrorMessage)
	out := res.Output.(tools.FileReadOutput)
	assert.Equal(t, "abc\n", out.Content)
}

func TestReadOnly(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tools.NewFileReadTool()))
	require.NoError(t, r.Register(tools.NewFileWriteTool()))

	assert.True(t, r.ReadOnly([]llm.ToolCall{{Name: "file.read"}, {Name: "file.read"}}))
	assert.False(t, r.ReadOnly([]llm.ToolCall{{Name: "file.read"}, {Name: "file.write"}}))
	assert.False(t, r.ReadOnly([]llm.ToolCall{{Name: "unknown"}}))
}
