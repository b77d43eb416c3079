package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitThinking(t *testing.T) {
	text, thinking := SplitThinking("<think>plan the edit</think>\nDone.")
	assert.Equal(t, "Done.", text)
	assert.Equal(t, "plan the edit", thinking)

	text, thinking = SplitThinking("no tags here")
	assert.Equal(t, "no tags here", text)
	assert.Empty(t, thinking)
}

func TestThinkFilterAcrossChunks(t *testing.T) {
	var f ThinkFilter
	var text, thinking string
	for _, chunk := range []string{"<thi", "nk>reason", "ing</th", "ink>an", "swer<"} {
		tx, th := f.Feed(chunk)
		text += tx
		thinking += th
	}
	tx, th := f.Flush()
	text += tx
	thinking += th

	assert.Equal(t, "answer<", text)
	assert.Equal(t, "reasoning", thinking)
}

func TestClassifyResponse(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   ErrorKind
	}{
		{429, `{"error":{"message":"slow down"}}`, ErrRateLimited},
		{401, `{"error":{"message":"bad key"}}`, ErrAuth},
		{503, `upstream down`, ErrServer},
		{400, `{"error":{"message":"invalid tool schema"}}`, ErrBadRequest},
		{400, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, ErrContextOverflow},
		{413, ``, ErrContextOverflow},
		{400, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 210000 tokens > 200000 maximum"}}`, ErrContextOverflow},
		{400, `{"error":{"message":"tools.0.description: string too long"}}`, ErrBadRequest},
		{400, `{"error":{"message":"file name too long"}}`, ErrBadRequest},
	}
	for _, tc := range cases {
		e := ClassifyResponse(tc.status, nil, []byte(tc.body))
		assert.Equal(t, tc.kind, e.Kind, "status %d body %q", tc.status, tc.body)
	}

	e := ClassifyResponse(401, nil, []byte(`{"error":{"message":"bad key"}}`))
	assert.Equal(t, "bad key", e.Message)
}

func TestClassifyResponseRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	e := ClassifyResponse(429, h, nil)
	assert.Equal(t, 2*time.Second, e.RetryAfter)
}

func TestClassifyTransportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ClassifyTransport(ctx, errors.New("connection reset"))
	assert.ErrorIs(t, err, context.Canceled)

	err = ClassifyTransport(context.Background(), errors.New("connection refused"))
	assert.True(t, IsKind(err, ErrServer))
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), nil, func(int) error {
		calls++
		if calls < 2 {
			return &Error{Kind: ErrServer, Message: "boom"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), nil, func(int) error {
		calls++
		return &Error{Kind: ErrRateLimited, Message: "slow down"}
	})
	assert.True(t, IsKind(err, ErrRateLimited))
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryAuth(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), nil, func(int) error {
		calls++
		return &Error{Kind: ErrAuth, Message: "bad key"}
	})
	assert.True(t, IsKind(err, ErrAuth))
	assert.Equal(t, 1, calls)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 500*time.Millisecond, p.Backoff(1))
	assert.Equal(t, time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(10))
}

func TestNameMap(t *testing.T) {
	m := NewNameMap([]ToolSchema{{Name: "file.read"}, {Name: "shell.exec"}})
	assert.Equal(t, "file_read", WireName("file.read"))
	assert.Equal(t, "file.read", m.Canonical("file_read"))
	assert.Equal(t, "mystery_tool", m.Canonical("mystery_tool"))
}

func TestMessageCloneIsDeep(t *testing.T) {
	orig := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "file.read", Arguments: map[string]interface{}{"path": "a"}}}}
	cp := orig.Clone()
	cp.ToolCalls[0].Arguments["path"] = "b"
	assert.Equal(t, "a", orig.ToolCalls[0].Arguments["path"])
}
