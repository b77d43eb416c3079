package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html><head><title>Sample Page</title><style>body{color:red}</style><script>alert(1)</script></head>
<body>
<h1>Heading</h1>
<p>Some <strong>bold</strong> text and a <a href="/docs">link</a>.</p>
<ul><li>one</li><li>two</li></ul>
<pre><code>x := 1</code></pre>
</body></html>`

func TestWebRead_Markdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"url": srv.URL + "/page"})
	out, err := NewWebReadTool(0).Execute(context.Background(), inv)
	require.NoError(t, err)

	res := out.(WebReadOutput)
	assert.Equal(t, "Sample Page", res.Title)
	assert.Contains(t, res.Content, "# Heading")
	assert.Contains(t, res.Content, "Some **bold** text and a [link]("+srv.URL+"/docs).")
	assert.Contains(t, res.Content, "- one\n- two")
	assert.Contains(t, res.Content, "```\nx := 1\n```")
	assert.NotContains(t, res.Content, "alert")
	assert.NotContains(t, res.Content, "color:red")
}

func TestWebRead_TextAndCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"url": srv.URL, "format": "text"})
	out, err := NewWebReadTool(0).Execute(context.Background(), inv)
	require.NoError(t, err)
	res := out.(WebReadOutput)
	assert.Contains(t, res.Content, "Heading")
	assert.Contains(t, res.Content, "bold")
	assert.NotContains(t, res.Content, "<")
	assert.NotContains(t, res.Content, "alert")

	out, err = NewWebReadTool(10).Execute(context.Background(), inv)
	require.NoError(t, err)
	res = out.(WebReadOutput)
	assert.True(t, res.Truncated)
	assert.LessOrEqual(t, len(res.Content), 10)
}

func TestWebRead_MarkupBeforeText(t *testing.T) {
	page := "<html><head><style>" + strings.Repeat("p{margin:0}", 20) + "</style></head><body><p>" +
		strings.Repeat("plain words ", 20) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"url": srv.URL, "format": "text"})
	out, err := NewWebReadTool(20).Execute(context.Background(), inv)
	require.NoError(t, err)
	res := out.(WebReadOutput)
	assert.True(t, res.Truncated)
	assert.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content, "plain")
	assert.NotContains(t, res.Content, "margin")
}

func TestWebRead_RawBodyLimit(t *testing.T) {
	page := "<html><head><style>" + strings.Repeat("p{margin:0}", minRawBytes/10) + "</style></head><body><p>late text</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"url": srv.URL, "format": "text"})
	out, err := NewWebReadTool(100).Execute(context.Background(), inv)
	require.NoError(t, err)
	res := out.(WebReadOutput)
	assert.True(t, res.Truncated)
	assert.NotContains(t, res.Content, "late text")
}

func TestWebRead_RejectsNonHTTP(t *testing.T) {
	for _, u := range []string{"file:///etc/passwd", "ftp://example.com", "not a url"} {
		inv, _ := newTestInvocation(t, map[string]interface{}{"url": u})
		_, err := NewWebReadTool(0).Execute(context.Background(), inv)
		requireToolError(t, err, KindInvalidArguments)
	}
}

func TestWebRead_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"url": srv.URL})
	_, err := NewWebReadTool(0).Execute(context.Background(), inv)
	requireToolError(t, err, KindNotFound)
}

func TestWebSearch_ZAI(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer zai-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"search_result":[
			{"title":"Go","content":"The Go language","link":"https://go.dev","publish_date":"2024-01-01"},
			{"title":"Tour","content":"A tour","link":"https://go.dev/tour"}
		]}`))
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"query": "golang", "count": 2.0, "recency": "week"})
	out, err := NewWebSearchTool(NewZAISearch("zai-key", srv.URL)).Execute(context.Background(), inv)
	require.NoError(t, err)

	results := out.([]SearchResult)
	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{Title: "Go", URL: "https://go.dev", Snippet: "The Go language", PublishedAt: "2024-01-01"}, results[0])
	assert.Equal(t, "golang", got["search_query"])
	assert.Equal(t, "oneWeek", got["search_recency_filter"])
	assert.Equal(t, 2.0, got["count"])
}

func TestWebSearch_Google(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("key"))
		assert.Equal(t, "cx", q.Get("cx"))
		assert.Equal(t, "golang", q.Get("q"))
		assert.Equal(t, "5", q.Get("num"))
		_, _ = w.Write([]byte(`{"items":[{"title":"Go","link":"https://go.dev","snippet":"s"}]}`))
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"query": "golang"})
	out, err := NewWebSearchTool(NewGoogleSearch("k", "cx", srv.URL)).Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "s"}}, out)
}

func TestWebSearch_Unconfigured(t *testing.T) {
	inv, _ := newTestInvocation(t, map[string]interface{}{"query": "golang"})
	_, err := NewWebSearchTool(NewZAISearch("", "")).Execute(context.Background(), inv)
	requireToolError(t, err, KindPermissionDenied)

	inv.Args = map[string]interface{}{"query": "   "}
	_, err = NewWebSearchTool(NewZAISearch("k", "")).Execute(context.Background(), inv)
	requireToolError(t, err, KindInvalidArguments)
}

func TestWebSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 500), http.StatusBadGateway)
	}))
	defer srv.Close()

	inv, _ := newTestInvocation(t, map[string]interface{}{"query": "golang"})
	_, err := NewWebSearchTool(NewZAISearch("k", srv.URL)).Execute(context.Background(), inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
