package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nachoal/mini-agent-go/tools/base"
)

// DefaultWebReadMaxBytes caps the extracted text returned by web.read
const DefaultWebReadMaxBytes = 1 << 20

// minRawBytes is the least raw body web.read will download, however small
// the text cap. Markup and inline styles often come before any text.
const minRawBytes = 4 << 20

// WebReadParams are the arguments of web.read
type WebReadParams struct {
	URL    string `json:"url" description:"http or https URL to fetch"`
	Format string `json:"format,omitempty" schema:"enum:markdown|text,default:markdown" description:"Output format"`
}

// WebReadOutput is the output of web.read
type WebReadOutput struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	ContentType string `json:"content_type"`
	Format      string `json:"format"`
	Content     string `json:"content"`
	Truncated   bool   `json:"truncated"`
}

// WebReadTool fetches a page and extracts its text
type WebReadTool struct {
	base.BaseTool
	client   *http.Client
	maxBytes int
}

// Parameters returns the parameters struct
func (t *WebReadTool) Parameters() interface{} {
	return &WebReadParams{}
}

// Execute fetches the URL and returns markdown or plain text
func (t *WebReadTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args WebReadParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	if args.Format == "" {
		args.Format = "markdown"
	}

	u, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, NewToolError(KindInvalidArguments, "url must be an absolute http or https URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "mini-agent-go/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	inv.Report("fetching %s", u.String())
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, NewToolError(KindNotFound, fmt.Sprintf("%s returned status %d", u.String(), resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s returned status %d", u.Host, resp.StatusCode)
	}

	// Raw markup is much larger than the text it carries
	rawLimit := max(int64(t.maxBytes)*8, minRawBytes)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, rawLimit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	rawTruncated := int64(len(raw)) > rawLimit
	if rawTruncated {
		raw = raw[:rawLimit]
		// drop a rune split by the cut
		for i := 0; i < utf8.UTFMax-1 && len(raw) > 0; i++ {
			if r, size := utf8.DecodeLastRune(raw); r != utf8.RuneError || size != 1 {
				break
			}
			raw = raw[:len(raw)-1]
		}
	}

	contentType := resp.Header.Get("Content-Type")
	out := WebReadOutput{URL: resp.Request.URL.String(), ContentType: contentType, Format: args.Format}

	if isHTML(contentType, raw) {
		doc, err := html.Parse(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		out.Title = documentTitle(doc)
		if args.Format == "text" {
			out.Content = htmlToText(string(raw))
		} else {
			out.Content = htmlToMarkdown(doc, resp.Request.URL)
		}
	} else {
		if !utf8.Valid(raw) {
			return nil, NewToolError(KindInvalidArguments, fmt.Sprintf("unsupported content type %q", contentType))
		}
		out.Content = string(raw)
	}

	out.Content, out.Truncated = truncateUTF8(out.Content, t.maxBytes)
	out.Truncated = out.Truncated || rawTruncated
	return out, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		return strings.Contains(contentType, "html")
	}
	return strings.Contains(http.DetectContentType(body), "html")
}

func truncateUTF8(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s, true
}

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// htmlToText strips all markup with bluemonday's strict policy
func htmlToText(markup string) string {
	stripped := bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true).Sanitize(markup)
	text := html.UnescapeString(stripped)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func documentTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return strings.TrimSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := documentTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// markdownWriter renders a parsed document as markdown
type markdownWriter struct {
	b     strings.Builder
	base  *url.URL
	pre   int
	lists []int
}

func htmlToMarkdown(doc *html.Node, base *url.URL) string {
	w := &markdownWriter{base: base}
	body := findElement(doc, atom.Body)
	if body == nil {
		body = doc
	}
	w.children(body)
	return strings.TrimSpace(blankLines.ReplaceAllString(w.b.String(), "\n\n"))
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func (w *markdownWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

func (w *markdownWriter) block() {
	s := w.b.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		w.b.WriteString("\n")
		return
	}
	w.b.WriteString("\n\n")
}

func (w *markdownWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if w.pre > 0 {
			w.b.WriteString(n.Data)
			return
		}
		text := spaceRuns.ReplaceAllString(strings.ReplaceAll(n.Data, "\n", " "), " ")
		if strings.TrimSpace(text) == "" {
			if s := w.b.String(); s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
				w.b.WriteString(" ")
			}
			return
		}
		w.b.WriteString(text)
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template, atom.Svg, atom.Iframe:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.block()
		w.b.WriteString(strings.Repeat("#", int(n.Data[1]-'0')) + " ")
		w.b.WriteString(strings.TrimSpace(textContent(n)))
		w.block()
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer, atom.Table:
		w.block()
		w.children(n)
		w.block()
	case atom.Tr:
		w.children(n)
		w.b.WriteString("\n")
	case atom.Td, atom.Th:
		w.b.WriteString("| ")
		w.children(n)
		w.b.WriteString(" ")
	case atom.Br:
		w.b.WriteString("\n")
	case atom.Hr:
		w.block()
		w.b.WriteString("---")
		w.block()
	case atom.Pre:
		w.block()
		w.b.WriteString("```\n")
		w.pre++
		w.children(n)
		w.pre--
		if !strings.HasSuffix(w.b.String(), "\n") {
			w.b.WriteString("\n")
		}
		w.b.WriteString("```")
		w.block()
	case atom.Code:
		if w.pre > 0 {
			w.children(n)
			return
		}
		w.b.WriteString("`" + textContent(n) + "`")
	case atom.Strong, atom.B:
		w.b.WriteString("**")
		w.children(n)
		w.b.WriteString("**")
	case atom.Em, atom.I:
		w.b.WriteString("_")
		w.children(n)
		w.b.WriteString("_")
	case atom.Blockquote:
		w.block()
		w.b.WriteString("> ")
		w.b.WriteString(strings.TrimSpace(spaceRuns.ReplaceAllString(textContent(n), " ")))
		w.block()
	case atom.Ul, atom.Ol:
		w.block()
		counter := 0
		if n.DataAtom == atom.Ul {
			counter = -1
		}
		w.lists = append(w.lists, counter)
		w.children(n)
		w.lists = w.lists[:len(w.lists)-1]
		w.block()
	case atom.Li:
		if s := w.b.String(); s != "" && !strings.HasSuffix(s, "\n") {
			w.b.WriteString("\n")
		}
		depth := len(w.lists)
		if depth > 0 {
			w.b.WriteString(strings.Repeat("  ", depth-1))
			if w.lists[depth-1] >= 0 {
				w.lists[depth-1]++
				fmt.Fprintf(&w.b, "%d. ", w.lists[depth-1])
			} else {
				w.b.WriteString("- ")
			}
		} else {
			w.b.WriteString("- ")
		}
		w.children(n)
	case atom.A:
		text := strings.TrimSpace(spaceRuns.ReplaceAllString(textContent(n), " "))
		href := w.resolve(attr(n, "href"))
		if href == "" || text == "" || strings.HasPrefix(href, "javascript:") {
			w.b.WriteString(text)
			return
		}
		fmt.Fprintf(&w.b, "[%s](%s)", text, href)
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			fmt.Fprintf(&w.b, "![%s](%s)", alt, w.resolve(attr(n, "src")))
		}
	default:
		w.children(n)
	}
}

func (w *markdownWriter) resolve(ref string) string {
	if ref == "" || w.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return w.base.ResolveReference(u).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func newWebClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
}
