package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// SplitThinking separates inline <think>...</think> sections from content
func SplitThinking(content string) (text, thinking string) {
	if !strings.Contains(content, thinkOpen) {
		return content, ""
	}
	var f ThinkFilter
	t1, th1 := f.Feed(content)
	t2, th2 := f.Flush()
	return strings.TrimSpace(t1 + t2), strings.TrimSpace(th1 + th2)
}

// ThinkFilter splits streamed content into text and thinking. Tags split
// across chunk boundaries are held back until they can be decided.
type ThinkFilter struct {
	inThink bool
	pending string
}

// Feed consumes the next chunk
func (f *ThinkFilter) Feed(chunk string) (text, thinking string) {
	buf := f.pending + chunk
	f.pending = ""

	var textOut, thinkOut strings.Builder
	emit := func(s string) {
		if f.inThink {
			thinkOut.WriteString(s)
		} else {
			textOut.WriteString(s)
		}
	}

	for buf != "" {
		tag := thinkOpen
		if f.inThink {
			tag = thinkClose
		}
		if idx := strings.Index(buf, tag); idx >= 0 {
			emit(buf[:idx])
			buf = buf[idx+len(tag):]
			f.inThink = !f.inThink
			continue
		}
		keep := partialSuffix(buf, tag)
		emit(buf[:len(buf)-keep])
		f.pending = buf[len(buf)-keep:]
		break
	}

	return textOut.String(), thinkOut.String()
}

// Flush returns whatever is still held back
func (f *ThinkFilter) Flush() (text, thinking string) {
	rest := f.pending
	f.pending = ""
	if f.inThink {
		return "", rest
	}
	return rest, ""
}

// partialSuffix returns the length of the longest proper prefix of tag
// that buf ends with.
func partialSuffix(buf, tag string) int {
	max := len(tag) - 1
	if len(buf) < max {
		max = len(buf)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(buf, tag[:k]) {
			return k
		}
	}
	return 0
}
