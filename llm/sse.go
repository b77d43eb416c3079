package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrStopStream can be returned from an SSE handler to stop reading early
var ErrStopStream = errors.New("stop stream")

// ReadSSE reads server-sent events from r and calls fn for each complete
// event with its event name (may be empty) and joined data lines.
func ReadSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data []string

	dispatch := func() error {
		if len(data) == 0 {
			event = ""
			return nil
		}
		err := fn(event, strings.Join(data, "\n"))
		event = ""
		data = data[:0]
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if err := dispatch(); err != nil {
				if errors.Is(err, ErrStopStream) {
					return nil
				}
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := dispatch(); err != nil && !errors.Is(err, ErrStopStream) {
		return err
	}
	return nil
}
