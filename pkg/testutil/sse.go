package testutil

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// EventReader reads server-sent events from a streaming response body.
type EventReader struct {
	r *bufio.Reader
}

func NewEventReader(body io.Reader) *EventReader {
	return &EventReader{r: bufio.NewReader(body)}
}

// Next blocks until a complete named event arrives. Comment lines and
// unnamed events are skipped.
func (e *EventReader) Next(t *testing.T) (name, data string) {
	t.Helper()
	for {
		line, err := e.r.ReadString('\n')
		require.NoError(t, err, "read event stream")
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}
