package dashboard

import (
	"strings"
	"sync"

	"github.com/lowaak/cardio-tracker/internal/events"
)

const maxLogLines = 1000

// LogBuffer is an io.Writer for the application logger that keeps the most
// recent lines for the log panel
type LogBuffer struct {
	mu       sync.RWMutex
	lines    []string
	partial  string
	logEvent *events.ChannelEvent[string]
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{
		lines:    make([]string, 0, maxLogLines),
		logEvent: events.NewChannelEvent[string](false),
	}
}

// Write stores every complete line of p. A trailing partial line is kept
// until its newline arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	text := b.partial + string(p)
	parts := strings.Split(text, "\n")
	b.partial = parts[len(parts)-1]
	complete := parts[:len(parts)-1]
	b.lines = append(b.lines, complete...)
	if len(b.lines) > maxLogLines {
		b.lines = b.lines[len(b.lines)-maxLogLines:]
	}
	b.mu.Unlock()

	for _, line := range complete {
		b.logEvent.Notify(line)
	}
	return len(p), nil
}

// ListenToLog registers a channel that receives every new line
func (b *LogBuffer) ListenToLog(ch chan<- string) func() {
	return b.logEvent.Listen(ch)
}

// Tail returns the last n lines
func (b *LogBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n > len(b.lines) {
		n = len(b.lines)
	}
	result := make([]string, n)
	copy(result, b.lines[len(b.lines)-n:])
	return result
}
