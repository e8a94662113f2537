package transcript

import (
	"sort"
	"strings"
	"sync"
	"time"

	"agentboard/internal/domain"
)

const DefaultGroupGap = 5 * time.Second

// EmptyState is shown when a popup's filter yields no messages.
const EmptyState = "No messages yet"

// Log is the append-only message store for one workflow run. Appends may
// come from the stream goroutine while the UI reads, hence the lock.
type Log struct {
	mu   sync.Mutex
	msgs []domain.AgentMessage
	seq  uint64
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(msg domain.AgentMessage) domain.AgentMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	msg.Seq = l.seq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	l.msgs = append(l.msgs, msg)
	return msg
}

func (l *Log) All() []domain.AgentMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AgentMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}

// ForConnection filters to messages touching either endpoint id, ascending
// by timestamp. Stable: equal timestamps keep insertion order. Symmetric in
// (a, b).
func ForConnection(a string, b string, msgs []domain.AgentMessage) []domain.AgentMessage {
	var out []domain.AgentMessage
	for _, m := range msgs {
		if m.From == a || m.From == b || m.To == a || m.To == b {
			out = append(out, m)
		}
	}
	sortByTime(out)
	return out
}

// ForBox filters to messages sent by the box, ascending by timestamp.
func ForBox(id string, msgs []domain.AgentMessage) []domain.AgentMessage {
	var out []domain.AgentMessage
	for _, m := range msgs {
		if m.From == id {
			out = append(out, m)
		}
	}
	sortByTime(out)
	return out
}

func sortByTime(msgs []domain.AgentMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// Group clusters consecutive messages whose timestamp gap stays within the
// threshold. A new cluster starts whenever the gap exceeds it.
func Group(msgs []domain.AgentMessage, gap time.Duration) [][]domain.AgentMessage {
	if gap <= 0 {
		gap = DefaultGroupGap
	}
	var groups [][]domain.AgentMessage
	for _, m := range msgs {
		if len(groups) == 0 {
			groups = append(groups, []domain.AgentMessage{m})
			continue
		}
		last := groups[len(groups)-1]
		prev := last[len(last)-1]
		if m.Timestamp.Sub(prev.Timestamp) > gap {
			groups = append(groups, []domain.AgentMessage{m})
			continue
		}
		groups[len(groups)-1] = append(last, m)
	}
	return groups
}

type Class string

const (
	ClassCommand  Class = "command"
	ClassResponse Class = "response"
	ClassInfo     Class = "info"
)

// Classify labels a message body as command or response by substring
// heuristics. Cosmetic only; never used for control flow.
func Classify(content string) Class {
	if strings.Contains(content, "```") || strings.Contains(content, "Generated") || strings.Contains(content, "Complete") {
		return ClassResponse
	}
	lower := strings.ToLower(content)
	if strings.Contains(lower, "generate") || strings.Contains(lower, "create") || strings.Contains(lower, "run") {
		return ClassCommand
	}
	return ClassInfo
}

func TrimLine(s string, limit int) string {
	if limit <= 3 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
