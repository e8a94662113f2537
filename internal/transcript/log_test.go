package transcript

import (
	"testing"
	"time"

	"agentboard/internal/domain"
)

func msgAt(from string, to string, content string, offsetMS int64) domain.AgentMessage {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.AgentMessage{
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: base.Add(time.Duration(offsetMS) * time.Millisecond),
	}
}

func TestGroupingThreshold(t *testing.T) {
	msgs := []domain.AgentMessage{
		msgAt("coordinator", "coder", "a", 0),
		msgAt("coder", "coordinator", "b", 1000),
		msgAt("coordinator", "tester", "c", 7000),
		msgAt("tester", "coordinator", "d", 7500),
	}

	groups := Group(msgs, 5*time.Second)
	if len(groups) != 2 {
		t.Fatalf("groups=%d want 2", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[1]) != 2 {
		t.Fatalf("group sizes=%d,%d want 2,2", len(groups[0]), len(groups[1]))
	}
	if groups[0][0].Content != "a" || groups[0][1].Content != "b" {
		t.Fatalf("first group=%v", groups[0])
	}
	if groups[1][0].Content != "c" || groups[1][1].Content != "d" {
		t.Fatalf("second group=%v", groups[1])
	}
}

func TestGroupingGapExactlyAtThresholdStaysTogether(t *testing.T) {
	msgs := []domain.AgentMessage{
		msgAt("a", "b", "first", 0),
		msgAt("a", "b", "second", 5000),
	}

	groups := Group(msgs, 5*time.Second)
	if len(groups) != 1 {
		t.Fatalf("groups=%d want 1 (gap equal to threshold)", len(groups))
	}
}

func TestGroupingIsRestartable(t *testing.T) {
	msgs := []domain.AgentMessage{
		msgAt("a", "b", "x", 0),
		msgAt("a", "b", "y", 9000),
	}

	first := Group(msgs, 5*time.Second)
	second := Group(msgs, 5*time.Second)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("groups=%d,%d want 2,2", len(first), len(second))
	}
}

func TestForConnectionSymmetric(t *testing.T) {
	msgs := []domain.AgentMessage{
		msgAt("coordinator", "coder", "1", 0),
		msgAt("coder", "coordinator", "2", 100),
		msgAt("tester", "runner", "3", 200),
		msgAt("coder", "tester", "4", 300),
	}

	ab := ForConnection("coordinator", "coder", msgs)
	ba := ForConnection("coder", "coordinator", msgs)
	if len(ab) != len(ba) {
		t.Fatalf("asymmetric filter: %d vs %d", len(ab), len(ba))
	}
	for i := range ab {
		if ab[i].Content != ba[i].Content {
			t.Fatalf("membership differs at %d: %q vs %q", i, ab[i].Content, ba[i].Content)
		}
	}
	// coder touches message 4 as well, so three entries match.
	if len(ab) != 3 {
		t.Fatalf("matches=%d want 3", len(ab))
	}
}

func TestForConnectionSortsAscendingWithStableTies(t *testing.T) {
	msgs := []domain.AgentMessage{
		msgAt("a", "b", "late", 500),
		msgAt("a", "b", "tie-first", 100),
		msgAt("b", "a", "tie-second", 100),
		msgAt("a", "b", "early", 0),
	}

	got := ForConnection("a", "b", msgs)
	want := []string{"early", "tie-first", "tie-second", "late"}
	for i, w := range want {
		if got[i].Content != w {
			t.Fatalf("order[%d]=%q want %q", i, got[i].Content, w)
		}
	}
}

func TestForBoxMatchesSenderOnly(t *testing.T) {
	msgs := []domain.AgentMessage{
		msgAt("coder", "tester", "sent", 0),
		msgAt("tester", "coder", "received", 100),
	}

	got := ForBox("coder", msgs)
	if len(got) != 1 || got[0].Content != "sent" {
		t.Fatalf("got %v want only the sent message", got)
	}
}

func TestLogAppendAssignsSeqAndTimestamp(t *testing.T) {
	log := NewLog()

	first := log.Append(domain.AgentMessage{From: "a", To: "b", Content: "x"})
	second := log.Append(domain.AgentMessage{From: "b", To: "a", Content: "y"})
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("seq=%d,%d want 1,2", first.Seq, second.Seq)
	}
	if first.Timestamp.IsZero() {
		t.Fatalf("expected arrival timestamp for zero input")
	}

	log.Clear()
	if log.Len() != 0 {
		t.Fatalf("len=%d after clear", log.Len())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		content string
		want    Class
	}{
		{"Please generate a fibonacci function", ClassCommand},
		{"create the test file", ClassCommand},
		{"run the tests now", ClassCommand},
		{"Generated code for task", ClassResponse},
		{"```python\nprint(1)\n```", ClassResponse},
		{"Workflow Complete!", ClassResponse},
		{"waiting for input", ClassInfo},
	}
	for _, tc := range cases {
		if got := Classify(tc.content); got != tc.want {
			t.Fatalf("classify(%q)=%s want %s", tc.content, got, tc.want)
		}
	}
}

func TestTrimLine(t *testing.T) {
	if got := TrimLine("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := TrimLine("0123456789", 8); got != "01234..." {
		t.Fatalf("got %q", got)
	}
	if got := TrimLine("héllo wörld émoji", 10); got != "héllo w..." {
		t.Fatalf("got %q", got)
	}
	if got := TrimLine("abcdef", 2); got != "abcdef" {
		t.Fatalf("tiny limit should pass through, got %q", got)
	}
}
