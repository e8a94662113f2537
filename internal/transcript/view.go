package transcript

import (
	"time"

	"agentboard/internal/domain"
)

// PopupView is the render-ready transcript for a selected connection or box.
type PopupView struct {
	Title  string
	Groups [][]Entry
}

type Entry struct {
	From      string
	To        string
	Class     Class
	Body      string
	Timestamp time.Time
}

func (v PopupView) Empty() bool {
	return len(v.Groups) == 0
}

// ConnectionView builds the popup content for a connection between two
// boxes, grouped into time clusters with bodies truncated for display.
func ConnectionView(from domain.AgentBox, to domain.AgentBox, msgs []domain.AgentMessage, gap time.Duration, truncate int) PopupView {
	filtered := ForConnection(from.ID, to.ID, msgs)
	return PopupView{
		Title:  BoxLabel(from) + " -> " + BoxLabel(to),
		Groups: buildGroups(filtered, gap, truncate),
	}
}

// BoxView builds the popup content for a single box: the messages it sent.
func BoxView(box domain.AgentBox, msgs []domain.AgentMessage, gap time.Duration, truncate int) PopupView {
	filtered := ForBox(box.ID, msgs)
	return PopupView{
		Title:  BoxLabel(box),
		Groups: buildGroups(filtered, gap, truncate),
	}
}

func buildGroups(msgs []domain.AgentMessage, gap time.Duration, truncate int) [][]Entry {
	grouped := Group(msgs, gap)
	out := make([][]Entry, 0, len(grouped))
	for _, cluster := range grouped {
		entries := make([]Entry, 0, len(cluster))
		for _, m := range cluster {
			entries = append(entries, Entry{
				From:      m.From,
				To:        m.To,
				Class:     Classify(m.Content),
				Body:      TrimLine(m.Content, truncate),
				Timestamp: m.Timestamp,
			})
		}
		out = append(out, entries)
	}
	return out
}

// BoxLabel picks the display name for a box: role, then agent type, then id.
func BoxLabel(box domain.AgentBox) string {
	if box.Role != "" {
		return box.Role
	}
	if box.AgentType != "" {
		return string(box.AgentType)
	}
	if len(box.ID) > 8 {
		return box.ID[:8]
	}
	return box.ID
}
