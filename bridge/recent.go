package bridge

import "time"

const RecentWindowSize = 20

type RecentMessage struct {
	Author    string
	Content   string
	Timestamp time.Time
	MessageID string
}

// RecentWindow is the fixed-capacity ring of recent messages backing the
// !recent command. Not consulted by any relay logic.
type RecentWindow struct {
	entries []RecentMessage
	cap     int
}

func NewRecentWindow() *RecentWindow {
	return &RecentWindow{
		entries: make([]RecentMessage, 0, RecentWindowSize),
		cap:     RecentWindowSize,
	}
}

func (w *RecentWindow) Add(msg RecentMessage) {
	w.entries = append(w.entries, msg)
	if len(w.entries) > w.cap {
		w.entries = w.entries[1:]
	}
}

// Last returns up to n newest entries, oldest first.
func (w *RecentWindow) Last(n int) []RecentMessage {
	if n > len(w.entries) {
		n = len(w.entries)
	}
	out := make([]RecentMessage, n)
	copy(out, w.entries[len(w.entries)-n:])
	return out
}

func (w *RecentWindow) Len() int {
	return len(w.entries)
}
