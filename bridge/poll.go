package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type PollStatus string

const (
	PollActive PollStatus = "active"
	PollEnded  PollStatus = "ended"
)

// PollRecord tracks one bridged poll. Native ids are partial: the source side
// is known at detection, the counterpart only after successful creation.
// Option order is significant: votes reference options by index.
type PollRecord struct {
	ID        string
	Source    Platform
	NativeIDs map[Platform]string
	Question  string
	Options   []string
	Author    string
	CreatedAt time.Time
	Status    PollStatus
}

// VoteRecord exists once per (poll, voter) and guarantees at-most-one
// forwarded notification per voter per poll. Voter identity is the display
// name, inherited behavior; see DESIGN.md.
type VoteRecord struct {
	PollID      string
	Voter       string
	OptionIndex int
	Timestamp   time.Time
}

// PollStore owns all poll and vote state. Mutations happen on the single
// event-loop goroutine; the mutex exists only so the health endpoint can read
// the active count.
type PollStore struct {
	mu    sync.Mutex
	polls map[string]*PollRecord
	votes map[string]map[string]VoteRecord
	now   func() time.Time
}

func NewPollStore() *PollStore {
	return &PollStore{
		polls: make(map[string]*PollRecord),
		votes: make(map[string]map[string]VoteRecord),
		now:   time.Now,
	}
}

func (s *PollStore) Add(source Platform, nativeID, question string, options []string, author string) *PollRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &PollRecord{
		ID:        uuid.NewString(),
		Source:    source,
		NativeIDs: map[Platform]string{source: nativeID},
		Question:  question,
		Options:   append([]string(nil), options...),
		Author:    author,
		CreatedAt: s.now(),
		Status:    PollActive,
	}
	s.polls[rec.ID] = rec
	s.votes[rec.ID] = make(map[string]VoteRecord)
	return rec
}

func (s *PollStore) SetNativeID(pollID string, platform Platform, nativeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.polls[pollID]; ok {
		rec.NativeIDs[platform] = nativeID
	}
}

// FindByNativeID scans tracked polls for one whose recorded id on the given
// platform matches. The active set is small (bounded by the 24h lifetime) so
// a linear scan is fine.
func (s *PollStore) FindByNativeID(platform Platform, nativeID string) *PollRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.polls {
		if rec.NativeIDs[platform] == nativeID {
			return rec
		}
	}
	return nil
}

// RecordVote creates the VoteRecord for (poll, voter). Returns false if the
// voter already has one; the caller must then suppress the notification.
func (s *PollStore) RecordVote(pollID, voter string, optionIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, ok := s.votes[pollID]
	if !ok {
		return false
	}
	if _, dup := votes[voter]; dup {
		return false
	}
	votes[voter] = VoteRecord{
		PollID:      pollID,
		Voter:       voter,
		OptionIndex: optionIndex,
		Timestamp:   s.now(),
	}
	return true
}

// End evicts a poll and its votes immediately, on an explicit poll-ended
// event from the native platform.
func (s *PollStore) End(pollID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.polls, pollID)
	delete(s.votes, pollID)
}

// EvictExpired removes polls older than PollLifetime together with their
// votes, returning how many were dropped.
func (s *PollStore) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.polls {
		if now.Sub(rec.CreatedAt) >= PollLifetime {
			delete(s.polls, id)
			delete(s.votes, id)
			removed++
		}
	}
	return removed
}

func (s *PollStore) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.polls)
}
