package bridge

import (
	"fmt"
	"log"
)

// VoteRelay forwards reaction/vote events that target a tracked poll to the
// counterpart platform, at most once per (poll, voter) pair.
type VoteRelay struct {
	store  *PollStore
	notify func(target Platform, text string) error
}

func NewVoteRelay(store *PollStore, notify func(Platform, string) error) *VoteRelay {
	return &VoteRelay{store: store, notify: notify}
}

// OnReactionOrVote returns true when the event targeted a tracked poll and
// was consumed (including the duplicate-vote no-op). False means the caller
// should fall through to generic reaction forwarding.
func (r *VoteRelay) OnReactionOrVote(ev Event) bool {
	var rec *PollRecord
	var voter string
	index := -1

	switch ev.Kind {
	case EventReaction:
		if ev.Reaction == nil {
			return false
		}
		rec = r.store.FindByNativeID(ev.Platform, ev.Reaction.TargetMessageID)
		if rec == nil {
			return false
		}
		index = OptionIndexForEmoji(ev.Reaction.Emoji)
		if index < 0 {
			// Reaction on a poll message but not an option keycap; let the
			// generic reaction path have it.
			return false
		}
		voter = ev.Author.Name
	case EventPollVote:
		if ev.Poll == nil {
			return false
		}
		rec = r.store.FindByNativeID(ev.Platform, ev.Poll.NativeID)
		if rec == nil {
			return false
		}
		index = ev.Poll.OptionIndex
		if index < 0 && ev.Poll.OptionTitle != "" {
			index = optionIndexByTitle(rec.Options, ev.Poll.OptionTitle)
		}
		voter = ev.Poll.Voter
	default:
		return false
	}

	if index < 0 || index >= len(rec.Options) {
		log.Printf("⚠️ Vote on poll %s with unresolvable option (voter=%s)", rec.ID, voter)
		return true
	}

	// Vote identity key: (poll, voter). A second delivery is an idempotent
	// no-op; this is the loop-prevention rule.
	if !r.store.RecordVote(rec.ID, voter, index) {
		return true
	}

	text := fmt.Sprintf("🗳️ %s voted for \"%s\" in poll: %s", voter, rec.Options[index], rec.Question)
	if err := r.notify(ev.Platform.Counterpart(), text); err != nil {
		// At-most-once, best effort: the VoteRecord stays, no retry.
		log.Printf("❌ Failed to forward vote notification: %v", err)
	}
	return true
}

func optionIndexByTitle(options []string, title string) int {
	for i, opt := range options {
		if opt == title {
			return i
		}
	}
	return -1
}
