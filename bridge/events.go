package bridge

import "time"

// Platform identifies one side of the bridge.
type Platform string

const (
	PlatformDiscord Platform = "discord"
	PlatformGroupMe Platform = "groupme"
)

// Counterpart returns the platform on the other side of the bridge.
func (p Platform) Counterpart() Platform {
	if p == PlatformDiscord {
		return PlatformGroupMe
	}
	return PlatformDiscord
}

// EventKind discriminates normalized inbound events. The adapters produce
// exactly one well-typed Event per platform event; none of the platform
// payload shapes leak past this boundary.
type EventKind string

const (
	EventMessage     EventKind = "message"
	EventReaction    EventKind = "reaction"
	EventPollCreated EventKind = "poll.created"
	EventPollVote    EventKind = "poll.vote"
	EventPollEnded   EventKind = "poll.ended"
)

type Author struct {
	ID        string
	Name      string
	AvatarURL string
	IsBot     bool
}

type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// ReplyRef is a native reply reference, already resolved by the adapter
// (referenced message fetched, body truncated). It takes priority over
// textual reply-pattern detection.
type ReplyRef struct {
	Author string
	Text   string
}

// ReactionInfo carries a reaction together with the reacted message's own
// author and text, resolved by the adapter so the core can fall back to an
// inline context when no MessageLink exists.
type ReactionInfo struct {
	Emoji           string
	TargetMessageID string
	TargetAuthor    string
	TargetContent   string
}

// PollEvent is the single well-typed poll payload variant. For creations it
// carries question and ordered options; for votes, the voter plus either an
// option index (Discord answer) or an option title (GroupMe webhook).
type PollEvent struct {
	NativeID    string
	Question    string
	Options     []string
	Voter       string
	OptionIndex int // -1 when only the title is known
	OptionTitle string
}

type Event struct {
	Platform    Platform
	Kind        EventKind
	MessageID   string
	ChannelID   string // Discord channel id or GroupMe group id
	Author      Author
	Content     string
	Attachments []Attachment
	Reply       *ReplyRef
	Reaction    *ReactionInfo
	Poll        *PollEvent
	Timestamp   time.Time
}

// PollTally is one option's result when reading back a finished poll.
type PollTally struct {
	Option string
	Votes  int
}
