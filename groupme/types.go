package groupme

import "encoding/json"

// CallbackMessage is the JSON body GroupMe delivers for each group message,
// both to bot callback URLs and over the push channel. Poll lifecycle
// callbacks arrive as messages tagged with an Event.
type CallbackMessage struct {
	ID          string       `json:"id"`
	SourceGUID  string       `json:"source_guid"`
	CreatedAt   int64        `json:"created_at"`
	UserID      string       `json:"user_id"`
	GroupID     string       `json:"group_id"`
	Name        string       `json:"name"`
	AvatarURL   string       `json:"avatar_url"`
	Text        string       `json:"text"`
	System      bool         `json:"system"`
	SenderType  string       `json:"sender_type"` // "user", "bot" or "system"
	Attachments []Attachment `json:"attachments"`
	Event       *Event       `json:"event,omitempty"`
}

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Event tags a callback with a lifecycle discriminator; poll callbacks use
// "poll.created", "poll.vote" and "poll.ended".
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	EventPollCreated = "poll.created"
	EventPollVote    = "poll.vote"
	EventPollEnded   = "poll.ended"
)

// PollEventData is the payload of a poll.* event.
type PollEventData struct {
	Poll Poll `json:"poll"`
	User struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"user"`
	Option *PollOption `json:"option,omitempty"`
}

type Poll struct {
	ID         string       `json:"id"`
	Subject    string       `json:"subject"`
	OwnerID    string       `json:"owner_id"`
	Expiration int64        `json:"expiration"`
	Status     string       `json:"status"`
	Options    []PollOption `json:"options"`
}

type PollOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Votes int    `json:"votes"`
}
