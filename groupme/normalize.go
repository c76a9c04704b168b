package groupme

import (
	"encoding/json"
	"log"
	"time"

	"local/groupmebridge/bridge"
)

// NormalizeCallback converts a GroupMe callback (webhook or push delivery)
// into a single well-typed bridge event. Both inbound paths share this so the
// core never sees platform payload shapes. Returns false for callbacks the
// bridge has no use for (system notices, unknown event types).
func NormalizeCallback(msg CallbackMessage) (bridge.Event, bool) {
	base := bridge.Event{
		Platform:  bridge.PlatformGroupMe,
		MessageID: msg.ID,
		ChannelID: msg.GroupID,
		Author: bridge.Author{
			ID:        msg.UserID,
			Name:      msg.Name,
			AvatarURL: msg.AvatarURL,
			IsBot:     msg.SenderType == "bot",
		},
		Content:   msg.Text,
		Timestamp: time.Unix(msg.CreatedAt, 0),
	}

	if msg.Event != nil {
		return normalizePollEvent(msg, base)
	}

	if msg.System {
		return bridge.Event{}, false
	}

	base.Kind = bridge.EventMessage
	for _, att := range msg.Attachments {
		if att.Type == "image" && att.URL != "" {
			base.Attachments = append(base.Attachments, bridge.Attachment{
				URL:         att.URL,
				ContentType: "image/jpeg",
			})
		}
	}
	return base, true
}

func normalizePollEvent(msg CallbackMessage, base bridge.Event) (bridge.Event, bool) {
	var data PollEventData
	if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
		log.Printf("⚠️ Malformed GroupMe poll event payload: %v", err)
		return bridge.Event{}, false
	}

	poll := &bridge.PollEvent{
		NativeID:    data.Poll.ID,
		Question:    data.Poll.Subject,
		OptionIndex: -1,
	}
	for _, opt := range data.Poll.Options {
		poll.Options = append(poll.Options, opt.Title)
	}
	if data.User.Nickname != "" {
		base.Author.Name = data.User.Nickname
		base.Author.ID = data.User.ID
	}

	switch msg.Event.Type {
	case EventPollCreated:
		base.Kind = bridge.EventPollCreated
	case EventPollVote:
		base.Kind = bridge.EventPollVote
		poll.Voter = data.User.Nickname
		if data.Option != nil {
			poll.OptionTitle = data.Option.Title
		}
	case EventPollEnded:
		base.Kind = bridge.EventPollEnded
	default:
		return bridge.Event{}, false
	}

	base.Poll = poll
	return base, true
}
