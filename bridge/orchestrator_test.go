package bridge

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local/groupmebridge/config"
)

type fakeDiscord struct {
	sent    []string
	embeds  []string
	polls   []string
	sendErr error
	pollErr error
	nextID  int
}

func (f *fakeDiscord) SendMessage(text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return fmt.Sprintf("d-%d", f.nextID), nil
}

func (f *fakeDiscord) SendEmbed(title, description string) error {
	f.embeds = append(f.embeds, title+"\n"+description)
	return nil
}

func (f *fakeDiscord) CreateNativePoll(question string, options []string) (string, error) {
	if f.pollErr != nil {
		return "", f.pollErr
	}
	f.nextID++
	f.polls = append(f.polls, question)
	return fmt.Sprintf("d-poll-%d", f.nextID), nil
}

type fakeGroupMe struct {
	posted    []string
	images    []string
	polls     []string
	postErr   error
	uploadErr error
	pollErr   error
	nextID    int

	contextAuthor string
	contextText   string
	contextErr    error
}

func (f *fakeGroupMe) PostMessage(text, imageURL string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, text)
	if imageURL != "" {
		f.images = append(f.images, imageURL)
	}
	return nil
}

func (f *fakeGroupMe) UploadImage(sourceURL string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "https://i.groupme.com/uploaded.jpg", nil
}

func (f *fakeGroupMe) CreatePoll(subject string, options []string, expiresAt time.Time) (string, error) {
	if f.pollErr != nil {
		return "", f.pollErr
	}
	f.nextID++
	f.polls = append(f.polls, subject)
	return fmt.Sprintf("gm-poll-%d", f.nextID), nil
}

func (f *fakeGroupMe) PollResults(pollID string) (string, []PollTally, error) {
	return "Best pet", []PollTally{{Option: "Dog", Votes: 3}, {Option: "Cat", Votes: 1}}, nil
}

func (f *fakeGroupMe) MessageContext(messageID string) (string, string, error) {
	if f.contextErr != nil {
		return "", "", f.contextErr
	}
	return f.contextAuthor, f.contextText, nil
}

func newTestOrchestrator() (*Orchestrator, *fakeDiscord, *fakeGroupMe) {
	cfg := &config.Config{
		DiscordBotToken:    "token",
		DiscordChannelID:   "chan-1",
		GroupMeBotID:       "bot-1",
		GroupMeAccessToken: "access",
		GroupMeGroupID:     "group-1",
	}
	d := &fakeDiscord{}
	g := &fakeGroupMe{}
	return NewOrchestrator(cfg, d, g), d, g
}

func discordMessage(content string) Event {
	return Event{
		Platform:  PlatformDiscord,
		Kind:      EventMessage,
		MessageID: "d-src-1",
		ChannelID: "chan-1",
		Author:    Author{ID: "u1", Name: "alice"},
		Content:   content,
		Timestamp: time.Now(),
	}
}

func groupmeMessage(content string) Event {
	return Event{
		Platform:  PlatformGroupMe,
		Kind:      EventMessage,
		MessageID: "gm-src-1",
		ChannelID: "group-1",
		Author:    Author{ID: "u2", Name: "bob"},
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestRouteRelaysDiscordMessageToGroupMe(t *testing.T) {
	o, _, g := newTestOrchestrator()

	o.route(discordMessage("hello there"))

	require.Len(t, g.posted, 1)
	assert.Equal(t, "alice: hello there", g.posted[0])
	assert.Len(t, o.recentOutbound, 1)
}

func TestRouteRelaysGroupMeMessageToDiscord(t *testing.T) {
	o, d, _ := newTestOrchestrator()

	o.route(groupmeMessage("hi from groupme"))

	require.Len(t, d.sent, 1)
	assert.Equal(t, "**bob**: hi from groupme", d.sent[0])

	// The returned Discord id is linked both ways and the author remembered.
	gmID, ok := o.links.Lookup(PlatformDiscord, "d-1")
	require.True(t, ok)
	assert.Equal(t, "gm-src-1", gmID)
	name, ok := o.links.Author("gm-src-1")
	require.True(t, ok)
	assert.Equal(t, "bob", name)
}

func TestRouteIgnoresUnmonitoredChannels(t *testing.T) {
	o, d, g := newTestOrchestrator()

	ev := discordMessage("hello")
	ev.ChannelID = "other-channel"
	o.route(ev)

	gv := groupmeMessage("hello")
	gv.ChannelID = "other-group"
	o.route(gv)

	assert.Empty(t, d.sent)
	assert.Empty(t, g.posted)
}

func TestRouteDropsBotEchoes(t *testing.T) {
	o, d, g := newTestOrchestrator()

	ev := groupmeMessage("anything")
	ev.Author.IsBot = true
	o.route(ev)

	assert.Empty(t, d.sent)
	assert.Empty(t, g.posted)
}

func TestBotEchoCompletesMessageLink(t *testing.T) {
	o, _, g := newTestOrchestrator()

	o.route(discordMessage("link me up"))
	require.Len(t, g.posted, 1)

	echo := groupmeMessage(g.posted[0])
	echo.MessageID = "gm-echo-9"
	echo.Author.IsBot = true
	o.route(echo)

	gmID, ok := o.links.Lookup(PlatformDiscord, "d-src-1")
	require.True(t, ok)
	assert.Equal(t, "gm-echo-9", gmID)
	assert.True(t, o.recentOutbound[0].Mapped)
}

func TestBotEchoWithUnknownContentMapsNothing(t *testing.T) {
	o, _, _ := newTestOrchestrator()

	echo := groupmeMessage("never sent this")
	echo.Author.IsBot = true
	o.route(echo)

	assert.Equal(t, 0, o.links.Len())
}

func TestCommandsAreNeverRelayed(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("!test ping"))

	require.Len(t, g.posted, 1)
	assert.Equal(t, "Bot Test: ping", g.posted[0])
	require.Len(t, d.sent, 1)
	assert.Contains(t, d.sent[0], "Test message sent")
	assert.Equal(t, 0, o.recent.Len(), "commands do not enter the recent window")
}

func TestCommandStatusSendsEmbed(t *testing.T) {
	o, d, _ := newTestOrchestrator()

	o.route(discordMessage("!status"))

	require.Len(t, d.embeds, 1)
	assert.Contains(t, d.embeds[0], "Bridge Status")
	assert.Contains(t, d.embeds[0], "Poll support: ✅")
}

func TestCommandReactRejectsUnsupportedEmoji(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("!react 🦖"))

	assert.Empty(t, g.posted)
	require.Len(t, d.sent, 1)
	assert.Contains(t, d.sent[0], "Unsupported emoji")
}

func TestPollTextDivertsFromChatRelay(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("📊 Poll: Best pet? 1️⃣ Dog 2️⃣ Cat"))

	require.Len(t, g.polls, 1)
	assert.Equal(t, "Best pet", g.polls[0])
	assert.Empty(t, g.posted, "poll text is never relayed as chat")
	assert.Equal(t, 1, o.polls.ActiveCount())

	require.NotEmpty(t, d.sent)
	assert.Contains(t, d.sent[0], "Poll created in GroupMe")
}

func TestUnparseablePollReportsError(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("Poll: just a question with no options"))

	assert.Empty(t, g.polls)
	require.Len(t, d.sent, 1)
	assert.Contains(t, d.sent[0], "at least 2 options")
}

func TestGroupMePollCreationFailureLeavesNoState(t *testing.T) {
	o, d, g := newTestOrchestrator()
	g.pollErr = errors.New("groupme says no")

	o.route(discordMessage("Poll: Best pet? 1️⃣ Dog 2️⃣ Cat"))

	assert.Equal(t, 0, o.polls.ActiveCount())
	assert.Equal(t, 0, o.links.Len())
	require.NotEmpty(t, d.sent)
	assert.Contains(t, d.sent[0], "Failed to create GroupMe poll")
}

func TestGroupMePollCreatesDiscordPoll(t *testing.T) {
	o, d, _ := newTestOrchestrator()

	ev := groupmeMessage("")
	ev.Kind = EventPollCreated
	ev.Poll = &PollEvent{NativeID: "gm-poll-7", Question: "Lunch?", Options: []string{"Tacos", "Pizza"}}
	o.route(ev)

	require.Len(t, d.polls, 1)
	assert.Equal(t, "Lunch?", d.polls[0])
	assert.Equal(t, 1, o.polls.ActiveCount())

	rec := o.polls.FindByNativeID(PlatformGroupMe, "gm-poll-7")
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.NativeIDs[PlatformDiscord])
}

func TestPollCreationLoopPrevention(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("Poll: Best pet? 1️⃣ Dog 2️⃣ Cat"))
	require.Len(t, g.polls, 1)

	rec := o.polls.FindByNativeID(PlatformDiscord, "d-src-1")
	require.NotNil(t, rec)
	gmID := rec.NativeIDs[PlatformGroupMe]
	require.NotEmpty(t, gmID)

	// The GroupMe side reports the poll we just created there.
	ev := groupmeMessage("")
	ev.Kind = EventPollCreated
	ev.Poll = &PollEvent{NativeID: gmID, Question: "Best pet", Options: []string{"Dog", "Cat"}}
	o.route(ev)

	assert.Empty(t, d.polls, "bridged poll must not bounce back as a new Discord poll")
	assert.Equal(t, 1, o.polls.ActiveCount())
}

func TestPollVoteForwardedOnce(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("Poll: Best pet? 1️⃣ Dog 2️⃣ Cat"))
	require.Len(t, g.polls, 1)
	confirmations := len(d.sent)

	rec := o.polls.FindByNativeID(PlatformDiscord, "d-src-1")
	require.NotNil(t, rec)

	vote := groupmeMessage("")
	vote.Kind = EventPollVote
	vote.Poll = &PollEvent{NativeID: rec.NativeIDs[PlatformGroupMe], Voter: "carol", OptionIndex: -1, OptionTitle: "Dog"}
	o.route(vote)
	o.route(vote)

	require.Len(t, d.sent, confirmations+1)
	assert.Contains(t, d.sent[confirmations], "carol")
	assert.Contains(t, d.sent[confirmations], "Dog")
}

func TestPollEndedAnnouncesResultsAndEvicts(t *testing.T) {
	o, d, g := newTestOrchestrator()

	o.route(discordMessage("Poll: Best pet? 1️⃣ Dog 2️⃣ Cat"))
	require.Len(t, g.polls, 1)
	rec := o.polls.FindByNativeID(PlatformDiscord, "d-src-1")
	require.NotNil(t, rec)

	ended := groupmeMessage("")
	ended.Kind = EventPollEnded
	ended.Poll = &PollEvent{NativeID: rec.NativeIDs[PlatformGroupMe]}
	o.route(ended)

	last := d.sent[len(d.sent)-1]
	assert.Contains(t, last, "Poll ended")
	assert.Contains(t, last, "Dog")
	assert.Equal(t, 0, o.polls.ActiveCount())
}

func TestReactionRelayedWithLinkedContext(t *testing.T) {
	o, _, g := newTestOrchestrator()
	g.contextAuthor = "bob"
	g.contextText = "the original message"

	// Establish the MessageLink via a GroupMe relay first.
	o.route(groupmeMessage("the original message"))

	react := Event{
		Platform:  PlatformDiscord,
		Kind:      EventReaction,
		ChannelID: "chan-1",
		Author:    Author{Name: "alice"},
		Reaction:  &ReactionInfo{Emoji: "🔥", TargetMessageID: "d-1"},
	}
	o.route(react)

	require.Len(t, g.posted, 1)
	assert.Equal(t, "alice reacted 🔥 to 'the original message' by bob", g.posted[0])
}

func TestReactionOnUnlinkedMessageUsesInlineContext(t *testing.T) {
	o, _, g := newTestOrchestrator()

	react := Event{
		Platform:  PlatformDiscord,
		Kind:      EventReaction,
		ChannelID: "chan-1",
		Author:    Author{Name: "alice"},
		Reaction: &ReactionInfo{
			Emoji:           "👍",
			TargetMessageID: "unmapped",
			TargetAuthor:    "carol",
			TargetContent:   "local discord chatter",
		},
	}
	o.route(react)

	require.Len(t, g.posted, 1)
	assert.Equal(t, "alice reacted 👍 to 'local discord chatter' by carol", g.posted[0])
}

func TestUnsupportedReactionDropped(t *testing.T) {
	o, d, g := newTestOrchestrator()

	react := Event{
		Platform:  PlatformDiscord,
		Kind:      EventReaction,
		ChannelID: "chan-1",
		Author:    Author{Name: "alice"},
		Reaction:  &ReactionInfo{Emoji: "🦖", TargetMessageID: "whatever"},
	}
	o.route(react)

	assert.Empty(t, g.posted)
	assert.Empty(t, d.sent)
}

func TestGroupMeReactionRelayedToDiscord(t *testing.T) {
	o, d, _ := newTestOrchestrator()

	react := Event{
		Platform:  PlatformGroupMe,
		Kind:      EventReaction,
		ChannelID: "group-1",
		Author:    Author{Name: "bob"},
		Reaction:  &ReactionInfo{Emoji: "❤️", TargetMessageID: "gm-x", TargetAuthor: "alice"},
	}
	o.route(react)

	require.Len(t, d.sent, 1)
	assert.Equal(t, "😀 bob reacted ❤️ to message by alice", d.sent[0])
}

func TestReplyPrefixAppliedOnRelay(t *testing.T) {
	o, _, g := newTestOrchestrator()

	ev := discordMessage("sounds right to me")
	ev.Reply = &ReplyRef{Author: "bob", Text: "is this the plan?"}
	o.route(ev)

	require.Len(t, g.posted, 1)
	assert.Equal(t, "↪️ Replying to bob: \"is this the plan?\"\n\nalice: sounds right to me", g.posted[0])
}

func TestTextualReplyDetectedOnRelay(t *testing.T) {
	o, _, g := newTestOrchestrator()

	o.route(discordMessage("@bob great point"))

	require.Len(t, g.posted, 1)
	assert.Equal(t, "↪️ Replying to bob:\n\nalice: great point", g.posted[0])
}

func TestImageAttachmentUploadedAndForwarded(t *testing.T) {
	o, _, g := newTestOrchestrator()

	ev := discordMessage("")
	ev.Attachments = []Attachment{{URL: "https://cdn.discordapp.com/x.png", Filename: "x.png", ContentType: "image/png"}}
	o.route(ev)

	require.Len(t, g.posted, 1)
	assert.Equal(t, "alice sent an image", g.posted[0])
	require.Len(t, g.images, 1)
	assert.Equal(t, "https://i.groupme.com/uploaded.jpg", g.images[0])
}

func TestImageUploadFailureNoted(t *testing.T) {
	o, _, g := newTestOrchestrator()
	g.uploadErr = errors.New("upload refused")

	ev := discordMessage("look at this")
	ev.Attachments = []Attachment{{URL: "https://cdn.discordapp.com/x.png", Filename: "x.png", ContentType: "image/png"}}
	o.route(ev)

	require.Len(t, g.posted, 1)
	assert.Equal(t, "alice: look at this [Image upload failed]", g.posted[0])
	assert.Empty(t, g.images)
}

func TestNonImageAttachmentNoted(t *testing.T) {
	o, _, g := newTestOrchestrator()

	ev := discordMessage("here you go")
	ev.Attachments = []Attachment{{URL: "https://cdn.discordapp.com/doc.pdf", Filename: "doc.pdf", ContentType: "application/pdf"}}
	o.route(ev)

	require.Len(t, g.posted, 1)
	assert.Equal(t, "alice: here you go [Attached: doc.pdf]", g.posted[0])
}

func TestEmptyMessageNotRelayed(t *testing.T) {
	o, _, g := newTestOrchestrator()

	o.route(discordMessage(""))

	assert.Empty(t, g.posted)
}

func TestHandleRecoversFromPanic(t *testing.T) {
	o, _, _ := newTestOrchestrator()

	// A vote event with a nil Poll payload would panic in route's log line.
	assert.NotPanics(t, func() {
		o.handle(Event{Platform: PlatformGroupMe, Kind: EventPollVote, ChannelID: "group-1"})
	})
}

func TestSnapshot(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	o.SetReady(true)
	o.polls.Add(PlatformDiscord, "p", "Q", []string{"a", "b"}, "alice")

	snap := o.Snapshot()
	assert.True(t, snap.BotReady)
	assert.Equal(t, 1, snap.ActivePolls)
	assert.True(t, snap.Features.Polls)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	o, _, _ := newTestOrchestrator()

	// Loop not running: fill the buffer, then one more must not block.
	for i := 0; i < EventQueueSize; i++ {
		o.Publish(Event{Kind: EventMessage})
	}
	done := make(chan struct{})
	go func() {
		o.Publish(Event{Kind: EventMessage})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}
