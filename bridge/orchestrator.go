package bridge

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"local/groupmebridge/config"
	"local/groupmebridge/utils"
)

const (
	EventQueueSize         = 100
	CommandPrefix          = "!"
	OutboundCacheSize      = 250
	OutboundMatchWindow    = 60 * time.Second
	MappingCleanupInterval = 5 * time.Minute
	reactionContextMax     = 50
)

// Reactions the bridge forwards, inherited set.
var supportedReactions = map[string]bool{
	"❤️": true, "👍": true, "👎": true, "😂": true, "😮": true, "😢": true, "😡": true,
	"✅": true, "❌": true, "🔥": true, "💯": true, "🎉": true, "👏": true, "💪": true,
	"🤔": true, "😍": true, "🙄": true, "😴": true, "🤷": true, "🤦": true, "💀": true,
	"🪩": true,
}

// DiscordPort is the outbound surface into the monitored Discord channel.
type DiscordPort interface {
	SendMessage(text string) (messageID string, err error)
	SendEmbed(title, description string) error
	CreateNativePoll(question string, options []string) (messageID string, err error)
}

// GroupMePort is the outbound surface into the monitored GroupMe group.
type GroupMePort interface {
	PostMessage(text, imageURL string) error
	UploadImage(sourceURL string) (string, error)
	CreatePoll(subject string, options []string, expiresAt time.Time) (pollID string, err error)
	PollResults(pollID string) (question string, tallies []PollTally, err error)
	MessageContext(messageID string) (author, text string, err error)
}

// Status is the aggregate view the health endpoint reads.
type Status struct {
	BotReady    bool
	Uptime      time.Duration
	Features    config.Features
	ActivePolls int
}

type outboundEntry struct {
	DiscordID string
	Content   string
	Timestamp time.Time
	Mapped    bool
}

// Orchestrator routes every inbound platform event. All bridge state is
// mutated on its single run goroutine; adapters and the HTTP server hand
// events off through the buffered channel.
type Orchestrator struct {
	cfg      *config.Config
	features config.Features

	discord DiscordPort
	groupme GroupMePort

	links  *IdentityMapper
	polls  *PollStore
	votes  *VoteRelay
	recent *RecentWindow

	// Discord messages recently posted to GroupMe, awaiting the bot-echo
	// callback that reveals their GroupMe id. Loop-goroutine only.
	recentOutbound []outboundEntry

	events    chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	startTime time.Time
	botReady  atomic.Bool
}

func NewOrchestrator(cfg *config.Config, discord DiscordPort, groupme GroupMePort) *Orchestrator {
	o := &Orchestrator{
		cfg:            cfg,
		features:       cfg.Features(),
		discord:        discord,
		groupme:        groupme,
		links:          NewIdentityMapper(),
		polls:          NewPollStore(),
		recent:         NewRecentWindow(),
		recentOutbound: make([]outboundEntry, 0, OutboundCacheSize),
		events:         make(chan Event, EventQueueSize),
		stopChan:       make(chan struct{}),
		startTime:      time.Now(),
	}
	o.votes = NewVoteRelay(o.polls, o.notifyVote)
	return o
}

func (o *Orchestrator) Start() {
	o.wg.Add(2)
	go o.run()
	go o.cleanupLoop()
}

func (o *Orchestrator) Stop() {
	close(o.stopChan)
	o.wg.Wait()
}

// Publish hands an event into the single-threaded loop. Safe from any
// goroutine; drops with a log line when the queue is saturated rather than
// blocking an adapter callback.
func (o *Orchestrator) Publish(ev Event) {
	select {
	case o.events <- ev:
	default:
		log.Printf("⚠️ Event queue full, dropping %s event from %s", ev.Kind, ev.Platform)
	}
}

func (o *Orchestrator) SetReady(ready bool) {
	o.botReady.Store(ready)
}

func (o *Orchestrator) Snapshot() Status {
	return Status{
		BotReady:    o.botReady.Load(),
		Uptime:      time.Since(o.startTime),
		Features:    o.features,
		ActivePolls: o.polls.ActiveCount(),
	}
}

func (o *Orchestrator) run() {
	defer o.wg.Done()
	for {
		select {
		case ev := <-o.events:
			o.handle(ev)
		case <-o.stopChan:
			return
		}
	}
}

func (o *Orchestrator) cleanupLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(MappingCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := o.links.CleanupOldEntries(); removed > 0 {
				log.Printf("🧹 Cleaned up %d old message mappings", removed)
			}
			if removed := o.polls.EvictExpired(); removed > 0 {
				log.Printf("🧹 Evicted %d expired polls", removed)
			}
		case <-o.stopChan:
			return
		}
	}
}

// handle wraps per-event processing so one bad event can never take down the
// bridge.
func (o *Orchestrator) handle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Recovered from panic handling %s event from %s: %v", ev.Kind, ev.Platform, r)
		}
	}()
	o.route(ev)
}

func (o *Orchestrator) route(ev Event) {
	// Echo prevention comes first on both platforms. A GroupMe bot echo is
	// still useful: it is the only place we learn the GroupMe id of a message
	// we just posted.
	if ev.Author.IsBot {
		if ev.Platform == PlatformGroupMe && ev.Kind == EventMessage {
			o.matchOutbound(ev)
		}
		return
	}

	if !o.monitored(ev) {
		return
	}

	switch ev.Kind {
	case EventMessage:
		o.handleChatMessage(ev)
	case EventReaction:
		o.handleReaction(ev)
	case EventPollCreated:
		o.handlePollCreated(ev)
	case EventPollVote:
		if !o.votes.OnReactionOrVote(ev) {
			log.Printf("🤷 Vote event for untracked poll (native_id=%s)", ev.Poll.NativeID)
		}
	case EventPollEnded:
		o.handlePollEnded(ev)
	}
}

func (o *Orchestrator) monitored(ev Event) bool {
	switch ev.Platform {
	case PlatformDiscord:
		return ev.ChannelID == o.cfg.DiscordChannelID
	case PlatformGroupMe:
		return o.cfg.GroupMeGroupID == "" || ev.ChannelID == o.cfg.GroupMeGroupID
	}
	return false
}

func (o *Orchestrator) handleChatMessage(ev Event) {
	if ev.Platform == PlatformDiscord && strings.HasPrefix(ev.Content, CommandPrefix) {
		o.dispatchCommand(ev)
		return
	}

	o.recent.Add(RecentMessage{
		Author:    ev.Author.Name,
		Content:   ev.Content,
		Timestamp: ev.Timestamp,
		MessageID: ev.MessageID,
	})

	// Poll-bearing messages divert to the translator and are never relayed
	// as plain chat.
	if ev.Platform == PlatformDiscord && IsPollText(ev.Content) {
		question, options, ok := ParseTextPoll(ev.Content)
		if !ok {
			_, _ = o.discord.SendMessage("❌ Could not parse poll: need at least 2 options.")
			return
		}
		o.createGroupMePoll(ev.MessageID, ev.Author.Name, question, options)
		return
	}

	switch ev.Platform {
	case PlatformDiscord:
		o.relayDiscordMessage(ev)
	case PlatformGroupMe:
		o.relayGroupMeMessage(ev)
	}
}

func (o *Orchestrator) relayDiscordMessage(ev Event) {
	prefix := ""
	if ev.Reply != nil {
		prefix = FormatReplyPrefix(ev.Reply.Author, ev.Reply.Text)
	} else if author, clean, ok := DetectReply(ev.Content); ok {
		prefix = FormatReplyPrefix(author, "")
		ev.Content = clean
	}

	body := utils.MarkdownToPlain(ev.Content)
	var imageURL string
	var notes []string

	for _, att := range ev.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") && imageURL == "" {
			if !o.features.ImageSupport {
				notes = append(notes, fmt.Sprintf("[Attached: %s]", att.Filename))
				continue
			}
			uploaded, err := o.groupme.UploadImage(att.URL)
			if err != nil {
				log.Printf("❌ Image upload failed for %s: %v", att.Filename, err)
				notes = append(notes, "[Image upload failed]")
				continue
			}
			imageURL = uploaded
		} else {
			notes = append(notes, fmt.Sprintf("[Attached: %s]", att.Filename))
		}
	}

	if len(notes) > 0 {
		if body != "" {
			body += " "
		}
		body += strings.Join(notes, " ")
	}

	var text string
	switch {
	case body != "":
		text = fmt.Sprintf("%s%s: %s", prefix, ev.Author.Name, body)
	case imageURL != "":
		text = fmt.Sprintf("%s%s sent an image", prefix, ev.Author.Name)
	default:
		return
	}

	if err := o.groupme.PostMessage(text, imageURL); err != nil {
		log.Printf("❌ Failed to send to GroupMe: %v", err)
		return
	}
	log.Printf("✅ Discord → GroupMe: %s", ev.Author.Name)

	// GroupMe's bot-post endpoint returns no message id. Remember what we
	// sent; the bot echo callback completes the MessageLink (matchOutbound).
	o.recentOutbound = append(o.recentOutbound, outboundEntry{
		DiscordID: ev.MessageID,
		Content:   text,
		Timestamp: time.Now(),
	})
	if len(o.recentOutbound) > OutboundCacheSize {
		o.recentOutbound = o.recentOutbound[1:]
	}
}

// matchOutbound pairs a GroupMe bot-echo callback with the Discord message
// that produced it, completing the bidirectional MessageLink.
func (o *Orchestrator) matchOutbound(ev Event) {
	now := time.Now()
	for i := range o.recentOutbound {
		entry := &o.recentOutbound[i]
		if entry.Mapped || entry.Content != ev.Content || now.Sub(entry.Timestamp) > OutboundMatchWindow {
			continue
		}
		o.links.RecordLink(entry.DiscordID, ev.MessageID)
		entry.Mapped = true
		log.Printf("🔗 Mapped discord_id=%s <-> groupme_id=%s", entry.DiscordID, ev.MessageID)
		return
	}
}

func (o *Orchestrator) relayGroupMeMessage(ev Event) {
	text := fmt.Sprintf("**%s**: %s", ev.Author.Name, ev.Content)
	for _, att := range ev.Attachments {
		if att.URL != "" {
			text += "\n" + att.URL
		}
	}

	discordID, err := o.discord.SendMessage(text)
	if err != nil {
		log.Printf("❌ Failed to send GroupMe → Discord: %v", err)
		return
	}
	log.Printf("✅ GroupMe → Discord: %s", ev.Author.Name)

	o.links.RecordLink(discordID, ev.MessageID)
	o.links.RecordAuthor(ev.MessageID, ev.Author.Name)
}

func (o *Orchestrator) handleReaction(ev Event) {
	// Tracked-poll votes first; unhandled reactions fall through to the
	// generic relay.
	if o.votes.OnReactionOrVote(ev) {
		return
	}
	if ev.Reaction == nil || !supportedReactions[ev.Reaction.Emoji] {
		return
	}

	switch ev.Platform {
	case PlatformDiscord:
		o.relayDiscordReaction(ev)
	case PlatformGroupMe:
		o.relayGroupMeReaction(ev)
	}
}

func (o *Orchestrator) relayDiscordReaction(ev Event) {
	if !o.features.Reactions {
		return
	}

	context := "a message"
	if groupmeID, ok := o.links.Lookup(PlatformDiscord, ev.Reaction.TargetMessageID); ok {
		author, text, err := o.groupme.MessageContext(groupmeID)
		if err != nil {
			log.Printf("⚠️ Could not fetch GroupMe context for %s: %v", groupmeID, err)
			if name, ok := o.links.Author(groupmeID); ok {
				context = fmt.Sprintf("message by %s", name)
			}
		} else if text != "" {
			context = fmt.Sprintf("'%s' by %s", utils.TruncateRunes(text, reactionContextMax), author)
		} else {
			context = fmt.Sprintf("message by %s", author)
		}
	} else if ev.Reaction.TargetAuthor != "" {
		// Locally-authored message: embed its own text/author inline.
		if ev.Reaction.TargetContent != "" {
			context = fmt.Sprintf("'%s' by %s", utils.TruncateRunes(ev.Reaction.TargetContent, reactionContextMax), ev.Reaction.TargetAuthor)
		} else {
			context = fmt.Sprintf("message by %s", ev.Reaction.TargetAuthor)
		}
	}

	text := fmt.Sprintf("%s reacted %s to %s", ev.Author.Name, ev.Reaction.Emoji, context)
	if err := o.groupme.PostMessage(text, ""); err != nil {
		log.Printf("❌ Failed to send reaction to GroupMe: %v", err)
		return
	}
	log.Printf("✅ Reaction forwarded to GroupMe: %s", text)
}

func (o *Orchestrator) relayGroupMeReaction(ev Event) {
	context := "a message"
	if discordID, ok := o.links.Lookup(PlatformGroupMe, ev.Reaction.TargetMessageID); ok {
		context = fmt.Sprintf("a bridged message (discord id %s)", discordID)
	}
	if ev.Reaction.TargetAuthor != "" {
		context = fmt.Sprintf("message by %s", ev.Reaction.TargetAuthor)
	}

	text := fmt.Sprintf("😀 %s reacted %s to %s", ev.Author.Name, ev.Reaction.Emoji, context)
	if _, err := o.discord.SendMessage(text); err != nil {
		log.Printf("❌ Failed to send reaction to Discord: %v", err)
	}
}

func (o *Orchestrator) handlePollCreated(ev Event) {
	if ev.Poll == nil {
		return
	}

	// Loop prevention: a poll we created on the counterpart comes back as a
	// creation event there.
	if o.polls.FindByNativeID(ev.Platform, ev.Poll.NativeID) != nil {
		return
	}

	switch ev.Platform {
	case PlatformDiscord:
		// Native Discord poll object; already structured.
		o.createGroupMePoll(ev.MessageID, ev.Author.Name, ev.Poll.Question, ev.Poll.Options)
	case PlatformGroupMe:
		o.createDiscordPoll(ev)
	}
}

func (o *Orchestrator) createGroupMePoll(sourceMessageID, author, question string, options []string) {
	if !o.features.Polls {
		_, _ = o.discord.SendMessage("❌ Poll relay is disabled (GROUPME_ACCESS_TOKEN / GROUPME_GROUP_ID not set).")
		return
	}
	if len(options) < 2 {
		_, _ = o.discord.SendMessage("❌ A poll needs at least 2 options.")
		return
	}

	subject, opts := TranslatePoll(question, options, PlatformGroupMe)
	pollID, err := o.groupme.CreatePoll(subject, opts, time.Now().Add(PollLifetime))
	if err != nil {
		// No record, no partial mappings.
		log.Printf("❌ GroupMe poll creation failed: %v", err)
		_, _ = o.discord.SendMessage(fmt.Sprintf("❌ Failed to create GroupMe poll: %v", err))
		return
	}

	rec := o.polls.Add(PlatformDiscord, sourceMessageID, subject, opts, author)
	o.polls.SetNativeID(rec.ID, PlatformGroupMe, pollID)
	o.links.RecordLink(sourceMessageID, pollID)

	log.Printf("📊 Poll bridged to GroupMe: %q (%d options)", subject, len(opts))
	_, _ = o.discord.SendMessage(fmt.Sprintf("✅ 📊 Poll created in GroupMe: %s\n%s", subject, FormatOptionList(opts)))
}

func (o *Orchestrator) createDiscordPoll(ev Event) {
	question, options := TranslatePoll(ev.Poll.Question, ev.Poll.Options, PlatformDiscord)
	if len(options) < 2 {
		log.Printf("❌ Rejected GroupMe poll %s: fewer than 2 options", ev.Poll.NativeID)
		return
	}

	messageID, err := o.discord.CreateNativePoll(question, options)
	if err != nil {
		log.Printf("❌ Discord poll creation failed: %v", err)
		if postErr := o.groupme.PostMessage(fmt.Sprintf("❌ Failed to mirror poll %q to Discord", question), ""); postErr != nil {
			log.Printf("❌ Failed to report poll mirror failure: %v", postErr)
		}
		return
	}

	rec := o.polls.Add(PlatformGroupMe, ev.Poll.NativeID, question, options, ev.Author.Name)
	o.polls.SetNativeID(rec.ID, PlatformDiscord, messageID)
	o.links.RecordLink(messageID, ev.Poll.NativeID)

	log.Printf("📊 Poll bridged to Discord: %q (%d options)", question, len(options))
}

func (o *Orchestrator) handlePollEnded(ev Event) {
	if ev.Poll == nil {
		return
	}
	rec := o.polls.FindByNativeID(ev.Platform, ev.Poll.NativeID)
	if rec == nil {
		return
	}

	summary := fmt.Sprintf("📊 Poll ended: %s", rec.Question)
	if pollID, ok := rec.NativeIDs[PlatformGroupMe]; ok && o.features.Polls {
		if _, tallies, err := o.groupme.PollResults(pollID); err == nil && len(tallies) > 0 {
			lines := make([]string, len(tallies))
			for i, t := range tallies {
				lines[i] = fmt.Sprintf("%s %s: %d", OptionLabel(i), t.Option, t.Votes)
			}
			summary += "\n" + strings.Join(lines, "\n")
		} else if err != nil {
			log.Printf("⚠️ Could not fetch final results for poll %s: %v", pollID, err)
		}
	}

	if _, err := o.discord.SendMessage(summary); err != nil {
		log.Printf("❌ Failed to announce poll results: %v", err)
	}
	o.polls.End(rec.ID)
}

func (o *Orchestrator) notifyVote(target Platform, text string) error {
	switch target {
	case PlatformDiscord:
		_, err := o.discord.SendMessage(text)
		return err
	case PlatformGroupMe:
		return o.groupme.PostMessage(text, "")
	}
	return nil
}
