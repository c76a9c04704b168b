package discord

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"local/groupmebridge/bridge"
	"local/groupmebridge/config"
	"local/groupmebridge/utils"
)

const nativeReplyContextMax = 100

// Adapter owns the discordgo session. Inbound gateway events are normalized
// into bridge events and handed to the registered callback; outbound it
// implements the bridge's DiscordPort.
type Adapter struct {
	cfg     *config.Config
	session *discordgo.Session

	onEvent func(bridge.Event)
	onReady func()
}

func NewAdapter(cfg *config.Config) (*Adapter, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		return nil, err
	}

	a := &Adapter{cfg: cfg, session: session}
	session.AddHandler(a.handleReady)
	session.AddHandler(a.handleMessageCreate)
	session.AddHandler(a.handleReactionAdd)
	session.AddHandler(a.handlePollVoteAdd)
	return a, nil
}

// OnEvent registers the normalized-event callback. Must be set before Start.
func (a *Adapter) OnEvent(fn func(bridge.Event)) { a.onEvent = fn }

func (a *Adapter) OnReady(fn func()) { a.onReady = fn }

func (a *Adapter) Start() error {
	a.session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent |
		discordgo.IntentGuildMessagePolls
	return a.session.Open()
}

func (a *Adapter) Stop() {
	a.session.Close()
}

func (a *Adapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("🤖 Discord bot ready: %s (id=%s)", r.User.Username, r.User.ID)
	log.Printf("📺 Monitoring channel ID: %s", a.cfg.DiscordChannelID)
	if a.onReady != nil {
		a.onReady()
	}
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || a.onEvent == nil {
		return
	}

	ev := bridge.Event{
		Platform:  bridge.PlatformDiscord,
		Kind:      bridge.EventMessage,
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		Author: bridge.Author{
			ID:    m.Author.ID,
			Name:  displayName(m.Member, m.Author),
			IsBot: m.Author.Bot,
		},
		Content:   m.Content,
		Timestamp: time.Now(),
	}

	for _, att := range m.Attachments {
		ev.Attachments = append(ev.Attachments, bridge.Attachment{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	// Native reply reference is authoritative over textual reply patterns;
	// resolve it here so the core never probes platform payloads.
	if ref := a.referencedMessage(m); ref != nil && ref.Author != nil {
		ev.Reply = &bridge.ReplyRef{
			Author: displayName(nil, ref.Author),
			Text:   utils.TruncateRunes(ref.Content, nativeReplyContextMax),
		}
	}

	// Native Discord poll: one structured PollEvent, no attribute probing
	// downstream.
	if m.Poll != nil {
		ev.Kind = bridge.EventPollCreated
		poll := &bridge.PollEvent{
			NativeID:    m.ID,
			Question:    m.Poll.Question.Text,
			OptionIndex: -1,
		}
		for _, ans := range m.Poll.Answers {
			if ans.Media != nil {
				poll.Options = append(poll.Options, ans.Media.Text)
			}
		}
		ev.Poll = poll
	}

	a.onEvent(ev)
}

func (a *Adapter) referencedMessage(m *discordgo.MessageCreate) *discordgo.Message {
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage
	}
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return nil
	}
	ref, err := a.session.ChannelMessage(m.MessageReference.ChannelID, m.MessageReference.MessageID)
	if err != nil {
		log.Printf("⚠️ Could not fetch referenced message %s: %v", m.MessageReference.MessageID, err)
		return nil
	}
	return ref
}

func (a *Adapter) handleReactionAdd(s *discordgo.Session, m *discordgo.MessageReactionAdd) {
	if a.onEvent == nil {
		return
	}

	author := bridge.Author{ID: m.UserID}
	if m.Member != nil && m.Member.User != nil {
		author.Name = displayName(m.Member, m.Member.User)
		author.IsBot = m.Member.User.Bot
	} else if u, err := s.User(m.UserID); err == nil {
		author.Name = displayName(nil, u)
		author.IsBot = u.Bot
	}

	reaction := &bridge.ReactionInfo{
		Emoji:           m.Emoji.Name,
		TargetMessageID: m.MessageID,
	}

	// Resolve the reacted message's own author/text so the core can fall
	// back to inline context for locally-authored messages.
	if msg := a.lookupMessage(m.ChannelID, m.MessageID); msg != nil && msg.Author != nil {
		reaction.TargetAuthor = displayName(nil, msg.Author)
		reaction.TargetContent = msg.Content
	}

	a.onEvent(bridge.Event{
		Platform:  bridge.PlatformDiscord,
		Kind:      bridge.EventReaction,
		ChannelID: m.ChannelID,
		Author:    author,
		Reaction:  reaction,
		Timestamp: time.Now(),
	})
}

func (a *Adapter) handlePollVoteAdd(s *discordgo.Session, m *discordgo.MessagePollVoteAdd) {
	if a.onEvent == nil {
		return
	}

	author := bridge.Author{ID: m.UserID}
	if u, err := s.User(m.UserID); err == nil {
		author.Name = displayName(nil, u)
		author.IsBot = u.Bot
	}

	a.onEvent(bridge.Event{
		Platform:  bridge.PlatformDiscord,
		Kind:      bridge.EventPollVote,
		ChannelID: m.ChannelID,
		Author:    author,
		Poll: &bridge.PollEvent{
			NativeID: m.MessageID,
			Voter:    author.Name,
			// Discord answer ids are 1-based.
			OptionIndex: m.AnswerID - 1,
		},
		Timestamp: time.Now(),
	})
}

func (a *Adapter) lookupMessage(channelID, messageID string) *discordgo.Message {
	if msg, err := a.session.State.Message(channelID, messageID); err == nil {
		return msg
	}
	msg, err := a.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil
	}
	return msg
}

// --- bridge.DiscordPort ---

func (a *Adapter) SendMessage(text string) (string, error) {
	msg, err := a.session.ChannelMessageSend(a.cfg.DiscordChannelID, text)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (a *Adapter) SendEmbed(title, description string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       0x00FF00,
	}
	_, err := a.session.ChannelMessageSendEmbed(a.cfg.DiscordChannelID, embed)
	return err
}

func (a *Adapter) CreateNativePoll(question string, options []string) (string, error) {
	answers := make([]discordgo.PollAnswer, len(options))
	for i, opt := range options {
		answers[i] = discordgo.PollAnswer{Media: &discordgo.PollMedia{Text: opt}}
	}

	msg, err := a.session.ChannelMessageSendComplex(a.cfg.DiscordChannelID, &discordgo.MessageSend{
		Poll: &discordgo.Poll{
			Question:         discordgo.PollMedia{Text: question},
			Answers:          answers,
			AllowMultiselect: false,
			Duration:         int(bridge.PollLifetime / time.Hour),
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating Discord poll: %w", err)
	}
	return msg.ID, nil
}

func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil {
		return "Unknown"
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
