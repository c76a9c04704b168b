package bridge

import (
	"fmt"
	"log"
	"strings"

	"local/groupmebridge/utils"
)

// dispatchCommand handles !-prefixed Discord messages. Commands are never
// relayed as chat content.
func (o *Orchestrator) dispatchCommand(ev Event) {
	fields := strings.Fields(ev.Content)
	if len(fields) == 0 {
		return
	}
	command := strings.TrimPrefix(fields[0], CommandPrefix)
	args := strings.TrimSpace(strings.TrimPrefix(ev.Content, fields[0]))

	log.Printf("🎛️ Command from %s: %s", ev.Author.Name, command)

	switch command {
	case "status":
		o.commandStatus()
	case "test":
		o.commandTest(args)
	case "react":
		o.commandReact(ev.Author.Name, args)
	case "recent":
		o.commandRecent()
	case "poll":
		o.commandPoll(ev, args)
	}
}

func (o *Orchestrator) commandStatus() {
	check := func(on bool) string {
		if on {
			return "✅"
		}
		return "❌"
	}

	snap := o.Snapshot()
	description := fmt.Sprintf(
		"🔗 Connected to GroupMe: %s\n🖼️ Image support: %s\n😀 Reaction support: %s\n📊 Poll support: %s\n🧵 Threading support: ✅\n📋 Recent messages tracked: %d\n🗳️ Active polls: %d\n⏱️ Uptime: %ds",
		check(o.cfg.GroupMeBotID != ""),
		check(snap.Features.ImageSupport),
		check(snap.Features.Reactions),
		check(snap.Features.Polls),
		o.recent.Len(),
		snap.ActivePolls,
		int(snap.Uptime.Seconds()),
	)

	if err := o.discord.SendEmbed("🟢 Bridge Status", description); err != nil {
		log.Printf("❌ Failed to send status embed: %v", err)
	}
}

func (o *Orchestrator) commandTest(args string) {
	text := "🧪 Bridge test message"
	if args != "" {
		text = args
	}

	if err := o.groupme.PostMessage(fmt.Sprintf("Bot Test: %s", text), ""); err != nil {
		_, _ = o.discord.SendMessage(fmt.Sprintf("❌ Failed to send test message: %v", err))
		return
	}
	_, _ = o.discord.SendMessage("✅ Test message sent to GroupMe!")
}

func (o *Orchestrator) commandReact(userName, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		_, _ = o.discord.SendMessage("❌ Usage: !react <emoji> [context]")
		return
	}
	emoji := fields[0]
	if !supportedReactions[emoji] {
		_, _ = o.discord.SendMessage(fmt.Sprintf("❌ Unsupported emoji %s.", emoji))
		return
	}

	context := "the last message"
	if len(fields) > 1 {
		context = strings.Join(fields[1:], " ")
	}

	text := fmt.Sprintf("%s reacted %s to %s", userName, emoji, context)
	if err := o.groupme.PostMessage(text, ""); err != nil {
		_, _ = o.discord.SendMessage(fmt.Sprintf("❌ Error: %v", err))
		return
	}
	_, _ = o.discord.SendMessage(fmt.Sprintf("✅ Reaction sent: %s", text))
}

func (o *Orchestrator) commandRecent() {
	recent := o.recent.Last(10)
	if len(recent) == 0 {
		_, _ = o.discord.SendMessage("📭 No recent messages tracked.")
		return
	}

	lines := make([]string, len(recent))
	for i, msg := range recent {
		lines[i] = fmt.Sprintf("**%d.** %s: %s", i+1, msg.Author, utils.TruncateRunes(msg.Content, 50))
	}

	if err := o.discord.SendEmbed("📋 Recent Messages", strings.Join(lines, "\n")); err != nil {
		log.Printf("❌ Failed to send recent messages embed: %v", err)
	}
}

// commandPoll creates a GroupMe poll from Discord, reusing the text-poll
// parser: !poll Best pet? 1️⃣ Dog 2️⃣ Cat
func (o *Orchestrator) commandPoll(ev Event, args string) {
	if args == "" {
		_, _ = o.discord.SendMessage("❌ Usage: !poll <question>? <options>")
		return
	}

	question, options, ok := ParseTextPoll("Poll: " + args)
	if !ok {
		_, _ = o.discord.SendMessage("❌ Could not parse poll: need at least 2 options (1️⃣ …, A) …, • …, or - … lines).")
		return
	}
	o.createGroupMePoll(ev.MessageID, ev.Author.Name, question, options)
}
