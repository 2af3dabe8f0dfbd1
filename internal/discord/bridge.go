package discord

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/cinematic-bot/cinematic/internal/agent"
	"github.com/cinematic-bot/cinematic/internal/llm"
	"github.com/cinematic-bot/cinematic/internal/memories"
)

// handleTimeout bounds how long a single inbound message may be
// processed (relevance gate + agent loop).
const handleTimeout = 5 * time.Minute

// mentionPattern matches user and channel mention tokens, which are
// stripped from message text before processing.
var mentionPattern = regexp.MustCompile(`<[@#]&?\d+>`)

// rejectionText is the canned refusal shown for off-topic messages.
const rejectionText = "Hi, I'm a media bot. I can help you with media related questions. What would you like to know or achieve?"

// greetings are the initial processing acknowledgements; one is picked
// at random per message.
var greetings = []string{
	"Hey there! Super excited to process your message, give me just a moment... 🎬",
	"Oh, a message! Can't wait to dive into this one - I'm on it... 🎥",
	"Hey, awesome! A new message to explore! Let me work my media magic... 📺",
	"Woo-hoo! A fresh message to check out! Let me put my CineMatic touch on it... 🍿",
	"Yay, another message! Time to unleash my media passion, be right back... 📼",
	"Hey, a message! I'm so excited to process this one, just a moment... 🎞",
	"Aha! A message has arrived! Let me roll out the red carpet for it... 🎞️",
	"Ooh, a new message to dissect! Allow me to unleash my inner film buff... 🎦",
	"Lights, camera, action! Time to process your message with a cinematic twist... 📽️",
	"Hooray, a message to dig into! Let's make this a blockbuster experience... 🌟",
	"Greetings! Your message has caught my eye, let me give it the star treatment... 🎟️",
	"Popcorn's ready! Let me take a closer look at your message like a true film fanatic... 🍿",
	"Woohoo! A message to analyze! Let me work on it while humming my favorite movie tunes... 🎶",
	"A new message to dive into! Let me put on my director's hat and get to work... 🎩",
	"And... action! Time to process your message with my media expertise... 📹",
	"Sending your message to the cutting room! Let me work on it like a skilled film editor... 🎞️",
	"A message has entered the scene! Let me put my media prowess to work on it... 🎭",
	"Your message is the star of the show! Let me process it with the passion of a true cinephile... 🌟",
	"Curtain up! Your message takes center stage, and I'm ready to give it a standing ovation... 🎦",
}

// nameCleanupPrompt converts a raw Discord username into a clean tag-
// and memory-safe name.
const nameCleanupPrompt = "Convert the above name to plaintext alphanumeric only"

// Messenger abstracts the REST operations the bridge performs. The
// real implementation is *Rest.
type Messenger interface {
	CreateReply(ctx context.Context, channelID, replyToID, content string) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	GetMessage(ctx context.Context, channelID, messageID string) (*Message, error)
}

// Runner abstracts the agent loop for testability. The real
// implementation is *agent.Loop.
type Runner interface {
	Run(ctx context.Context, sess *agent.Session, reporter agent.Reporter) error
}

// RelevanceChecker abstracts the topicality gate. The real
// implementation is *agent.Filter.
type RelevanceChecker interface {
	IsRelevant(ctx context.Context, conversationText string) (bool, error)
}

// TagSyncer reconciles per-user attribution tags on a media server.
// Both arr clients implement it.
type TagSyncer interface {
	SyncUserTags(ctx context.Context, userNames []string) error
}

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Messenger Messenger
	Runner    Runner
	Relevance RelevanceChecker
	Store     *memories.Store
	Completer llm.Completer
	// NameModel cleans up raw usernames on first contact.
	NameModel string
	// TagSyncers receive the updated user name set after a new user is
	// registered.
	TagSyncers []TagSyncer
	// BotUserID gates processing on mentions of the bot.
	BotUserID string
	// CommandPrefix, when non-empty, replaces mention gating with a
	// leading-prefix check. Intended for development.
	CommandPrefix string
	Logger        *slog.Logger
}

// Bridge receives Discord messages, gates them on mention and
// relevance, and routes them through the agent loop, streaming
// progress back by editing the bot's reply in place.
type Bridge struct {
	messenger  Messenger
	runner     Runner
	relevance  RelevanceChecker
	store      *memories.Store
	completer  llm.Completer
	nameModel  string
	tagSyncers []TagSyncer
	botUserID  string
	prefix     string
	logger     *slog.Logger
}

// NewBridge creates a Discord message bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		messenger:  cfg.Messenger,
		runner:     cfg.Runner,
		relevance:  cfg.Relevance,
		store:      cfg.Store,
		completer:  cfg.Completer,
		nameModel:  cfg.NameModel,
		tagSyncers: cfg.TagSyncers,
		botUserID:  cfg.BotUserID,
		prefix:     cfg.CommandPrefix,
		logger:     logger,
	}
}

// Start consumes inbound messages until ctx is cancelled. Each message
// is handled on its own goroutine so a slow agent run never blocks the
// gateway.
func (b *Bridge) Start(ctx context.Context, messages <-chan *Message) {
	b.logger.Info("discord bridge started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("discord bridge shutting down")
			return
		case msg, ok := <-messages:
			if !ok {
				b.logger.Info("discord message channel closed, bridge stopping")
				return
			}
			go b.Handle(ctx, msg)
		}
	}
}

// Handle processes one inbound message end to end.
func (b *Bridge) Handle(ctx context.Context, msg *Message) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if msg.Author.Bot {
		return
	}

	if b.prefix != "" {
		if !strings.HasPrefix(msg.Content, b.prefix) {
			return
		}
	} else if !msg.MentionsUser(b.botUserID) {
		return
	}

	history, ok := b.replyHistory(ctx, msg)
	if !ok {
		return
	}

	userText := cleanText(msg.Content, b.prefix)
	if userText == "" {
		return
	}

	b.logger.Info("discord message received",
		"user_id", msg.Author.ID,
		"user", msg.Author.Username,
		"channel_id", msg.ChannelID,
	)

	historyText := agent.HistoryText(history, userText)
	greeting := greetings[rand.Intn(len(greetings))]

	reply, err := b.messenger.CreateReply(ctx, msg.ChannelID, msg.ID,
		historyText+agent.PendingMarker+" 1/3 "+greeting)
	if err != nil {
		b.logger.Error("discord reply failed",
			"channel_id", msg.ChannelID,
			"error", err,
		)
		return
	}

	b.process(ctx, msg, reply, history, historyText, userText, greeting)
}

// replyHistory resolves conversation history when the message is a
// reply. Replies to anything but a completed bot transcript are
// silently dropped.
func (b *Bridge) replyHistory(ctx context.Context, msg *Message) ([]llm.Message, bool) {
	if msg.MessageReference == nil {
		return nil, true
	}

	repliedTo, err := b.messenger.GetMessage(ctx, msg.ChannelID, msg.MessageReference.MessageID)
	if err != nil {
		b.logger.Warn("discord replied-to message fetch failed",
			"channel_id", msg.ChannelID,
			"message_id", msg.MessageReference.MessageID,
			"error", err,
		)
		return nil, false
	}
	if repliedTo.Author.ID != b.botUserID {
		return nil, false
	}
	if !agent.IsAnchor(repliedTo.Content) {
		return nil, false
	}
	return agent.ParseHistory(repliedTo.Content), true
}

// process runs the relevance gate and the agent loop, editing the
// bot's reply through the stages.
func (b *Bridge) process(ctx context.Context, msg, reply *Message, history []llm.Message, historyText, userText, greeting string) {
	relevant, err := b.relevance.IsRelevant(ctx, agent.UserText(history, userText))
	if err != nil {
		b.logger.Error("relevance check failed",
			"user", msg.Author.Username,
			"error", err,
		)
		return
	}
	if !relevant {
		b.edit(ctx, reply, historyText+agent.RejectedMarker+" "+rejectionText)
		return
	}

	b.edit(ctx, reply, historyText+agent.PendingMarker+" 2/3 "+greeting)

	userName := b.resolveUserName(ctx, msg.Author)

	b.edit(ctx, reply, historyText+agent.PendingMarker+" 3/3 "+greeting)

	sess := agent.NewSession(userName, userText, history, time.Now())
	reporter := &messageReporter{messenger: b.messenger, channelID: reply.ChannelID, messageID: reply.ID}

	if err := b.runner.Run(ctx, sess, reporter); err != nil {
		b.logger.Error("agent run failed",
			"user", userName,
			"state", sess.State.String(),
			"error", err,
		)
		return
	}

	b.logger.Info("agent run completed",
		"user", userName,
		"iterations", sess.Iterations,
	)
}

// resolveUserName returns the stored clean name for the user,
// registering one on first contact. The raw username is the fallback
// when cleanup fails.
func (b *Bridge) resolveUserName(ctx context.Context, author User) string {
	name, err := b.store.Name(ctx, author.ID)
	if err != nil {
		b.logger.Warn("user name lookup failed", "user_id", author.ID, "error", err)
	}
	if name != "" {
		return name
	}

	clean, err := llm.InfoQuery(ctx, b.completer, b.nameModel, nameCleanupPrompt, author.Username)
	if err != nil {
		b.logger.Warn("user name cleanup failed",
			"user_id", author.ID,
			"error", err,
		)
		return author.Username
	}
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return author.Username
	}

	if err := b.store.SetName(ctx, author.ID, clean); err != nil {
		b.logger.Warn("user name store failed", "user_id", author.ID, "error", err)
		return clean
	}
	b.syncTags(ctx)
	return clean
}

// syncTags pushes the full known-user set to every media server so
// attribution tags stay consistent.
func (b *Bridge) syncTags(ctx context.Context) {
	names, err := b.store.AllNames(ctx)
	if err != nil {
		b.logger.Warn("user name list failed", "error", err)
		return
	}
	for _, s := range b.tagSyncers {
		if err := s.SyncUserTags(ctx, names); err != nil {
			b.logger.Warn("user tag sync failed", "error", err)
		}
	}
}

func (b *Bridge) edit(ctx context.Context, reply *Message, content string) {
	if err := b.messenger.EditMessage(ctx, reply.ChannelID, reply.ID, content); err != nil {
		b.logger.Debug("discord message edit failed",
			"channel_id", reply.ChannelID,
			"message_id", reply.ID,
			"error", err,
		)
	}
}

// cleanText flattens newlines, strips mention tokens and the optional
// command prefix, and trims whitespace.
func cleanText(content, prefix string) string {
	text := strings.ReplaceAll(content, "\n", " ")
	text = mentionPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if prefix != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	return text
}

// messageReporter renders transcripts by editing the bot's reply in
// place.
type messageReporter struct {
	messenger Messenger
	channelID string
	messageID string
}

func (r *messageReporter) Report(ctx context.Context, content string) error {
	return r.messenger.EditMessage(ctx, r.channelID, r.messageID, content)
}
