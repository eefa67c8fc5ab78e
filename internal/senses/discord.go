package senses

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vthunder/agenda/internal/bot"
	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/profiling"
	"github.com/vthunder/agenda/internal/types"
)

// seenCacheSize bounds the inbound message ids remembered for dedupe
const seenCacheSize = 4096

// Handler turns a message into a reply
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) bot.Response
}

// Outbox queues replies for the effector
type Outbox interface {
	Enqueue(ctx context.Context, d *types.Delivery) error
}

// DiscordSense listens to Discord and answers every accepted message through
// the outbox
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	botID     string
	handler   Handler
	outbox    Outbox
	timeout   time.Duration
	seen      *lru.Cache[string, struct{}]
	profiler  *profiling.Profiler
	onMessage func(msg bot.Message, resp bot.Response)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string        // optional: only listen on this guild channel; DMs are always accepted
	Timeout   time.Duration // per-message handling bound, default 30s
}

// NewDiscordSense creates a new Discord sense
func NewDiscordSense(cfg DiscordConfig, handler Handler, outbox Outbox) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := newSense(cfg, handler, outbox)
	sense.session = session

	session.AddHandler(sense.handleMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return sense, nil
}

func newSense(cfg DiscordConfig, handler Handler, outbox Outbox) *DiscordSense {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	seen, _ := lru.New[string, struct{}](seenCacheSize)
	return &DiscordSense{
		channelID: cfg.ChannelID,
		handler:   handler,
		outbox:    outbox,
		timeout:   cfg.Timeout,
		seen:      seen,
	}
}

// SetProfiler times message handling
func (d *DiscordSense) SetProfiler(p *profiling.Profiler) {
	d.profiler = p
}

// SetOnMessage is called after each handled message
func (d *DiscordSense) SetOnMessage(callback func(msg bot.Message, resp bot.Response)) {
	d.onMessage = callback
}

// Start connects to Discord and begins listening
func (d *DiscordSense) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	// Get bot's user ID for self-filtering
	d.botID = d.session.State.User.ID
	log.Printf("[discord-sense] Connected as %s", d.session.State.User.Username)

	return nil
}

// Stop disconnects from Discord
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// Session returns the underlying Discord session (for sharing with effector)
func (d *DiscordSense) Session() *discordgo.Session {
	return d.session
}

func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.process(ctx, m)
}

// process handles one inbound message and reports whether it was answered
func (d *DiscordSense) process(ctx context.Context, m *discordgo.MessageCreate) bool {
	if m.Message == nil || m.Author == nil || m.Author.ID == d.botID || m.Author.Bot {
		return false
	}
	if d.channelID != "" && m.GuildID != "" && m.ChannelID != d.channelID {
		return false
	}
	// gateway resumes can replay messages
	if ok, _ := d.seen.ContainsOrAdd(m.ID, struct{}{}); ok {
		logging.Debug("discord-sense", "Skipping duplicate message %s", m.ID)
		return false
	}

	content := d.stripMention(m.Content)
	if content == "" {
		return false
	}
	at := m.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	msg := bot.Message{
		ID:        m.ID,
		OwnerID:   m.Author.ID,
		ChannelID: m.ChannelID,
		Content:   content,
		At:        at,
	}

	log.Printf("[discord-sense] %s: %s", m.Author.Username, logging.Truncate(content, 50))
	done := d.profiler.Start(m.ID, profiling.StageHandle)
	resp := d.handler.Handle(ctx, msg)
	done()

	delivery := &types.Delivery{
		OwnerID:   msg.OwnerID,
		ChannelID: msg.ChannelID,
		Kind:      types.DeliveryReply,
		Content:   resp.Text,
	}
	if resp.File != nil {
		delivery.Kind = types.DeliveryFile
		delivery.Filename = resp.File.Name
		delivery.Attachment = resp.File.Data
	}
	if err := d.outbox.Enqueue(ctx, delivery); err != nil {
		log.Printf("[discord-sense] Failed to queue reply to %s: %v", m.ID, err)
		return false
	}
	if d.onMessage != nil {
		d.onMessage(msg, resp)
	}
	return true
}

// stripMention removes a leading mention of the bot
func (d *DiscordSense) stripMention(content string) string {
	content = strings.TrimSpace(content)
	if d.botID == "" {
		return content
	}
	for _, mention := range []string{"<@" + d.botID + ">", "<@!" + d.botID + ">"} {
		if strings.HasPrefix(content, mention) {
			return strings.TrimSpace(strings.TrimPrefix(content, mention))
		}
	}
	return content
}
