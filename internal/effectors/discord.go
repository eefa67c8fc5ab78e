package effectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/agenda/internal/logging"
	"github.com/vthunder/agenda/internal/profiling"
	"github.com/vthunder/agenda/internal/types"
)

const (
	// DefaultMaxRetryDuration is how long a delivery keeps retrying before it is dropped
	DefaultMaxRetryDuration = 2 * time.Hour

	maxBackoff       = 60 * time.Second
	discordMaxLength = 2000
	batchSize        = 50
)

// Sender is the part of a chat transport the effector needs
type Sender interface {
	Send(channelID, content string) error
	SendFile(channelID, content, name, contentType string, data []byte) error
	// DMChannel returns the direct message channel for a user
	DMChannel(userID string) (string, error)
}

// Outbox is the delivery queue the effector drains
type Outbox interface {
	PendingDeliveries(ctx context.Context, limit int) ([]types.Delivery, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	MarkDeliveryFailed(ctx context.Context, id int64, errMsg string, permanent bool) error
}

// SessionSender sends through a discordgo session
type SessionSender struct {
	Session *discordgo.Session
}

func (s SessionSender) Send(channelID, content string) error {
	_, err := s.Session.ChannelMessageSend(channelID, content)
	return err
}

func (s SessionSender) SendFile(channelID, content, name, contentType string, data []byte) error {
	_, err := s.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files:   []*discordgo.File{{Name: name, ContentType: contentType, Reader: bytes.NewReader(data)}},
	})
	return err
}

func (s SessionSender) DMChannel(userID string) (string, error) {
	ch, err := s.Session.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

type retryState struct {
	attempts     int
	firstFailure time.Time
	nextRetry    time.Time
}

// DiscordEffector drains the outbox to Discord. Delivery is at-least-once:
// a crash between send and MarkDelivered resends on the next start.
type DiscordEffector struct {
	getSender        func() Sender
	outbox           Outbox
	pollInterval     time.Duration
	maxRetryDuration time.Duration
	now              func() time.Time
	profiler         *profiling.Profiler

	retryMu     sync.Mutex
	retryStates map[int64]*retryState

	onSend  func(d types.Delivery)
	onError func(deliveryID int64, kind, errMsg string)
	onRetry func(deliveryID int64, kind, errMsg string, attempt int, nextRetry time.Duration)

	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewDiscordEffector creates an effector. getSender may return nil while the
// transport is disconnected; deliveries then wait in the outbox.
func NewDiscordEffector(getSender func() Sender, outbox Outbox) *DiscordEffector {
	return &DiscordEffector{
		getSender:        getSender,
		outbox:           outbox,
		pollInterval:     500 * time.Millisecond,
		maxRetryDuration: DefaultMaxRetryDuration,
		now:              time.Now,
		retryStates:      make(map[int64]*retryState),
		stopChan:         make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// SetMaxRetryDuration bounds how long a failing delivery is retried
func (e *DiscordEffector) SetMaxRetryDuration(d time.Duration) {
	e.maxRetryDuration = d
}

// SetPollInterval changes how often the outbox is checked
func (e *DiscordEffector) SetPollInterval(d time.Duration) {
	e.pollInterval = d
}

// SetProfiler times each delivery
func (e *DiscordEffector) SetProfiler(p *profiling.Profiler) {
	e.profiler = p
}

// SetOnSend is called after each successful delivery
func (e *DiscordEffector) SetOnSend(callback func(d types.Delivery)) {
	e.onSend = callback
}

// SetOnError is called when a delivery fails permanently
func (e *DiscordEffector) SetOnError(callback func(deliveryID int64, kind, errMsg string)) {
	e.onError = callback
}

// SetOnRetry is called when a delivery fails and is scheduled again
func (e *DiscordEffector) SetOnRetry(callback func(deliveryID int64, kind, errMsg string, attempt int, nextRetry time.Duration)) {
	e.onRetry = callback
}

// Start begins polling the outbox
func (e *DiscordEffector) Start() {
	e.started = true
	go e.pollLoop()
	log.Println("[discord-effector] Started")
}

// Stop halts the effector and waits for the current batch to finish
func (e *DiscordEffector) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		if e.started {
			<-e.done
		}
	})
}

func (e *DiscordEffector) pollLoop() {
	defer close(e.done)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.ProcessDeliveries(context.Background())
		}
	}
}

// ProcessDeliveries sends one batch of pending deliveries and returns how
// many were sent
func (e *DiscordEffector) ProcessDeliveries(ctx context.Context) int {
	sender := e.getSender()
	if sender == nil {
		return 0
	}
	pending, err := e.outbox.PendingDeliveries(ctx, batchSize)
	if err != nil {
		log.Printf("[discord-effector] Failed to read outbox: %v", err)
		return 0
	}

	sent := 0
	for i := range pending {
		d := &pending[i]
		now := e.now()
		if !e.shouldRetryNow(d.ID, now) {
			continue
		}

		done := e.profiler.Start(fmt.Sprintf("d%d", d.ID), profiling.StageDeliver)
		err := e.deliver(sender, d)
		done()
		if err != nil {
			retried := e.handleDeliveryError(d, err, now)
			if merr := e.outbox.MarkDeliveryFailed(ctx, d.ID, err.Error(), !retried); merr != nil {
				log.Printf("[discord-effector] Failed to record failure of delivery %d: %v", d.ID, merr)
			}
			continue
		}

		e.clearRetry(d.ID)
		if err := e.outbox.MarkDelivered(ctx, d.ID, e.now()); err != nil {
			log.Printf("[discord-effector] Failed to mark delivery %d sent: %v", d.ID, err)
		}
		sent++
		logging.Debug("discord-effector", "Sent %s %d to %s", d.Kind, d.ID, d.ChannelID)
		if e.onSend != nil {
			e.onSend(*d)
		}
	}
	return sent
}

func (e *DiscordEffector) deliver(sender Sender, d *types.Delivery) error {
	channelID := d.ChannelID
	if channelID == "" {
		if d.OwnerID == "" {
			return errNoRecipient
		}
		id, err := sender.DMChannel(d.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to open DM with %s: %w", d.OwnerID, err)
		}
		channelID = id
	}

	if d.Kind == types.DeliveryFile {
		content := d.Content
		if len(content) > discordMaxLength {
			content = content[:findSplitPoint(content, discordMaxLength)]
		}
		return sender.SendFile(channelID, content, d.Filename, "text/calendar", d.Attachment)
	}
	for _, chunk := range chunkMessage(d.Content, discordMaxLength) {
		if err := sender.Send(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

var errNoRecipient = errors.New("delivery has no channel or owner")

// isNonRetryableError reports client errors that will fail again unchanged
func isNonRetryableError(err error) bool {
	if errors.Is(err, errNoRecipient) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code >= 400 && code < 500
	}
	return false
}

// handleDeliveryError records a failed attempt. It returns true when the
// delivery is scheduled for another try, false when it failed for good.
func (e *DiscordEffector) handleDeliveryError(d *types.Delivery, err error, now time.Time) bool {
	if isNonRetryableError(err) {
		e.clearRetry(d.ID)
		log.Printf("[discord-effector] Delivery %d failed permanently: %v", d.ID, err)
		if e.onError != nil {
			e.onError(d.ID, string(d.Kind), err.Error())
		}
		return false
	}

	e.retryMu.Lock()
	state := e.retryStates[d.ID]
	if state == nil {
		state = &retryState{firstFailure: now}
		e.retryStates[d.ID] = state
	}
	state.attempts++
	if now.Sub(state.firstFailure) > e.maxRetryDuration {
		delete(e.retryStates, d.ID)
		e.retryMu.Unlock()
		log.Printf("[discord-effector] Giving up on delivery %d after %d attempts: %v", d.ID, state.attempts, err)
		if e.onError != nil {
			e.onError(d.ID, string(d.Kind), fmt.Sprintf("gave up after %d attempts: %v", state.attempts, err))
		}
		return false
	}
	backoff := time.Second << (state.attempts - 1)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	state.nextRetry = now.Add(backoff)
	attempt := state.attempts
	e.retryMu.Unlock()

	log.Printf("[discord-effector] Delivery %d failed (attempt %d), retrying in %v: %v", d.ID, attempt, backoff, err)
	if e.onRetry != nil {
		e.onRetry(d.ID, string(d.Kind), err.Error(), attempt, backoff)
	}
	return true
}

func (e *DiscordEffector) shouldRetryNow(id int64, now time.Time) bool {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	state, ok := e.retryStates[id]
	return !ok || !now.Before(state.nextRetry)
}

func (e *DiscordEffector) clearRetry(id int64) {
	e.retryMu.Lock()
	delete(e.retryStates, id)
	e.retryMu.Unlock()
}

// chunkMessage splits content into pieces of at most maxLen bytes,
// preferring paragraph, then line, then word boundaries
func chunkMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > maxLen {
		pt := findSplitPoint(content, maxLen)
		chunks = append(chunks, content[:pt])
		content = content[pt:]
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// findSplitPoint returns the index to cut content at so the first piece is
// at most maxLen bytes. Boundaries in the first half are ignored.
func findSplitPoint(content string, maxLen int) int {
	if len(content) <= maxLen {
		return len(content)
	}
	window := content[:maxLen]
	floor := maxLen / 2
	if i := strings.LastIndex(window, "\n\n"); i >= floor {
		return i + 2
	}
	if i := strings.LastIndex(window, "\n"); i >= floor {
		return i + 1
	}
	if i := strings.LastIndex(window, " "); i >= floor {
		return i + 1
	}
	// don't cut inside a UTF-8 sequence
	pt := maxLen
	for pt > floor && content[pt]&0xC0 == 0x80 {
		pt--
	}
	return pt
}
