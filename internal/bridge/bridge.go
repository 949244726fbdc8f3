// Package bridge routes inbound channel messages to the Run Executor,
// deriving a stable per-chat session id from (channelID, chatID) so each
// chat maintains its own persistent transcript (spec.md 4.7/6).
//
// Grounded on internal/channels.Registry.AggregateMessages (consumed here
// as the inbound fan-in) and the general session-key-derivation idiom used
// throughout the corpus's session packages; the filtering pipeline (DM/
// group policy, allow/blocklist, rate limit, debounce) is grounded on
// spec.md section 4.7's adapter requirements and reuses
// internal/channels.RateLimiter and internal/channels.MessageQueue rather
// than re-implementing either.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neurana/undoable-sub002/internal/channels"
	"github.com/neurana/undoable-sub002/internal/pairing"
	"github.com/neurana/undoable-sub002/internal/runs"
	"github.com/neurana/undoable-sub002/pkg/models"
)

// RunFunc fires a run for a bridged message and returns the created run's
// id. Passed as a function value (like scheduler.ExecutorFunc) to avoid a
// bridge<->executor construction cycle.
type RunFunc func(ctx context.Context, input models.CreateRunInput) (runID string, err error)

// ConfigLookup returns the current ChannelConfig for a channel, or false if
// the channel is unknown.
type ConfigLookup func(channelID models.ChannelType) (models.ChannelConfig, bool)

// Bridge consumes inbound channel messages and turns admitted ones into
// runs. Exactly one Bridge is constructed per daemon.
type Bridge struct {
	runs    *runs.Manager
	runFn   RunFunc
	configs ConfigLookup
	pairing *pairing.Store
	limiter *channels.MultiRateLimiter
	queue   *channels.MessageQueue
	agentID string
	log     *slog.Logger

	limiterMu  sync.Mutex
	registered map[string]bool
}

// Option configures optional Bridge behavior.
type Option func(*Bridge)

// WithPairingStore enables pairing-gated DM admission for channels whose
// derived DMPolicy is "pairing".
func WithPairingStore(store *pairing.Store) Option {
	return func(b *Bridge) { b.pairing = store }
}

// WithDefaultAgentID sets the agentID used for bridged runs when the
// channel message carries none.
func WithDefaultAgentID(agentID string) Option {
	return func(b *Bridge) { b.agentID = agentID }
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.log = logger
		}
	}
}

// New constructs a Bridge. debounceMs/maxQueueSize configure the bounded
// debounce queue (spec.md 4.7); runManager is used only to derive/confirm
// session ids are backed by persisted runs.
func New(runManager *runs.Manager, runFn RunFunc, configs ConfigLookup, debounceMs int, maxQueueSize int, opts ...Option) *Bridge {
	b := &Bridge{
		runs:       runManager,
		runFn:      runFn,
		configs:    configs,
		limiter:    channels.NewMultiRateLimiter(),
		agentID:    "default",
		log:        slog.Default(),
		registered: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = channels.NewMessageQueue(time.Duration(debounceMs)*time.Millisecond, maxQueueSize, b.drain)
	return b
}

// SessionKey derives the stable per-chat session id from a channel id and a
// platform chat id, matching spec.md 4.7's "stable sessionId derived from
// (channelId, chatId)".
func SessionKey(channelID models.ChannelType, chatID string) string {
	return fmt.Sprintf("%s:%s", channelID, chatID)
}

// Run consumes the registry's aggregated inbound stream until ctx is
// cancelled. Each accepted message is routed through the filter pipeline,
// debounced per session, and eventually turned into one run per drained
// batch (batched messages are joined into a single instruction).
func (b *Bridge) Run(ctx context.Context, registry *channels.Registry) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-registry.AggregateMessages(ctx):
			if !ok {
				return
			}
			b.Ingest(ctx, msg)
		}
	}
}

// Ingest applies the admission pipeline to a single inbound message and, if
// admitted, enqueues it on the debounce queue.
func (b *Bridge) Ingest(ctx context.Context, msg *models.Message) {
	if msg == nil || msg.Direction != models.DirectionInbound {
		return
	}

	cfg, ok := b.configs(msg.Channel)
	if !ok || !cfg.Enabled {
		return
	}

	isGroup := isGroupChat(msg)
	if isGroup && !cfg.AllowGroups {
		return
	}
	if !isGroup && !cfg.AllowDMs {
		return
	}

	sender := senderID(msg)
	if blocklisted(cfg.UserBlocklist, sender) {
		return
	}
	if len(cfg.UserAllowlist) > 0 && !allowlisted(cfg.UserAllowlist, sender) {
		return
	}

	if !isGroup && b.pairing != nil {
		status := models.DeriveChannelStatus(cfg, false, 0, "", false)
		if status.DMPolicy == models.DMPolicyPairing {
			allowed, err := b.pairing.IsAllowed(string(msg.Channel), sender)
			if err != nil || !allowed {
				b.requestPairing(msg.Channel, sender)
				return
			}
		}
	}

	if cfg.RateLimit > 0 {
		key := rateLimitKey(msg.Channel, sender)
		b.ensureLimiter(key, cfg.RateLimit)
		if !b.limiter.Allow(key) {
			return
		}
	}

	key := SessionKey(msg.Channel, sessionChatID(msg))
	b.queue.Enqueue(key, msg)
}

// requestPairing issues (or refreshes) a pairing code for an unpaired DM
// sender and drops the message without creating a run. There is no UI/CLI
// surface in scope here to deliver the code to an operator, so it is
// logged at info level, the way an operator would watch for it until one
// exists.
func (b *Bridge) requestPairing(channel models.ChannelType, sender string) {
	code, created, err := b.pairing.UpsertRequest(string(channel), sender, nil)
	if err != nil {
		b.log.Warn("bridge: pairing request failed", "channel", channel, "sender", sender, "error", err)
		return
	}
	if created {
		b.log.Info("bridge: new pairing request, approve to admit this sender", "channel", channel, "sender", sender, "code", code)
	} else {
		b.log.Debug("bridge: dropping message from still-unpaired sender", "channel", channel, "sender", sender)
	}
}

func (b *Bridge) drain(key string, messages []*models.Message) {
	if len(messages) == 0 {
		return
	}
	instruction := joinInstructions(messages)
	ctx := context.Background()
	runID, err := b.runFn(ctx, models.CreateRunInput{
		UserID:      senderID(messages[len(messages)-1]),
		AgentID:     b.agentID,
		Instruction: instruction,
		SessionID:   key,
	})
	if err != nil {
		b.log.Error("bridge: failed to create run", "session", key, "error", err)
		return
	}
	b.log.Debug("bridge: created run", "session", key, "run_id", runID)
}

func joinInstructions(messages []*models.Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	out := ""
	for i, m := range messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

func isGroupChat(msg *models.Message) bool {
	if msg.Metadata == nil {
		return false
	}
	if v, ok := msg.Metadata["is_group"].(bool); ok {
		return v
	}
	return false
}

func senderID(msg *models.Message) string {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["user_id"].(string); ok && v != "" {
			return v
		}
	}
	return msg.ChannelID
}

func sessionChatID(msg *models.Message) string {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["chat_id"]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	if msg.SessionID != "" {
		return msg.SessionID
	}
	return msg.ChannelID
}

func (b *Bridge) ensureLimiter(key string, maxPerMinute int) {
	b.limiterMu.Lock()
	defer b.limiterMu.Unlock()
	if b.registered[key] {
		return
	}
	b.limiter.Add(key, float64(maxPerMinute)/60.0, maxPerMinute)
	b.registered[key] = true
}

func rateLimitKey(channel models.ChannelType, sender string) string {
	return fmt.Sprintf("%s:%s", channel, sender)
}

func blocklisted(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func allowlisted(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
