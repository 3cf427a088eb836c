package socket

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/archive"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/matcher"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/metrics"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

// Acker acknowledges socket-mode envelopes.
type Acker interface {
	Send(v interface{}) error
}

const (
	reactionSeen     = "eyes"
	reactionSearch   = "mag"
	reactionCompose  = "brain"
	reactionAnswered = "white_check_mark"
	reactionUnknown  = "question"
	reactionFailed   = "x"
)

// thread replies at least this long are treated as new information worth
// invalidating the channel cache for
const minLearnRunes = 10

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

type envelope struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload"`
}

type eventsPayload struct {
	Event json.RawMessage `json:"event"`
}

type messageEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	Channel  string `json:"channel"`
}

// Processor turns socket-mode envelopes into searches and replies. Each
// question is acknowledged with reactions as it moves through the pipeline:
// eyes when seen, mag while searching, then white_check_mark, question, or x
// depending on the outcome.
type Processor struct {
	api     slack.API
	archive *archive.Archive
	matcher *matcher.Matcher

	botOnce   sync.Once
	botUserID string

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewProcessor(api slack.API, a *archive.Archive, m *matcher.Matcher) *Processor {
	return &Processor{
		api:     api,
		archive: a,
		matcher: m,
		seen:    make(map[string]struct{}),
	}
}

// Run consumes frames until the channel closes. Frames are handled
// concurrently so a slow search never blocks acknowledgements.
func (p *Processor) Run(ctx context.Context, conn *Conn) {
	for raw := range conn.Frames() {
		frame := raw
		go p.HandleFrame(ctx, conn, frame)
	}
}

// HandleFrame parses one envelope, acknowledges it, and dispatches the event.
func (p *Processor) HandleFrame(ctx context.Context, acker Acker, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Warn("Undecodable socket frame", zap.Error(err))
		return
	}

	switch env.Type {
	case "hello":
		logger.Info("Socket session established")
		return
	case "disconnect":
		logger.Info("Server requested disconnect")
		return
	case "events_api":
	default:
		logger.Debug("Ignoring socket frame", zap.String("type", env.Type))
		return
	}

	// ack before doing any work; a slow search must not make the server
	// redeliver the envelope
	if env.EnvelopeID != "" {
		if err := acker.Send(map[string]string{"envelope_id": env.EnvelopeID}); err != nil {
			logger.Warn("Envelope ack failed", zap.Error(err))
		}
	}

	var payload eventsPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		logger.Warn("Undecodable event payload", zap.Error(err))
		return
	}

	var ev messageEvent
	if err := json.Unmarshal(payload.Event, &ev); err != nil {
		logger.Warn("Undecodable event", zap.Error(err))
		return
	}

	metrics.EventsTotal.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case "message":
		p.handleMessage(ctx, ev)
	case "app_mention":
		p.handleMention(ctx, ev)
	}
}

func (p *Processor) handleMessage(ctx context.Context, ev messageEvent) {
	if ev.Subtype != "" || ev.BotID != "" || ev.User == "" || ev.User == p.botID(ctx) {
		return
	}

	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		p.learnFromReply(ctx, ev)
		return
	}

	if !archive.IsQuestion(ev.Text) {
		return
	}

	p.processQuestion(ctx, ev.Channel, ev.TS, ev.Text)
}

// handleMention answers any directed text, question-shaped or not. Someone
// who mentions the bot wants a reply.
func (p *Processor) handleMention(ctx context.Context, ev messageEvent) {
	if ev.BotID != "" || ev.User == "" || ev.User == p.botID(ctx) {
		return
	}

	text := strings.TrimSpace(mentionPattern.ReplaceAllString(ev.Text, ""))
	if text == "" {
		return
	}

	p.processQuestion(ctx, ev.Channel, ev.TS, text)
}

// learnFromReply invalidates the channel cache when a thread gains a
// substantive non-question reply, so the next search can mine it as an
// answer.
func (p *Processor) learnFromReply(ctx context.Context, ev messageEvent) {
	if archive.IsQuestion(ev.Text) {
		return
	}
	if utf8.RuneCountInString(ev.Text) < minLearnRunes {
		return
	}

	info, err := p.api.ChannelInfo(ctx, ev.Channel)
	if err != nil {
		logger.Debug("Channel lookup failed, skipping invalidation", zap.Error(err))
		return
	}

	logger.Info("New answer learned",
		zap.String("channel", info.Name),
		zap.String("thread", ev.ThreadTS),
	)
	p.archive.Invalidate(ctx, info.Name)
}

func (p *Processor) processQuestion(ctx context.Context, channelID, ts, text string) {
	key := channelID + ":" + ts
	p.mu.Lock()
	if _, dup := p.seen[key]; dup {
		p.mu.Unlock()
		logger.Debug("Duplicate event dropped", zap.String("key", key))
		return
	}
	p.seen[key] = struct{}{}
	p.mu.Unlock()

	p.react(ctx, channelID, ts, reactionSeen, true)
	p.react(ctx, channelID, ts, reactionSearch, true)

	info, err := p.api.ChannelInfo(ctx, channelID)
	if err != nil {
		logger.Error("Channel lookup failed", zap.String("channel", channelID), zap.Error(err))
		p.react(ctx, channelID, ts, reactionSearch, false)
		p.react(ctx, channelID, ts, reactionFailed, true)
		p.post(ctx, channelID, ts, matcher.ApologyMessage)
		return
	}

	result := p.matcher.Search(ctx, text, info.Name, 0)

	p.react(ctx, channelID, ts, reactionSearch, false)

	if !result.Found {
		p.react(ctx, channelID, ts, reactionUnknown, true)
		p.post(ctx, channelID, ts, result.Answer)
		return
	}

	p.react(ctx, channelID, ts, reactionCompose, true)

	if err := p.post(ctx, channelID, ts, result.Answer); err != nil {
		p.react(ctx, channelID, ts, reactionCompose, false)
		p.react(ctx, channelID, ts, reactionFailed, true)
		return
	}

	p.react(ctx, channelID, ts, reactionCompose, false)
	p.react(ctx, channelID, ts, reactionAnswered, true)
}

func (p *Processor) post(ctx context.Context, channelID, threadTS, text string) error {
	_, err := p.api.PostMessage(ctx, channelID, text, threadTS)
	if err != nil {
		logger.Error("Reply failed", zap.String("channel", channelID), zap.Error(err))
	}
	return err
}

// react adds or removes a reaction, best effort. The pipeline never stalls
// on reaction failures.
func (p *Processor) react(ctx context.Context, channelID, ts, name string, add bool) {
	var err error
	if add {
		err = p.api.AddReaction(ctx, channelID, ts, name)
	} else {
		err = p.api.RemoveReaction(ctx, channelID, ts, name)
	}
	if err != nil {
		metrics.ReactionFailures.Inc()
		logger.Debug("Reaction update failed",
			zap.String("reaction", name),
			zap.Bool("add", add),
			zap.Error(err),
		)
	}
}

func (p *Processor) botID(ctx context.Context) string {
	p.botOnce.Do(func() {
		id, err := p.api.BotUserID(ctx)
		if err != nil {
			logger.Warn("Bot user ID lookup failed", zap.Error(err))
			return
		}
		p.botUserID = id
	})
	return p.botUserID
}
