// Package archive mines a workspace channel's history and reply threads
// into searchable Q&A entries. Nothing is persisted: every entry set is
// rebuilt from the live channel on cache miss and discarded on expiry or
// invalidation.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/cache"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/metrics"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

// QAEntry is one mined candidate question, or, when ThreadID is set, a
// reply inside a question's thread. Answer may be empty when no suitable
// reply was found.
type QAEntry struct {
	ID              string `json:"id"`
	Question        string `json:"question"`
	Answer          string `json:"answer"`
	Channel         string `json:"channel"`
	Author          string `json:"author"`
	TimestampMillis int64  `json:"timestamp_millis"`
	ThreadID        string `json:"thread_id,omitempty"`
}

type ChannelStats struct {
	Channel               string `json:"channel"`
	TotalQuestions        int    `json:"total_questions"`
	UniqueAuthors         int    `json:"unique_authors"`
	OldestTimestampMillis int64  `json:"oldest_timestamp_millis"`
	NewestTimestampMillis int64  `json:"newest_timestamp_millis"`
}

// minQuestionRunes is the length filter for crawled messages; anything
// shorter carries too little signal to match against.
const minQuestionRunes = 6

type Config struct {
	PageSize   int
	PageDelay  time.Duration
	CacheTTL   time.Duration
	MaxHistory int
}

// Archive owns the Q&A cache. It is the only writer; readers go through
// QAHistory and invalidation through Invalidate.
type Archive struct {
	api        slack.API
	store      cache.Store
	pageSize   int
	pageDelay  time.Duration
	cacheTTL   time.Duration
	maxHistory int
}

func New(api slack.API, store cache.Store, cfg Config) *Archive {
	if cfg.PageSize == 0 {
		cfg.PageSize = 200
	}
	if cfg.PageDelay == 0 {
		cfg.PageDelay = 100 * time.Millisecond
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if cfg.MaxHistory == 0 {
		cfg.MaxHistory = 1000
	}

	return &Archive{
		api:        api,
		store:      store,
		pageSize:   cfg.PageSize,
		pageDelay:  cfg.PageDelay,
		cacheTTL:   cfg.CacheTTL,
		maxHistory: cfg.MaxHistory,
	}
}

// MaxHistory is the crawl ceiling used for searches and stats.
func (a *Archive) MaxHistory() int {
	return a.maxHistory
}

// SlackAPI exposes the underlying client for callers that need a targeted
// fetch outside the cached crawl path.
func (a *Archive) SlackAPI() slack.API {
	return a.api
}

// QAHistory returns mined entries for the channel, cache-first. Upstream
// failures degrade to whatever was collected so far; the caller never sees
// an error, only fewer entries.
func (a *Archive) QAHistory(ctx context.Context, channel string, limit int) []QAEntry {
	key := cacheKey(channel, limit)

	if raw, ok := a.store.Get(ctx, key); ok {
		var entries []QAEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			metrics.CacheHits.WithLabelValues("archive").Inc()
			logger.Debug("Q&A history served from cache",
				zap.String("channel", channel),
				zap.Int("entries", len(entries)),
			)
			return entries
		}
		logger.Warn("Dropping undecodable cache entry", zap.String("key", key))
	}
	metrics.CacheMisses.WithLabelValues("archive").Inc()

	entries, ok := a.crawl(ctx, channel, limit)
	if !ok {
		// channel unresolvable: nothing worth caching
		return entries
	}

	if raw, err := json.Marshal(entries); err == nil {
		a.store.Set(ctx, key, raw, a.cacheTTL)
	}

	return entries
}

// Invalidate removes every cached entry set for the channel, regardless of
// limit. Called whenever new information is learned so the next search
// re-mines fresh data instead of waiting out the TTL.
func (a *Archive) Invalidate(ctx context.Context, channel string) {
	a.store.DeletePrefix(ctx, channelPrefix(channel))
	logger.Info("Channel cache invalidated", zap.String("channel", channel))
}

// Stats summarizes the channel's mined history.
func (a *Archive) Stats(ctx context.Context, channel string) ChannelStats {
	entries := a.QAHistory(ctx, channel, a.maxHistory)

	stats := ChannelStats{Channel: channel}
	authors := make(map[string]bool)

	for _, e := range entries {
		if e.ThreadID == "" {
			stats.TotalQuestions++
		}
		authors[e.Author] = true

		if stats.OldestTimestampMillis == 0 || e.TimestampMillis < stats.OldestTimestampMillis {
			stats.OldestTimestampMillis = e.TimestampMillis
		}
		if e.TimestampMillis > stats.NewestTimestampMillis {
			stats.NewestTimestampMillis = e.TimestampMillis
		}
	}

	stats.UniqueAuthors = len(authors)
	return stats
}

// ResolveChannelID maps a channel name to its platform ID.
func (a *Archive) ResolveChannelID(ctx context.Context, channel string) (string, error) {
	channels, err := a.api.ListChannels(ctx, 1000)
	if err != nil {
		return "", fmt.Errorf("failed to list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Name == channel {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("channel %q not found", channel)
}

func (a *Archive) crawl(ctx context.Context, channel string, limit int) ([]QAEntry, bool) {
	channelID, err := a.ResolveChannelID(ctx, channel)
	if err != nil {
		logger.Warn("Channel lookup failed", zap.String("channel", channel), zap.Error(err))
		return nil, false
	}

	botUserID, err := a.api.BotUserID(ctx)
	if err != nil {
		logger.Warn("Bot user ID lookup failed, own messages may be mined", zap.Error(err))
	}

	logger.Info("Crawling channel history",
		zap.String("channel", channel),
		zap.String("channel_id", channelID),
		zap.Int("limit", limit),
	)

	var entries []QAEntry
	cursor := ""
	collected := 0

	for collected < limit {
		page, err := a.api.ChannelHistory(ctx, channelID, cursor, a.pageSize)
		if err != nil {
			logger.Warn("History page fetch failed, returning partial result",
				zap.String("channel", channel),
				zap.Int("collected", collected),
				zap.Error(err),
			)
			break
		}
		metrics.CrawlPages.Inc()

		for _, msg := range page.Messages {
			if collected >= limit {
				break
			}
			if msg.Text == "" || msg.User == "" || msg.TS == "" {
				continue
			}
			if msg.BotID != "" || (botUserID != "" && msg.User == botUserID) {
				continue
			}
			if utf8.RuneCountInString(msg.Text) < minQuestionRunes {
				continue
			}

			replies, err := a.api.ThreadReplies(ctx, channelID, msg.TS)
			if err != nil {
				logger.Debug("Thread replies fetch failed", zap.String("ts", msg.TS), zap.Error(err))
				replies = nil
			}

			entries = append(entries, QAEntry{
				ID:              msg.TS,
				Question:        msg.Text,
				Answer:          PickBestAnswer(replies, botUserID),
				Channel:         channel,
				Author:          msg.User,
				TimestampMillis: slack.ParseTimestamp(msg.TS),
			})
			collected++

			// Freestanding thread remarks are searchable too, under the
			// parent's thread ID.
			for _, reply := range replies {
				if reply.BotID != "" || (botUserID != "" && reply.User == botUserID) {
					continue
				}
				if reply.Text == "" || reply.User == "" || reply.TS == "" {
					continue
				}
				if utf8.RuneCountInString(reply.Text) < minQuestionRunes {
					continue
				}
				entries = append(entries, QAEntry{
					ID:              reply.TS,
					Question:        reply.Text,
					Channel:         channel,
					Author:          reply.User,
					TimestampMillis: slack.ParseTimestamp(reply.TS),
					ThreadID:        msg.TS,
				})
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			break
		}

		// upstream rate limits: pause between pages
		select {
		case <-ctx.Done():
			logger.Warn("Crawl cancelled, returning partial result", zap.Int("collected", collected))
			return entries, true
		case <-time.After(a.pageDelay):
		}
	}

	metrics.EntriesCollected.Observe(float64(len(entries)))
	logger.Info("Channel crawl complete",
		zap.String("channel", channel),
		zap.Int("entries", len(entries)),
	)

	return entries, true
}

func cacheKey(channel string, limit int) string {
	return fmt.Sprintf("qa:%s:%d", channel, limit)
}

func channelPrefix(channel string) string {
	return fmt.Sprintf("qa:%s:", channel)
}
