package matcher

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/archive"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/metrics"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/similarity"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/storage/models"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/storage/sqlite"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

const (
	// FallbackMessage is posted when no archived question clears the
	// similarity threshold.
	FallbackMessage = "새로운 질문이네요! 채널 담당자 님께 문의해주시면 좋을 것 같아요 💡"

	// ApologyMessage is posted when the search itself fails.
	ApologyMessage = "죄송해요, 검색 중 오류가 발생했어요 😓 잠시 후 다시 시도해주세요!"

	// answers at or under this many runes are treated as missing and
	// trigger a targeted re-mine of the matched thread
	minAnswerRunes = 3

	// similarity floor for locating the matched question's original
	// message during a re-mine
	remineThreshold = 0.5

	reminePageSize = 200
)

// Reformatter optionally polishes a mined answer before it is returned.
type Reformatter interface {
	Reformat(ctx context.Context, question, answer string) string
}

// SearchResult is the outcome of matching one incoming question against a
// channel's mined history.
type SearchResult struct {
	Found            bool    `json:"found"`
	OriginalQuestion string  `json:"original_question"`
	MatchedQuestion  string  `json:"matched_question,omitempty"`
	Answer           string  `json:"answer"`
	Similarity       float64 `json:"similarity"`
	Channel          string  `json:"channel"`
	TimestampMillis  int64   `json:"timestamp_millis,omitempty"`
	Author           string  `json:"author,omitempty"`
}

type Matcher struct {
	archive     *archive.Archive
	threshold   float64
	reformatter Reformatter
	store       *sqlite.Client
}

// New builds a matcher over the channel archive. reformatter and store may be
// nil; both are optional extras around the core keyword search.
func New(a *archive.Archive, threshold float64, reformatter Reformatter, store *sqlite.Client) *Matcher {
	if threshold <= 0 {
		threshold = 0.3
	}
	return &Matcher{
		archive:     a,
		threshold:   threshold,
		reformatter: reformatter,
		store:       store,
	}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Search finds the best archived match for question in channel. A positive
// threshold overrides the configured one for this call. Failures surface as
// Found=false so callers always have something to post.
func (m *Matcher) Search(ctx context.Context, question, channel string, threshold float64) SearchResult {
	if threshold <= 0 {
		threshold = m.threshold
	}

	start := time.Now()

	result := m.search(ctx, question, channel, threshold)

	elapsed := time.Since(start)
	metrics.SearchDuration.Observe(elapsed.Seconds())
	metrics.SearchSimilarity.Observe(result.Similarity)
	if result.Found {
		metrics.QuestionsTotal.WithLabelValues("answered").Inc()
	} else {
		metrics.QuestionsTotal.WithLabelValues("unanswered").Inc()
	}

	m.record(result, elapsed)

	logger.Info("Question searched",
		zap.String("channel", channel),
		zap.Bool("found", result.Found),
		zap.Float64("similarity", result.Similarity),
		zap.Duration("elapsed", elapsed),
	)

	return result
}

func (m *Matcher) search(ctx context.Context, question, channel string, threshold float64) SearchResult {
	result := SearchResult{
		OriginalQuestion: question,
		Channel:          channel,
		Answer:           FallbackMessage,
	}

	entries := m.archive.QAHistory(ctx, channel, m.archive.MaxHistory())
	if len(entries) == 0 {
		return result
	}

	best, bestScore := pickBest(question, entries, threshold)
	if best == nil {
		return result
	}

	result.Found = true
	result.MatchedQuestion = best.Question
	result.Similarity = bestScore
	result.TimestampMillis = best.TimestampMillis
	result.Author = best.Author

	answer := best.Answer
	if utf8.RuneCountInString(answer) <= minAnswerRunes {
		answer = m.remine(ctx, channel, best.Question)
	}
	if utf8.RuneCountInString(answer) <= minAnswerRunes {
		// matched but the thread never produced a usable answer
		result.Answer = FallbackMessage
		return result
	}

	if m.reformatter != nil {
		answer = m.reformatter.Reformat(ctx, question, answer)
	}
	result.Answer = answer

	return result
}

// pickBest prefers the highest-scoring entry that carries an answer; only
// when no answer-bearing entry clears the threshold does it fall back to the
// best bare match.
func pickBest(question string, entries []archive.QAEntry, threshold float64) (*archive.QAEntry, float64) {
	var (
		best          *archive.QAEntry
		bestScore     float64
		bestBare      *archive.QAEntry
		bestBareScore float64
	)

	for i := range entries {
		e := &entries[i]
		score := similarity.Score(question, e.Question)
		if score < threshold {
			continue
		}

		if utf8.RuneCountInString(e.Answer) > minAnswerRunes {
			if best == nil || score > bestScore {
				best = e
				bestScore = score
			}
		} else {
			if bestBare == nil || score > bestBareScore {
				bestBare = e
				bestBareScore = score
			}
		}
	}

	if best != nil {
		return best, bestScore
	}
	return bestBare, bestBareScore
}

// remine re-reads the channel's recent history looking for the message the
// matched question was mined from, then mines its thread again. Answers can
// appear after the archive snapshot was cached.
func (m *Matcher) remine(ctx context.Context, channel, matchedQuestion string) string {
	channelID, err := m.archive.ResolveChannelID(ctx, channel)
	if err != nil {
		logger.Debug("Re-mine skipped, channel lookup failed", zap.Error(err))
		return ""
	}

	api := m.archive.SlackAPI()

	botUserID, err := api.BotUserID(ctx)
	if err != nil {
		botUserID = ""
	}

	page, err := api.ChannelHistory(ctx, channelID, "", reminePageSize)
	if err != nil {
		logger.Debug("Re-mine skipped, history fetch failed", zap.Error(err))
		return ""
	}

	for _, msg := range page.Messages {
		if msg.Text == "" || msg.TS == "" {
			continue
		}
		if similarity.Score(matchedQuestion, msg.Text) <= remineThreshold {
			continue
		}

		replies, err := api.ThreadReplies(ctx, channelID, msg.TS)
		if err != nil {
			continue
		}
		if answer := archive.PickBestAnswer(replies, botUserID); answer != "" {
			logger.Debug("Re-mine recovered an answer", zap.String("ts", msg.TS))
			return answer
		}
	}

	return ""
}

func (m *Matcher) record(result SearchResult, elapsed time.Duration) {
	if m.store == nil {
		return
	}

	rec := &models.AnswerRecord{
		ID:              uuid.New().String(),
		Channel:         result.Channel,
		Question:        result.OriginalQuestion,
		MatchedQuestion: result.MatchedQuestion,
		Answer:          result.Answer,
		Similarity:      result.Similarity,
		Found:           result.Found,
		LatencyMS:       elapsed.Milliseconds(),
		CreatedAt:       time.Now(),
	}

	if err := m.store.InsertAnswerRecord(rec); err != nil {
		logger.Warn("Failed to record answer", zap.Error(err))
	}
}
