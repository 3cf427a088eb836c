package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/archive"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/cache"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
)

type fakeAPI struct {
	channels []slack.Channel
	messages []slack.Message
	replies  map[string][]slack.Message
}

func (f *fakeAPI) BotUserID(ctx context.Context) (string, error) { return "UBOT", nil }

func (f *fakeAPI) ListChannels(ctx context.Context, limit int) ([]slack.Channel, error) {
	return f.channels, nil
}

func (f *fakeAPI) ChannelInfo(ctx context.Context, channelID string) (*slack.Channel, error) {
	for _, ch := range f.channels {
		if ch.ID == channelID {
			c := ch
			return &c, nil
		}
	}
	return nil, errors.New("channel_not_found")
}

func (f *fakeAPI) ChannelHistory(ctx context.Context, channelID, cursor string, limit int) (*slack.HistoryPage, error) {
	return &slack.HistoryPage{Messages: f.messages}, nil
}

func (f *fakeAPI) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]slack.Message, error) {
	return f.replies[threadTS], nil
}

func (f *fakeAPI) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	return "1700000099.000000", nil
}

func (f *fakeAPI) AddReaction(ctx context.Context, channelID, timestamp, name string) error {
	return nil
}

func (f *fakeAPI) RemoveReaction(ctx context.Context, channelID, timestamp, name string) error {
	return nil
}

func (f *fakeAPI) OpenSocketConnection(ctx context.Context) (string, error) {
	return "wss://example.invalid/socket", nil
}

func newTestMatcher(api slack.API) *Matcher {
	a := archive.New(api, cache.NewMemoryStore(), archive.Config{
		PageSize:   200,
		PageDelay:  time.Millisecond,
		CacheTTL:   2 * time.Minute,
		MaxHistory: 1000,
	})
	return New(a, 0.3, nil, nil)
}

func generalAPI() *fakeAPI {
	return &fakeAPI{
		channels: []slack.Channel{{ID: "C123", Name: "general"}},
		messages: []slack.Message{
			{Type: "message", User: "U1", Text: "배포는 어떻게 하나요?", TS: "1700000001.000000"},
			{Type: "message", User: "U2", Text: "회의실 예약했습니다 확인해주세요", TS: "1700000002.000000"},
		},
		replies: map[string][]slack.Message{
			"1700000001.000000": {
				{Type: "message", User: "U3", Text: "main 브랜치에 머지하면 CI가 자동으로 배포합니다", TS: "1700000003.000000"},
			},
		},
	}
}

func TestSearchFindsSimilarQuestion(t *testing.T) {
	m := newTestMatcher(generalAPI())

	result := m.Search(context.Background(), "배포 방법이 뭔가요", "general", 0)

	if !result.Found {
		t.Fatal("expected a match")
	}
	if result.MatchedQuestion != "배포는 어떻게 하나요?" {
		t.Errorf("MatchedQuestion = %q", result.MatchedQuestion)
	}
	if result.Answer != "main 브랜치에 머지하면 CI가 자동으로 배포합니다" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Similarity < 0.3 {
		t.Errorf("Similarity = %.3f, want >= 0.3", result.Similarity)
	}
}

func TestSearchUnrelatedQuestion(t *testing.T) {
	m := newTestMatcher(generalAPI())

	result := m.Search(context.Background(), "오늘 점심 뭐 먹지", "general", 0)

	if result.Found {
		t.Fatalf("unexpected match: %q (%.3f)", result.MatchedQuestion, result.Similarity)
	}
	if result.Answer != FallbackMessage {
		t.Errorf("Answer = %q, want fallback message", result.Answer)
	}
}

func TestSearchEmptyChannel(t *testing.T) {
	api := &fakeAPI{channels: []slack.Channel{{ID: "C123", Name: "general"}}}
	m := newTestMatcher(api)

	result := m.Search(context.Background(), "배포는 어떻게 하나요?", "general", 0)

	if result.Found {
		t.Error("expected no match in an empty channel")
	}
	if result.Answer != FallbackMessage {
		t.Errorf("Answer = %q, want fallback message", result.Answer)
	}
}

func TestSearchPrefersAnswerBearingMatch(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C123", Name: "general"}},
		messages: []slack.Message{
			// exact duplicate of the query but its thread has no answer
			{Type: "message", User: "U1", Text: "배포는 어떻게 하나요?", TS: "1700000001.000000"},
			// weaker match with a real answer
			{Type: "message", User: "U2", Text: "배포 방법이 뭔가요", TS: "1700000002.000000"},
		},
		replies: map[string][]slack.Message{
			"1700000002.000000": {
				{Type: "message", User: "U3", Text: "main 브랜치에 머지하면 CI가 자동으로 배포합니다", TS: "1700000004.000000"},
			},
		},
	}
	m := newTestMatcher(api)

	result := m.Search(context.Background(), "배포는 어떻게 하나요?", "general", 0)

	if !result.Found {
		t.Fatal("expected a match")
	}
	if result.MatchedQuestion != "배포 방법이 뭔가요" {
		t.Errorf("MatchedQuestion = %q, want the answer-bearing entry", result.MatchedQuestion)
	}
	if result.Answer != "main 브랜치에 머지하면 CI가 자동으로 배포합니다" {
		t.Errorf("Answer = %q", result.Answer)
	}
}

func TestSearchReminesMissingAnswer(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C123", Name: "general"}},
		messages: []slack.Message{
			{Type: "message", User: "U1", Text: "배포는 어떻게 하나요?", TS: "1700000001.000000"},
		},
	}
	m := newTestMatcher(api)
	ctx := context.Background()

	// snapshot the archive while the thread is still unanswered
	m.Search(ctx, "배포는 어떻게 하나요?", "general", 0)

	// answer arrives after the snapshot was cached
	api.replies = map[string][]slack.Message{
		"1700000001.000000": {
			{Type: "message", User: "U3", Text: "main 브랜치에 머지하면 CI가 자동으로 배포합니다", TS: "1700000005.000000"},
		},
	}

	result := m.Search(ctx, "배포 방법이 뭔가요", "general", 0)

	if !result.Found {
		t.Fatal("expected a match")
	}
	if result.Answer != "main 브랜치에 머지하면 CI가 자동으로 배포합니다" {
		t.Errorf("Answer = %q, want the re-mined answer", result.Answer)
	}
}

func TestSearchMatchWithoutAnswerFallsBack(t *testing.T) {
	api := &fakeAPI{
		channels: []slack.Channel{{ID: "C123", Name: "general"}},
		messages: []slack.Message{
			{Type: "message", User: "U1", Text: "배포는 어떻게 하나요?", TS: "1700000001.000000"},
		},
	}
	m := newTestMatcher(api)

	result := m.Search(context.Background(), "배포 방법이 뭔가요", "general", 0)

	if !result.Found {
		t.Fatal("expected the question itself to match")
	}
	if result.Answer != FallbackMessage {
		t.Errorf("Answer = %q, want fallback when the thread has no answer", result.Answer)
	}
}

func TestSearchThresholdOverride(t *testing.T) {
	m := newTestMatcher(generalAPI())
	ctx := context.Background()

	// the similar phrasing scores about 0.33; a stricter per-call
	// threshold must reject it
	result := m.Search(ctx, "배포 방법이 뭔가요", "general", 0.5)
	if result.Found {
		t.Errorf("matched %q at threshold 0.5, want no match", result.MatchedQuestion)
	}

	result = m.Search(ctx, "배포 방법이 뭔가요", "general", 0.3)
	if !result.Found {
		t.Error("expected a match at threshold 0.3")
	}
}

type upperReformatter struct{}

func (upperReformatter) Reformat(ctx context.Context, question, answer string) string {
	return "정리된 답변: " + answer
}

func TestSearchAppliesReformatter(t *testing.T) {
	a := archive.New(generalAPI(), cache.NewMemoryStore(), archive.Config{
		PageDelay: time.Millisecond,
	})
	m := New(a, 0.3, upperReformatter{}, nil)

	result := m.Search(context.Background(), "배포 방법이 뭔가요", "general", 0)

	if !result.Found {
		t.Fatal("expected a match")
	}
	if result.Answer != "정리된 답변: main 브랜치에 머지하면 CI가 자동으로 배포합니다" {
		t.Errorf("Answer = %q, want reformatted answer", result.Answer)
	}
}
