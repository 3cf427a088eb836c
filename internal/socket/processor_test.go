package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/archive"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/cache"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/matcher"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
)

type fakeAPI struct {
	mu       sync.Mutex
	channels []slack.Channel
	messages []slack.Message
	replies  map[string][]slack.Message

	historyCalls int
	posts        []string
	postThreads  []string
	reactions    []string
	reactionTS   []string
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return &slack.HistoryPage{Messages: f.messages}, nil
}

func (f *fakeAPI) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]slack.Message, error) {
	return f.replies[threadTS], nil
}

func (f *fakeAPI) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	f.postThreads = append(f.postThreads, threadTS)
	return "1700000099.000000", nil
}

func (f *fakeAPI) AddReaction(ctx context.Context, channelID, timestamp, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "+"+name)
	f.reactionTS = append(f.reactionTS, timestamp)
	return nil
}

func (f *fakeAPI) RemoveReaction(ctx context.Context, channelID, timestamp, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "-"+name)
	f.reactionTS = append(f.reactionTS, timestamp)
	return nil
}

func (f *fakeAPI) OpenSocketConnection(ctx context.Context) (string, error) {
	return "wss://example.invalid/socket", nil
}

type fakeAcker struct {
	mu    sync.Mutex
	sends []interface{}
}

func (a *fakeAcker) Send(v interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, v)
	return nil
}

func answeredAPI() *fakeAPI {
	return &fakeAPI{
		channels: []slack.Channel{{ID: "C123", Name: "general"}},
		messages: []slack.Message{
			{Type: "message", User: "U1", Text: "배포는 어떻게 하나요?", TS: "1700000001.000000"},
		},
		replies: map[string][]slack.Message{
			"1700000001.000000": {
				{Type: "message", User: "U3", Text: "main 브랜치에 머지하면 CI가 자동으로 배포합니다", TS: "1700000002.000000"},
			},
		},
	}
}

func newTestProcessor(api slack.API) *Processor {
	a := archive.New(api, cache.NewMemoryStore(), archive.Config{
		PageDelay: time.Millisecond,
	})
	m := matcher.New(a, 0.3, nil, nil)
	return NewProcessor(api, a, m)
}

func questionEnvelope(envelopeID, ts, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "events_api",
		"envelope_id": %q,
		"payload": {"event": {"type": "message", "user": "U9", "text": %q, "ts": %q, "channel": "C123"}}
	}`, envelopeID, text, ts))
}

func TestHandleFrameAcksEnvelope(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)
	acker := &fakeAcker{}

	p.HandleFrame(context.Background(), acker, questionEnvelope("env-1", "1700000010.000000", "배포 방법이 뭔가요"))

	if len(acker.sends) != 1 {
		t.Fatalf("got %d acks, want 1", len(acker.sends))
	}
	ack, ok := acker.sends[0].(map[string]string)
	if !ok || ack["envelope_id"] != "env-1" {
		t.Errorf("ack = %#v, want envelope_id env-1", acker.sends[0])
	}
}

func TestHandleFrameHelloSendsNothing(t *testing.T) {
	p := newTestProcessor(answeredAPI())
	acker := &fakeAcker{}

	p.HandleFrame(context.Background(), acker, []byte(`{"type": "hello"}`))

	if len(acker.sends) != 0 {
		t.Errorf("got %d sends for hello, want 0", len(acker.sends))
	}
}

func TestQuestionAnsweredReactionSequence(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)

	p.HandleFrame(context.Background(), &fakeAcker{}, questionEnvelope("env-1", "1700000010.000000", "배포 방법이 뭔가요"))

	if len(api.posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(api.posts))
	}
	if api.posts[0] != "main 브랜치에 머지하면 CI가 자동으로 배포합니다" {
		t.Errorf("posted %q", api.posts[0])
	}

	want := []string{"+eyes", "+mag", "-mag", "+brain", "-brain", "+white_check_mark"}
	if len(api.reactions) != len(want) {
		t.Fatalf("reactions = %v, want %v", api.reactions, want)
	}
	for i, r := range want {
		if api.reactions[i] != r {
			t.Errorf("reactions[%d] = %q, want %q", i, api.reactions[i], r)
		}
	}
}

func TestQuestionUnansweredReactionSequence(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)

	p.HandleFrame(context.Background(), &fakeAcker{}, questionEnvelope("env-1", "1700000010.000000", "점심 메뉴 누가 정했어요?"))

	if len(api.posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(api.posts))
	}
	if api.posts[0] != matcher.FallbackMessage {
		t.Errorf("posted %q, want fallback message", api.posts[0])
	}

	want := []string{"+eyes", "+mag", "-mag", "+question"}
	if len(api.reactions) != len(want) {
		t.Fatalf("reactions = %v, want %v", api.reactions, want)
	}
	for i, r := range want {
		if api.reactions[i] != r {
			t.Errorf("reactions[%d] = %q, want %q", i, api.reactions[i], r)
		}
	}
}

func TestDuplicateEnvelopeAnsweredOnce(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)
	ctx := context.Background()

	frame := questionEnvelope("env-1", "1700000010.000000", "배포 방법이 뭔가요")
	p.HandleFrame(ctx, &fakeAcker{}, frame)
	p.HandleFrame(ctx, &fakeAcker{}, frame)

	if len(api.posts) != 1 {
		t.Errorf("got %d posts for a redelivered envelope, want 1", len(api.posts))
	}
}

func TestNonQuestionMessageIgnored(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)

	p.HandleFrame(context.Background(), &fakeAcker{}, questionEnvelope("env-1", "1700000010.000000", "오늘 날씨가 좋네요"))

	if len(api.posts) != 0 {
		t.Errorf("got %d posts for a non-question, want 0", len(api.posts))
	}
	if len(api.reactions) != 0 {
		t.Errorf("got reactions %v for a non-question, want none", api.reactions)
	}
}

func TestBotMessageIgnored(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)

	frame := []byte(`{
		"type": "events_api",
		"envelope_id": "env-1",
		"payload": {"event": {"type": "message", "user": "UBOT", "text": "배포 방법이 뭔가요", "ts": "1700000010.000000", "channel": "C123"}}
	}`)
	p.HandleFrame(context.Background(), &fakeAcker{}, frame)

	if len(api.posts) != 0 {
		t.Errorf("got %d posts for the bot's own message, want 0", len(api.posts))
	}
}

func TestMentionStripsBotTagAndAnswers(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)

	frame := []byte(`{
		"type": "events_api",
		"envelope_id": "env-1",
		"payload": {"event": {"type": "app_mention", "user": "U9", "text": "<@UBOT123> 배포 방법이 뭔가요", "ts": "1700000010.000000", "channel": "C123"}}
	}`)
	p.HandleFrame(context.Background(), &fakeAcker{}, frame)

	if len(api.posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(api.posts))
	}
	if api.posts[0] != "main 브랜치에 머지하면 CI가 자동으로 배포합니다" {
		t.Errorf("posted %q", api.posts[0])
	}
}

func TestMentionInAnsweredThreadStillAnswered(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)
	ctx := context.Background()

	p.HandleFrame(ctx, &fakeAcker{}, questionEnvelope("env-1", "1700000010.000000", "배포 방법이 뭔가요"))
	if len(api.posts) != 1 {
		t.Fatalf("got %d posts after the first question, want 1", len(api.posts))
	}
	reactionsAfterFirst := len(api.reactionTS)

	// a mention in the thread of the answered question is a new event and
	// must be handled on its own timestamp
	frame := []byte(`{
		"type": "events_api",
		"envelope_id": "env-2",
		"payload": {"event": {"type": "app_mention", "user": "U9", "text": "<@UBOT123> 배포 절차가 어떻게 되나요", "ts": "1700000020.000000", "thread_ts": "1700000010.000000", "channel": "C123"}}
	}`)
	p.HandleFrame(ctx, &fakeAcker{}, frame)

	if len(api.posts) != 2 {
		t.Fatalf("mention inside an answered thread got %d posts, want 2", len(api.posts))
	}
	if api.postThreads[1] != "1700000020.000000" {
		t.Errorf("reply threaded on %q, want the mention's own ts", api.postThreads[1])
	}
	for _, ts := range api.reactionTS[reactionsAfterFirst:] {
		if ts != "1700000020.000000" {
			t.Errorf("reaction targeted %q, want the mention's own ts", ts)
		}
	}
}

func TestThreadReplyInvalidatesCache(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)
	ctx := context.Background()

	// warm the cache
	p.HandleFrame(ctx, &fakeAcker{}, questionEnvelope("env-1", "1700000010.000000", "배포 방법이 뭔가요"))
	callsAfterWarm := api.historyCalls

	// substantive thread reply arrives
	frame := []byte(`{
		"type": "events_api",
		"envelope_id": "env-2",
		"payload": {"event": {"type": "message", "user": "U5", "text": "롤백은 release 브랜치에서 revert 커밋으로 처리합니다", "ts": "1700000011.000000", "thread_ts": "1700000001.000000", "channel": "C123"}}
	}`)
	p.HandleFrame(ctx, &fakeAcker{}, frame)

	// next question must recrawl
	p.HandleFrame(ctx, &fakeAcker{}, questionEnvelope("env-3", "1700000012.000000", "배포 방법 다시 알려주세요"))

	if api.historyCalls == callsAfterWarm {
		t.Error("expected a recrawl after a learned thread reply")
	}
}

func TestShortThreadReplyDoesNotInvalidate(t *testing.T) {
	api := answeredAPI()
	p := newTestProcessor(api)
	ctx := context.Background()

	p.HandleFrame(ctx, &fakeAcker{}, questionEnvelope("env-1", "1700000010.000000", "배포 방법이 뭔가요"))
	callsAfterWarm := api.historyCalls

	frame := []byte(`{
		"type": "events_api",
		"envelope_id": "env-2",
		"payload": {"event": {"type": "message", "user": "U5", "text": "감사합니다", "ts": "1700000011.000000", "thread_ts": "1700000001.000000", "channel": "C123"}}
	}`)
	p.HandleFrame(ctx, &fakeAcker{}, frame)

	p.HandleFrame(ctx, &fakeAcker{}, questionEnvelope("env-3", "1700000012.000000", "배포 방법 다시 알려주세요"))

	if api.historyCalls != callsAfterWarm {
		t.Errorf("historyCalls = %d, want %d (short replies must not invalidate)", api.historyCalls, callsAfterWarm)
	}
}
