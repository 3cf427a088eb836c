package slack

import (
	"context"
	"strconv"
	"time"
)

// Message is a single channel or thread message as delivered by the
// messaging platform. Timestamps are the platform's string form
// ("1700000000.000100"); they double as message IDs.
type Message struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user"`
	BotID    string `json:"bot_id,omitempty"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryPage is one page of channel history plus the cursor for the next.
type HistoryPage struct {
	Messages   []Message
	NextCursor string
}

// API is the boundary to the messaging platform. The concrete Client talks
// to the real Web API; tests substitute fakes.
type API interface {
	BotUserID(ctx context.Context) (string, error)
	ListChannels(ctx context.Context, limit int) ([]Channel, error)
	ChannelInfo(ctx context.Context, channelID string) (*Channel, error)
	ChannelHistory(ctx context.Context, channelID, cursor string, limit int) (*HistoryPage, error)
	ThreadReplies(ctx context.Context, channelID, threadTS string) ([]Message, error)
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error)
	AddReaction(ctx context.Context, channelID, timestamp, name string) error
	RemoveReaction(ctx context.Context, channelID, timestamp, name string) error
	OpenSocketConnection(ctx context.Context) (string, error)
}

// ParseTimestamp converts a platform timestamp to unix milliseconds,
// falling back to the current time when it is malformed.
func ParseTimestamp(ts string) int64 {
	secs, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return int64(secs * 1000)
}
