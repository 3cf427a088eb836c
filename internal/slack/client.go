package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/circuitbreaker"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/retry"
)

const defaultBaseURL = "https://slack.com/api"

// Client is the Web API client. All calls carry a bounded timeout and go
// through the shared retry/breaker pair; a platform-level ok:false response
// is surfaced as an *APIError.
type Client struct {
	botToken   string
	appToken   string
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	retryCfg   retry.Config

	mu        sync.Mutex
	botUserID string
}

type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack api %s failed: %s", e.Method, e.Code)
}

func NewClient(botToken, appToken string) *Client {
	cb := circuitbreaker.New("slack-api", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryCfg := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	return &Client{
		botToken: botToken,
		appToken: appToken,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb:       cb,
		retryCfg: retryCfg,
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r apiResponse) ok() bool { return r.OK }
func (r apiResponse) code() string { return r.Error }

type okChecker interface {
	ok() bool
	code() string
}

func (c *Client) call(ctx context.Context, token, method string, params url.Values, out okChecker) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		return c.cb.Execute(func() error {
			return c.doCall(ctx, token, method, params, out)
		})
	})
}

func (c *Client) doCall(ctx context.Context, token, method string, params url.Values, out okChecker) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	if !out.ok() {
		return &APIError{Method: method, Code: out.code()}
	}

	return nil
}

// BotUserID resolves and caches the bot's own user ID, used everywhere to
// recognize and skip the bot's messages.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.botUserID != "" {
		id := c.botUserID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var resp struct {
		apiResponse
		UserID string `json:"user_id"`
	}
	if err := c.call(ctx, c.botToken, "auth.test", url.Values{}, &resp); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.botUserID = resp.UserID
	c.mu.Unlock()

	logger.Debug("Bot user ID resolved", zap.String("user_id", resp.UserID))
	return resp.UserID, nil
}

func (c *Client) ListChannels(ctx context.Context, limit int) ([]Channel, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var resp struct {
		apiResponse
		Channels []Channel `json:"channels"`
	}
	if err := c.call(ctx, c.botToken, "conversations.list", params, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

func (c *Client) ChannelInfo(ctx context.Context, channelID string) (*Channel, error) {
	params := url.Values{}
	params.Set("channel", channelID)

	var resp struct {
		apiResponse
		Channel Channel `json:"channel"`
	}
	if err := c.call(ctx, c.botToken, "conversations.info", params, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

func (c *Client) ChannelHistory(ctx context.Context, channelID, cursor string, limit int) (*HistoryPage, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp struct {
		apiResponse
		Messages         []Message `json:"messages"`
		ResponseMetadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
	}
	if err := c.call(ctx, c.botToken, "conversations.history", params, &resp); err != nil {
		return nil, err
	}

	return &HistoryPage{
		Messages:   resp.Messages,
		NextCursor: resp.ResponseMetadata.NextCursor,
	}, nil
}

// ThreadReplies returns the replies under threadTS, excluding the top-level
// message the platform prepends.
func (c *Client) ThreadReplies(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("ts", threadTS)

	var resp struct {
		apiResponse
		Messages []Message `json:"messages"`
	}
	if err := c.call(ctx, c.botToken, "conversations.replies", params, &resp); err != nil {
		return nil, err
	}

	if len(resp.Messages) > 0 {
		return resp.Messages[1:], nil
	}
	return nil, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("text", text)
	if threadTS != "" {
		params.Set("thread_ts", threadTS)
	}

	var resp struct {
		apiResponse
		TS string `json:"ts"`
	}
	if err := c.call(ctx, c.botToken, "chat.postMessage", params, &resp); err != nil {
		return "", err
	}
	return resp.TS, nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, timestamp, name string) error {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("timestamp", timestamp)
	params.Set("name", name)

	var resp apiResponse
	return c.call(ctx, c.botToken, "reactions.add", params, &resp)
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, timestamp, name string) error {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("timestamp", timestamp)
	params.Set("name", name)

	var resp apiResponse
	return c.call(ctx, c.botToken, "reactions.remove", params, &resp)
}

// OpenSocketConnection asks the session broker for a one-time websocket URL.
// This is the only call authenticated with the app-level token.
func (c *Client) OpenSocketConnection(ctx context.Context) (string, error) {
	var resp struct {
		apiResponse
		URL string `json:"url"`
	}
	if err := c.call(ctx, c.appToken, "apps.connections.open", url.Values{}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}
