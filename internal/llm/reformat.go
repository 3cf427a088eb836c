package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/circuitbreaker"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/retry"
)

// Reformatter rewrites mined answers into a friendlier reply before posting.
// Every failure falls back to the raw answer so the bot keeps working when
// the LLM is down.
type Reformatter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func NewReformatter(cfg Config) *Reformatter {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM reformatter initialized", zap.String("model", cfg.Model))

	return &Reformatter{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

const reformatSystemPrompt = `당신은 사내 Q&A 봇입니다. 과거 대화에서 찾은 답변을 질문자에게 전달하기 좋게 다듬어 주세요.

규칙:
- 답변의 사실 관계를 바꾸거나 새로운 내용을 추가하지 마세요
- 존댓말을 사용하고 2-3문장 이내로 간결하게 작성하세요
- 답변에 포함된 링크, 명령어, 코드 블록은 그대로 유지하세요`

// Reformat rewrites answer against question. The original answer is returned
// unchanged on any error.
func (r *Reformatter) Reformat(ctx context.Context, question, answer string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("질문: %s\n\n과거 답변: %s\n\n다듬은 답변만 출력하세요.", question, answer)

	var reformatted string

	err := r.cb.Execute(func() error {
		out, err := retry.DoWithResult(ctx, r.retryConfig, func() (string, error) {
			resp, err := r.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: r.model,
					Messages: []openai.ChatCompletionMessage{
						{
							Role:    openai.ChatMessageRoleSystem,
							Content: reformatSystemPrompt,
						},
						{
							Role:    openai.ChatMessageRoleUser,
							Content: userPrompt,
						},
					},
					Temperature: r.temperature,
					MaxTokens:   r.maxTokens,
				},
			)

			if err != nil {
				return "", fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("completion returned no choices")
			}

			return strings.TrimSpace(resp.Choices[0].Message.Content), nil
		})
		reformatted = out
		return err
	})

	if err != nil || reformatted == "" {
		logger.Warn("Answer reformatting failed, using original", zap.Error(err))
		return answer
	}

	logger.Debug("Answer reformatted",
		zap.Int("original_length", len(answer)),
		zap.Int("reformatted_length", len(reformatted)),
	)

	return reformatted
}
