package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	CategoryApproval  = "APPROVAL"
	CategoryRejection = "REJECTION"
	CategoryInfo      = "INFO"
	CategoryQuestion  = "QUESTION"
	CategoryOther     = "OTHER"
	CategoryError     = "ERROR"
)

const (
	summaryMaxTokens  = 200
	summaryTemp       = 0.3
	generateMaxTokens = 150
	generateTemp      = 0.7
	smsMaxChars       = 160
	voiceMaxChars     = 300
)

var (
	ErrNotConfigured = errors.New("summarizer is not configured")
	ErrEmptyAnswer   = errors.New("empty completion answer")
)

const summarySystemPrompt = `You are a fleet management assistant. You analyze and summarize spoken replies from drivers.
Classify the reply into one of these categories:
- APPROVAL: the driver accepts the request
- REJECTION: the driver declines the request
- INFO: the driver shares information
- QUESTION: the driver asks a question
- OTHER: anything else

Answer only with JSON: {"category": "...", "summary": "...", "action_required": true/false}`

// Summary is the structured reading of a driver's reply.
type Summary struct {
	Category       string `json:"category"`
	Summary        string `json:"summary"`
	ActionRequired bool   `json:"action_required"`
	Error          string `json:"error,omitempty"`
}

// Summarizer never fails: every error degrades to a Summary carrying the raw text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) Summary
	GenerateTemplate(ctx context.Context, channel, purpose, tone string) (string, error)
	Configured() bool
}

type OpenAISummarizer struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[string]
	Model          string
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func NewClient() Summarizer {
	if !config.Conf.OpenAIConfigured() {
		logging.Logger.Info("OpenAI is not configured, summaries fall back to raw text")
		return Disabled{}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.Conf.OpenAIAPIKey),
		option.WithRequestTimeout(time.Duration(config.Conf.OpenAITimeout) * time.Second),
		option.WithMaxRetries(0),
	}

	if config.Conf.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.Conf.OpenAIBaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAISummarizer{
		Client: &client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[string](circuitbreak.NewSettings(
			circuitbreak.SummarizerService,
			config.Conf.OpenAIIntervalCB,
			config.Conf.OpenAIConsecutiveFailuresCB,
			nil,
		)),
		Model: config.Conf.OpenAIModel,
	}
}

func (Disabled) Summarize(_ context.Context, text string) Summary {
	return Summary{Category: CategoryOther, Summary: text}
}

func (Disabled) GenerateTemplate(context.Context, string, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Configured() bool {
	return false
}

func (openaiSummarizer *OpenAISummarizer) Configured() bool {
	return true
}

// Summarize classifies text. API failures yield an ERROR summary that asks for
// operator attention; unparsable answers yield OTHER with the answer as summary.
func (openaiSummarizer *OpenAISummarizer) Summarize(ctx context.Context, text string) Summary {
	answer, err := openaiSummarizer.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage(fmt.Sprintf("Analyze this reply: %q", text)),
		},
		Model:       openai.ChatModel(openaiSummarizer.Model),
		MaxTokens:   openai.Int(summaryMaxTokens),
		Temperature: openai.Float(summaryTemp),
	})
	if err != nil {
		logging.Logger.Error("[Summarize] OpenAI request failed", zap.String("error", err.Error()))

		return Summary{
			Category:       CategoryError,
			Summary:        text,
			ActionRequired: true,
			Error:          err.Error(),
		}
	}

	return parseSummary(answer, text)
}

// GenerateTemplate drafts a campaign message for the channel.
func (openaiSummarizer *OpenAISummarizer) GenerateTemplate(
	ctx context.Context,
	channel, purpose, tone string,
) (string, error) {
	limit := voiceMaxChars
	kind := "voice call"

	if channel == "sms" {
		limit = smsMaxChars
		kind = "SMS"
	}

	if tone == "" {
		tone = "professional"
	}

	answer, err := openaiSummarizer.complete(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(
				"Write a %s message for an EV fleet. Tone: %s. At most %d characters.", kind, tone, limit,
			)),
			openai.UserMessage("Purpose: " + purpose),
		},
		Model:       openai.ChatModel(openaiSummarizer.Model),
		MaxTokens:   openai.Int(generateMaxTokens),
		Temperature: openai.Float(generateTemp),
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(answer), nil
}

func (openaiSummarizer *OpenAISummarizer) complete(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (string, error) {
	return openaiSummarizer.CircuitBreaker.Execute(func() (string, error) {
		var answer string

		err := retry.Do(
			func() error {
				resp, err := openaiSummarizer.Client.Chat.Completions.New(ctx, params)
				if err != nil {
					return err
				}

				if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
					return ErrEmptyAnswer
				}

				answer = resp.Choices[0].Message.Content

				return nil
			},
			retry.Context(ctx),
			retry.LastErrorOnly(true),
			retry.Attempts(max(config.Conf.OpenAIRetryMaxAttempts, 1)),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(time.Duration(config.Conf.OpenAIRetryMinBackoff)*time.Second),
			retry.MaxDelay(time.Duration(config.Conf.OpenAIRetryMaxBackoff)*time.Second),
		)

		return answer, err
	})
}

func parseSummary(answer, text string) Summary {
	trimmed := strings.TrimSpace(answer)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var summary Summary

	err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &summary)
	if err != nil || summary.Category == "" {
		fallback := answer
		if strings.TrimSpace(fallback) == "" {
			fallback = text
		}

		return Summary{Category: CategoryOther, Summary: fallback}
	}

	summary.Category = strings.ToUpper(summary.Category)
	if summary.Summary == "" {
		summary.Summary = text
	}

	return summary
}
