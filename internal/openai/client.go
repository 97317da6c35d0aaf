package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps the OpenAI SDK and maps free text onto bot commands.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// Intent represents the bot command inferred from a user message.
type Intent string

const (
	IntentUnknown Intent = "unknown"
	IntentStart   Intent = "start"
	IntentAdd     Intent = "add"
	IntentView    Intent = "view"
	IntentDelete  Intent = "delete"
	IntentHelp    Intent = "help"
)

const classifyPrompt = "Classify the user's message for a reminder bot. " +
	"Reply with exactly one label: start, add, view, delete, help, or unknown."

// New returns a client. Without apiKey every call fails with ErrClientNotInitialised.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

// ClassifyIntent uses the language model to infer which command the user meant.
func (c *Client) ClassifyIntent(ctx context.Context, content string) (Intent, error) {
	if strings.TrimSpace(content) == "" {
		return IntentUnknown, fmt.Errorf("content cannot be empty")
	}
	if c == nil || c.client == nil {
		return IntentUnknown, ErrClientNotInitialised
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(classifyPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(content),
					},
				},
			},
		},
		Temperature:         openai.Float(0.0),
		MaxCompletionTokens: openai.Int(8),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return IntentUnknown, err
	}
	if len(resp.Choices) == 0 {
		return IntentUnknown, fmt.Errorf("no completion received")
	}
	return ParseIntent(resp.Choices[0].Message.Content), nil
}

// ParseIntent maps a model label onto an Intent.
func ParseIntent(label string) Intent {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), ".\"'"))
	switch Intent(label) {
	case IntentStart, IntentAdd, IntentView, IntentDelete, IntentHelp:
		return Intent(label)
	default:
		return IntentUnknown
	}
}
