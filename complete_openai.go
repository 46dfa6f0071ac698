package nero

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompleter generates replies with the Chat Completions API. Any
// OpenAI-compatible server works through WithCompleterBaseURL.
// Implements Completer.
type OpenAICompleter struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// CompleterOption configures an OpenAICompleter.
type CompleterOption func(*openAIOptions)

type openAIOptions struct {
	model   string
	baseURL string
}

// WithCompleterModel sets the chat model (default: gpt-4o-mini).
func WithCompleterModel(model string) CompleterOption {
	return func(o *openAIOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithCompleterBaseURL points the client at a proxy or compatible server.
func WithCompleterBaseURL(url string) CompleterOption {
	return func(o *openAIOptions) { o.baseURL = url }
}

// NewOpenAICompleter creates a completer for apiKey.
func NewOpenAICompleter(apiKey string, opts ...CompleterOption) *OpenAICompleter {
	o := openAIOptions{model: string(openai.ChatModelGPT4oMini)}
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// A failed turn falls back at once.
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}

	return &OpenAICompleter{
		client:    openai.NewClient(reqOpts...),
		model:     o.model,
		maxTokens: 300,
	}
}

// Complete sends the system prompt and conversation window.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	for _, m := range req.Messages {
		if m.Role == ChatAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    msgs,
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(0.8),
	})
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai complete: no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai complete: empty reply")
	}
	return text, nil
}

// OpenAISpeaker renders replies with the text-to-speech endpoint and writes
// the MP3 stream to out. Implements Speaker.
type OpenAISpeaker struct {
	client openai.Client
	out    io.Writer
}

// NewOpenAISpeaker creates a speaker writing audio to out.
func NewOpenAISpeaker(apiKey string, out io.Writer, opts ...CompleterOption) *OpenAISpeaker {
	var o openAIOptions
	for _, opt := range opts {
		opt(&o)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	return &OpenAISpeaker{client: openai.NewClient(reqOpts...), out: out}
}

// Speak synthesizes text. Returns ErrSpeechUnavailable when there is no
// output to write to.
func (s *OpenAISpeaker) Speak(ctx context.Context, text string) error {
	if s.out == nil {
		return ErrSpeechUnavailable
	}
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModelTTS1,
		Input: text,
		Voice: openai.AudioSpeechNewParamsVoiceAlloy,
	})
	if err != nil {
		return fmt.Errorf("openai speak: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(s.out, resp.Body); err != nil {
		return fmt.Errorf("openai speak: %w", err)
	}
	return nil
}
