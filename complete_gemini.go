package nero

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiCompleter generates replies with the Gemini API.
// Implements Completer.
type GeminiCompleter struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiCompleter creates a completer. The client is dialed lazily on the
// first call so construction never touches the network.
func NewGeminiCompleter(apiKey, model string) *GeminiCompleter {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiCompleter{apiKey: apiKey, model: model}
}

func (g *GeminiCompleter) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, fmt.Errorf("no API key for gemini")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Complete sends the persona and memory context as the system instruction
// and the conversation window as alternating user/model turns.
func (g *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == ChatAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		MaxOutputTokens:   300,
		Temperature:       genai.Ptr[float32](0.8),
	})
	if err != nil {
		return "", fmt.Errorf("gemini complete: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini complete: empty reply")
	}
	return text, nil
}
