package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/troupelabs/troupe/pkg/models"
)

const defaultOllamaModel = "llama3.2"

// OllamaProvider runs against a local Ollama server. It handles text and
// strict-JSON generation; tool-calling turns must go to Anthropic.
type OllamaProvider struct {
	client  *api.Client
	model   string
	tracker *TokenTracker
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates the provider. An explicit host in the config
// wins over the OLLAMA_HOST environment variable.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	var client *api.Client
	if cfg.OllamaHost != "" {
		u, err := url.Parse(cfg.OllamaHost)
		if err != nil {
			return nil, fmt.Errorf("ollama: bad host %q: %w", cfg.OllamaHost, err)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		client = c
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOllamaModel
	}

	return &OllamaProvider{
		client:  client,
		model:   model,
		tracker: NewTokenTracker(),
	}, nil
}

// Name identifies the backend.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Tracker returns the cumulative token tracker.
func (p *OllamaProvider) Tracker() *TokenTracker {
	return p.tracker
}

// GenerateResponse performs one chat call. Requests carrying tools are
// rejected with ErrToolsUnsupported so the router can route them elsewhere.
func (p *OllamaProvider) GenerateResponse(ctx context.Context, req Request) (*Response, error) {
	if len(req.Tools) > 0 {
		return nil, fmt.Errorf("%w: ollama", ErrToolsUnsupported)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		content := flattenText(m)
		if content == "" {
			continue
		}
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
	}
	if req.JSONMode {
		chatReq.Format = json.RawMessage(`"json"`)
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]interface{}{"num_predict": int(req.MaxTokens)}
	}

	var (
		text       strings.Builder
		usage      Usage
		doneReason string
	)
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		if resp.Done {
			usage.InputTokens += int64(resp.PromptEvalCount)
			usage.OutputTokens += int64(resp.EvalCount)
			doneReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	p.tracker.Add(usage.InputTokens, usage.OutputTokens)

	reason := FinishEndTurn
	if doneReason == "length" {
		reason = FinishMaxTokens
	}
	return &Response{
		Text:         text.String(),
		FinishReason: reason,
		Usage:        usage,
	}, nil
}

// flattenText collapses a message to its text content, dropping structured
// parts the chat API cannot carry.
func flattenText(m models.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var b strings.Builder
	for _, part := range m.Parts {
		if part.Type == models.PartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
