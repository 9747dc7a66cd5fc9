package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pagewatch/pkg/errutil"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

type OllamaAnalyzer struct {
	client *api.Client
	model  string
}

// NewOllamaAnalyzer talks to baseURL, or to OLLAMA_HOST when baseURL is empty.
func NewOllamaAnalyzer(model, baseURL string) (*OllamaAnalyzer, error) {
	if baseURL == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return &OllamaAnalyzer{client: client, model: model}, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama base url: %w", err)
	}
	return &OllamaAnalyzer{client: api.NewClient(u, http.DefaultClient), model: model}, nil
}

func (a *OllamaAnalyzer) Provider() Provider {
	return ProviderOllama
}

func (a *OllamaAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	stream := false
	chat := &api.ChatRequest{
		Model:  a.model,
		Stream: &stream,
		Format: json.RawMessage(`"json"`),
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt, Images: []api.ImageData{req.Image}},
		},
	}

	var out strings.Builder
	err := a.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, errutil.Analysis("ollama chat failed", err)
	}

	result := ParseResult(out.String())
	if result.Degraded() {
		zap.L().Warn("[Analysis] ollama output has no verdict", zap.String("model", a.model))
	}
	return result, nil
}
