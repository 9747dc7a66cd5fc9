package analysis

import (
	"context"
	"encoding/base64"
	"fmt"

	"pagewatch/pkg/errutil"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const systemPrompt = "You judge screenshots of web pages against a user's condition and answer only with JSON."

type OpenAIAnalyzer struct {
	model   string
	baseURL string
}

func NewOpenAIAnalyzer(model, baseURL string) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{model: model, baseURL: baseURL}
}

func (a *OpenAIAnalyzer) Provider() Provider {
	return ProviderOpenAI
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.APIKey == "" {
		return nil, errutil.Configuration("openai api key is not set", nil)
	}

	opts := []option.RequestOption{option.WithAPIKey(req.APIKey)}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	client := openai.NewClient(opts...)

	contentType := req.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(req.Image))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return nil, errutil.Analysis("openai chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errutil.Analysis("openai returned no choices", nil)
	}

	raw := resp.Choices[0].Message.Content
	result := ParseResult(raw)
	if result.Degraded() {
		zap.L().Warn("[Analysis] openai output has no verdict", zap.String("model", a.model))
	}
	return result, nil
}
