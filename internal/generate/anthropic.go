package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig 描述 Anthropic 生成器。
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL 为空时使用官方地址，测试时指向 httptest.Server。
	BaseURL    string
	MaxRetries int
}

// AnthropicGenerator 通过 Messages API 生成模板。
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator 构造生成器。
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// Generate 发送一次请求并解析 {"markup","stylesheet"} 结果。ctx 取消会中断请求。
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(buildPrompt(req))}
	if len(req.ReferenceImage) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			req.ReferenceImageType,
			base64.StdEncoding.EncodeToString(req.ReferenceImage),
		))
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Result{}, ErrEmptyResult
	}

	var out Result
	if err := json.Unmarshal([]byte(stripCodeFences(text.String())), &out); err != nil {
		return Result{}, fmt.Errorf("parse generator response: %w", err)
	}
	if strings.TrimSpace(out.Markup) == "" {
		return Result{}, ErrEmptyResult
	}
	return out, nil
}
