package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey    string
	BaseURL   string
	NLUConfig *model.NLUModelConfig
}

// NewIntentChatModel creates the Gemini model used for intent classification.
func NewIntentChatModel(ctx context.Context, config ChatModelConfig) (*gemini.ChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if config.NLUConfig == nil {
		return nil, fmt.Errorf("nlu config is nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// classification is short structured output; no thinking budget
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.NLUConfig.Model,
		Temperature: &config.NLUConfig.Temperature,
		MaxTokens:   &config.NLUConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating NLU model")
		return nil, fmt.Errorf("error creating NLU model: %w", err)
	}

	return chatModel, nil
}
