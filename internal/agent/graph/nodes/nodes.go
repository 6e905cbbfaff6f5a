package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph/conversations"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph/parsers"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph/prompts"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler(modelName string) func(context.Context, model.ClassifyInput, *model.AppState) (model.ClassifyInput, error) {
	return func(ctx context.Context, in model.ClassifyInput, s *model.AppState) (model.ClassifyInput, error) {
		resetState(s, in, modelName)
		return in, nil
	}
}

// NewInputConverterNode renders the system prompt and the session context into model messages.
func NewInputConverterNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.ClassifyInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderNLUSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render nlu system prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(mm.BuildNLUContext(input)),
		}, nil
	})
}

// NewIntentChatModelPostHandler computes and logs usage cost for the classifier model.
func NewIntentChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
			return out, nil
		}
		cost := model.ComputeCost(modelName, out.ResponseMeta.Usage)
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra["usage_cost"] = map[string]any{
			"currency":          "USD",
			"model":             modelName,
			"prompt_tokens":     cost.PromptTokens,
			"completion_tokens": cost.CompletionTokens,
			"total_cost":        cost.TotalUSD,
		}
		logx.Debug().
			Str("session_id", state.SessionID).
			Str("node", NodeIntentChatModel).
			Str("model", modelName).
			Int("prompt_tokens", cost.PromptTokens).
			Int("completion_tokens", cost.CompletionTokens).
			Float64("total_cost_usd", cost.TotalUSD).
			Msg("LLM usage")

		state.TotalCostUSD += cost.TotalUSD
		return out, nil
	}
}

// NewParserNode parses the model reply and attaches the accumulated cost from state.
// A reply that violates the schema is reported in SchemaError, not as a node error,
// so callers can tell it apart from transport failures.
func NewParserNode(ex *extract.Extractor) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.ClassifyOutput, error) {
		var out model.ClassifyOutput
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			out.CostUSD = state.TotalCostUSD
			return nil
		})
		if err != nil {
			return model.ClassifyOutput{}, fmt.Errorf("failed to access state: %w", err)
		}

		if resp == nil {
			out.SchemaError = parsers.ErrSchemaViolation.Error() + ": empty reply"
			return out, nil
		}
		result, err := parsers.ParseIntentResponse(resp.Content, ex)
		if err != nil {
			logx.Warn().Err(err).Msg("Error parsing intent response")
			if !errors.Is(err, parsers.ErrSchemaViolation) {
				return model.ClassifyOutput{}, err
			}
			out.SchemaError = err.Error()
			return out, nil
		}
		out.Result = *result
		return out, nil
	})
}
