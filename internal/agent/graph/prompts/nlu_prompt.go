package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/loan-orchestrator-poc/server/internal/agent/model"
)

//go:embed template/nlu_prompt.txt
var nluSystemPrompt string

var objectionKinds = []model.ObjectionKind{
	model.ObjectionCost, model.ObjectionUncertainty, model.ObjectionDelay, model.ObjectionNotInterested,
	model.ObjectionCredit, model.ObjectionProcess, model.ObjectionAlternative,
}

// RenderNLUSystem renders the classifier system prompt via the Eino prompt
// component so prompt callbacks fire.
func RenderNLUSystem(ctx context.Context) (string, error) {
	// Only known tokens are replaced; the template contains literal JSON braces.
	content := strings.NewReplacer(
		"{intents}", bulletList(model.Intents),
		"{handlers}", bulletList(model.Handlers),
		"{objections}", joinList(objectionKinds),
	).Replace(nluSystemPrompt)

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("nlu prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("nlu prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

func bulletList[T ~string](items []T) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + string(it))
	}
	return b.String()
}

func joinList[T ~string](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, ", ")
}
