package graph

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/loan-orchestrator-poc/server/internal/agent/extract"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph/conversations"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph/nodes"
	"github.com/loan-orchestrator-poc/server/internal/agent/graph/observers"
	"github.com/loan-orchestrator-poc/server/internal/agent/model"
	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

// Runner classifies one message through the compiled graph.
type Runner interface {
	Invoke(ctx context.Context, in model.ClassifyInput) (model.ClassifyOutput, error)
}

// Config holds everything needed to compose the classification graph end-to-end.
// It constructs the Gemini chat model from the API key.
type Config struct {
	APIKey       string
	BaseURL      string
	NLUModel     model.NLUModelConfig
	Conversation model.ConversationConfig
	Extractor    *extract.Extractor
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModel       einomodel.BaseChatModel
	ModelName       string
	MessagesManager *conversations.MessagesManager
	Extractor       *extract.Extractor
}

// GraphBuilder handles the construction of the classification graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.ClassifyInput, model.ClassifyOutput]
}

type graphRunner struct {
	runnable compose.Runnable[model.ClassifyInput, model.ClassifyOutput]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.ClassifyInput) (model.ClassifyOutput, error) {
	return r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
}

// BuildIntentGraph creates the Gemini model and the messages manager, builds the graph and returns a Runner.
func BuildIntentGraph(ctx context.Context, cfg Config) (Runner, error) {
	cm, err := nodes.NewIntentChatModel(ctx, nodes.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		NLUConfig: &cfg.NLUModel,
	})
	if err != nil {
		return nil, err
	}

	return NewRunner(ctx, &GraphConfig{
		ChatModel:       cm,
		ModelName:       cfg.NLUModel.Model,
		MessagesManager: conversations.NewMessagesManager(cfg.Conversation),
		Extractor:       cfg.Extractor,
	})
}

// NewRunner compiles the graph around an already constructed chat model.
func NewRunner(ctx context.Context, config *GraphConfig) (Runner, error) {
	runnable, err := BuildGraph(ctx, config)
	if err != nil {
		return nil, err
	}
	logx.Debug().Msg("Intent graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled classification graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.ClassifyInput, model.ClassifyOutput], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModel == nil {
		return nil, fmt.Errorf("chat model is not initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.Extractor == nil {
		config.Extractor = extract.New(extract.DefaultBounds())
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.ClassifyInput, model.ClassifyOutput](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.MessagesManager),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler(b.config.ModelName)),
	); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeInputConverter, err)
	}

	if err := b.graph.AddChatModelNode(nodes.NodeIntentChatModel,
		b.config.ChatModel,
		compose.WithStatePostHandler(nodes.NewIntentChatModelPostHandler(b.config.ModelName)),
	); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeIntentChatModel, err)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeIntentParser,
		nodes.NewParserNode(b.config.Extractor),
	); err != nil {
		return fmt.Errorf("add %s: %w", nodes.NodeIntentParser, err)
	}
	return nil
}

// addEdges creates the linear flow between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeIntentChatModel},
		{nodes.NodeIntentChatModel, nodes.NodeIntentParser},
		{nodes.NodeIntentParser, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.ClassifyInput, model.ClassifyOutput], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
