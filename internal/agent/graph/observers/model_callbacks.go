package observers

import (
	"context"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/loan-orchestrator-poc/server/pkg/logger"
)

type startKey struct{}

// newModelHandler logs model calls with their latency and the classified message.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", info.Type).Str("name", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).Str("user", snippet(lastUserContent(input.Messages)))
			}
			ev.Msg("model call start")
			return context.WithValue(ctx, startKey{}, time.Now())
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("component", info.Type).Str("name", info.Name).Dur("latency", since(ctx))
			if output != nil && output.Message != nil {
				ev = ev.Str("reply", snippet(output.Message.Content))
			}
			ev.Msg("model call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("component", info.Type).Str("name", info.Name).Dur("latency", since(ctx)).Msg("model call failed")
			return ctx
		},
	}
}

func since(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func snippet(s string) string {
	const max = 300
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
