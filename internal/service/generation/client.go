package generation

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-invoice/backend/internal/logging"
	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
)

// ChainClient runs an eino chat chain and parses the reply into a Result.
type ChainClient struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	system   string
	defaults invoice.Defaults
	log      *logging.Logger
}

var _ Client = (*ChainClient)(nil)

// NewChainClient compiles the prompt chain around chatModel.
func NewChainClient(ctx context.Context, chatModel model.BaseChatModel, opts PromptOptions, log *logging.Logger) (*ChainClient, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if log == nil {
		log = logging.Nop()
	}

	system, err := BuildSystemPrompt(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build system prompt: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile generation chain: %w", err)
	}

	return &ChainClient{
		chain:    runnable,
		system:   system,
		defaults: opts.Defaults,
		log:      log,
	}, nil
}

// Generate sends one request to the model. Cancellation and deadline errors
// from ctx are returned wrapped so callers can match them with errors.Is.
func (c *ChainClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("generation request is required")
	}

	input := map[string]any{
		"system": c.system,
		"query":  BuildUserPrompt(req),
	}

	msg, err := c.chain.Invoke(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("generation aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if msg == nil {
		return nil, &ContractError{Reason: "empty response"}
	}

	result, err := ParseResult(msg.Content)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("stage", string(req.Stage)).
			Int("length", len(msg.Content)).
			Msg("rejected model response")
		return nil, err
	}

	if result.Kind == KindInvoice {
		result.Invoice.ApplyStamp(req.Stamp)
		result.Invoice.ApplyDefaults(c.defaults)
	}

	c.log.Debug().
		Str("stage", string(req.Stage)).
		Str("kind", string(result.Kind)).
		Int("questions", len(result.Questions)).
		Msg("generation complete")
	return result, nil
}
