package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/whchoi98/netaiops/internal/domain"
	"github.com/whchoi98/netaiops/internal/infra/config"
	"github.com/whchoi98/netaiops/internal/infra/tracer"
)

// Tool exposed to the model for delegating work to specialist agents.
const delegateToolName = "send_message"

// bedrockStreamAPI abstracts the Bedrock runtime method for testability.
type bedrockStreamAPI interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockEngine implements domain.ReasoningEngine via the AWS Bedrock
// ConverseStream API. Each Stream call runs a tool-use loop: model output
// chunks are emitted as they arrive, and send_message tool calls are served
// synchronously through the request's delegate before the conversation
// continues.
type BedrockEngine struct {
	modelID       string
	maxTokens     int
	maxIterations int
	client        bedrockStreamAPI
	logger        *slog.Logger
}

// NewBedrockEngine creates a Bedrock engine using the default AWS credential chain.
func NewBedrockEngine(cfg config.ModelConfig, logger *slog.Logger) (*BedrockEngine, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newBedrockEngineWithClient(cfg, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

// newBedrockEngineWithClient creates a BedrockEngine with an injected client (for testing).
func newBedrockEngineWithClient(cfg config.ModelConfig, client bedrockStreamAPI, logger *slog.Logger) *BedrockEngine {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &BedrockEngine{
		modelID:       cfg.ID,
		maxTokens:     maxTokens,
		maxIterations: maxIterations,
		client:        client,
		logger:        logger,
	}
}

// Name implements domain.ReasoningEngine.
func (e *BedrockEngine) Name() string { return "bedrock:" + e.modelID }

// Stream implements domain.ReasoningEngine. Output text is emitted in
// arrival order; the call returns only after the final turn completes or an
// error ends the conversation.
func (e *BedrockEngine) Stream(ctx context.Context, req domain.EngineRequest, emit func(chunk string)) error {
	ctx, span := tracer.StartSpan(ctx, "engine.stream",
		trace.WithAttributes(
			tracer.StringAttr("engine.model", e.modelID),
			tracer.StringAttr("session.id", req.SessionID),
		),
	)
	defer span.End()

	messages := []types.Message{{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Query}},
	}}

	for iter := 0; iter < e.maxIterations; iter++ {
		turn, err := e.streamTurn(ctx, req.SystemPrompt, messages, req.Delegate != nil, emit)
		if err != nil {
			tracer.RecordError(span, err)
			return err
		}

		if len(turn.toolCalls) == 0 {
			tracer.SetOK(span)
			return nil
		}

		messages = append(messages, turn.assistantMessage())
		messages = append(messages, e.serveToolCalls(ctx, req, turn.toolCalls))
	}

	err := domain.NewDomainError("engine.stream", domain.ErrMaxIterations,
		fmt.Sprintf("stopped after %d iterations", e.maxIterations))
	tracer.RecordError(span, err)
	return err
}

// turnResult accumulates one assistant turn from the stream.
type turnResult struct {
	text      string
	toolCalls []pendingToolCall
}

type pendingToolCall struct {
	id    string
	name  string
	input string // accumulated JSON fragments
}

func (t *turnResult) assistantMessage() types.Message {
	msg := types.Message{Role: types.ConversationRoleAssistant}
	if t.text != "" {
		msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: t.text})
	}
	for _, tc := range t.toolCalls {
		var input map[string]interface{}
		if tc.input != "" {
			json.Unmarshal([]byte(tc.input), &input)
		}
		if input == nil {
			input = map[string]interface{}{}
		}
		msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(tc.id),
				Name:      aws.String(tc.name),
				Input:     document.NewLazyDocument(input),
			},
		})
	}
	return msg
}

// streamTurn runs one ConverseStream call, emitting text deltas and
// collecting any tool-use blocks the model opens.
func (e *BedrockEngine) streamTurn(ctx context.Context, systemPrompt string, messages []types.Message, withTools bool, emit func(chunk string)) (*turnResult, error) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(e.modelID),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(e.maxTokens)),
		},
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		}
	}
	if withTools {
		input.ToolConfig = delegateToolConfig()
	}

	output, err := e.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, mapBedrockError(err)
	}

	stream := output.GetStream()
	defer stream.Close()

	turn := &turnResult{}
	for evt := range stream.Events() {
		applyStreamEvent(turn, evt, emit)
	}

	if err := stream.Err(); err != nil {
		return nil, mapBedrockError(err)
	}
	return turn, nil
}

// applyStreamEvent folds one stream event into the turn being accumulated.
// Text deltas are emitted immediately; tool-use input JSON arrives in
// fragments appended to the most recently opened tool call.
func applyStreamEvent(turn *turnResult, evt types.ConverseStreamOutput, emit func(chunk string)) {
	switch ev := evt.(type) {
	case *types.ConverseStreamOutputMemberContentBlockStart:
		if start, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			turn.toolCalls = append(turn.toolCalls, pendingToolCall{
				id:   aws.ToString(start.Value.ToolUseId),
				name: aws.ToString(start.Value.Name),
			})
		}

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		switch d := ev.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			turn.text += d.Value
			emit(d.Value)
		case *types.ContentBlockDeltaMemberToolUse:
			if n := len(turn.toolCalls); n > 0 {
				turn.toolCalls[n-1].input += aws.ToString(d.Value.Input)
			}
		}
	}
}

// serveToolCalls resolves each pending tool call through the request's
// delegate and builds the tool-result user message for the next turn.
// Unknown tool names produce an error string result rather than aborting
// the conversation.
func (e *BedrockEngine) serveToolCalls(ctx context.Context, req domain.EngineRequest, calls []pendingToolCall) types.Message {
	msg := types.Message{Role: types.ConversationRoleUser}

	for _, tc := range calls {
		result := e.serveToolCall(ctx, req, tc)
		msg.Content = append(msg.Content, &types.ContentBlockMemberToolResult{
			Value: types.ToolResultBlock{
				ToolUseId: aws.String(tc.id),
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: result},
				},
			},
		})
	}
	return msg
}

func (e *BedrockEngine) serveToolCall(ctx context.Context, req domain.EngineRequest, tc pendingToolCall) string {
	if tc.name != delegateToolName {
		return fmt.Sprintf("Error: unknown tool %q", tc.name)
	}

	var args struct {
		AgentName string `json:"agent_name"`
		Task      string `json:"task"`
	}
	if err := json.Unmarshal([]byte(tc.input), &args); err != nil {
		return "Error: malformed tool input: " + err.Error()
	}

	e.logger.Info("delegating to specialist",
		"agent", args.AgentName,
		"session_id", req.SessionID,
	)
	return req.Delegate(ctx, args.AgentName, args.Task)
}

func delegateToolConfig() *types.ToolConfiguration {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"agent_name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the specialist agent to send the task to",
			},
			"task": map[string]interface{}{
				"type":        "string",
				"description": "Full task description for the specialist agent",
			},
		},
		"required": []interface{}{"agent_name", "task"},
	}

	return &types.ToolConfiguration{
		Tools: []types.Tool{
			&types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(delegateToolName),
					Description: aws.String("Send a task to a specialist agent and return its response"),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(schema),
					},
				},
			},
		},
	}
}

// --- Error mapping ---

// mapBedrockError classifies AWS API failures onto the domain sentinels.
// Throttling and transient service errors map to ErrOverloaded so callers
// can back off and retry; everything else is terminal.
func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException",
			"ModelNotReadyException", "ServiceUnavailableException":
			return fmt.Errorf("%w: %s", domain.ErrOverloaded, msg)
		case "AccessDeniedException", "UnrecognizedClientException",
			"ExpiredTokenException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case "ValidationException":
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", domain.ErrTimeout, msg)
	}

	return domain.WrapOp("bedrock", err)
}

var _ domain.ReasoningEngine = (*BedrockEngine)(nil)
