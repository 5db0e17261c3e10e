package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/schema"
)

// ErrInvalidModelOutput is wrapped when a backend keeps returning documents
// that do not satisfy the requested schema after all retries.
var ErrInvalidModelOutput = errors.New("model output does not satisfy schema")

// LanguageModelOptions configure the structured-output wrapper.
type LanguageModelOptions struct {
	// Retries is the number of corrective attempts after a malformed
	// completion. Each retry feeds the validation error back to the model.
	Retries int
	Logger  logging.Logger
}

// LanguageModel wraps a ChatModel with the JSON discipline modules rely on:
// completions are constrained to a schema, validated, and retried with the
// validation error appended when a backend returns malformed output.
type LanguageModel struct {
	chat ChatModel
	opts LanguageModelOptions
}

// NewLanguageModel creates a structured-output wrapper around a chat backend.
func NewLanguageModel(chat ChatModel, optFns ...func(o *LanguageModelOptions)) *LanguageModel {
	opts := LanguageModelOptions{
		Retries: 2,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &LanguageModel{chat: chat, opts: opts}
}

// Chat exposes the underlying backend for callers that drive tool use directly.
func (lm *LanguageModel) Chat() ChatModel { return lm.chat }

// Info returns the backend metadata.
func (lm *LanguageModel) Info() Info { return lm.chat.Info() }

// GenerateJSON produces a JSON document matching the given schema. When
// onDelta is non-nil the backend is asked to stream and every text delta is
// forwarded to it; the returned document is always the validated final text.
func (lm *LanguageModel) GenerateJSON(
	ctx context.Context,
	messages []core.ChatMessage,
	s *schema.Schema,
	onDelta func(delta string),
) ([]byte, error) {
	convo := messages
	var lastErr error

	for attempt := 0; attempt <= lm.opts.Retries; attempt++ {
		if err := incrementLimiter(ctx); err != nil {
			return nil, err
		}

		final, err := lm.complete(ctx, Request{
			Messages: convo,
			Schema:   s,
			Stream:   onDelta != nil,
		}, onDelta)
		if err != nil {
			return nil, err
		}

		doc := []byte(ExtractJSON(final.Text))
		if err := s.Validate(doc); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidModelOutput, err)
			lm.opts.Logger.Warn("model output failed validation, retrying",
				"model", lm.chat.Info().Name,
				"attempt", attempt+1,
				"error", err.Error(),
			)
			convo = appendCorrection(convo, final.Text, err)

			continue
		}

		return doc, nil
	}

	return nil, lastErr
}

// GenerateWithTools runs a single completion turn with tools exposed and
// returns the raw final response, leaving the decide/act loop to the caller.
func (lm *LanguageModel) GenerateWithTools(
	ctx context.Context,
	messages []core.ChatMessage,
	tools []ToolDefinition,
) (*Response, error) {
	if err := incrementLimiter(ctx); err != nil {
		return nil, err
	}

	return lm.complete(ctx, Request{Messages: messages, Tools: tools}, nil)
}

// complete drains the backend channels into a single final response.
func (lm *LanguageModel) complete(ctx context.Context, req Request, onDelta func(string)) (*Response, error) {
	respCh, errCh := lm.chat.Generate(ctx, req)

	var final *Response

	for resp := range respCh {
		if resp.Partial {
			if onDelta != nil && resp.Text != "" {
				onDelta(resp.Text)
			}

			continue
		}

		r := resp
		final = &r
	}

	if err := <-errCh; err != nil {
		return nil, err
	}

	if final == nil {
		return nil, fmt.Errorf("model %q returned no final response", lm.chat.Info().Name)
	}

	return final, nil
}

func incrementLimiter(ctx context.Context) error {
	if limiter := core.ModelLimiterFrom(ctx); limiter != nil {
		return limiter.Increment()
	}

	return nil
}

func appendCorrection(convo []core.ChatMessage, answer string, verr error) []core.ChatMessage {
	out := make([]core.ChatMessage, 0, len(convo)+2)
	out = append(out, convo...)
	out = append(out,
		core.ChatMessage{Role: core.ChatRoleAssistant, Content: answer},
		core.ChatMessage{
			Role: core.ChatRoleUser,
			Content: fmt.Sprintf(
				"Your previous answer was rejected: %v. Answer again with a single JSON object that satisfies the required schema.",
				verr,
			),
		},
	)

	return out
}

// ExtractJSON trims prose and markdown fences around a JSON document. Models
// that ignore the output constraint still usually embed the object verbatim.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}

	return trimmed
}
