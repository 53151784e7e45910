package batcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/venturelink/aigateway/llm"
)

// maxGroupSize caps how many contexts share one completion call.
const maxGroupSize = 8

// batchableTaskTypes is the fixed allow-list. Everything else is dispatched
// individually regardless of list size; quality scoring, risk assessment and
// chat answers degrade too much when squeezed into a shared prompt.
var batchableTaskTypes = map[string]bool{
	"classification": true,
	"extraction":     true,
	"summarization":  true,
	"tagging":        true,
}

// IsBatchable reports whether a task type is on the batching allow-list.
func IsBatchable(taskType string) bool {
	return batchableTaskTypes[taskType]
}

// Result is one per-context outcome. Batched is false when the individual
// fallback path produced it; Err is set when even that path failed.
type Result struct {
	Index   int            `json:"index"`
	Data    map[string]any `json:"data,omitempty"`
	Batched bool           `json:"batched"`
	Err     error          `json:"-"`
}

// SystemPromptFunc supplies a task-specific system prompt, usually backed by
// the prompt registry. A nil func or empty return falls back to the builtin
// instruction.
type SystemPromptFunc func(ctx context.Context, taskType string) string

// Batcher groups eligible contexts and guarantees exactly one result per
// input, in input order.
type Batcher struct {
	provider     llm.Provider
	systemPrompt SystemPromptFunc
	logger       *zap.Logger
}

func New(provider llm.Provider, systemPrompt SystemPromptFunc, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		provider:     provider,
		systemPrompt: systemPrompt,
		logger:       logger.With(zap.String("component", "batcher")),
	}
}

// BatchComplete processes contexts for one task type. Allow-listed types are
// split into groups of at most maxGroupSize and each group costs one
// completion call; when a group's response cannot be parsed into exactly one
// element per context, every context in that group is retried individually.
func (b *Batcher) BatchComplete(ctx context.Context, taskType string, contexts []string) ([]Result, error) {
	if taskType == "" {
		return nil, fmt.Errorf("task_type is required")
	}
	if len(contexts) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(contexts))

	if !IsBatchable(taskType) {
		for i, c := range contexts {
			results[i] = b.completeSingle(ctx, taskType, c, i)
		}
		return results, nil
	}

	for start := 0; start < len(contexts); start += maxGroupSize {
		end := start + maxGroupSize
		if end > len(contexts) {
			end = len(contexts)
		}
		b.completeGroup(ctx, taskType, contexts[start:end], start, results)
	}
	return results, nil
}

// completeGroup issues one call for a group and writes results in place,
// falling back to the individual path when the parsed element count does not
// match the group size.
func (b *Batcher) completeGroup(ctx context.Context, taskType string, group []string, offset int, results []Result) {
	prompt := b.buildGroupPrompt(taskType, group)

	resp, err := b.provider.Completion(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: b.resolveSystemPrompt(ctx, taskType)},
			{Role: llm.RoleUser, Content: prompt},
		},
	})

	if err == nil {
		parsed := ParseArrayResponse(resp.Content())
		if len(parsed) == len(group) {
			for i, data := range parsed {
				results[offset+i] = Result{Index: offset + i, Data: data, Batched: true}
			}
			return
		}
		b.logger.Warn("batch response discarded, falling back to individual calls",
			zap.String("task_type", taskType),
			zap.Int("expected", len(group)),
			zap.Int("parsed", len(parsed)))
	} else {
		b.logger.Warn("batch completion failed, falling back to individual calls",
			zap.String("task_type", taskType),
			zap.Int("group_size", len(group)),
			zap.Error(err))
	}

	for i, c := range group {
		results[offset+i] = b.completeSingle(ctx, taskType, c, offset+i)
	}
}

// completeSingle is the non-batched path, used for non-allow-listed task
// types and for group fallback.
func (b *Batcher) completeSingle(ctx context.Context, taskType, context string, index int) Result {
	resp, err := b.provider.Completion(ctx, &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: b.resolveSystemPrompt(ctx, taskType)},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Process this input and respond with a single JSON object.\n\nInput:\n%s", context)},
		},
	})
	if err != nil {
		return Result{Index: index, Err: err}
	}

	if obj, ok := ParseObjectResponse(resp.Content()); ok {
		return Result{Index: index, Data: obj}
	}
	// Keep the raw content rather than losing the answer.
	return Result{Index: index, Data: map[string]any{"raw": resp.Content()}}
}

func (b *Batcher) resolveSystemPrompt(ctx context.Context, taskType string) string {
	if b.systemPrompt != nil {
		if p := b.systemPrompt(ctx, taskType); p != "" {
			return p
		}
	}
	return fmt.Sprintf("You perform %s tasks. Respond only with the requested JSON.", taskType)
}

func (b *Batcher) buildGroupPrompt(taskType string, group []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Process the following %d inputs. Respond with a JSON array of exactly %d objects, one per input, in the same order.\n",
		len(group), len(group))
	for i, c := range group {
		fmt.Fprintf(&sb, "\nInput %d:\n%s\n", i+1, c)
	}
	return sb.String()
}
