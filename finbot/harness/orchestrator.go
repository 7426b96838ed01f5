// Package harness runs the LLM tool-calling loop: one provider call with tool
// declarations, sequential execution of any requested tools, and one follow-up
// provider call that phrases the tool results. Failures never surface as
// errors to the caller; they become fixed user-safe replies.
package harness

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/config"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

const (
	// FallbackReply is returned when the model produces no usable text.
	FallbackReply = "Sorry, no response generated."

	// FailureReply is returned when the turn cannot be completed at all:
	// provider failure, rejected tool call, unknown tool.
	FailureReply = "Sorry, something went wrong while handling your request."
)

// Orchestrator coordinates one conversational turn against the provider.
type Orchestrator struct {
	provider   harnessports.Provider
	registry   *Registry
	guardrails *Guardrails
	builder    *PromptBuilder
	parser     *OutputParser
	store      harnessports.ConversationStore
	cache      harnessports.Cache
	limiter    harnessports.RateLimiter
	tracer     harnessports.Tracer

	system       string
	opts         harnessports.Options
	toolTimeout  time.Duration
	cacheTTL     int
	contextTurns int
	logger       zerolog.Logger
}

// OrchestratorDeps bundles the wired adapters for construction.
type OrchestratorDeps struct {
	Provider harnessports.Provider
	Registry *Registry
	Store    harnessports.ConversationStore
	Cache    harnessports.Cache
	Limiter  harnessports.RateLimiter
	Tracer   harnessports.Tracer
}

func NewOrchestrator(deps OrchestratorDeps, llmCfg config.LLMConfig, harnessCfg config.HarnessConfig, system string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:   deps.Provider,
		registry:   deps.Registry,
		guardrails: NewGuardrails(harnessCfg),
		builder:    NewPromptBuilder(),
		parser:     NewOutputParser(),
		store:      deps.Store,
		cache:      deps.Cache,
		limiter:    deps.Limiter,
		tracer:     deps.Tracer,
		system:     system,
		opts: harnessports.Options{
			MaxTokens:   llmCfg.MaxTokens,
			Temperature: llmCfg.Temperature,
		},
		toolTimeout:  harnessCfg.ToolTimeout,
		cacheTTL:     harnessCfg.CacheTTLSeconds,
		contextTurns: harnessCfg.ContextTurns,
		logger:       logger.With().Str("component", "harness").Logger(),
	}
}

// Converse runs one turn: history plus userInput go to the provider with tool
// declarations; if tools are requested they execute once, their results are
// injected, and a single follow-up call without tool declarations produces the
// final reply. There is never a second tool round. A session whose history
// holds no user turns yet is first resumed from the audit store.
//
// The returned intermediate messages are the assistant tool-call message and
// the tool results, in transcript order, so the caller can record the full
// exchange. The reply is always non-empty and safe to show the user.
func (o *Orchestrator) Converse(ctx context.Context, sessionID string, history []harnessports.PromptMessage, userInput string) (reply string, intermediate []harnessports.PromptMessage) {
	ctx, finish := o.tracer.StartSpan(ctx, "converse", map[string]any{
		"session_id": sessionID,
		"tools":      len(o.registry.Specs()),
	})
	defer func() { finish(nil) }()

	release, err := o.limiter.Acquire(ctx, sessionID)
	if err != nil {
		o.logger.Warn().Err(err).Str("session_id", sessionID).Msg("rate limit rejected turn")
		return FailureReply, nil
	}
	defer release()

	messages := append([]harnessports.PromptMessage{}, history...)
	if restored := o.restoreContext(ctx, sessionID, messages); len(restored) > 0 {
		o.logger.Debug().Int("turns", len(restored)).Str("session_id", sessionID).Msg("session context restored from audit log")
		messages = append(messages, restored...)
	}
	messages = append(messages, harnessports.PromptMessage{Role: "user", Content: userInput})

	cacheKey := o.cacheKey(messages)
	if cached, ok := o.cache.Get(ctx, cacheKey); ok {
		o.tracer.Event(ctx, "cache_hit", map[string]any{"key": cacheKey})
		return string(cached), nil
	}

	o.saveTurn(ctx, sessionID, "user", userInput)

	prompt := o.builder.Build(o.system, messages, nil, o.registry.Specs(), map[string]string{"session_id": sessionID})
	completion, err := o.complete(ctx, prompt, "auto")
	if err != nil {
		o.logger.Error().Err(err).Msg("provider call failed")
		o.saveTurn(ctx, sessionID, "assistant", FailureReply)
		return FailureReply, nil
	}

	calls := completion.ToolCalls
	if len(calls) == 0 {
		// Some providers emit the invocation inline instead.
		calls = o.parser.ParseToolCalls(completion.Text)
	}

	if len(calls) == 0 {
		reply = strings.TrimSpace(completion.Text)
		if reply == "" {
			reply = FallbackReply
		}
		o.cache.Set(ctx, cacheKey, []byte(reply), o.cacheTTL)
		o.saveTurn(ctx, sessionID, "assistant", reply)
		return reply, nil
	}

	results, err := o.executeTools(ctx, calls)
	if err != nil {
		o.logger.Warn().Err(err).Msg("tool call rejected")
		o.saveTurn(ctx, sessionID, "assistant", FailureReply)
		return FailureReply, nil
	}

	intermediate = append(intermediate, harnessports.PromptMessage{
		Role:      "assistant",
		Content:   completion.Text,
		ToolCalls: calls,
	})
	for i, call := range calls {
		intermediate = append(intermediate, harnessports.PromptMessage{
			Role:       "tool",
			Content:    results[i],
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
		o.saveTurn(ctx, sessionID, "tool", results[i])
	}

	// Follow-up call sees the tool results but no tool declarations, so the
	// loop terminates after exactly one round.
	messages = append(messages, intermediate...)
	prompt = o.builder.Build(o.system, messages, nil, nil, map[string]string{"session_id": sessionID})
	completion, err = o.complete(ctx, prompt, "none")
	if err != nil {
		o.logger.Error().Err(err).Msg("follow-up provider call failed")
		o.saveTurn(ctx, sessionID, "assistant", FallbackReply)
		return FallbackReply, intermediate
	}

	reply = strings.TrimSpace(completion.Text)
	if reply == "" {
		reply = FallbackReply
	}
	o.saveTurn(ctx, sessionID, "assistant", reply)
	return reply, intermediate
}

func (o *Orchestrator) complete(ctx context.Context, prompt harnessports.PromptInput, toolChoice string) (harnessports.Completion, error) {
	ctx, finish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{
		"messages": len(prompt.Messages),
		"tools":    len(prompt.Tools),
	})
	opts := o.opts
	opts.ToolChoice = toolChoice
	completion, err := o.provider.Complete(ctx, prompt, opts)
	finish(err)
	return completion, err
}

// executeTools runs the requested calls sequentially in request order. A
// rejected call fails the whole turn; an execution error becomes the call's
// result string so the model can phrase an apology.
func (o *Orchestrator) executeTools(ctx context.Context, calls []harnessports.ToolCall) ([]string, error) {
	results := make([]string, len(calls))
	for i := range calls {
		// Parsed inline calls arrive without provider IDs.
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}

		tool, ok := o.registry.Lookup(calls[i].Name)
		if !ok {
			return nil, fmt.Errorf("unknown tool: %s", calls[i].Name)
		}
		spec, _ := o.registry.SpecFor(calls[i].Name)
		if err := o.guardrails.CheckToolCall(calls[i], spec); err != nil {
			return nil, err
		}

		toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
		output, err := tool.Invoke(toolCtx, calls[i].Args)
		cancel()
		if err != nil {
			o.tracer.Event(ctx, "tool_error", map[string]any{"tool": calls[i].Name, "error": err.Error()})
			output = fmt.Sprintf("Tool %s did not complete: %v", calls[i].Name, err)
		}
		results[i] = output
	}
	return results, nil
}

// restoreContext reloads the last audited turns for a session whose live
// transcript has no user messages yet, which happens when a browser returns
// with its cookie after a process restart. Tool turns are skipped: their call
// IDs are not audited and a dangling tool message would be rejected upstream.
func (o *Orchestrator) restoreContext(ctx context.Context, sessionID string, live []harnessports.PromptMessage) []harnessports.PromptMessage {
	if o.contextTurns < 1 || o.store == nil {
		return nil
	}
	for _, m := range live {
		if m.Role == "user" {
			return nil
		}
	}

	turns, err := o.store.LoadContext(ctx, sessionID, o.contextTurns)
	if err != nil {
		o.tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
		return nil
	}

	var restored []harnessports.PromptMessage
	for _, turn := range turns {
		if turn.Role != "user" && turn.Role != "assistant" {
			continue
		}
		restored = append(restored, harnessports.PromptMessage{Role: turn.Role, Content: turn.Content})
	}
	return restored
}

func (o *Orchestrator) saveTurn(ctx context.Context, sessionID, role, content string) {
	if o.store == nil {
		return
	}
	err := o.store.SaveTurn(ctx, sessionID, harnessports.Turn{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		o.tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
	}
}

// cacheKey derives a deterministic key from the full transcript. Only direct
// replies are cached under it; tool rounds carry time-sensitive market data
// and trade confirmations that must not replay.
func (o *Orchestrator) cacheKey(messages []harnessports.PromptMessage) string {
	h := fnv.New64a()
	h.Write([]byte(o.system))
	for _, m := range messages {
		h.Write([]byte{'|'})
		h.Write([]byte(m.Role))
		h.Write([]byte{':'})
		h.Write([]byte(m.Content))
		for _, tc := range m.ToolCalls {
			h.Write([]byte(tc.Name))
			h.Write(tc.Args)
		}
	}
	return fmt.Sprintf("turn:%016x", h.Sum64())
}
