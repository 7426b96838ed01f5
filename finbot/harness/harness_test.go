package harness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbot-ai/finbot/finbot/config"
	"github.com/finbot-ai/finbot/finbot/harness/adapters"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

type stubProvider struct {
	completions []harnessports.Completion
	errs        []error
	calls       []harnessports.PromptInput
}

func (p *stubProvider) Complete(ctx context.Context, in harnessports.PromptInput, opts harnessports.Options) (harnessports.Completion, error) {
	i := len(p.calls)
	p.calls = append(p.calls, in)
	if i < len(p.errs) && p.errs[i] != nil {
		return harnessports.Completion{}, p.errs[i]
	}
	if i < len(p.completions) {
		return p.completions[i], nil
	}
	return harnessports.Completion{}, errors.New("unexpected provider call")
}

type stubTool struct {
	name    string
	result  string
	err     error
	invoked []json.RawMessage
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "test tool" }
func (t *stubTool) Schema() []byte {
	return []byte(`{"type":"object","properties":{"stock_name":{"type":"string"}},"required":["stock_name"]}`)
}

func (t *stubTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	t.invoked = append(t.invoked, args)
	return t.result, t.err
}

type stubStore struct {
	saved     []harnessports.Turn
	preset    []harnessports.Turn
	loadCalls int
}

func (s *stubStore) SaveTurn(ctx context.Context, sessionID string, turn harnessports.Turn) error {
	s.saved = append(s.saved, turn)
	return nil
}

func (s *stubStore) LoadContext(ctx context.Context, sessionID string, k int) ([]harnessports.Turn, error) {
	s.loadCalls++
	return s.preset, nil
}

type stubLimiter struct {
	keys []string
	err  error
}

func (l *stubLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

func testHarnessConfig() config.HarnessConfig {
	return config.HarnessConfig{
		ToolTimeout:      time.Second,
		EnableGuardrails: true,
		AllowedTools:     []string{"get_stock_info", "trade_stock"},
		CacheTTLSeconds:  60,
		ContextTurns:     8,
	}
}

func newTestOrchestratorWith(deps OrchestratorDeps) *Orchestrator {
	llmCfg := config.LLMConfig{Temperature: 0.2, MaxTokens: 150}
	return NewOrchestrator(deps, llmCfg, testHarnessConfig(), "You are a financial assistant.", zerolog.Nop())
}

func newTestOrchestrator(provider harnessports.Provider, cache harnessports.Cache, tools ...harnessports.Tool) *Orchestrator {
	return newTestOrchestratorWith(OrchestratorDeps{
		Provider: provider,
		Registry: NewRegistry(tools...),
		Store:    &noOpStore{},
		Cache:    cache,
		Limiter:  &noOpRateLimiter{},
		Tracer:   &noOpTracer{},
	})
}

func TestConverseDirectReply(t *testing.T) {
	provider := &stubProvider{completions: []harnessports.Completion{
		{Text: "  Markets are closed on Saturdays.  \n"},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, &stubTool{name: "get_stock_info"})

	reply, intermediate := o.Converse(context.Background(), "s1", nil, "Are markets open today?")

	assert.Equal(t, "Markets are closed on Saturdays.", reply)
	assert.Empty(t, intermediate)
	require.Len(t, provider.calls, 1)
	assert.Len(t, provider.calls[0].Tools, 1)

	// History plus the new user input travel in order.
	msgs := provider.calls[0].Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
}

func TestConverseEmptyTextFallsBack(t *testing.T) {
	provider := &stubProvider{completions: []harnessports.Completion{{Text: "   "}}}
	o := newTestOrchestrator(provider, &noOpCache{})

	reply, _ := o.Converse(context.Background(), "s1", nil, "hello")
	assert.Equal(t, FallbackReply, reply)
}

func TestConverseToolRound(t *testing.T) {
	tool := &stubTool{name: "get_stock_info", result: "The stock price is: 182.52 and volatility is: 0.21 ."}
	provider := &stubProvider{completions: []harnessports.Completion{
		{ToolCalls: []harnessports.ToolCall{
			{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
		}},
		{Text: "AAPL trades at 182.52 with annualized volatility around 21%."},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, tool)

	history := []harnessports.PromptMessage{
		{Role: "assistant", Content: "Hello! How can I help you today?"},
	}
	reply, intermediate := o.Converse(context.Background(), "s1", history, "Should I buy AAPL?")

	assert.Equal(t, "AAPL trades at 182.52 with annualized volatility around 21%.", reply)
	require.Len(t, tool.invoked, 1)
	assert.JSONEq(t, `{"stock_name":"AAPL"}`, string(tool.invoked[0]))

	// Assistant tool-call message first, then its result with the matching ID.
	require.Len(t, intermediate, 2)
	assert.Equal(t, "assistant", intermediate[0].Role)
	require.Len(t, intermediate[0].ToolCalls, 1)
	assert.Equal(t, "call_1", intermediate[0].ToolCalls[0].ID)
	assert.Equal(t, "tool", intermediate[1].Role)
	assert.Equal(t, "call_1", intermediate[1].ToolCallID)
	assert.Equal(t, tool.result, intermediate[1].Content)

	// Exactly two provider calls; the follow-up carries no tool declarations.
	require.Len(t, provider.calls, 2)
	assert.Empty(t, provider.calls[1].Tools)

	// Follow-up transcript: history, user, assistant tool call, tool result.
	msgs := provider.calls[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"assistant", "user", "assistant", "tool"},
		[]string{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role})
}

func TestConverseSingleReinjectionRound(t *testing.T) {
	// Even if the follow-up response asks for more tools, no third call happens.
	tool := &stubTool{name: "get_stock_info", result: "data"}
	provider := &stubProvider{completions: []harnessports.Completion{
		{ToolCalls: []harnessports.ToolCall{
			{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
		}},
		{Text: "Let me check once more.", ToolCalls: []harnessports.ToolCall{
			{ID: "call_2", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"MSFT"}`)},
		}},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, tool)

	reply, _ := o.Converse(context.Background(), "s1", nil, "Compare AAPL and MSFT")

	assert.Equal(t, "Let me check once more.", reply)
	assert.Len(t, provider.calls, 2)
	assert.Len(t, tool.invoked, 1)
}

func TestConverseSequentialToolOrder(t *testing.T) {
	info := &stubTool{name: "get_stock_info", result: "info result"}
	trade := &stubTool{name: "trade_stock", result: "trade result"}
	provider := &stubProvider{completions: []harnessports.Completion{
		{ToolCalls: []harnessports.ToolCall{
			{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
			{ID: "call_2", Name: "trade_stock", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
		}},
		{Text: "Done."},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, info, trade)

	_, intermediate := o.Converse(context.Background(), "s1", nil, "buy AAPL at market")

	require.Len(t, intermediate, 3)
	assert.Equal(t, "call_1", intermediate[1].ToolCallID)
	assert.Equal(t, "info result", intermediate[1].Content)
	assert.Equal(t, "call_2", intermediate[2].ToolCallID)
	assert.Equal(t, "trade result", intermediate[2].Content)
}

func TestConverseUnknownToolFailsTurn(t *testing.T) {
	provider := &stubProvider{completions: []harnessports.Completion{
		{ToolCalls: []harnessports.ToolCall{
			{ID: "call_1", Name: "delete_account", Args: json.RawMessage(`{}`)},
		}},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, &stubTool{name: "get_stock_info"})

	reply, intermediate := o.Converse(context.Background(), "s1", nil, "do something weird")

	assert.Equal(t, FailureReply, reply)
	assert.Empty(t, intermediate)
	assert.Len(t, provider.calls, 1)
}

func TestConverseInvalidArgsFailTurn(t *testing.T) {
	tool := &stubTool{name: "get_stock_info", result: "unused"}
	provider := &stubProvider{completions: []harnessports.Completion{
		{ToolCalls: []harnessports.ToolCall{
			// stock_name must be a string per the tool schema
			{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":42}`)},
		}},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, tool)

	reply, _ := o.Converse(context.Background(), "s1", nil, "price of 42?")

	assert.Equal(t, FailureReply, reply)
	assert.Empty(t, tool.invoked)
}

func TestConverseToolErrorBecomesResult(t *testing.T) {
	tool := &stubTool{name: "get_stock_info", err: errors.New("timeout")}
	provider := &stubProvider{completions: []harnessports.Completion{
		{ToolCalls: []harnessports.ToolCall{
			{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
		}},
		{Text: "I could not fetch the data right now."},
	}}
	o := newTestOrchestrator(provider, &noOpCache{}, tool)

	reply, intermediate := o.Converse(context.Background(), "s1", nil, "price of AAPL?")

	assert.Equal(t, "I could not fetch the data right now.", reply)
	require.Len(t, intermediate, 2)
	assert.Contains(t, intermediate[1].Content, "did not complete")
}

func TestConverseProviderErrorFailsTurn(t *testing.T) {
	provider := &stubProvider{errs: []error{errors.New("api error 500")}}
	o := newTestOrchestrator(provider, &noOpCache{})

	reply, intermediate := o.Converse(context.Background(), "s1", nil, "hello")

	assert.Equal(t, FailureReply, reply)
	assert.Empty(t, intermediate)
}

func TestConverseFollowUpErrorFallsBack(t *testing.T) {
	tool := &stubTool{name: "get_stock_info", result: "data"}
	provider := &stubProvider{
		completions: []harnessports.Completion{
			{ToolCalls: []harnessports.ToolCall{
				{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
			}},
			{},
		},
		errs: []error{nil, errors.New("api error 500")},
	}
	o := newTestOrchestrator(provider, &noOpCache{}, tool)

	reply, intermediate := o.Converse(context.Background(), "s1", nil, "price of AAPL?")

	// Tool results are kept so the session can still record the exchange.
	assert.Equal(t, FallbackReply, reply)
	assert.Len(t, intermediate, 2)
}

func TestConverseCachesDirectReplies(t *testing.T) {
	provider := &stubProvider{completions: []harnessports.Completion{
		{Text: "Markets open at 9:30 AM Eastern."},
	}}
	o := newTestOrchestrator(provider, adapters.NewReplyCache(10))

	first, _ := o.Converse(context.Background(), "s1", nil, "When do markets open?")
	second, _ := o.Converse(context.Background(), "s1", nil, "When do markets open?")

	assert.Equal(t, first, second)
	assert.Len(t, provider.calls, 1)
}

func TestConverseResumesAuditedContext(t *testing.T) {
	store := &stubStore{preset: []harnessports.Turn{
		{Role: "user", Content: "I want to buy AAPL."},
		{Role: "tool", Content: "The stock price is: 182.52 and volatility is: 0.21 ."},
		{Role: "assistant", Content: "AAPL trades at 182.52. Shall I proceed?"},
	}}
	provider := &stubProvider{completions: []harnessports.Completion{{Text: "Welcome back."}}}
	o := newTestOrchestratorWith(OrchestratorDeps{
		Provider: provider,
		Registry: NewRegistry(),
		Store:    store,
		Cache:    &noOpCache{},
		Limiter:  &noOpRateLimiter{},
		Tracer:   &noOpTracer{},
	})

	// A fresh transcript with only the greeting means the session just came
	// back after a restart; its audited turns are reloaded.
	history := []harnessports.PromptMessage{{Role: "assistant", Content: "Hello!"}}
	reply, _ := o.Converse(context.Background(), "s1", history, "did my order go through?")

	assert.Equal(t, "Welcome back.", reply)
	assert.Equal(t, 1, store.loadCalls)

	// Greeting, restored user, restored assistant, new user. Audited tool
	// turns stay out: their call IDs are not persisted.
	msgs := provider.calls[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "I want to buy AAPL.", msgs[1].Content)
	assert.Equal(t, "AAPL trades at 182.52. Shall I proceed?", msgs[2].Content)
	assert.Equal(t, "did my order go through?", msgs[3].Content)
}

func TestConverseSkipsResumeWithLiveHistory(t *testing.T) {
	store := &stubStore{preset: []harnessports.Turn{{Role: "user", Content: "stale"}}}
	provider := &stubProvider{completions: []harnessports.Completion{{Text: "Sure."}}}
	o := newTestOrchestratorWith(OrchestratorDeps{
		Provider: provider,
		Registry: NewRegistry(),
		Store:    store,
		Cache:    &noOpCache{},
		Limiter:  &noOpRateLimiter{},
		Tracer:   &noOpTracer{},
	})

	history := []harnessports.PromptMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "Hi! How can I help?"},
	}
	o.Converse(context.Background(), "s1", history, "tell me more")

	assert.Equal(t, 0, store.loadCalls)
	require.Len(t, provider.calls, 1)
	assert.Len(t, provider.calls[0].Messages, 3)
}

func TestConverseRateLimitsPerSession(t *testing.T) {
	limiter := &stubLimiter{}
	provider := &stubProvider{completions: []harnessports.Completion{{Text: "Hi."}, {Text: "Hi."}}}
	o := newTestOrchestratorWith(OrchestratorDeps{
		Provider: provider,
		Registry: NewRegistry(),
		Store:    &noOpStore{},
		Cache:    &noOpCache{},
		Limiter:  limiter,
		Tracer:   &noOpTracer{},
	})

	o.Converse(context.Background(), "session-a", nil, "hello")
	o.Converse(context.Background(), "session-b", nil, "hello")

	// Each session draws from its own bucket.
	assert.Equal(t, []string{"session-a", "session-b"}, limiter.keys)

	limiter.err = errors.New("rate limit exceeded")
	reply, _ := o.Converse(context.Background(), "session-a", nil, "hello again")
	assert.Equal(t, FailureReply, reply)
}

func TestConverseToolRoundsNotCached(t *testing.T) {
	// Tool results carry live market data; repeating the question must run
	// the tool again instead of replaying a memoized reply.
	tool := &stubTool{name: "get_stock_info", result: "data"}
	toolCall := harnessports.Completion{ToolCalls: []harnessports.ToolCall{
		{ID: "call_1", Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
	}}
	provider := &stubProvider{completions: []harnessports.Completion{
		toolCall, {Text: "182.52 right now."},
		toolCall, {Text: "182.60 right now."},
	}}
	o := newTestOrchestrator(provider, adapters.NewReplyCache(10), tool)

	o.Converse(context.Background(), "s1", nil, "price of AAPL?")
	o.Converse(context.Background(), "s1", nil, "price of AAPL?")

	assert.Len(t, provider.calls, 4)
	assert.Len(t, tool.invoked, 2)
}

func TestCacheKeyDistinguishesTranscripts(t *testing.T) {
	o := newTestOrchestrator(&stubProvider{}, &noOpCache{})

	base := []harnessports.PromptMessage{{Role: "user", Content: "price of AAPL"}}
	other := []harnessports.PromptMessage{{Role: "user", Content: "price of MSFT"}}

	assert.Equal(t, o.cacheKey(base), o.cacheKey(base))
	assert.NotEqual(t, o.cacheKey(base), o.cacheKey(other))
}

func TestRegistrySpecsStableOrder(t *testing.T) {
	a := &stubTool{name: "get_stock_info"}
	b := &stubTool{name: "trade_stock"}
	r := NewRegistry(a, b)

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "get_stock_info", specs[0].Name)
	assert.Equal(t, "trade_stock", specs[1].Name)

	_, ok := r.Lookup("trade_stock")
	assert.True(t, ok)
	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
}

func TestGuardrailsAllowlist(t *testing.T) {
	g := NewGuardrails(testHarnessConfig())

	err := g.CheckToolCall(harnessports.ToolCall{Name: "rm_rf", Args: json.RawMessage(`{}`)}, harnessports.ToolSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowlisted")

	err = g.CheckToolCall(harnessports.ToolCall{Name: "get_stock_info", Args: json.RawMessage(`{"stock_name":"AAPL"}`)},
		harnessports.ToolSpec{JSONSchema: []byte(`{"type":"object","properties":{"stock_name":{"type":"string"}},"required":["stock_name"]}`)})
	assert.NoError(t, err)
}

func TestGuardrailsDisabledPassesEverything(t *testing.T) {
	cfg := testHarnessConfig()
	cfg.EnableGuardrails = false
	g := NewGuardrails(cfg)

	err := g.CheckToolCall(harnessports.ToolCall{Name: "anything", Args: json.RawMessage(`not json`)}, harnessports.ToolSpec{})
	assert.NoError(t, err)
}

func TestParserExtractsInlineCalls(t *testing.T) {
	p := NewOutputParser()

	calls := p.ParseToolCalls(`I need data: {"name": "get_stock_info", "arguments": {"stock_name": "AAPL"}}`)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_stock_info", calls[0].Name)
	assert.JSONEq(t, `{"stock_name":"AAPL"}`, string(calls[0].Args))

	calls = p.ParseToolCalls(`get_stock_info({'stock_name': 'MSFT'})`)
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"stock_name":"MSFT"}`, string(calls[0].Args))

	assert.Empty(t, p.ParseToolCalls("No tools needed here."))
}
