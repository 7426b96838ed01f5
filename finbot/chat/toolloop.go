package chat

import (
	"context"

	"github.com/finbot-ai/finbot/finbot/harness"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// ToolSystemPrompt steers the tool-calling deployment through a guided
// trading conversation.
const ToolSystemPrompt = `You are FinBot, a financial assistant helping a user trade stocks.

The conversation for each session should follow these steps:
1) Ask the user about their experience with trading, the risk they are willing to take today, and how much money they are willing to invest.
2) The user provides the information.
3) Personalise your future responses based on the information provided.
4) The user asks to buy or sell a stock.
5) Retrieve the price and volatility of the stock and ask the user to confirm the transaction, adapting your response to their risk level and warning them if the volatility does not suit it.
6) The user confirms the transaction.
7) Make the transaction and share the transaction details.

Perform only one step at a time and never skip a step. Do not include the step number in your answers. Keep your answers concise.`

// ToolLoop routes fallback queries into the harness orchestrator.
type ToolLoop struct {
	orchestrator *harness.Orchestrator
}

var _ Handler = (*ToolLoop)(nil)

func NewToolLoop(orchestrator *harness.Orchestrator) *ToolLoop {
	return &ToolLoop{orchestrator: orchestrator}
}

func (t *ToolLoop) Handle(ctx context.Context, sessionID, query string, mem *Memory) (string, []harnessports.PromptMessage) {
	return t.orchestrator.Converse(ctx, sessionID, mem.Transcript(), query)
}
