package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/finbot-ai/finbot/finbot/config"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// Guardrails validates tool calls before execution: the tool must be
// allowlisted and its arguments must satisfy the tool's JSON schema.
type Guardrails struct {
	enabled   bool
	allowlist map[string]bool
}

func NewGuardrails(cfg config.HarnessConfig) *Guardrails {
	g := &Guardrails{
		enabled:   cfg.EnableGuardrails,
		allowlist: make(map[string]bool, len(cfg.AllowedTools)),
	}
	for _, name := range cfg.AllowedTools {
		g.allowlist[name] = true
	}
	return g
}

// CheckToolCall rejects calls to unlisted tools and calls whose arguments do
// not validate against the declared schema. Disabled guardrails pass everything.
func (g *Guardrails) CheckToolCall(call harnessports.ToolCall, spec harnessports.ToolSpec) error {
	if !g.enabled {
		return nil
	}
	if call.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if !g.allowlist[call.Name] {
		return fmt.Errorf("tool %q is not allowlisted", call.Name)
	}
	if !json.Valid(call.Args) {
		return fmt.Errorf("tool %q arguments are not valid JSON", call.Name)
	}
	return validateSchema(call.Args, spec.JSONSchema)
}

func validateSchema(data json.RawMessage, schema []byte) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(problems, "; "))
	}
	return nil
}
