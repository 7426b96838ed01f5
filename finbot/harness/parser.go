package harness

import (
	"encoding/json"
	"regexp"
	"strings"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// OutputParser extracts tool calls that some providers emit inline in the
// reply text instead of the structured tool_calls field.
type OutputParser struct {
	patterns []*regexp.Regexp
}

func NewOutputParser() *OutputParser {
	return &OutputParser{
		patterns: []*regexp.Regexp{
			// {"name": "tool", "arguments": {...}}
			regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*(\{.*?\})\s*\}`),
			// tool_name({"arg": "value"})
			regexp.MustCompile(`(\w+)\s*\(\s*(\{.*?\})\s*\)`),
		},
	}
}

// ParseToolCalls scans reply text for inline tool invocations. Matches with
// unrecoverable JSON are skipped.
func (p *OutputParser) ParseToolCalls(text string) []harnessports.ToolCall {
	var calls []harnessports.ToolCall
	for _, pattern := range p.patterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 3 {
				continue
			}
			name := strings.TrimSpace(match[1])
			argsStr := strings.TrimSpace(match[2])
			if !json.Valid([]byte(argsStr)) {
				argsStr = fixJSON(argsStr)
				if !json.Valid([]byte(argsStr)) {
					continue
				}
			}
			calls = append(calls, harnessports.ToolCall{
				Name: name,
				Args: json.RawMessage(argsStr),
			})
		}
		if len(calls) > 0 {
			break
		}
	}
	return calls
}

// fixJSON repairs the JSON mistakes models actually make: trailing commas,
// unquoted keys, single quotes.
func fixJSON(jsonStr string) string {
	jsonStr = regexp.MustCompile(`,\s*([}\]])`).ReplaceAllString(jsonStr, "$1")
	jsonStr = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`).ReplaceAllString(jsonStr, `$1"$2":`)
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")
	return jsonStr
}
