package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// batchInstruction is appended to the system prompt for batched requests. The
// wire protocol is JSON both ways so reassembly is position-indexed rather
// than order-dependent.
const batchInstruction = `You will receive a JSON array of subtitle lines, each with a "position" and a "line". Lines marked "contextOnly": true are surrounding dialogue given for coherence; never translate them and never include them in your answer. Reply with a JSON array of {"position": <number>, "line": "<translated text>"} objects covering exactly the lines that are not context-only. Reply with JSON only.`

func encodeBatchUnits(units []BatchUnit) (string, error) {
	data, err := json.Marshal(units)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return string(data), nil
}

// requestedPositions returns the set of positions the caller actually wants
// translated, i.e. the non-context units.
func requestedPositions(units []BatchUnit) map[int]struct{} {
	ret := make(map[int]struct{})
	for _, u := range units {
		if !u.ContextOnly {
			ret[u.Position] = struct{}{}
		}
	}
	return ret
}

type batchLine struct {
	Position int    `json:"position"`
	Line     string `json:"line"`
}

// parseBatchResponse extracts the position→text map from a backend reply.
// Accepted shapes: a bare JSON array of {position, line} objects, or an
// object wrapping that array under "translated" or "lines"; either may be
// wrapped in a Markdown code fence. Returned positions are intersected with
// the requested set — the backend's own idea of what was context is never
// trusted.
func parseBatchResponse(provider, raw string, requested map[int]struct{}) (map[int]string, error) {
	payload := stripCodeFence(raw)

	var lines []batchLine
	if err := json.Unmarshal([]byte(payload), &lines); err != nil {
		var wrapper struct {
			Translated []batchLine `json:"translated"`
			Lines      []batchLine `json:"lines"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil {
			return nil, &ContractError{
				Provider: provider,
				Detail:   fmt.Sprintf("unparsable batch response (%d bytes, starts %q)", len(raw), head(payload, 24)),
			}
		}
		lines = wrapper.Translated
		if len(lines) == 0 {
			lines = wrapper.Lines
		}
	}

	ret := make(map[int]string, len(requested))
	for _, line := range lines {
		if _, ok := requested[line.Position]; ok {
			ret[line.Position] = line.Line
		}
	}
	return ret, nil
}

// stripCodeFence unwraps ```json ... ``` style fences chat models like to
// add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
