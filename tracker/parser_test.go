package tracker

import (
	"errors"
	"strings"
	"testing"
)

const sampleLog = `{
  "model": "gpt-4o-mini",
  "provider": "openai",
  "agent_name": "search",
  "system_prompt": "You are a search assistant.",
  "usage": {"input_tokens": 1200, "output_tokens": 300},
  "messages": [
    {
      "instructions": "Use at least 3 and at most 6 search calls. Include references.",
      "parts": [
        {"part_kind": "user-prompt", "content": "What is data drift?"},
        {"part_kind": "tool-call", "tool_name": "search", "content": {"query": "data drift"}}
      ]
    },
    {
      "model_name": "gpt-4o-mini",
      "parts": [{"part_kind": "text", "content": "Data drift is a change in input distribution."}]
    }
  ],
  "output": {
    "title": "Data drift",
    "sections": [
      {"heading": "Summary", "content": "Data drift occurs when input distributions shift. References: https://example.com"}
    ]
  }
}`

func TestParseLog(t *testing.T) {
	rec, err := ParseLog("logs/a.json", []byte(sampleLog))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Filename != "logs/a.json" {
		t.Fatalf("filename: %q", rec.Filename)
	}
	if rec.Model != "gpt-4o-mini" || rec.Provider != "openai" || rec.AgentName != "search" {
		t.Fatalf("identity fields: %+v", rec)
	}
	if rec.InputTokens != 1200 || rec.OutputTokens != 300 {
		t.Fatalf("usage: %d/%d", rec.InputTokens, rec.OutputTokens)
	}
	if rec.Prompt != "What is data drift?" {
		t.Fatalf("prompt: %q", rec.Prompt)
	}
	// Message-level instructions win over the system prompt.
	if !strings.Contains(rec.Instructions, "at most 6") {
		t.Fatalf("instructions: %q", rec.Instructions)
	}
	// Structured output aggregate wins over message parts.
	if !strings.HasPrefix(rec.Answer, "Data drift\n\nSummary\n\n") {
		t.Fatalf("answer: %q", rec.Answer)
	}
	if rec.RawJSON != sampleLog {
		t.Fatal("raw JSON must be kept verbatim")
	}
	if rec.ID != 0 || rec.TotalCost.Valid {
		t.Fatal("parser must not assign id or costs")
	}
}

func TestParseLogFallbacks(t *testing.T) {
	// No top-level model, no output aggregate, instructions from the
	// system prompt list, answer from the last string part.
	raw := `{
	  "provider_name": "anthropic",
	  "system_prompt": ["Be brief.", "Cite sources."],
	  "usage": {"input_tokens": 10, "output_tokens": 5},
	  "messages": [
	    {"parts": [{"part_kind": "user-prompt", "content": "hi"}]},
	    {"model_name": "claude-3-5-haiku", "parts": [{"content": "hello there"}]}
	  ]
	}`
	rec, err := ParseLog("b.json", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Model != "claude-3-5-haiku" {
		t.Fatalf("model fallback: %q", rec.Model)
	}
	if rec.Provider != "anthropic" {
		t.Fatalf("provider_name fallback: %q", rec.Provider)
	}
	if rec.Instructions != "Be brief.\nCite sources." {
		t.Fatalf("system prompt list: %q", rec.Instructions)
	}
	if rec.Answer != "hello there" {
		t.Fatalf("answer fallback: %q", rec.Answer)
	}
}

func TestParseLogMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{"model": "m",`},
		{"missing model", `{"usage": {"input_tokens": 1, "output_tokens": 1}}`},
		{"missing usage", `{"model": "m"}`},
		{"partial usage", `{"model": "m", "usage": {"input_tokens": 1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := ParseLog("x.json", []byte(tc.raw))
			if rec != nil {
				t.Fatalf("expected nil record, got %+v", rec)
			}
			if !errors.Is(err, ErrMalformedLog) {
				t.Fatalf("expected ErrMalformedLog, got %v", err)
			}
			if !strings.Contains(err.Error(), "x.json") {
				t.Fatalf("error should name the file: %v", err)
			}
		})
	}
}

func TestParseLogZeroTokensValid(t *testing.T) {
	// Explicit zeros are valid usage; only absence is malformed.
	raw := `{"model": "m", "usage": {"input_tokens": 0, "output_tokens": 0}}`
	rec, err := ParseLog("z.json", []byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if rec.InputTokens != 0 || rec.OutputTokens != 0 {
		t.Fatalf("usage: %d/%d", rec.InputTokens, rec.OutputTokens)
	}
}

func TestToolCallCount(t *testing.T) {
	if n := toolCallCount(sampleLog, "search"); n != 1 {
		t.Fatalf("search calls: got %d, want 1", n)
	}
	if n := toolCallCount(sampleLog, "browse"); n != 0 {
		t.Fatalf("browse calls: got %d, want 0", n)
	}
	if n := toolCallCount("not json", "search"); n != 0 {
		t.Fatalf("invalid raw: got %d, want 0", n)
	}
}
