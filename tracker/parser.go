package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedLog marks a file that cannot become a LogRecord: invalid
// JSON, or missing mandatory fields (model, token usage). Malformed files
// are skipped without being marked processed, so they stay visible for
// manual inspection or retry.
var ErrMalformedLog = errors.New("tracker: malformed log")

// Wire shapes of the agent log artifacts. Optional fields simply stay
// zero; only model and usage are mandatory.
type rawLog struct {
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	ProviderName string       `json:"provider_name"`
	AgentName    string       `json:"agent_name"`
	SystemPrompt any          `json:"system_prompt"` // string or list of strings
	Usage        *rawUsage    `json:"usage"`
	Messages     []rawMessage `json:"messages"`
	Output       *rawOutput   `json:"output"`
}

type rawUsage struct {
	InputTokens  *int64 `json:"input_tokens"`
	OutputTokens *int64 `json:"output_tokens"`
}

type rawMessage struct {
	Instructions string    `json:"instructions"`
	ModelName    string    `json:"model_name"`
	Parts        []rawPart `json:"parts"`
}

type rawPart struct {
	PartKind string `json:"part_kind"`
	Content  any    `json:"content"`
	ToolName string `json:"tool_name"`
}

type rawOutput struct {
	Title    string       `json:"title"`
	Sections []rawSection `json:"sections"`
}

type rawSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// ParseLog converts one raw JSON artifact into a LogRecord. The returned
// record has no ID and no costs yet; the runner fills those in.
func ParseLog(filename string, raw []byte) (*LogRecord, error) {
	var doc rawLog
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid JSON: %v", ErrMalformedLog, filename, err)
	}

	model := doc.Model
	if model == "" {
		// Fall back to the last response's model_name.
		for i := len(doc.Messages) - 1; i >= 0; i-- {
			if doc.Messages[i].ModelName != "" {
				model = doc.Messages[i].ModelName
				break
			}
		}
	}
	if model == "" {
		return nil, fmt.Errorf("%w: %s: missing model", ErrMalformedLog, filename)
	}
	if doc.Usage == nil || doc.Usage.InputTokens == nil || doc.Usage.OutputTokens == nil {
		return nil, fmt.Errorf("%w: %s: missing token usage", ErrMalformedLog, filename)
	}

	provider := doc.Provider
	if provider == "" {
		provider = doc.ProviderName
	}

	return &LogRecord{
		Filename:     filename,
		AgentName:    doc.AgentName,
		Provider:     provider,
		Model:        model,
		Prompt:       firstUserPrompt(doc.Messages),
		Instructions: instructions(&doc),
		Answer:       extractAnswer(&doc),
		InputTokens:  *doc.Usage.InputTokens,
		OutputTokens: *doc.Usage.OutputTokens,
		RawJSON:      string(raw),
	}, nil
}

// firstUserPrompt returns the content of the first user-prompt part, or,
// failing that, the first string content of any part.
func firstUserPrompt(messages []rawMessage) string {
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if p.PartKind == "user-prompt" {
				if s := contentString(p.Content); s != "" {
					return s
				}
			}
		}
	}
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if s, ok := p.Content.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// instructions prefers message-level instructions from the first message,
// then the top-level system_prompt (string or list of strings).
func instructions(doc *rawLog) string {
	if len(doc.Messages) > 0 && doc.Messages[0].Instructions != "" {
		return doc.Messages[0].Instructions
	}
	switch sys := doc.SystemPrompt.(type) {
	case string:
		return sys
	case []any:
		var lines []string
		for _, v := range sys {
			if s, ok := v.(string); ok {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

// extractAnswer prefers the structured top-level output aggregate, falling
// back to the last message part with string content.
func extractAnswer(doc *rawLog) string {
	if out := doc.Output; out != nil {
		var chunks []string
		if out.Title != "" {
			chunks = append(chunks, out.Title)
		}
		for _, s := range out.Sections {
			if s.Heading != "" {
				chunks = append(chunks, s.Heading)
			}
			if s.Content != "" {
				chunks = append(chunks, s.Content)
			}
		}
		if len(chunks) > 0 {
			return strings.Join(chunks, "\n\n")
		}
	}
	for i := len(doc.Messages) - 1; i >= 0; i-- {
		for _, p := range doc.Messages[i].Parts {
			if s, ok := p.Content.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// contentString renders a part's content when it is a plain string;
// structured content (tool payloads) is not an answer or a prompt.
func contentString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toolCallCount reports how many parts across all messages invoked the
// named tool. Used by the evaluation checks.
func toolCallCount(rawJSON, tool string) int {
	var doc rawLog
	if err := json.Unmarshal([]byte(rawJSON), &doc); err != nil {
		return 0
	}
	n := 0
	for _, msg := range doc.Messages {
		for _, p := range msg.Parts {
			if p.ToolName == tool {
				n++
			}
		}
	}
	return n
}
