package tracker

import (
	"fmt"
	"regexp"
	"strings"
)

// CheckOutcome is what a single check reports for one record. Passed nil
// means the check does not apply to this record.
type CheckOutcome struct {
	Passed *bool
	Score  *float64
	Detail string
}

// CheckFunc grades one record. Checks must be pure and independent: one
// check failing (or panicking during development) never blocks the rest,
// because the evaluator runs each in isolation.
type CheckFunc func(rec *LogRecord) CheckOutcome

// Evaluator applies a named, ordered set of rule-based checks. New checks
// are added by Register, never by modifying existing ones.
type Evaluator struct {
	names  []string
	checks map[string]CheckFunc
}

// NewEvaluator returns an evaluator preloaded with the default check set.
func NewEvaluator() *Evaluator {
	e := &Evaluator{checks: make(map[string]CheckFunc)}
	for _, d := range defaultChecks {
		// Defaults are registered the same way callers register theirs.
		if err := e.Register(d.name, d.fn); err != nil {
			panic("tracker: duplicate default check: " + d.name)
		}
	}
	return e
}

// Register adds a named check. Duplicate names are an error: replacing a
// check in place would silently change the meaning of historical rows.
func (e *Evaluator) Register(name string, fn CheckFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("tracker: check needs a name and a func")
	}
	if _, dup := e.checks[name]; dup {
		return fmt.Errorf("tracker: check %q already registered", name)
	}
	e.names = append(e.names, name)
	e.checks[name] = fn
	return nil
}

// Names returns the registered check names in registration order.
func (e *Evaluator) Names() []string {
	return append([]string(nil), e.names...)
}

// Evaluate runs every registered check against rec and returns exactly one
// CheckResult per check, in registration order.
func (e *Evaluator) Evaluate(logID int64, rec *LogRecord) []CheckResult {
	results := make([]CheckResult, 0, len(e.names))
	for _, name := range e.names {
		out := e.checks[name](rec)
		results = append(results, CheckResult{
			LogID:     logID,
			CheckName: name,
			Passed:    out.Passed,
			Score:     out.Score,
			Detail:    out.Detail,
		})
	}
	return results
}

var defaultChecks = []struct {
	name string
	fn   CheckFunc
}{
	{"instructions_follow", checkInstructionsFollow},
	{"instructions_avoid", checkInstructionsAvoid},
	{"answer_clear", checkAnswerClear},
	{"answer_match", checkAnswerMatch},
	{"answer_citations", checkAnswerCitations},
	{"completeness", checkCompleteness},
	{"tool_call_search", checkToolCallSearch},
}

var (
	wordRe     = regexp.MustCompile(`[A-Za-z0-9_]+`)
	sentenceRe = regexp.MustCompile(`[.!?]+\s+`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+\.)\s+`)
)

func tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

func hasLink(answer string) bool {
	return strings.Contains(answer, "http://") || strings.Contains(answer, "https://")
}

func pass(b bool) *bool { return &b }

// checkInstructionsFollow: when the instructions demand a references
// section, verify the answer carries one. Not applicable otherwise.
func checkInstructionsFollow(rec *LogRecord) CheckOutcome {
	requires := strings.Contains(strings.ToLower(rec.Instructions), "references")
	if !requires {
		return CheckOutcome{Detail: "no explicit reference requirement detected"}
	}
	has := strings.Contains(strings.ToLower(rec.Answer), "references") || hasLink(rec.Answer)
	detail := "instructions mention references; answer missing references"
	if has {
		detail = "instructions mention references; answer contains references"
	}
	return CheckOutcome{Passed: pass(has), Detail: detail}
}

// checkInstructionsAvoid: when the instructions bound search usage to
// [3, 6] calls, verify the trace stayed inside the bound.
func checkInstructionsAvoid(rec *LogRecord) CheckOutcome {
	lower := strings.ToLower(rec.Instructions)
	bounded := strings.Contains(lower, "at most 6") && strings.Contains(lower, "at least 3")
	if !bounded {
		return CheckOutcome{Detail: "no explicit search bounds requirement detected"}
	}
	calls := toolCallCount(rec.RawJSON, "search")
	return CheckOutcome{
		Passed: pass(calls >= 3 && calls <= 6),
		Detail: fmt.Sprintf("search_calls=%d, bound=[3,6]", calls),
	}
}

// checkAnswerClear: basic readability heuristic. Enough words, sentences
// not overlong.
func checkAnswerClear(rec *LogRecord) CheckOutcome {
	if rec.Answer == "" {
		return CheckOutcome{Detail: "no answer text"}
	}
	sentences := sentenceRe.Split(strings.TrimSpace(rec.Answer), -1)
	words := tokenize(rec.Answer)
	avg := float64(len(words)) / float64(max(1, len(sentences)))
	ok := len(words) >= 40 && avg <= 35
	return CheckOutcome{
		Passed: pass(ok),
		Detail: fmt.Sprintf("words=%d, sentences=%d, avg_sentence_len=%.1f", len(words), len(sentences), avg),
	}
}

// checkAnswerMatch: token overlap (jaccard) between prompt and answer.
func checkAnswerMatch(rec *LogRecord) CheckOutcome {
	if rec.Answer == "" || rec.Prompt == "" {
		return CheckOutcome{Detail: "prompt or answer missing"}
	}
	p := make(map[string]bool)
	for _, w := range tokenize(rec.Prompt) {
		p[w] = true
	}
	a := make(map[string]bool)
	for _, w := range tokenize(rec.Answer) {
		a[w] = true
	}
	overlap := 0
	union := len(a)
	for w := range p {
		if a[w] {
			overlap++
		} else {
			union++
		}
	}
	jaccard := float64(overlap) / float64(max(1, union))
	return CheckOutcome{
		Passed: pass(jaccard >= 0.08),
		Score:  &jaccard,
		Detail: fmt.Sprintf("token_overlap=%d, jaccard=%.3f", overlap, jaccard),
	}
}

// checkAnswerCitations: URLs or a references section present.
func checkAnswerCitations(rec *LogRecord) CheckOutcome {
	if rec.Answer == "" {
		return CheckOutcome{Detail: "no answer text"}
	}
	ok := hasLink(rec.Answer) || strings.Contains(strings.ToLower(rec.Answer), "references")
	return CheckOutcome{Passed: pass(ok), Detail: "contains URLs or a references section"}
}

// checkCompleteness: long enough, or structured with bullets.
func checkCompleteness(rec *LogRecord) CheckOutcome {
	if rec.Answer == "" {
		return CheckOutcome{Detail: "no answer text"}
	}
	words := tokenize(rec.Answer)
	bullets := bulletRe.MatchString(rec.Answer)
	return CheckOutcome{
		Passed: pass(len(words) >= 120 || bullets),
		Detail: fmt.Sprintf("words=%d, bullets=%t", len(words), bullets),
	}
}

// checkToolCallSearch: was the search tool used at all.
func checkToolCallSearch(rec *LogRecord) CheckOutcome {
	calls := toolCallCount(rec.RawJSON, "search")
	return CheckOutcome{
		Passed: pass(calls > 0),
		Detail: fmt.Sprintf("search_calls=%d", calls),
	}
}
