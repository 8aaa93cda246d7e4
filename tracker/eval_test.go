package tracker

import (
	"strings"
	"testing"
)

func TestEvaluateOneResultPerCheck(t *testing.T) {
	e := NewEvaluator()
	names := e.Names()
	if len(names) != 7 {
		t.Fatalf("default check set: got %d, want 7", len(names))
	}

	rec := &LogRecord{Model: "m", Answer: "short"}
	results := e.Evaluate(42, rec)
	if len(results) != len(names) {
		t.Fatalf("got %d results, want %d", len(results), len(names))
	}
	for i, r := range results {
		if r.LogID != 42 {
			t.Fatalf("result %d log id: %d", i, r.LogID)
		}
		if r.CheckName != names[i] {
			t.Fatalf("result %d out of order: %q != %q", i, r.CheckName, names[i])
		}
	}
}

func TestRegisterDuplicate(t *testing.T) {
	e := NewEvaluator()
	noop := func(*LogRecord) CheckOutcome { return CheckOutcome{} }

	if err := e.Register("custom", noop); err != nil {
		t.Fatal(err)
	}
	if err := e.Register("custom", noop); err == nil {
		t.Fatal("duplicate registration must fail")
	}
	if err := e.Register("answer_clear", noop); err == nil {
		t.Fatal("shadowing a default check must fail")
	}
	if err := e.Register("", noop); err == nil {
		t.Fatal("empty name must fail")
	}
}

func TestRegisteredCheckRuns(t *testing.T) {
	e := NewEvaluator()
	called := false
	if err := e.Register("always_pass", func(*LogRecord) CheckOutcome {
		called = true
		return CheckOutcome{Passed: pass(true), Detail: "ok"}
	}); err != nil {
		t.Fatal(err)
	}

	results := e.Evaluate(1, &LogRecord{})
	if !called {
		t.Fatal("registered check was not invoked")
	}
	last := results[len(results)-1]
	if last.CheckName != "always_pass" || last.Passed == nil || !*last.Passed {
		t.Fatalf("custom check result: %+v", last)
	}
}

func TestCheckInstructionsFollow(t *testing.T) {
	out := checkInstructionsFollow(&LogRecord{Instructions: "Be brief."})
	if out.Passed != nil {
		t.Fatal("no reference requirement: check should not apply")
	}

	out = checkInstructionsFollow(&LogRecord{
		Instructions: "Always include references.",
		Answer:       "See https://example.com for details.",
	})
	if out.Passed == nil || !*out.Passed {
		t.Fatalf("answer with link should pass: %+v", out)
	}

	out = checkInstructionsFollow(&LogRecord{
		Instructions: "Always include references.",
		Answer:       "No sources here.",
	})
	if out.Passed == nil || *out.Passed {
		t.Fatalf("answer without references should fail: %+v", out)
	}
}

func TestCheckInstructionsAvoid(t *testing.T) {
	bounded := "Use at least 3 and at most 6 search calls."
	raw := func(n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = `{"tool_name":"search"}`
		}
		return `{"messages":[{"parts":[` + strings.Join(parts, ",") + `]}]}`
	}

	out := checkInstructionsAvoid(&LogRecord{Instructions: "none", RawJSON: raw(4)})
	if out.Passed != nil {
		t.Fatal("unbounded instructions: check should not apply")
	}

	out = checkInstructionsAvoid(&LogRecord{Instructions: bounded, RawJSON: raw(4)})
	if out.Passed == nil || !*out.Passed {
		t.Fatalf("4 calls inside [3,6] should pass: %+v", out)
	}

	out = checkInstructionsAvoid(&LogRecord{Instructions: bounded, RawJSON: raw(9)})
	if out.Passed == nil || *out.Passed {
		t.Fatalf("9 calls should fail: %+v", out)
	}
}

func TestCheckAnswerClear(t *testing.T) {
	if out := checkAnswerClear(&LogRecord{}); out.Passed != nil {
		t.Fatal("empty answer: check should not apply")
	}

	long := strings.Repeat("The system records each interaction for later review. ", 10)
	out := checkAnswerClear(&LogRecord{Answer: long})
	if out.Passed == nil || !*out.Passed {
		t.Fatalf("readable answer should pass: %+v", out)
	}

	if out := checkAnswerClear(&LogRecord{Answer: "Too short."}); out.Passed == nil || *out.Passed {
		t.Fatalf("short answer should fail: %+v", out)
	}
}

func TestCheckAnswerMatch(t *testing.T) {
	out := checkAnswerMatch(&LogRecord{
		Prompt: "how do I monitor data drift in production",
		Answer: "To monitor data drift in production you compare distributions over time.",
	})
	if out.Passed == nil || !*out.Passed {
		t.Fatalf("overlapping answer should pass: %+v", out)
	}
	if out.Score == nil || *out.Score <= 0 {
		t.Fatalf("expected a positive overlap score: %+v", out)
	}

	out = checkAnswerMatch(&LogRecord{
		Prompt: "weather forecast tomorrow",
		Answer: "Quantum entanglement links particle states.",
	})
	if out.Passed == nil || *out.Passed {
		t.Fatalf("disjoint answer should fail: %+v", out)
	}
}

func TestCheckAnswerCitations(t *testing.T) {
	if out := checkAnswerCitations(&LogRecord{Answer: "See https://example.com"}); out.Passed == nil || !*out.Passed {
		t.Fatalf("URL should count as a citation: %+v", out)
	}
	if out := checkAnswerCitations(&LogRecord{Answer: "References: Smith 2020"}); out.Passed == nil || !*out.Passed {
		t.Fatalf("references section should count: %+v", out)
	}
	if out := checkAnswerCitations(&LogRecord{Answer: "Just an answer."}); out.Passed == nil || *out.Passed {
		t.Fatalf("no citations should fail: %+v", out)
	}
}

func TestCheckCompleteness(t *testing.T) {
	bullets := "Findings:\n- first point\n- second point\n"
	if out := checkCompleteness(&LogRecord{Answer: bullets}); out.Passed == nil || !*out.Passed {
		t.Fatalf("bulleted answer should pass: %+v", out)
	}
	long := strings.Repeat("word ", 150)
	if out := checkCompleteness(&LogRecord{Answer: long}); out.Passed == nil || !*out.Passed {
		t.Fatalf("long answer should pass: %+v", out)
	}
	if out := checkCompleteness(&LogRecord{Answer: "brief"}); out.Passed == nil || *out.Passed {
		t.Fatalf("brief unstructured answer should fail: %+v", out)
	}
}

func TestCheckToolCallSearch(t *testing.T) {
	withSearch := `{"messages":[{"parts":[{"tool_name":"search"}]}]}`
	if out := checkToolCallSearch(&LogRecord{RawJSON: withSearch}); out.Passed == nil || !*out.Passed {
		t.Fatalf("search call should pass: %+v", out)
	}
	if out := checkToolCallSearch(&LogRecord{RawJSON: `{}`}); out.Passed == nil || *out.Passed {
		t.Fatalf("no search call should fail: %+v", out)
	}
}
