// Package tracker ingests LLM interaction log files into a relational
// database, runs rule-based evaluation checks against each record, and
// stores user feedback keyed to records.
//
// The pipeline is deliberately single-threaded and polling-based: one
// writer walks a directory, parses each JSON artifact, estimates cost,
// inserts the record, evaluates it, and renames the file so it is never
// picked up twice. Files that fail stay in place for inspection or retry.
package tracker

import (
	"time"

	"github.com/shopspring/decimal"
)

// LogRecord is the normalized representation of one ingested interaction.
// Append-only: records are never mutated or deleted after insert.
type LogRecord struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	AgentName    string `json:"agent_name,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model"`
	Prompt       string `json:"prompt,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Answer       string `json:"answer,omitempty"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	RawJSON      string `json:"-"`

	// Costs are exact decimals, persisted as text to avoid binary float
	// drift. Invalid (null) costs mean the pricing source could not price
	// this record: a degraded state, not an error.
	InputCost  decimal.NullDecimal `json:"input_cost"`
	OutputCost decimal.NullDecimal `json:"output_cost"`
	TotalCost  decimal.NullDecimal `json:"total_cost"`

	CreatedAt time.Time `json:"created_at"`
}

// CheckResult is the outcome of one named evaluation check against one
// LogRecord. Passed is tri-state: nil means the check was not applicable
// to this record (e.g. no answer text to grade).
type CheckResult struct {
	ID        int64     `json:"id"`
	LogID     int64     `json:"log_id"`
	CheckName string    `json:"check_name"`
	Passed    *bool     `json:"passed"`
	Score     *float64  `json:"score,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Feedback is a human judgment attached to a LogRecord. Rows append;
// readers see newest first.
type Feedback struct {
	ID              int64     `json:"id"`
	LogID           int64     `json:"log_id"`
	IsGood          bool      `json:"is_good"`
	Comments        string    `json:"comments,omitempty"`
	ReferenceAnswer string    `json:"reference_answer,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
