package domain

import (
	"time"
	"unicode/utf8"
)

// MinResultTextLength is the shortest payload text accepted as a valid result
const MinResultTextLength = 10

// ValidationOutcome is the terminal verdict of a retrieval validation run
type ValidationOutcome string

const (
	OutcomePassed    ValidationOutcome = "passed"
	OutcomeNoResults ValidationOutcome = "no_results"
	OutcomeInvalid   ValidationOutcome = "invalid_results"
	OutcomeFailed    ValidationOutcome = "failed" // a stage failed before results could be checked
)

// ResultCheck is the validation verdict for a single search result
type ResultCheck struct {
	Rank   int          `json:"rank"`
	Result SearchResult `json:"result"`
	Valid  bool         `json:"valid"`
	Issues []string     `json:"issues,omitempty"`
}

// CheckResult applies the per-result heuristics: non-empty source URL,
// non-empty text of at least MinResultTextLength characters.
func CheckResult(rank int, r SearchResult) ResultCheck {
	check := ResultCheck{Rank: rank, Result: r}
	if r.SourceURL() == "" {
		check.Issues = append(check.Issues, "missing source_url")
	}
	text := r.Text()
	switch {
	case text == "":
		check.Issues = append(check.Issues, "empty text")
	case utf8.RuneCountInString(text) < MinResultTextLength:
		check.Issues = append(check.Issues, "text shorter than 10 characters")
	}
	check.Valid = len(check.Issues) == 0
	return check
}

// ValidationReport is the structured output of one retrieval validation run
type ValidationReport struct {
	Query       string            `json:"query"`
	K           int               `json:"k"`
	Collection  *CollectionInfo   `json:"collection,omitempty"`
	Outcome     ValidationOutcome `json:"outcome"`
	FailedStage string            `json:"failed_stage,omitempty"`
	Error       string            `json:"error,omitempty"`
	ResultCount int               `json:"result_count"`
	Checks      []ResultCheck     `json:"checks,omitempty"`
	Elapsed     time.Duration     `json:"elapsed"`
}

// Passed reports whether the run reached Report with every result valid
func (r *ValidationReport) Passed() bool {
	return r.Outcome == OutcomePassed
}

// InvalidCount returns the number of results that failed a check
func (r *ValidationReport) InvalidCount() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Valid {
			n++
		}
	}
	return n
}
