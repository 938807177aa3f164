package classify

import (
	"fmt"
	"time"
)

// Severity is the health classification of one entity at one point in time.
type Severity string

// The four severity values. Unknown marks a failed observation — the fetch or
// parse itself went wrong and nothing can be said about the entity's health.
const (
	SeverityNormal  Severity = "normal"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityUnknown Severity = "unknown"
)

// SummaryCheckFailed is the fixed summary carried by every Unknown verdict.
const SummaryCheckFailed = "check failed"

// Verdict is the classifier's output for one entity.
type Verdict struct {
	Severity     Severity
	ErrorCount   int
	WarningCount int
	OKCount      int
	Summary      string
	ObservedAt   time.Time
}

// FromCounts builds a verdict directly from already-known status counts,
// applying the same precedence and summary wording as markup classification.
// Used by probes that read counts instead of markup.
func FromCounts(errors, warnings, oks int, now time.Time) Verdict {
	v := Verdict{
		ErrorCount:   errors,
		WarningCount: warnings,
		OKCount:      oks,
		ObservedAt:   now,
	}
	switch {
	case errors > 0:
		v.Severity = SeverityError
		v.Summary = summaryErrors(errors)
	case warnings > 0:
		v.Severity = SeverityWarning
		v.Summary = summaryWarnings(oks, warnings)
	default:
		v.Severity = SeverityNormal
		v.Summary = summaryOK(oks)
	}
	return v
}

// Failed returns the verdict used when an observation could not be completed
// at all. It is informational only: the monitor loop never lets it overwrite
// real history.
func Failed(now time.Time) Verdict {
	return Verdict{
		Severity:   SeverityUnknown,
		Summary:    SummaryCheckFailed,
		ObservedAt: now,
	}
}

func summaryErrors(n int) string { return fmt.Sprintf("errors: %d", n) }

func summaryWarnings(oks, warnings int) string {
	return fmt.Sprintf("ok: %d, warnings: %d", oks, warnings)
}

func summaryOK(n int) string { return fmt.Sprintf("ok: %d", n) }
