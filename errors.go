package photesthesis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/photesthesis/photesthesis/i18n"
)

// Issue codes (exported consts for IDE completion and type safety by
// convention).
const (
	CodeParseError         = "parse_error"
	CodeUnknownParam       = "unknown_param"
	CodeDuplicateParam     = "duplicate_param"
	CodeDuplicatePlan      = "duplicate_plan"
	CodeNoSuchPlan         = "no_such_plan"
	CodeNoActiveProduction = "no_active_production"
	CodeDepthExhausted     = "depth_exhausted"
	CodeInvalidSymbol      = "invalid_symbol"
	CodeDuplicateRule      = "duplicate_rule"
	CodeUnknownRule        = "unknown_rule"
	CodeUnstableTrajectory = "unstable_trajectory"
	// Recovered locally by the driver (reported through handlers, the
	// failing plan hash is returned from Administer).
	CodeInvariantFailure   = "invariant_failure"
	CodeTranscriptMismatch = "transcript_mismatch"
)

// Issue is a single structured error produced by the engine.
type Issue struct {
	Code    string // One of the codes listed above.
	Message string
	Rule    string // Offending rule name, when a grammar operation failed.
	Offset  int64  // Byte offset in the input source (-1 when unknown).
	Cause   error  // Optional: underlying error.
}

// Error renders a short human-readable form: code, message, and when
// known the offending rule or input offset.
func (it Issue) Error() string {
	b := &strings.Builder{}
	b.WriteString(it.Code)
	if it.Message != "" {
		fmt.Fprintf(b, ": %s", it.Message)
	}
	if it.Rule != "" {
		fmt.Fprintf(b, " (rule %s)", it.Rule)
	}
	if it.Offset >= 0 {
		fmt.Fprintf(b, " at offset %d", it.Offset)
	}
	if it.Cause != nil {
		fmt.Fprintf(b, ": %v", it.Cause)
	}
	return b.String()
}

// Unwrap exposes the cause for errors.Is/As chains.
func (it Issue) Unwrap() error { return it.Cause }

// newIssue builds an Issue with the dictionary message for code and an
// unknown offset.
func newIssue(code, detail string) Issue {
	msg := i18n.Message(code)
	if detail != "" {
		msg = msg + ": " + detail
	}
	return Issue{Code: code, Message: msg, Offset: -1}
}

// ruleIssue builds an Issue attributed to a grammar rule.
func ruleIssue(code string, rule RuleName, detail string) Issue {
	it := newIssue(code, detail)
	it.Rule = rule.String()
	return it
}

// parseIssue builds a parse-error Issue anchored at a byte offset.
func parseIssue(off int64, detail string) Issue {
	it := newIssue(CodeParseError, detail)
	it.Offset = off
	return it
}

// AsIssue extracts an Issue from an error using errors.As internally.
func AsIssue(err error) (Issue, bool) {
	if err == nil {
		return Issue{}, false
	}
	var it Issue
	if errors.As(err, &it) {
		return it, true
	}
	return Issue{}, false
}

// IsCode reports whether err carries an Issue with the given code.
func IsCode(err error, code string) bool {
	it, ok := AsIssue(err)
	return ok && it.Code == code
}
