// Package filter decides whether a commit message exempts a commit from
// review, based on project-configured rule patterns.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// RuleError describes one malformed rule line. Lines are reported 1-indexed.
type RuleError struct {
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

func (e RuleError) Error() string {
	return fmt.Sprintf("line %d: invalid pattern %q: %s", e.Line, e.Pattern, e.Message)
}

// ShouldSkipReview reports whether the commit message matches any of the
// newline-delimited rules. Each non-blank line is compiled as a
// case-insensitive regular expression. A malformed rule is skipped with a
// warning and never aborts evaluation of the remaining rules.
func ShouldSkipReview(message, rules string) bool {
	if strings.TrimSpace(rules) == "" {
		return false
	}

	for _, line := range strings.Split(rules, "\n") {
		pattern := strings.TrimSpace(line)
		if pattern == "" {
			continue
		}

		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			log.Warn().Str("pattern", pattern).Err(err).Msg("Skipping malformed filter rule")
			continue
		}

		if re.MatchString(message) {
			return true
		}
	}

	return false
}

// ValidateFilterRules checks every non-blank rule line and returns whether
// all compiled, plus one error per bad line. Intended for config-save time.
func ValidateFilterRules(rules string) (bool, []RuleError) {
	var errs []RuleError

	for i, line := range strings.Split(rules, "\n") {
		pattern := strings.TrimSpace(line)
		if pattern == "" {
			continue
		}

		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			errs = append(errs, RuleError{
				Line:    i + 1,
				Pattern: pattern,
				Message: err.Error(),
			})
		}
	}

	return len(errs) == 0, errs
}
