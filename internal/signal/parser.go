// Package signal maps an agent's free-text response to a typed stage
// outcome. All interpretation of agent prose lives here; the parser is pure
// and performs no I/O, so identical text always yields an identical outcome.
package signal

import (
	"fmt"
	"regexp"
	"strings"
)

// The marker vocabulary is shared with upstream collaborators and must stay
// bit-exact: stage-complete markers are `<STAGE>_PHASE_COMPLETE:` and hard
// pipeline failures use the `PIPELINE_FAILED_*` family.
const (
	phaseCompleteSuffix  = "_PHASE_COMPLETE:"
	pipelineFailedPrefix = "PIPELINE_FAILED_"
)

// fatalMarkers are matched first: no retry budget applies.
var fatalMarkers = []struct {
	marker string
	reason string
}{
	{"AUTHORIZATION_ERROR", "authorization error"},
	{"permission denied", "authorization error"},
	{"401 unauthorized", "authorization error"},
	{"403 forbidden", "authorization error"},
	{"MERGE_CONFLICT_UNRESOLVABLE", "unrecoverable merge conflict"},
}

// pipelineFailureCategories maps PIPELINE_FAILED_* suffixes to debugging
// cycle categories. Unlisted suffixes fall back to "pipeline".
var pipelineFailureCategories = map[string]string{
	"TESTS": "tests",
	"BUILD": "build",
	"LINT":  "lint",
}

// alreadyMarkers claim the work was integrated before this run.
var alreadyMarkers = []string{
	"ALREADY_INTEGRATED:",
	"already merged",
	"already completed and merged",
	"already integrated",
}

// Corroborating evidence patterns. A success claim on a verified stage must
// name the artifact it claims was verified; a merge claim must name the
// merge request.
var (
	pipelineRefRe = regexp.MustCompile(`(?i)pipeline\s+#?(\d+)`)
	commitRefRe   = regexp.MustCompile(`\b[0-9a-f]{7,40}\b`)
	mrRefRe       = regexp.MustCompile(`!(\d+)`)
)

// Parser interprets completion signals. It is stateless; the zero value is
// usable.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse maps an agent response for the named stage (e.g. "testing") to an
// Outcome. Matching is case-insensitive substring matching against the full
// text, in fixed priority order: fatal markers, pipeline failure markers,
// already-satisfied markers, stage-complete markers, then no-marker.
func (p *Parser) Parse(stage string, text string) Outcome {
	lower := strings.ToLower(text)

	for _, fm := range fatalMarkers {
		if strings.Contains(lower, strings.ToLower(fm.marker)) {
			return Outcome{Kind: FatalFailure, Reason: fm.reason, Category: "fatal"}
		}
	}

	if suffix, ok := findPipelineFailure(text); ok {
		category, known := pipelineFailureCategories[suffix]
		if !known {
			category = "pipeline"
		}
		return Outcome{
			Kind:     RetryableFailure,
			Reason:   fmt.Sprintf("pipeline failed (%s)", strings.ToLower(suffix)),
			Category: category,
		}
	}

	for _, marker := range alreadyMarkers {
		if !strings.Contains(lower, strings.ToLower(marker)) {
			continue
		}
		// A merge claim is only trusted when the text names the merge
		// request that carried it.
		if mr := mrRefRe.FindString(text); mr != "" {
			return Outcome{Kind: AlreadySatisfied, Reason: "work already integrated", Evidence: mr}
		}
		return Outcome{
			Kind:     RetryableFailure,
			Reason:   "merge claimed without a merge request reference",
			Category: "unverified_claim",
		}
	}

	completeMarker := strings.ToUpper(stage) + phaseCompleteSuffix
	if strings.Contains(text, completeMarker) {
		if requiresEvidence(stage) {
			evidence := findEvidence(text)
			if evidence == "" {
				return Outcome{
					Kind:     RetryableFailure,
					Reason:   "no completion signal",
					Category: "no_signal",
				}
			}
			return Outcome{Kind: Success, Evidence: evidence}
		}
		return Outcome{Kind: Success}
	}

	return Outcome{
		Kind:     RetryableFailure,
		Reason:   "no completion signal",
		Category: "no_signal",
	}
}

// requiresEvidence reports whether a stage's success claim needs a verified
// artifact reference in the text. Planning and coding produce no CI runs, so
// the bare marker suffices there.
func requiresEvidence(stage string) bool {
	switch strings.ToLower(stage) {
	case "testing", "review":
		return true
	}
	return false
}

// findEvidence returns the first pipeline or commit reference in the text.
func findEvidence(text string) string {
	if m := pipelineRefRe.FindString(text); m != "" {
		return m
	}
	// Require at least one digit so ordinary all-letter words made of
	// hex characters are not mistaken for commit hashes.
	for _, m := range commitRefRe.FindAllString(text, -1) {
		if strings.IndexAny(m, "0123456789") >= 0 {
			return m
		}
	}
	return ""
}

// findPipelineFailure returns the PIPELINE_FAILED_* suffix when present.
// These markers are uppercase by contract, so matching is exact.
func findPipelineFailure(text string) (string, bool) {
	idx := strings.Index(text, pipelineFailedPrefix)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(pipelineFailedPrefix):]
	end := 0
	for end < len(rest) && rest[end] >= 'A' && rest[end] <= 'Z' {
		end++
	}
	return rest[:end], true
}
