package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Reason string

const (
	ReasonEmpty          Reason = "empty"
	ReasonInvalidLiteral Reason = "invalid_literal"
	ReasonEmptyStructure Reason = "empty_structure"
	ReasonTooShort       Reason = "too_short"
	ReasonTooLong        Reason = "too_long"
	ReasonRawJSON        Reason = "raw_json"
	ReasonCharIndexDump  Reason = "char_index_dump"
	ReasonErrorMessage   Reason = "error_message"
	ReasonNoSubstance    Reason = "no_substance"
)

const (
	minLength            = 10
	maxLength            = 50000
	errorMessageMaxLen   = 100
	minContentLength     = 20
	minWordChars         = 10
	charIndexDumpMatches = 10
)

var (
	invalidLiterals = map[string]struct{}{
		"undefined": {}, "null": {}, "n/a": {}, "na": {}, "none": {}, "error": {}, "[object object]": {}, "nan": {},
	}
	emptyStructures = map[string]struct{}{
		"[]": {}, "{}": {}, "()": {}, "<>": {}, `""`: {}, "''": {},
	}

	charIndexPattern = regexp.MustCompile(`['"]\d+['"]\s*:\s*['"][^'"]{1,3}['"]`)
	errorPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)error:`),
		regexp.MustCompile(`(?i)exception:`),
		regexp.MustCompile(`(?i)failed to`),
		regexp.MustCompile(`(?i)cannot find`),
		regexp.MustCompile(`(?i)unable to`),
		regexp.MustCompile(`抱歉.*无法`),
		regexp.MustCompile(`很遗憾.*失败`),
		regexp.MustCompile(`出错了`),
	}
)

// Result is the outcome of one validation. A warning leaves Valid true unless the validator blocks on
// warnings; Reason and Severity still name the first warning found.
type Result struct {
	Valid    bool     `json:"valid"`
	Reason   Reason   `json:"reason,omitempty"`
	Message  string   `json:"message,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

type Options struct {
	// BlockOnWarning makes a warning fail validation when no error was found.
	BlockOnWarning bool
}

type Validator struct {
	opts Options
}

func New(opts Options) *Validator { return &Validator{opts: opts} }

var defaultValidator = New(Options{})

// Validate checks generated text with the default options. A nil text is treated like a missing answer.
func Validate(text *string) Result { return defaultValidator.Validate(text) }

func ValidateString(s string) Result { return defaultValidator.Validate(&s) }

func (v *Validator) Validate(text *string) Result {
	if text == nil {
		return fail(ReasonEmpty, "answer is null")
	}
	trimmed := strings.TrimSpace(*text)

	if r, ok := checkEmptyOrInvalid(trimmed); !ok {
		return r
	}

	var firstWarning *Result
	warn := func(r Result) {
		if firstWarning == nil {
			firstWarning = &r
		}
	}

	if r, ok := checkLength(trimmed); !ok {
		warn(r)
	}
	if r, ok := checkRawStructure(trimmed); !ok {
		return r
	}
	if r, ok := checkErrorPatterns(trimmed); !ok {
		return r
	}
	if r, ok := checkSubstance(trimmed); !ok {
		warn(r)
	}

	if firstWarning == nil {
		return Result{Valid: true}
	}
	out := *firstWarning
	out.Valid = !v.opts.BlockOnWarning
	return out
}

// ValidateQuick runs only the empty and invalid-literal checks.
func ValidateQuick(text *string) bool {
	if text == nil {
		return false
	}
	_, ok := checkEmptyOrInvalid(strings.TrimSpace(*text))
	return ok
}

func fail(reason Reason, msg string) Result {
	return Result{Valid: false, Reason: reason, Message: msg, Severity: SeverityError}
}

func warning(reason Reason, msg string) Result {
	return Result{Valid: false, Reason: reason, Message: msg, Severity: SeverityWarning}
}

func checkEmptyOrInvalid(trimmed string) (Result, bool) {
	if trimmed == "" {
		return fail(ReasonEmpty, "answer is empty"), false
	}
	if _, bad := invalidLiterals[strings.ToLower(trimmed)]; bad {
		return fail(ReasonInvalidLiteral, fmt.Sprintf("answer is an invalid literal: %q", trimmed)), false
	}
	if _, bad := emptyStructures[trimmed]; bad {
		return fail(ReasonEmptyStructure, fmt.Sprintf("answer is an empty structure: %s", trimmed)), false
	}
	return Result{}, true
}

func checkLength(trimmed string) (Result, bool) {
	n := utf8.RuneCountInString(trimmed)
	if n < minLength {
		return warning(ReasonTooShort, fmt.Sprintf("answer is too short (%d characters)", n)), false
	}
	if n > maxLength {
		return warning(ReasonTooLong, fmt.Sprintf("answer is too long (%d characters)", n)), false
	}
	return Result{}, true
}

func checkRawStructure(trimmed string) (Result, bool) {
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			switch parsed.(type) {
			case map[string]any, []any:
				return fail(ReasonRawJSON, "answer is raw JSON, not natural language"), false
			}
		}
	}
	if len(charIndexPattern.FindAllStringIndex(trimmed, charIndexDumpMatches+1)) > charIndexDumpMatches {
		return fail(ReasonCharIndexDump, "answer is a character-index mapping, likely split character by character"), false
	}
	return Result{}, true
}

func checkErrorPatterns(trimmed string) (Result, bool) {
	if utf8.RuneCountInString(trimmed) >= errorMessageMaxLen {
		return Result{}, true
	}
	for _, p := range errorPatterns {
		if p.MatchString(trimmed) {
			return fail(ReasonErrorMessage, "answer is mostly an error message"), false
		}
	}
	return Result{}, true
}

func checkSubstance(trimmed string) (Result, bool) {
	content := 0
	words := 0
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		content++
		if isWordChar(r) {
			words++
		}
	}
	if content < minContentLength {
		return warning(ReasonNoSubstance, fmt.Sprintf("answer lacks substance (%d non-space characters)", content)), false
	}
	if words < minWordChars {
		return warning(ReasonNoSubstance, "answer is mostly punctuation"), false
	}
	return Result{}, true
}

func isWordChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return unicode.Is(unicode.Han, r)
}
