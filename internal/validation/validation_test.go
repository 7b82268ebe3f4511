package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		in     *string
		reason Reason
	}{
		"nil":           {nil, ReasonEmpty},
		"empty":         {ptr(""), ReasonEmpty},
		"blank":         {ptr(" \n\t "), ReasonEmpty},
		"undefined":     {ptr("undefined"), ReasonInvalidLiteral},
		"object object": {ptr("  [Object Object] "), ReasonInvalidLiteral},
		"NaN":           {ptr("NaN"), ReasonInvalidLiteral},
		"empty object":  {ptr("{}"), ReasonEmptyStructure},
		"empty quotes":  {ptr(`""`), ReasonEmptyStructure},
		"json object":   {ptr(`{"a":1}`), ReasonRawJSON},
		"json array":    {ptr(`[1, 2, 3, "four", "five"]`), ReasonRawJSON},
		"error phrase":  {ptr("Error: connection refused by upstream"), ReasonErrorMessage},
		"unable to":     {ptr("I was unable to retrieve the document."), ReasonErrorMessage},
		"chinese error": {ptr("抱歉，我暂时无法回答这个问题，请稍后再试"), ReasonErrorMessage},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := Validate(tc.in)
			assert.False(t, r.Valid)
			assert.Equal(t, tc.reason, r.Reason)
			assert.Equal(t, SeverityError, r.Severity)
			assert.NotEmpty(t, r.Message)
		})
	}
}

func TestValidateAcceptsNormalAnswer(t *testing.T) {
	r := ValidateString("This is a normal, sufficiently detailed answer about the topic.")
	assert.True(t, r.Valid)
	assert.Empty(t, r.Reason)
	assert.Empty(t, r.Severity)
}

func TestCharIndexDump(t *testing.T) {
	var b strings.Builder
	b.WriteString("Answer: ")
	for i := 0; i < 11; i++ {
		b.WriteString(`"` + string(rune('0'+i%10)) + `": "字", `)
	}
	r := ValidateString(b.String())
	assert.False(t, r.Valid)
	assert.Equal(t, ReasonCharIndexDump, r.Reason)

	r = ValidateString(`Only a few pairs "1": "a", "2": "b" appear in this otherwise fine sentence.`)
	assert.True(t, r.Valid)
}

func TestErrorPhraseInLongAnswerIsAllowed(t *testing.T) {
	long := "Insulin resistance is common. " + strings.Repeat("Patients who are unable to exercise benefit from diet changes. ", 3)
	assert.True(t, ValidateString(long).Valid)
}

func TestWarningsDoNotFailByDefault(t *testing.T) {
	r := ValidateString("Short one")
	assert.True(t, r.Valid)
	assert.Equal(t, ReasonTooShort, r.Reason)
	assert.Equal(t, SeverityWarning, r.Severity)

	r = ValidateString("?! ... --- ?! ... --- ?! ... --- ok")
	assert.True(t, r.Valid)
	assert.Equal(t, ReasonNoSubstance, r.Reason)

	r = ValidateString(strings.Repeat("a", 50001))
	assert.True(t, r.Valid)
	assert.Equal(t, ReasonTooLong, r.Reason)

	strict := New(Options{BlockOnWarning: true})
	s := "Short one"
	r = strict.Validate(&s)
	assert.False(t, r.Valid)
	assert.Equal(t, ReasonTooShort, r.Reason)

	// an error outranks an earlier warning
	s = "Error: x"
	r = strict.Validate(&s)
	assert.Equal(t, ReasonErrorMessage, r.Reason)
	assert.Equal(t, SeverityError, r.Severity)
}

func TestLengthsCountRunes(t *testing.T) {
	// 14 Han characters: long enough, but fewer than 20 non-space characters
	r := ValidateString("胰岛素可以降低血糖水平的药物")
	assert.True(t, r.Valid)
	assert.Equal(t, ReasonNoSubstance, r.Reason)

	r = ValidateString("胰岛素是一种由胰腺分泌的激素，它能够帮助身体细胞吸收葡萄糖并降低血糖水平。")
	assert.True(t, r.Valid)
	assert.Empty(t, r.Reason)
}

func TestValidateQuick(t *testing.T) {
	assert.False(t, ValidateQuick(nil))
	assert.False(t, ValidateQuick(ptr("   ")))
	assert.False(t, ValidateQuick(ptr("None")))
	assert.False(t, ValidateQuick(ptr("<>")))
	assert.True(t, ValidateQuick(ptr(`{"a":1}`)))
	assert.True(t, ValidateQuick(ptr("ok")))
}

func TestValidateWithSuggestion(t *testing.T) {
	r := ValidateWithSuggestion(ptr(`{"answer": "x"}`))
	assert.False(t, r.Valid)
	assert.Equal(t, "convert structured data to prose before returning it", r.Suggestion)

	r = ValidateWithSuggestion(ptr("undefined"))
	assert.Contains(t, r.Suggestion, "reparse")

	r = ValidateWithSuggestion(ptr("This is a normal, sufficiently detailed answer about the topic."))
	assert.True(t, r.Valid)
	assert.Empty(t, r.Suggestion)
}
