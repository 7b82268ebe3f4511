package validation

var suggestions = map[Reason]string{
	ReasonEmpty:          "reparse the model output and make sure the answer field is extracted",
	ReasonInvalidLiteral: "reparse the model output and make sure the answer field is extracted",
	ReasonEmptyStructure: "reparse the model output and make sure the answer field is extracted",
	ReasonRawJSON:        "convert structured data to prose before returning it",
	ReasonCharIndexDump:  "output was split character by character; check the fallback parser",
	ReasonTooShort:       "regenerate a more detailed answer grounded in the knowledge base",
	ReasonNoSubstance:    "regenerate a more detailed answer grounded in the knowledge base",
	ReasonTooLong:        "check the output for dumped data and summarise it",
	ReasonErrorMessage:   "the answer is an error message; regenerate with the fallback strategy",
}

type SuggestedResult struct {
	Result
	Suggestion string `json:"suggestion,omitempty"`
}

func Suggestion(reason Reason) string { return suggestions[reason] }

// ValidateWithSuggestion adds a remediation hint for any reported reason, warnings included.
func ValidateWithSuggestion(text *string) SuggestedResult {
	r := Validate(text)
	return SuggestedResult{Result: r, Suggestion: Suggestion(r.Reason)}
}
