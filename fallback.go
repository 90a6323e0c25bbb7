// fallback.go
package main

// FallbackAnalysis is the last line of defense: a pure rule-based analysis
// used when every remote backend has failed. It always produces a complete
// result for any non-empty text and unconditionally requires supervisor
// review, since no model ever looked at the form.
func FallbackAnalysis(text string, cause error) *AnalysisResult {
	result := &AnalysisResult{
		FormType:           FormTypeUnknown,
		FormTypeConfidence: ConfidenceLow,
		FlaggedIssues:      DetectViolations(text),
		ComplianceIssues: []ComplianceIssue{
			{
				Issue:    "Automated analysis unavailable - manual review required",
				Severity: SeverityHigh,
			},
		},
		Summary:      "All analysis providers were unavailable. Hazards below come from rule-based detection only; a supervisor must review this form.",
		Provider:     "rule_fallback",
		FallbackUsed: true,
	}
	if cause != nil {
		result.FailureReason = cause.Error()
	}
	applyDefaults(result)
	finalizeRisk(result, text, 0, false)

	// Review is unconditional on the fallback path regardless of score.
	result.RequiresSupervisorReview = true
	return result
}
