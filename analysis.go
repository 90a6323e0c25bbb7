// analysis.go
package main

// FlaggedIssue is one hazard or violation surfaced by the analysis pipeline,
// either reported by a backend or injected by the rule-based detector.
type FlaggedIssue struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"` // LOW, MEDIUM, HIGH, CRITICAL
	Description    string `json:"description"`
	Location       string `json:"location,omitempty"` // Where on the form the issue was seen
	Standard       string `json:"standard,omitempty"` // Violated standard reference, if any
	Recommendation string `json:"recommendation,omitempty"`
	Priority       string `json:"priority,omitempty"`
	CostImpact     string `json:"costImpact,omitempty"`
	IsControlled   bool   `json:"isControlled"` // False when no control measure was confirmed
}

// ComplianceIssue is a gap against a referenced standard or procedure.
type ComplianceIssue struct {
	Issue    string `json:"issue"`
	Severity string `json:"severity"`
	Standard string `json:"standard,omitempty"`
}

// RiskAssessment carries the consequence/likelihood detail behind the score.
type RiskAssessment struct {
	InitialRisk  string `json:"initialRisk,omitempty"`
	ResidualRisk string `json:"residualRisk,omitempty"`
	Consequence  string `json:"consequence,omitempty"`
	Likelihood   string `json:"likelihood,omitempty"`
}

// WorkerDetails flags which worker identification fields were found.
type WorkerDetails struct {
	NamePresent      bool `json:"namePresent"`
	SignaturePresent bool `json:"signaturePresent"`
	DatePresent      bool `json:"datePresent"`
}

// EmergencyProcedures flags emergency planning content on the form.
type EmergencyProcedures struct {
	Documented     bool `json:"documented"`
	ContactsListed bool `json:"contactsListed"`
}

// AnalysisResult is the canonical output of the analysis pipeline. Every
// backend reply funnels through this shape; it is the single schema boundary
// consumed by the processor, the tracker and the HTTP layer.
type AnalysisResult struct {
	FormType           string `json:"formType"`
	FormTypeConfidence string `json:"formTypeConfidence"`

	RiskScore int    `json:"riskScore"` // Always in [1,10]
	RiskLevel string `json:"riskLevel"` // Pure function of RiskScore
	Escalated bool   `json:"escalated,omitempty"`

	FlaggedIssues    []FlaggedIssue    `json:"flaggedIssues"`
	HRWFactors       []string          `json:"hrwFactors"`
	PPERequired      []string          `json:"ppeRequired"`
	ComplianceIssues []ComplianceIssue `json:"complianceIssues"`
	RiskAssessment   RiskAssessment    `json:"riskAssessment"`
	Recommendations  []string          `json:"recommendations"`

	Summary                  string `json:"summary"`
	RequiresSupervisorReview bool   `json:"requiresSupervisorReview"`

	FormCompleteness string   `json:"formCompleteness"`
	MissingFields    []string `json:"missingFields"`
	PositiveFindings []string `json:"positiveFindings"`

	WorkLocation        string              `json:"workLocation,omitempty"`
	WorkActivity        string              `json:"workActivity,omitempty"`
	WorkerDetails       WorkerDetails       `json:"workerDetails"`
	EmergencyProcedures EmergencyProcedures `json:"emergencyProcedures"`

	// Provenance
	Provider         string            `json:"provider,omitempty"`
	ProcessingTimeMs int64             `json:"processingTimeMs,omitempty"`
	FallbackUsed     bool              `json:"fallbackUsed,omitempty"`
	FailureReason    string            `json:"failureReason,omitempty"`
	FailedProviders  []string          `json:"failedProviders,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// referencedStandards collects the distinct standard references named across
// flagged issues and compliance issues.
func (r *AnalysisResult) referencedStandards() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, issue := range r.FlaggedIssues {
		add(issue.Standard)
	}
	for _, issue := range r.ComplianceIssues {
		add(issue.Standard)
	}
	return out
}

// hasCriticalIssue reports whether any flagged issue carries CRITICAL severity.
func (r *AnalysisResult) hasCriticalIssue() bool {
	for _, issue := range r.FlaggedIssues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
