// normalize.go
package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// backendReply mirrors the JSON schema backends are prompted to return.
// RiskScore is a pointer so an absent score can be told apart from zero.
type backendReply struct {
	FormType                 string              `json:"formType"`
	FormTypeConfidence       string              `json:"formTypeConfidence"`
	RiskScore                *float64            `json:"riskScore"`
	Escalated                bool                `json:"escalated"`
	FlaggedIssues            []FlaggedIssue      `json:"flaggedIssues"`
	HRWFactors               []string            `json:"hrwFactors"`
	PPERequired              []string            `json:"ppeRequired"`
	ComplianceIssues         []ComplianceIssue   `json:"complianceIssues"`
	RiskAssessment           RiskAssessment      `json:"riskAssessment"`
	Recommendations          []string            `json:"recommendations"`
	Summary                  string              `json:"summary"`
	RequiresSupervisorReview bool                `json:"requiresSupervisorReview"`
	FormCompleteness         string              `json:"formCompleteness"`
	MissingFields            []string            `json:"missingFields"`
	PositiveFindings         []string            `json:"positiveFindings"`
	WorkLocation             string              `json:"workLocation"`
	WorkActivity             string              `json:"workActivity"`
	WorkerDetails            WorkerDetails       `json:"workerDetails"`
	EmergencyProcedures      EmergencyProcedures `json:"emergencyProcedures"`
}

// extractJSONObject strips code-fence markers and returns the first balanced
// {...} substring. Backends wrap their JSON in prose and markdown fences
// often enough that plain unmarshaling is not an option.
func extractJSONObject(raw string) (string, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	start := strings.Index(cleaned, "{")
	if start < 0 {
		return "", ErrMalformedResponse
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		ch := cleaned[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return cleaned[start : i+1], nil
			}
		}
	}
	return "", ErrMalformedResponse
}

// normalizeResponse turns a backend's free-form reply into the canonical
// AnalysisResult. Form type and risk score are required; optional fields get
// documented defaults. The rule-based detector runs over the ORIGINAL
// extracted text, not the backend's reply, and its findings are merged ahead
// of the backend's own flagged issues before the score is re-derived.
func normalizeResponse(raw, originalText string) (*AnalysisResult, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var reply backendReply
	if err := json.Unmarshal([]byte(obj), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(reply.FormType) == "" || reply.RiskScore == nil {
		return nil, ErrMalformedResponse
	}

	result := &AnalysisResult{
		FormType:            strings.TrimSpace(reply.FormType),
		FormTypeConfidence:  reply.FormTypeConfidence,
		FlaggedIssues:       reply.FlaggedIssues,
		HRWFactors:          reply.HRWFactors,
		PPERequired:         reply.PPERequired,
		ComplianceIssues:    reply.ComplianceIssues,
		RiskAssessment:      reply.RiskAssessment,
		Recommendations:     reply.Recommendations,
		Summary:             reply.Summary,
		FormCompleteness:    reply.FormCompleteness,
		MissingFields:       reply.MissingFields,
		PositiveFindings:    reply.PositiveFindings,
		WorkLocation:        reply.WorkLocation,
		WorkActivity:        reply.WorkActivity,
		WorkerDetails:       reply.WorkerDetails,
		EmergencyProcedures: reply.EmergencyProcedures,
	}
	applyDefaults(result)

	detected := DetectViolations(originalText)
	result.FlaggedIssues = mergeDetectedIssues(detected, result.FlaggedIssues)

	// A reply that carries the escalated marker has been through this pass
	// before (round-tripped result); its score already includes escalations.
	finalizeRisk(result, originalText, int(*reply.RiskScore), reply.Escalated)

	return result, nil
}

// applyDefaults fills documented defaults for absent optional fields.
func applyDefaults(result *AnalysisResult) {
	if result.FormTypeConfidence == "" {
		result.FormTypeConfidence = ConfidenceHigh
	}
	if result.FormCompleteness == "" {
		result.FormCompleteness = CompletenessPartial
	}
	if result.FlaggedIssues == nil {
		result.FlaggedIssues = []FlaggedIssue{}
	}
	if result.HRWFactors == nil {
		result.HRWFactors = []string{}
	}
	if result.PPERequired == nil {
		result.PPERequired = []string{}
	}
	if result.ComplianceIssues == nil {
		result.ComplianceIssues = []ComplianceIssue{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []string{}
	}
	if result.MissingFields == nil {
		result.MissingFields = []string{}
	}
	if result.PositiveFindings == nil {
		result.PositiveFindings = []string{}
	}
}

// mergeDetectedIssues prepends detector findings to the backend's issues.
// Backend issues sharing a detected type are dropped so that re-normalizing
// a round-tripped result does not double-count hazards.
func mergeDetectedIssues(detected, existing []FlaggedIssue) []FlaggedIssue {
	if len(detected) == 0 {
		if existing == nil {
			return []FlaggedIssue{}
		}
		return existing
	}
	detectedTypes := make(map[string]struct{}, len(detected))
	for _, issue := range detected {
		detectedTypes[issue.Type] = struct{}{}
	}
	out := make([]FlaggedIssue, 0, len(detected)+len(existing))
	out = append(out, detected...)
	for _, issue := range existing {
		if _, dup := detectedTypes[issue.Type]; dup {
			continue
		}
		out = append(out, issue)
	}
	return out
}
