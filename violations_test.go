package main

import (
	"strings"
	"testing"
)

func TestDetectViolationsH2SUnconfirmed(t *testing.T) {
	text := "Confined space entry checklist. H2S monitor required for this task."

	issues := DetectViolations(text)
	if len(issues) == 0 {
		t.Fatal("Expected H2S violation to be detected")
	}

	var h2s *FlaggedIssue
	for i := range issues {
		if issues[i].Type == "h2s_monitor" {
			h2s = &issues[i]
		}
	}
	if h2s == nil {
		t.Fatalf("Expected h2s_monitor issue, got %+v", issues)
	}
	if h2s.Severity != SeverityCritical {
		t.Errorf("Expected CRITICAL severity, got %s", h2s.Severity)
	}
	if h2s.IsControlled {
		t.Error("Detected violations must be uncontrolled")
	}
	if h2s.Standard != "AS 2865" {
		t.Errorf("Expected AS 2865 standard reference, got %s", h2s.Standard)
	}
}

func TestDetectViolationsSuppressedByConfirmation(t *testing.T) {
	text := "Gas detection: H2S monitor ✓ worn and calibrated before entry."

	for _, issue := range DetectViolations(text) {
		if issue.Type == "h2s_monitor" {
			t.Errorf("Confirmed H2S monitor should not fire the rule, got %+v", issue)
		}
	}
}

func TestDetectViolationsNegativeMark(t *testing.T) {
	text := "PPE check:\nsafety glasses ✗\ngloves not worn\nhard hat yes"

	issues := DetectViolations(text)
	types := make(map[string]bool)
	for _, issue := range issues {
		types[issue.Type] = true
	}

	if !types["eye_protection"] {
		t.Error("Expected eye_protection violation for crossed checkbox")
	}
	if !types["hand_protection"] {
		t.Error("Expected hand_protection violation for 'not worn'")
	}
	if types["head_protection"] {
		t.Error("Hard hat marked yes should not fire head_protection")
	}
}

func TestBaseRiskScoreSignals(t *testing.T) {
	// Long text with hazard, emergency and control vocabulary earns all four
	// increments.
	text := strings.Repeat("crew signed the daily site attendance sheet ", 30) +
		"hazard review held. emergency contacts listed. control measures noted."

	if len(text) <= 1000 {
		t.Fatalf("Test text must exceed 1000 characters, got %d", len(text))
	}
	if score := baseRiskScore(text); score != 4 {
		t.Errorf("Expected base score 4, got %d", score)
	}

	// Minimal text with no signals floors at 1.
	if score := baseRiskScore("short note"); score != 1 {
		t.Errorf("Expected floor score 1, got %d", score)
	}
}

func TestFinalizeRiskBenignForm(t *testing.T) {
	text := strings.Repeat("crew signed the daily site attendance sheet ", 30) +
		"hazard review held. emergency contacts listed. control measures noted."

	result := &AnalysisResult{FormCompleteness: CompletenessPartial}
	finalizeRisk(result, text, 0, false)

	if result.RiskScore != 4 {
		t.Errorf("Expected score 4 for benign long form, got %d", result.RiskScore)
	}
	if result.RiskLevel != RiskLevelMedium {
		t.Errorf("Expected MEDIUM level, got %s", result.RiskLevel)
	}
	if result.Escalated {
		t.Error("No escalation signals present, Escalated must be false")
	}
	if result.RequiresSupervisorReview {
		t.Error("Benign medium-risk form should not require supervisor review")
	}
}

func TestFinalizeRiskEscalatesCriticalHazard(t *testing.T) {
	text := "Confined space entry checklist. H2S monitor required for this task."

	result := &AnalysisResult{FlaggedIssues: DetectViolations(text)}
	finalizeRisk(result, text, 0, false)

	if !result.Escalated {
		t.Error("Expected escalation for unconfirmed H2S monitor")
	}
	if result.RiskScore <= baseRiskScore(text) {
		t.Errorf("Escalated score %d should exceed base %d", result.RiskScore, baseRiskScore(text))
	}
	if !result.RequiresSupervisorReview {
		t.Error("Critical hazard must require supervisor review")
	}
	if result.RiskLevel != riskLevelForScore(result.RiskScore) {
		t.Errorf("Risk level %s does not match score %d", result.RiskLevel, result.RiskScore)
	}
}

func TestEscalationIsMonotonic(t *testing.T) {
	benign := "daily paperwork review completed by the site clerk"
	escalated := benign + " confined space entry planned for tank 3"

	benignResult := &AnalysisResult{}
	finalizeRisk(benignResult, benign, 0, false)

	escalatedResult := &AnalysisResult{}
	finalizeRisk(escalatedResult, escalated, 0, false)

	if escalatedResult.RiskScore <= benignResult.RiskScore {
		t.Errorf("Adding high-risk work must raise the score: %d vs %d",
			escalatedResult.RiskScore, benignResult.RiskScore)
	}
	if !escalatedResult.Escalated {
		t.Error("Expected Escalated flag for confined space work")
	}
}

func TestHRWEscalationTakesLargestWeight(t *testing.T) {
	// Both confined space (4) and scaffolding (2) match; only the largest
	// weight counts, but both families are reported.
	text := "confined space entry from the scaffolding platform"

	weight, names := hrwEscalation(text)
	if weight != 4 {
		t.Errorf("Expected single largest weight 4, got %d", weight)
	}
	if len(names) != 2 {
		t.Errorf("Expected both families reported, got %v", names)
	}
}

func TestRiskLevelForScore(t *testing.T) {
	cases := []struct {
		score int
		level string
	}{
		{1, RiskLevelLow},
		{3, RiskLevelLow},
		{4, RiskLevelMedium},
		{6, RiskLevelMedium},
		{7, RiskLevelHigh},
		{8, RiskLevelHigh},
		{9, RiskLevelCritical},
		{10, RiskLevelCritical},
	}
	for _, tc := range cases {
		if got := riskLevelForScore(tc.score); got != tc.level {
			t.Errorf("Score %d: expected %s, got %s", tc.score, tc.level, got)
		}
	}
}

func TestClampScore(t *testing.T) {
	if clampScore(0) != 1 {
		t.Error("Scores below 1 must clamp to 1")
	}
	if clampScore(15) != 10 {
		t.Error("Scores above 10 must clamp to 10")
	}
	if clampScore(7) != 7 {
		t.Error("In-range scores must pass through")
	}
}

func TestSupervisorReviewRequired(t *testing.T) {
	cases := []struct {
		name     string
		result   AnalysisResult
		expected bool
	}{
		{"high score", AnalysisResult{RiskScore: 7}, true},
		{"low score", AnalysisResult{RiskScore: 4}, false},
		{
			"critical issue at low score",
			AnalysisResult{RiskScore: 2, FlaggedIssues: []FlaggedIssue{{Severity: SeverityCritical}}},
			true,
		},
		{
			"incomplete form at elevated risk",
			AnalysisResult{RiskScore: 5, FormCompleteness: CompletenessIncomplete},
			true,
		},
		{
			"incomplete form at low risk",
			AnalysisResult{RiskScore: 4, FormCompleteness: CompletenessIncomplete},
			false,
		},
		{
			"high compliance gap",
			AnalysisResult{RiskScore: 3, ComplianceIssues: []ComplianceIssue{{Severity: SeverityHigh}}},
			true,
		},
	}
	for _, tc := range cases {
		if got := supervisorReviewRequired(&tc.result); got != tc.expected {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestMergeStrings(t *testing.T) {
	merged := mergeStrings([]string{"a", "b"}, []string{"b", "c"})
	if len(merged) != 3 || merged[0] != "a" || merged[2] != "c" {
		t.Errorf("Expected [a b c], got %v", merged)
	}
}
