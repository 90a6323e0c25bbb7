// violations.go
package main

import "regexp"

// Checkbox mark signatures seen in OCR output. Paper forms come back with a
// mix of unicode ticks, crosses and handwritten yes/no.
const (
	negMark = `(?:✗|✘|☒|\bno\b|\bnot\s+(?:worn|used|done|completed|obtained|in\s+place)\b|\bmissing\b)`
	affMark = `(?:✓|☑|√|\byes\b|\bok\b|\bconfirmed\b|\bcompleted\b)`
)

// violationRule maps a textual signature to a hazard record. A rule fires
// only when Negative matches and Positive does not match anywhere in the
// text: an item that is both praised and flagged due to ambiguous mark
// placement is not counted.
type violationRule struct {
	Category       string
	Negative       *regexp.Regexp // Control missed, refused, or left unconfirmed
	Positive       *regexp.Regexp // Affirmative confirmation that suppresses the rule
	Severity       string
	Weight         int // Escalation weight, added once per fired rule
	Description    string
	Location       string
	Standard       string
	Recommendation string
}

// violationRules is the canonical ordered rule table. Critical atmosphere and
// isolation controls fire on an unconfirmed mention; PPE items fire only on
// an explicit negative mark.
var violationRules = []violationRule{
	{
		Category:       "h2s_monitor",
		Negative:       regexp.MustCompile(`(?i)h2s\s+monitor`),
		Positive:       regexp.MustCompile(`(?i)h2s\s+monitor[^\n]{0,60}` + affMark),
		Severity:       SeverityCritical,
		Weight:         3,
		Description:    "H2S monitor not confirmed as worn within breathing zone",
		Location:       "gas detection section",
		Standard:       "AS 2865",
		Recommendation: "Stop work until a calibrated H2S monitor is worn within the breathing zone",
	},
	{
		Category:       "atmospheric_testing",
		Negative:       regexp.MustCompile(`(?i)(?:gas\s+test|atmospheric\s+(?:test(?:ing)?|monitoring))`),
		Positive:       regexp.MustCompile(`(?i)(?:gas\s+test|atmospheric\s+(?:test(?:ing)?|monitoring))[^\n]{0,60}` + affMark),
		Severity:       SeverityCritical,
		Weight:         3,
		Description:    "Atmospheric testing not confirmed before entry",
		Location:       "gas detection section",
		Standard:       "AS 2865",
		Recommendation: "Complete and record atmospheric testing before any entry proceeds",
	},
	{
		Category:       "isolation",
		Negative:       regexp.MustCompile(`(?i)(?:lock\s*out|tag\s*out|isolation\s+(?:point|verified|in\s+place))`),
		Positive:       regexp.MustCompile(`(?i)(?:lock\s*out|tag\s*out|isolation\s+(?:point|verified|in\s+place))[^\n]{0,60}` + affMark),
		Severity:       SeverityCritical,
		Weight:         3,
		Description:    "Energy isolation not verified",
		Location:       "isolation section",
		Standard:       "AS 4024",
		Recommendation: "Verify lockout/tagout at every isolation point before work starts",
	},
	{
		Category:       "fall_protection",
		Negative:       regexp.MustCompile(`(?i)(?:safety\s+harness|fall\s+arrest(?:or)?|lanyard)[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)(?:safety\s+harness|fall\s+arrest(?:or)?|lanyard)[^\n]{0,60}` + affMark),
		Severity:       SeverityHigh,
		Weight:         2,
		Description:    "Fall protection equipment marked as not worn",
		Location:       "PPE section",
		Standard:       "AS/NZS 1891",
		Recommendation: "Fit and inspect a fall arrest harness before working at height",
	},
	{
		Category:       "work_permit",
		Negative:       regexp.MustCompile(`(?i)permit[^\n]{0,60}(?:` + negMark + `|expired)`),
		Positive:       regexp.MustCompile(`(?i)permit[^\n]{0,60}` + affMark),
		Severity:       SeverityHigh,
		Weight:         2,
		Description:    "Required work permit missing or expired",
		Location:       "permit section",
		Recommendation: "Obtain a current permit to work before proceeding",
	},
	{
		Category:       "spotter",
		Negative:       regexp.MustCompile(`(?i)spotter[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)spotter[^\n]{0,60}` + affMark),
		Severity:       SeverityHigh,
		Weight:         2,
		Description:    "Spotter marked as not in place for plant movement",
		Location:       "mobile plant section",
		Recommendation: "Assign a dedicated spotter before plant operates near workers",
	},
	{
		Category:       "exclusion_zone",
		Negative:       regexp.MustCompile(`(?i)(?:barricad\w+|exclusion\s+zone)[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)(?:barricad\w+|exclusion\s+zone)[^\n]{0,60}` + affMark),
		Severity:       SeverityMedium,
		Weight:         1,
		Description:    "Barricading or exclusion zone not established",
		Location:       "work area controls",
		Recommendation: "Establish barricading around the work area before starting",
	},
	{
		Category:       "head_protection",
		Negative:       regexp.MustCompile(`(?i)(?:hard\s+hat|helmet)[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)(?:hard\s+hat|helmet)[^\n]{0,60}` + affMark),
		Severity:       SeverityMedium,
		Weight:         1,
		Description:    "Hard hat marked as not worn",
		Location:       "PPE section",
		Standard:       "AS/NZS 1801",
		Recommendation: "Wear head protection in all designated areas",
	},
	{
		Category:       "eye_protection",
		Negative:       regexp.MustCompile(`(?i)(?:safety\s+(?:glasses|goggles)|eye\s+protection)[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)(?:safety\s+(?:glasses|goggles)|eye\s+protection)[^\n]{0,60}` + affMark),
		Severity:       SeverityMedium,
		Weight:         1,
		Description:    "Eye protection marked as not worn",
		Location:       "PPE section",
		Standard:       "AS/NZS 1337",
		Recommendation: "Wear safety glasses for the full duration of the task",
	},
	{
		Category:       "hearing_protection",
		Negative:       regexp.MustCompile(`(?i)(?:hearing\s+protection|ear\s*(?:plugs|muffs))[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)(?:hearing\s+protection|ear\s*(?:plugs|muffs))[^\n]{0,60}` + affMark),
		Severity:       SeverityMedium,
		Weight:         1,
		Description:    "Hearing protection marked as not worn",
		Location:       "PPE section",
		Recommendation: "Use hearing protection in high noise areas",
	},
	{
		Category:       "hand_protection",
		Negative:       regexp.MustCompile(`(?i)gloves[^\n]{0,60}` + negMark),
		Positive:       regexp.MustCompile(`(?i)gloves[^\n]{0,60}` + affMark),
		Severity:       SeverityLow,
		Weight:         1,
		Description:    "Gloves marked as not worn",
		Location:       "PPE section",
		Recommendation: "Select gloves appropriate to the task and wear them",
	},
}

// hrwFamily is one high-risk-work activity keyword family. When any family
// matches, the single largest weight among matches is added to the score.
type hrwFamily struct {
	Name    string
	Pattern *regexp.Regexp
	Weight  int
}

var hrwFamilies = []hrwFamily{
	{"electrical_work", regexp.MustCompile(`(?i)(?:electrical\s+work|live\s+electrical|energi[sz]ed|switchboard)`), 4},
	{"confined_space", regexp.MustCompile(`(?i)confined\s+space`), 4},
	{"working_at_height", regexp.MustCompile(`(?i)(?:work(?:ing)?\s+at\s+height|roof\s+work|elevated\s+work|\bEWP\b|ladder\s+work)`), 3},
	{"mobile_plant", regexp.MustCompile(`(?i)(?:mobile\s+plant|excavator|forklift|telehandler|crane\s+operation|dozer)`), 3},
	{"excavation", regexp.MustCompile(`(?i)(?:excavation|trench(?:ing)?)`), 3},
	{"demolition", regexp.MustCompile(`(?i)demolition`), 3},
	{"hazardous_materials", regexp.MustCompile(`(?i)(?:hazardous\s+(?:material|substance|chemical)|asbestos|silica\s+dust)`), 3},
	{"scaffolding", regexp.MustCompile(`(?i)scaffold(?:ing)?`), 2},
	{"rigging", regexp.MustCompile(`(?i)(?:rigging|dogging|lifting\s+operation)`), 2},
}

// fatalFivePatterns covers the five canonical high-consequence activity
// families. Any match adds a flat +1 once, regardless of how many match.
var fatalFivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:mobile\s+plant|vehicle\s+interaction|excavator|forklift)`),
	regexp.MustCompile(`(?i)(?:fall\s+from\s+height|work(?:ing)?\s+at\s+height|fall\s+arrest)`),
	regexp.MustCompile(`(?i)(?:electrical|electrocution)`),
	regexp.MustCompile(`(?i)(?:hazardous\s+(?:atmosphere|substance|chemical)|gas\s+exposure|\bh2s\b)`),
	regexp.MustCompile(`(?i)manual\s+handling`),
}

// Gross text signals used to seed the base score.
var (
	hazardVocab    = regexp.MustCompile(`(?i)\b(?:hazard|risk|danger)`)
	emergencyVocab = regexp.MustCompile(`(?i)\b(?:emergency|incident|evacuation|first\s+aid)`)
	controlVocab   = regexp.MustCompile(`(?i)\b(?:control|mitigation|barrier|isolation|ppe)\b`)
)

// matchedViolationRules returns the rules whose negative signature matches
// the text without a suppressing positive confirmation. Each rule contributes
// at most once even if its pattern appears multiple times.
func matchedViolationRules(text string) []violationRule {
	var out []violationRule
	for _, rule := range violationRules {
		if rule.Negative.MatchString(text) && !rule.Positive.MatchString(text) {
			out = append(out, rule)
		}
	}
	return out
}

// DetectViolations runs the rule table over raw extracted text and returns
// the hazards it finds. Detected hazards are always uncontrolled: the rule
// fired precisely because no positive confirmation was present.
func DetectViolations(text string) []FlaggedIssue {
	rules := matchedViolationRules(text)
	if len(rules) == 0 {
		return nil
	}
	issues := make([]FlaggedIssue, 0, len(rules))
	for _, rule := range rules {
		issues = append(issues, FlaggedIssue{
			Type:           rule.Category,
			Severity:       rule.Severity,
			Description:    rule.Description,
			Location:       rule.Location,
			Standard:       rule.Standard,
			Recommendation: rule.Recommendation,
			Priority:       rule.Severity,
			IsControlled:   false,
		})
	}
	return issues
}

// baseRiskScore seeds a 1-6 score from gross text signals: length, hazard
// vocabulary, emergency vocabulary and control vocabulary each add 1.
func baseRiskScore(text string) int {
	score := 0
	if len(text) > 1000 {
		score++
	}
	if hazardVocab.MatchString(text) {
		score++
	}
	if emergencyVocab.MatchString(text) {
		score++
	}
	if controlVocab.MatchString(text) {
		score++
	}
	if score < 1 {
		score = 1
	}
	if score > 6 {
		score = 6
	}
	return score
}

// hrwEscalation returns the single largest matching family weight plus the
// names of every matched family.
func hrwEscalation(text string) (int, []string) {
	best := 0
	var names []string
	for _, family := range hrwFamilies {
		if family.Pattern.MatchString(text) {
			names = append(names, family.Name)
			if family.Weight > best {
				best = family.Weight
			}
		}
	}
	return best, names
}

// fatalFiveEscalation returns 1 when any Fatal Five family is present.
func fatalFiveEscalation(text string) int {
	for _, pattern := range fatalFivePatterns {
		if pattern.MatchString(text) {
			return 1
		}
	}
	return 0
}

// escalationDelta computes the total additive increment over the base score:
// largest HRW weight, flat Fatal Five +1, +1 per critical uncontrolled
// hazard, and each fired checkbox rule's fixed weight.
func escalationDelta(text string, issues []FlaggedIssue) (int, []string) {
	delta, factors := hrwEscalation(text)
	delta += fatalFiveEscalation(text)
	for _, issue := range issues {
		if issue.Severity == SeverityCritical && !issue.IsControlled {
			delta++
		}
	}
	for _, rule := range matchedViolationRules(text) {
		delta += rule.Weight
	}
	return delta, factors
}

// riskLevelForScore derives the risk level from the final 1-10 score.
func riskLevelForScore(score int) string {
	switch {
	case score <= 3:
		return RiskLevelLow
	case score <= 6:
		return RiskLevelMedium
	case score <= 8:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// clampScore keeps a risk score inside [1,10].
func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// supervisorReviewRequired gates the form behind a human review: high score,
// any critical hazard, an incomplete form at elevated risk, or a serious
// compliance gap.
func supervisorReviewRequired(r *AnalysisResult) bool {
	if r.RiskScore >= 7 {
		return true
	}
	if r.hasCriticalIssue() {
		return true
	}
	if r.FormCompleteness == CompletenessIncomplete && r.RiskScore >= 5 {
		return true
	}
	for _, issue := range r.ComplianceIssues {
		if issue.Severity == SeverityHigh || issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// finalizeRisk recomputes the final score, level and review flag from the
// original extracted text. The score is computed, never assumed: escalations
// stack on top of the base. A reply whose flagged issues already include
// every detector finding has been through this pass before and keeps its
// score, so normalization is idempotent.
func finalizeRisk(result *AnalysisResult, originalText string, backendScore int, alreadyEscalated bool) {
	delta, factors := escalationDelta(originalText, result.FlaggedIssues)
	result.HRWFactors = mergeStrings(result.HRWFactors, factors)

	var score int
	switch {
	case backendScore > 0 && alreadyEscalated:
		score = backendScore
	case backendScore > 0:
		score = backendScore + delta
	default:
		score = baseRiskScore(originalText) + delta
	}

	result.Escalated = delta > 0
	result.RiskScore = clampScore(score)
	result.RiskLevel = riskLevelForScore(result.RiskScore)
	result.RequiresSupervisorReview = supervisorReviewRequired(result)
}

// mergeStrings appends the values of extra not already present in base,
// preserving order.
func mergeStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		base = append(base, s)
	}
	return base
}
