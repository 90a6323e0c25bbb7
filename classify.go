// classify.go
package main

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// formTypeFamily binds one recognized form type to its keyword family.
// Families are checked in order; the one with the most matches wins.
type formTypeFamily struct {
	FormType string
	Pattern  *regexp.Regexp
}

var formTypeFamilies = []formTypeFamily{
	{FormTypeTake5, regexp.MustCompile(`(?i)take\s*(?:5|five)`)},
	{FormTypeJSA, regexp.MustCompile(`(?i)(?:job\s+safety\s+analysis|\bjsa\b|\bswms\b|safe\s+work\s+method)`)},
	{FormTypePermitToWork, regexp.MustCompile(`(?i)(?:permit\s+to\s+work|work\s+permit|hot\s+work\s+permit|confined\s+space\s+permit)`)},
	{FormTypeToolboxTalk, regexp.MustCompile(`(?i)(?:tool\s*box\s+(?:talk|meeting)|pre.?start\s+meeting)`)},
	{FormTypeIncidentReport, regexp.MustCompile(`(?i)(?:incident\s+report|near\s+miss|injury\s+report)`)},
	{FormTypeVehicleInspection, regexp.MustCompile(`(?i)(?:vehicle\s+inspection|plant\s+inspection|pre.?start\s+check)`)},
}

var safetyKeywords = regexp.MustCompile(`(?i)\b(?:safety|hazard|ppe|risk|control)\b`)

// classifyFormType guesses a form type from keyword density. When no family
// matches, generic safety vocabulary still earns SAFETY_FORM; anything else
// is UNKNOWN.
func classifyFormType(text string) string {
	bestType := ""
	bestCount := 0
	for _, family := range formTypeFamilies {
		count := len(family.Pattern.FindAllString(text, -1))
		if count > bestCount {
			bestCount = count
			bestType = family.FormType
		}
	}
	if bestType != "" {
		return bestType
	}
	if len(safetyKeywords.FindAllString(text, -1)) >= 3 {
		return FormTypeSafetyForm
	}
	return FormTypeUnknown
}

// isSectionHeader detects the section headings OCR recovers from printed
// forms: short all-caps lines, or lines ending with a colon.
func isSectionHeader(line string) bool {
	if strings.HasSuffix(line, ":") && len(line) > 1 {
		return true
	}
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter && len(line) >= 4 && len(line) <= 60
}

// restructureText lightly cleans OCR output before prompting: per-line
// whitespace collapse, blank-line removal, and section-header tagging so
// backends can see the form's structure.
func restructureText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if isSectionHeader(line) {
			line = "== " + strings.TrimSuffix(line, ":") + " =="
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// buildAnalysisText prefixes the restructured text with form-type and length
// context for the analysis prompt.
func buildAnalysisText(formType, text string) string {
	return fmt.Sprintf("FORM TYPE: %s\nTEXT LENGTH: %d characters\n\n%s",
		formType, len(text), restructureText(text))
}
