package guard

import "regexp"

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(your\s+)?instructions`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)(report|return)\s+no\s+(issues|findings)`),
}

// SuspectInjection returns the patterns in text that look like instructions
// aimed at the oracle, such as comments planted in a template. Callers warn;
// the text is still scanned.
func SuspectInjection(text string) []string {
	var hits []string
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			hits = append(hits, re.String())
		}
	}
	return hits
}
