package relocate

import (
	"regexp"
	"time"
)

var (
	isoDate  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	longDate = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December) \d{1,2}, \d{4}\b`)
)

const (
	DateStatusExtracted = "machine-extracted"
	DateStatusNeeded    = "needs-human-input"
	DateTypeApproximate = "approximate"
)

// ContentDate returns the first valid date written in text as YYYY-MM-DD.
// ISO dates are preferred over spelled-out dates.
func ContentDate(text string) (string, bool) {
	for _, m := range isoDate.FindAllString(text, -1) {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	for _, m := range longDate.FindAllString(text, -1) {
		if t, err := time.Parse("January 2, 2006", m); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
