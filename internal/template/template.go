// Package template renders creator-authored message templates into
// personalized scripts. Rendering is a pure literal substitution: the five
// known tokens are replaced globally and everything else passes through
// untouched, including unmatched braces.
package template

import (
	"strings"
	"time"
)

// Template placeholder tokens. Matching is case-sensitive.
const (
	PlaceholderName     = "{name}"
	PlaceholderEmail    = "{email}"
	PlaceholderUsername = "{username}"
	PlaceholderPlan     = "{plan}"
	PlaceholderDate     = "{date}"
)

// Attrs carries the customer attributes available for substitution. Nil
// fields fall back to the documented defaults.
type Attrs struct {
	Name     *string
	Email    *string
	Username *string
	PlanName *string
}

// Render substitutes every placeholder occurrence in tmpl. It never fails:
// a missing name becomes "there", a missing plan becomes "our community",
// missing email/username become empty strings, and {date} becomes the
// current date.
func Render(tmpl string, attrs Attrs) string {
	return renderAt(tmpl, attrs, time.Now())
}

// renderAt is Render with an injectable clock for tests.
func renderAt(tmpl string, attrs Attrs, now time.Time) string {
	replacer := strings.NewReplacer(
		PlaceholderName, orDefault(attrs.Name, "there"),
		PlaceholderEmail, orDefault(attrs.Email, ""),
		PlaceholderUsername, orDefault(attrs.Username, ""),
		PlaceholderPlan, orDefault(attrs.PlanName, "our community"),
		PlaceholderDate, now.Format("1/2/2006"),
	)
	return replacer.Replace(tmpl)
}

func orDefault(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}
