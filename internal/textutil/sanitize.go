package textutil

import (
	"regexp"
	"strings"
)

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// CleanName converts free-form text into a filesystem-safe folder name.
// Characters outside word characters, whitespace, and hyphens are removed,
// then whitespace runs collapse to a single underscore. Hyphens survive.
// Returns "" when nothing safe remains.
func CleanName(name string) string {
	clean := strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
	return spaceRuns.ReplaceAllString(clean, "_")
}

// CleanTitle converts a descriptive title into a filename stem. Same safe
// set as CleanName, but hyphens are folded into underscores as well, so a
// title like "red-panda on branch" becomes "red_panda_on_branch".
func CleanTitle(title string) string {
	clean := strings.TrimSpace(unsafeChars.ReplaceAllString(title, ""))
	clean = strings.ReplaceAll(clean, " ", "_")
	return strings.ReplaceAll(clean, "-", "_")
}
