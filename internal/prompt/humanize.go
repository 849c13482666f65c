package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HumanizeID turns a snake_case or kebab-case identifier into display text,
// e.g. "studio_white" -> "Studio White". Used for ledger descriptions and
// event labels. The caser is built per call; cases.Caser carries internal
// state and must not be shared across goroutines.
func HumanizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	id = strings.NewReplacer("_", " ", "-", " ").Replace(id)
	return cases.Title(language.English).String(strings.Join(strings.Fields(id), " "))
}
