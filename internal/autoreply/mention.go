package autoreply

import (
	"strings"

	"golang.org/x/text/cases"
)

// MentionDetector finds bot-name aliases inside message text
type MentionDetector struct {
	aliases []string
}

// NewMentionDetector builds a detector from alias names. Blank aliases are
// ignored.
func NewMentionDetector(aliases []string) *MentionDetector {
	d := &MentionDetector{}
	fold := cases.Fold()
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		d.aliases = append(d.aliases, fold.String(alias))
	}
	return d
}

// Mentioned reports whether text contains any alias, ignoring case
func (d *MentionDetector) Mentioned(text string) bool {
	if len(d.aliases) == 0 || text == "" {
		return false
	}
	// Casers are not safe for concurrent use
	folded := cases.Fold().String(text)
	for _, alias := range d.aliases {
		if strings.Contains(folded, alias) {
			return true
		}
	}
	return false
}
