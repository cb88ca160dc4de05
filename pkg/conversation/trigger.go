package conversation

import (
	"fmt"
	"regexp"
)

// compileTriggerPatterns builds one case-insensitive word-boundary-anchored
// pattern per bot name/alias, plus any caller-supplied raw patterns. The
// anchoring is what makes "@nova" match while "@novalith" does not.
func compileTriggerPatterns(names []string, extra []string) ([]*regexp.Regexp, error) {
	var patterns []*regexp.Regexp
	for _, name := range names {
		if name == "" {
			continue
		}
		p, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("trigger pattern for %q: %w", name, err)
		}
		patterns = append(patterns, p)
	}
	for _, src := range extra {
		if src == "" {
			continue
		}
		p, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("extra trigger pattern %q: %w", src, err)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
