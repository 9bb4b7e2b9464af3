// ABOUTME: Event name grammar enforcement: dotted lowercase hierarchy, no placeholders.
// ABOUTME: Names must carry semantic meaning; generic names are rejected outright.

package event

import (
	"fmt"
	"regexp"
	"strings"
)

// nameRe is the event name grammar: lowercase dotted segments, at least two.
var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

// placeholderNames are generic names that carry no semantic meaning and are
// rejected even if some hierarchical variant would pass the grammar.
var placeholderNames = map[string]struct{}{
	"event":   {},
	"events":  {},
	"message": {},
	"msg":     {},
	"test":    {},
	"temp":    {},
	"default": {},
	"generic": {},
	"data":    {},
	"info":    {},
	"action":  {},
	"handler": {},
	"unknown": {},
}

// ValidateName checks an event name against the grammar of the event model:
// `domain.entity.action` style, lowercase, at least two dot-separated parts.
// Bare placeholder names and names synthesized with a trailing "unknown"
// segment are rejected; a producer that cannot derive a meaningful name must
// fail instead of inventing one.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if _, ok := placeholderNames[name]; ok {
		return fmt.Errorf("%w: %q", ErrPlaceholderName, name)
	}
	if len(name) < 3 || !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, ".unknown") {
		return fmt.Errorf("%w: %q", ErrPlaceholderName, name)
	}
	return nil
}
