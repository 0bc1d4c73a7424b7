package fields

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	descriptionPolicyOnce sync.Once
	descriptionPolicy     *bluemonday.Policy
)

// sanitizeDescription strips any markup from schema-provided text before it
// reaches a descriptor. Documents may be user-supplied, so descriptions are
// treated as untrusted input.
func sanitizeDescription(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	policy := descriptionSanitizer()
	cleaned := policy.Sanitize(trimmed)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func descriptionSanitizer() *bluemonday.Policy {
	descriptionPolicyOnce.Do(func() {
		descriptionPolicy = bluemonday.StrictPolicy()
	})
	return descriptionPolicy
}
