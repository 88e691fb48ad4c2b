package vidget

import "strings"

// htmlReplacer works in a single pass, so the entities it emits are never
// escaped again.
var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML makes user or server supplied text safe to embed in markup.
func EscapeHTML(s string) string {
	if s == "" {
		return ""
	}
	return htmlReplacer.Replace(s)
}
