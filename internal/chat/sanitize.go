package chat

import (
	"regexp"
	"strings"
)

// An earlier rendering scheme embedded "meta" div wrappers directly into
// stored message text, sometimes HTML-escaped. Both variants are stripped at
// render time so old documents heal themselves.
var (
	metaRawRE = regexp.MustCompile(
		`(?i)<div[^>]*\bclass\s*=\s*['"][^'"]*\bmeta\b[^'"]*['"][\s\S]*?</div>`)
	metaEscapedRE = regexp.MustCompile(
		`(?i)&lt;div[^&]*\bclass\s*=\s*(?:&quot;|"|')?[^&]*\bmeta\b[^&]*(?:&quot;|"|')?[\s\S]*?&lt;/div&gt;`)
)

// CleanLegacyText removes residual markup fragments left over from the old
// rendering scheme and trims surrounding whitespace. It is idempotent:
// cleaning already-clean text returns it unchanged.
func CleanLegacyText(text string) string {
	if text == "" {
		return ""
	}
	text = metaRawRE.ReplaceAllString(text, "")
	text = metaEscapedRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
