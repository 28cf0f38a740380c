package chat

import (
	"path/filepath"
	"strings"
)

const (
	maxUploadNameLen = 60
	maxUploadExtLen  = 12
)

// SafeUploadPath derives the storage path for an attachment from the message
// id and a sanitized version of the original filename. Only the basename is
// used, name and extension are stripped to alphanumerics plus space, dash,
// underscore and dot, and both are capped in runes so truncation never
// produces invalid UTF-8. The result can neither traverse out of dir nor
// collide with another message's file.
func SafeUploadPath(dir, msgID, filename string) string {
	base := filepath.Base(filepath.ToSlash(filename))
	if base == "." || base == string(filepath.Separator) {
		base = "upload"
	}

	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	safe := strings.TrimSpace(sanitizeFilePart(name))
	safe = truncateRunes(safe, maxUploadNameLen)
	if safe == "" {
		safe = "upload"
	}
	ext = truncateRunes(sanitizeFilePart(ext), maxUploadExtLen)

	return filepath.Join(dir, msgID+"_"+safe+ext)
}

// sanitizeFilePart keeps alphanumerics, dash, underscore, space and dot;
// everything else is dropped.
func sanitizeFilePart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == ' ', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncateRunes caps s at n runes, never splitting a multibyte sequence.
func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
