package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultFileName = "document.pdf"
	maxFileNameLen  = 128
)

// SanitizeFileName reduces an uploaded display name to a single safe path
// component. Directory parts are dropped, reserved and control characters are
// replaced with '_', and the result is capped at maxFileNameLen bytes.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"|?*%#&`, r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimLeft(b.String(), ".")
	cleaned = truncateUTF8(cleaned, maxFileNameLen)
	if strings.Trim(cleaned, "_") == "" {
		return DefaultFileName
	}
	return cleaned
}

// TruncateRunes returns at most limit characters of s.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// truncateUTF8 returns at most limit bytes of s without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
