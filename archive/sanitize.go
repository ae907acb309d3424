package archive

import "strings"

// fallbackEntryName replaces names that sanitize to nothing usable ("", ".", "..").
const fallbackEntryName = "file"

// SanitizeName maps a display name onto [A-Za-z0-9_.-], replacing every
// other rune with '_'. The result never contains a path separator and is
// stable under repeated application.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isSafeRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return fallbackEntryName
	}
	return out
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
