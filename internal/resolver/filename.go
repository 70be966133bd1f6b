package resolver

import (
	"html"
	"regexp"
	"strings"
)

// Characters that cannot appear in filenames on the attachment filesystem.
var unsafeFilenameChars = regexp.MustCompile("[\x00/\\\\:*?\"<>|]")

// The source platform went through several generations of filename
// transliteration. The oldest one stored punctuation as the little-endian
// UTF-16 code unit wrapped in underscores, e.g. "(" -> "_2800_", with a
// doubled form for repeated characters ("((" -> "_28002800_").
var legacyEscapes = []struct {
	hex string
	lit string
}{
	{"28", "("},
	{"29", ")"},
	{"23", "#"},
	{"25", "%"},
	{"2d", "-"},
	{"5f", "_"},
	{"5b", "["},
	{"5d", "]"},
	{"3d", "="},
	{"2c", ","},
	{"22", "\""},
	{"7e", "~"},
	{"21", "!"},
	{"2b", "+"},
	{"7b", "{"},
	{"7d", "}"},
	{"26", "&"},
	{"40", "@"},
}

// CleanFileName normalizes a filename the way the source platform's file
// store does: HTML entities unescaped, filesystem-unsafe characters replaced
// with underscores, and known legacy escape sequences reversed. The same
// cleaning is shared by the fuzzy resolver (tier 1) and the deterministic
// attachment path computation.
func CleanFileName(name string) string {
	name = html.UnescapeString(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")

	for _, e := range legacyEscapes {
		for _, hex := range []string{e.hex, strings.ToUpper(e.hex)} {
			// Doubled form first so it is not consumed as two singles.
			name = strings.ReplaceAll(name, "_"+hex+"00"+hex+"00_", e.lit+e.lit)
			name = strings.ReplaceAll(name, "_"+hex+"00_", e.lit)
		}
	}

	return name
}
