// Package resolver locates attachment files on disk despite filenames that
// were mangled by multiple generations of character-encoding schemes. It
// tries progressively more permissive glob patterns and only accepts a
// result when exactly one filesystem entry matches.
package resolver

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Outcome classifies a single matching tier.
type Outcome int

const (
	OutcomeUnique Outcome = iota
	OutcomeNone
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnique:
		return "unique"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Stage is one relaxation tier: a named filename-to-pattern transform.
type Stage struct {
	Name    string
	Pattern string
}

// StageResult records what a tier matched, for diagnostics.
type StageResult struct {
	Stage   string
	Pattern string
	Outcome Outcome
	Matches []string
}

var (
	separatorRuns = regexp.MustCompile(`[_\- ]+`)
	hex2Groups    = regexp.MustCompile(`_((?:[0-9a-fA-F]{2}){1,3})_`)
	hex4Groups    = regexp.MustCompile(`_((?:[0-9a-fA-F]{4}){1,3})_`)
	pathKeyBounds = regexp.MustCompile(`[.-]`)

	globEscaper   = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)
	globUnescaper = strings.NewReplacer(`\\`, `\`, `\*`, `*`, `\?`, `?`, `\[`, `[`)
)

// Resolver matches encoded path fragments against a real filesystem root.
// A zero-value Root disables resolution (every lookup misses).
type Resolver struct {
	Root string
}

func New(root string) *Resolver {
	return &Resolver{Root: root}
}

// Resolve returns the unique on-disk path for the given encoded directory
// key, path key and filename. When no tier yields exactly one match, the
// literal (unrelaxed) path is returned with ok=false; callers may log it but
// must treat it as "not found".
func (r *Resolver) Resolve(directoryKey, pathKey, fileName string) (string, bool) {
	segments := dirSegments(directoryKey, pathKey)

	for _, st := range stagesFor(fileName) {
		matches := r.glob(segments, st.Pattern)
		if len(matches) == 1 {
			return matches[0], true
		}
	}

	parts := append([]string{r.Root}, literalSegments(segments)...)
	parts = append(parts, fileName)
	return filepath.Join(parts...), false
}

// literalSegments strips the glob escaping so the failure-signal path reads
// like a real path.
func literalSegments(segments []string) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = globUnescaper.Replace(s)
	}
	return out
}

// Trace runs every tier regardless of earlier outcomes. Used by the
// resolve-file debug command.
func (r *Resolver) Trace(directoryKey, pathKey, fileName string) []StageResult {
	segments := dirSegments(directoryKey, pathKey)

	var results []StageResult
	for _, st := range stagesFor(fileName) {
		matches := r.glob(segments, st.Pattern)
		outcome := OutcomeNone
		switch {
		case len(matches) == 1:
			outcome = OutcomeUnique
		case len(matches) > 1:
			outcome = OutcomeAmbiguous
		}
		results = append(results, StageResult{
			Stage:   st.Name,
			Pattern: st.Pattern,
			Outcome: outcome,
			Matches: matches,
		})
	}
	return results
}

// stagesFor builds the ordered relaxation tiers for a filename. Each tier's
// pattern is glob-escaped exactly once: collapseEscapes already returns an
// escaped pattern, so only the separator runs are wildcarded on top of it.
func stagesFor(fileName string) []Stage {
	return []Stage{
		{Name: "cleaned", Pattern: separatorPattern(CleanFileName(fileName))},
		{Name: "hex2", Pattern: wildcardSeparators(collapseEscapes(fileName, hex2Groups, 2))},
		{Name: "hex4", Pattern: wildcardSeparators(collapseEscapes(fileName, hex4Groups, 4))},
	}
}

// separatorPattern glob-escapes the literal text, then turns every run of
// underscores, hyphens and spaces into a single "*".
func separatorPattern(name string) string {
	return wildcardSeparators(globEscaper.Replace(name))
}

func wildcardSeparators(escaped string) string {
	return separatorRuns.ReplaceAllString(escaped, "*")
}

// collapseEscapes replaces underscore-wrapped hex escape groups with one "?"
// per encoded character, so a single escape matches exactly one rune.
func collapseEscapes(name string, groups *regexp.Regexp, unit int) string {
	escaped := globEscaper.Replace(name)
	return groups.ReplaceAllStringFunc(escaped, func(m string) string {
		return strings.Repeat("?", (len(m)-2)/unit)
	})
}

// dirSegments computes the directory chain under the root: the lower-cased,
// de-hyphenated directory key followed by the path key split on dot/hyphen
// boundaries. "+" stands for a space and 4-hex escapes collapse to a
// wildcard before splitting.
func dirSegments(directoryKey, pathKey string) []string {
	base := strings.ToLower(strings.ReplaceAll(directoryKey, "-", ""))
	segments := []string{globEscaper.Replace(base)}

	p := strings.ReplaceAll(pathKey, "+", " ")
	p = globEscaper.Replace(p)
	p = hex4Groups.ReplaceAllString(p, "?")
	for _, seg := range pathKeyBounds.Split(p, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// glob walks the segment chain from the root, matching each level
// case-insensitively, and returns the files matching pattern in the final
// directories.
func (r *Resolver) glob(segments []string, pattern string) []string {
	if r.Root == "" {
		return nil
	}

	dirs := []string{r.Root}
	for _, seg := range segments {
		var next []string
		for _, dir := range dirs {
			next = append(next, matchEntries(dir, seg, true)...)
		}
		if len(next) == 0 {
			return nil
		}
		dirs = next
	}

	var files []string
	for _, dir := range dirs {
		files = append(files, matchEntries(dir, pattern, false)...)
	}
	return files
}

func matchEntries(dir, pattern string, wantDir bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	lowered := strings.ToLower(pattern)
	var out []string
	for _, e := range entries {
		if e.IsDir() != wantDir {
			continue
		}
		ok, err := path.Match(lowered, strings.ToLower(e.Name()))
		if err != nil {
			return nil
		}
		if ok {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}
