// Package identifier derives the human-assigned external identifier for a
// job, usually a numeric label embedded in an uploaded filename. External
// identifiers support lookup but are not guaranteed unique across jobs.
package identifier

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Filename patterns tried in order. First capture group wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d+)$`),       // 1, 001, 123
	regexp.MustCompile(`^.*?(\d+)$`),    // text_123, audio-456
	regexp.MustCompile(`^(\d+)_.*`),     // 123_text
	regexp.MustCompile(`.*?_(\d+)_.*`),  // prefix_123_suffix
	regexp.MustCompile(`.*?-(\d+)-.*`),  // prefix-123-suffix
	regexp.MustCompile(`.*?(\d+).*`),    // any embedded number
}

// FromFilename extracts an external identifier from a filename. The path and
// extension are stripped first; when no digits are found the bare name is
// returned, and an empty filename yields "".
// Parameters:
//   - filename: uploaded file name, possibly with path and extension.
// Returns:
//   - string: extracted identifier, or "" when filename is empty.
func FromFilename(filename string) string {
	if filename == "" {
		return ""
	}

	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	for _, p := range patterns {
		if m := p.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	return name
}

// Generate builds a fallback identifier when none could be extracted:
// the job id's first 8 characters (dashes removed) plus language and source.
// Parameters:
//   - jobID: job identifier.
//   - language: target language code.
//   - source: source type label.
// Returns:
//   - string: generated identifier.
func Generate(jobID, language, source string) string {
	short := strings.ReplaceAll(jobID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s", short, language, source)
}
