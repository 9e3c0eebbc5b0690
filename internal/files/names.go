package files

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TimestampLayout prefixes every generated name.
const TimestampLayout = "20060102_150405"

const maxNameLength = 255

var (
	unsafeChars        = regexp.MustCompile(`[^a-zA-Z0-9\-_.]+`)
	unsafeCharsOrSpace = regexp.MustCompile(`[^a-zA-Z0-9\-_.\s]+`)
)

// baseName strips any directory part, whichever separator the client used.
func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

// Sanitize reduces a client supplied file name to a safe ASCII base name made
// of [a-zA-Z0-9._-]. The result may be empty.
func Sanitize(filename string) string {
	filename = baseName(filename)
	if filename == "." || filename == "/" {
		return ""
	}
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, filename); err == nil {
		filename = folded
	}
	filename = unsafeCharsOrSpace.ReplaceAllString(filename, "")
	filename = strings.Join(strings.Fields(filename), "_")
	return strings.Trim(filename, "._")
}

// Extension returns the lower-cased extension of the client supplied name,
// including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(baseName(filename)))
}

// GenerateName builds the stored name for an upload:
// <YYYYMMDD_HHMMSS>_<sanitized name><extension>.
func GenerateName(original string, now time.Time) string {
	base := baseName(original)
	ext := unsafeChars.ReplaceAllString(Extension(base), "")
	stem := Sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "upload"
	}
	name := fmt.Sprintf("%s_%s%s", now.Format(TimestampLayout), stem, ext)
	if len(name) > maxNameLength {
		name = name[:maxNameLength-len(ext)] + ext
	}
	return name
}

// WithSuffix inserts suffix before the extension of name.
func WithSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + suffix + ext
}

// ValidName reports whether name can be used as a key in a Store. Names that
// could escape the store directory or address hidden files are rejected.
func ValidName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return !strings.HasPrefix(name, ".")
}
