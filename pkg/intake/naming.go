package intake

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CollisionPolicy decides what happens when a derived name is already taken
type CollisionPolicy string

const (
	// CollisionSuffix keeps the existing file and stores the new one under
	// the derived name plus a short random suffix
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionOverwrite replaces the existing file (last writer wins)
	CollisionOverwrite CollisionPolicy = "overwrite"
)

// DateLayout is the layout of the date prefix of stored names
const DateLayout = "2006-01-02"

const (
	maxStemLength = 100
	fallbackStem  = "upload"
	suffixLength  = 6
)

// NamingPolicy configures how stored file names are derived
type NamingPolicy struct {
	// UseTitle keys the stem off the caller-supplied title instead of the filename
	UseTitle bool
	// Collision selects the policy for names that already exist
	Collision CollisionPolicy
}

// Validate checks the policy values
func (p NamingPolicy) Validate() error {
	switch p.Collision {
	case "", CollisionSuffix, CollisionOverwrite:
		return nil
	default:
		return fmt.Errorf("unsupported collision policy: %s", p.Collision)
	}
}

// Sanitize replaces spaces with underscores and deletes every character
// outside [A-Za-z0-9_.-]. Case is preserved. A run of spaces that also
// contains deleted characters is deleted as a whole, so "a #1" becomes "a1".
func Sanitize(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name))

	for i := 0; i < len(runes); {
		if isAllowed(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}

		j := i
		onlySpaces := true
		for j < len(runes) && !isAllowed(runes[j]) {
			if runes[j] != ' ' {
				onlySpaces = false
			}
			j++
		}
		if onlySpaces {
			b.WriteString(strings.Repeat("_", j-i))
		}
		i = j
	}
	return b.String()
}

func isAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}

// StoredName derives "<YYYY-MM-DD>-<stem><.ext>". The extension always comes
// from the sanitized filename; the stem comes from the sanitized title when
// useTitle is set and the title survives sanitization.
func StoredName(date time.Time, filename, title string, useTitle bool) string {
	sanitized := Sanitize(filename)
	ext := filepath.Ext(sanitized)
	stem := strings.TrimSuffix(sanitized, ext)

	if useTitle {
		if t := Sanitize(strings.TrimSpace(title)); t != "" {
			stem = t
		}
	}
	if stem == "" {
		stem = fallbackStem
	}
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}

	return fmt.Sprintf("%s-%s%s", date.Format(DateLayout), stem, ext)
}

// withSuffix inserts "-<suffix>" before the extension of name
func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), suffix, ext)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
}
