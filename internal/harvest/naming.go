package harvest

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// MaxIndex is the last index that fits the five-digit canonical name.
// Later indices still render, with more digits.
const MaxIndex = 99999

// ErrNonCanonical is returned when the photo directory holds a file that does
// not follow the canonical naming scheme.
var ErrNonCanonical = errors.New("non-canonical file in photo directory")

// Counter is the next index to assign to a harvested photo.
type Counter int

var canonicalPattern = regexp.MustCompile(`^img(\d{5,})\.jpg$`)

// CanonicalName renders c as img<5-digit index>.jpg.
func CanonicalName(c Counter) string {
	return fmt.Sprintf("img%05d.jpg", int(c))
}

// ParseCanonical extracts the index from a canonical file name.
func ParseCanonical(name string) (Counter, bool) {
	m := canonicalPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return Counter(n), true
}

// Recover derives the starting counter from photoDir: 0 when empty, otherwise
// the highest canonical index plus one. The raw subdirectory is skipped; any
// other entry aborts recovery with ErrNonCanonical.
func Recover(photoDir, rawDirName string) (Counter, error) {
	entries, err := os.ReadDir(photoDir)
	if err != nil {
		return 0, fmt.Errorf("read photo dir %s: %w", photoDir, err)
	}

	next := Counter(0)
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() == rawDirName {
			continue
		}
		idx, ok := ParseCanonical(entry.Name())
		if !ok || !entry.Type().IsRegular() {
			return 0, fmt.Errorf("%w: %s", ErrNonCanonical, entry.Name())
		}
		if idx+1 > next {
			next = idx + 1
		}
	}
	return next, nil
}
