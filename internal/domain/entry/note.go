package entry

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// MaxNoteLength is the limit on the self-soothing note, in characters.
const MaxNoteLength = 1000

// ParseNote trims the note and enforces its length limit. An empty result is
// valid and means "no note".
func ParseNote(raw string) (string, error) {
	note := strings.TrimSpace(raw)
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return "", apperrors.Validation("selfSoothingMethods",
			fmt.Sprintf("must be at most %d characters", MaxNoteLength))
	}
	return note, nil
}
