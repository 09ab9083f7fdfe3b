// Package moderation masks blocked words in chat text. Matching ignores case,
// punctuation, whitespace and common character substitutions, so "D.a-r N"
// and "d4rn" both match "darn", while the masked output keeps the sender's
// original spacing.
package moderation

import (
	"errors"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// DefaultMaskChar replaces every rune of a matched word.
const DefaultMaskChar = '*'

// ErrNoWords is returned by NewModerator when no usable word is given.
var ErrNoWords = errors.New("moderation: no words to censor")

// Moderator rewrites text with every blocked word masked. It is immutable
// after construction and safe for concurrent use.
type Moderator struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

// NewModerator builds the automaton for words.
//
// Parameters:
//   - words: Words to block; blank entries and entries made only of
//     punctuation are skipped
//   - maskChar: Replacement rune; zero uses DefaultMaskChar
//
// Returns:
//   - The Moderator, or ErrNoWords when nothing is left to match
func NewModerator(words []string, maskChar rune) (*Moderator, error) {
	patterns := lo.Filter(
		lo.Map(words, func(w string, _ int) []rune { return fold([]rune(w)) }),
		func(p []rune, _ int) bool { return len(p) > 0 },
	)
	if len(patterns) == 0 {
		return nil, ErrNoWords
	}

	if maskChar == 0 {
		maskChar = DefaultMaskChar
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}

	return &Moderator{matcher: m, maskChar: maskChar}, nil
}

// Censor returns text with each match masked rune for rune. Noise runes that
// sit inside a match are masked too.
func (m *Moderator) Censor(text string) string {
	original := []rune(text)
	folded, positions := index(original)
	if len(folded) == 0 {
		return text
	}

	hits := m.matcher.MultiPatternSearch(folded, false)
	if len(hits) == 0 {
		return text
	}

	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(positions) {
			continue
		}

		for i := positions[hit.Pos]; i <= positions[end-1]; i++ {
			original[i] = m.maskChar
		}
	}

	return string(original)
}

// index folds runes and records where each kept rune came from.
func index(runes []rune) ([]rune, []int) {
	folded := make([]rune, 0, len(runes))
	positions := make([]int, 0, len(runes))

	for i, r := range runes {
		r = substitute(r)
		if noise(r) {
			continue
		}

		folded = append(folded, unicode.ToLower(r))
		positions = append(positions, i)
	}

	return folded, positions
}

func fold(runes []rune) []rune {
	folded, _ := index(runes)
	return folded
}

func substitute(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func noise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
