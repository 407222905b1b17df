package correct

import (
	"strings"
	"unicode"
)

// EditStats counts the word-level edits a correction made.
type EditStats struct {
	Substitutions int
	Insertions    int
	Deletions     int
	Words         int // words in the raw transcript
}

// Edits returns the total number of word edits.
func (s EditStats) Edits() int {
	return s.Substitutions + s.Insertions + s.Deletions
}

// Rate returns edits per raw word, 0 for an empty raw transcript.
func (s EditStats) Rate() float64 {
	if s.Words == 0 {
		return 0
	}
	return float64(s.Edits()) / float64(s.Words)
}

// Compare aligns raw and corrected word by word. Case and punctuation are
// ignored.
func Compare(raw, corrected string) EditStats {
	a := normalizeWords(raw)
	b := normalizeWords(corrected)
	n, m := len(a), len(b)

	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				d[i][j] = d[i-1][j-1]
				continue
			}
			d[i][j] = 1 + min(d[i-1][j-1], d[i-1][j], d[i][j-1])
		}
	}

	s := EditStats{Words: n}
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			i--
			j--
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			s.Substitutions++
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			s.Deletions++
			i--
		default:
			s.Insertions++
			j--
		}
	}
	return s
}

func normalizeWords(s string) []string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Fields(s)
}
